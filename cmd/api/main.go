package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"marketflow/assistant"
	"marketflow/config"
	"marketflow/db"
	"marketflow/jobs"
	"marketflow/logger"
	"marketflow/memstore"
	"marketflow/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repos repositories
	if cfg.MockMode() {
		log.Warn("DATABASE_URL not set; running in mock mode with in-memory storage")
		repos = memoryRepositories(memstore.New())
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			log.Fatal("bootstrap database pool", "error", err)
		}
		defer pool.Close()
		repos = postgresRepositories(pool)
	}

	hub := realtime.NewHub(log)
	var publisher realtime.Publisher = hub
	if cfg.RedisAddr != "" {
		rdb, err := realtime.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatal("connect redis", "error", err)
		}
		bus := realtime.NewRedisBus(rdb, cfg.RedisChannel, log)
		defer bus.Close()
		if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Fatal("start realtime forwarder", "error", err)
		}
		publisher = realtime.NewBusPublisher(bus)
		log.Info("realtime events fan out over redis", "channel", cfg.RedisChannel)
	}

	var model assistant.Model = assistant.CannedModel{}
	if cfg.GeminiAPIKey != "" {
		gm, err := assistant.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("init assistant model", "error", err)
		}
		defer gm.Close()
		model = gm
	}

	a := newApp(cfg, repos, hub, publisher, model, log)

	if cfg.MockMode() {
		if err := a.server.seedDemo(ctx); err != nil {
			log.Warn("seed demo data", "error", err)
		}
	}

	go a.server.limiter.runSweeper(ctx, 5*time.Minute)

	scheduler := jobs.NewScheduler(log)
	reminder := jobs.NewSampleReminder(a.server.assessments, a.dispatcher, cfg.SampleReminderAfter, log)
	if err := scheduler.Register(cfg.SampleReminderSchedule, reminder); err != nil {
		log.Fatal("schedule sample reminder", "error", err)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           a.server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API listening", "addr", httpServer.Addr, "mock_mode", cfg.MockMode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn("scheduler shutdown", "error", err)
	}
	if err := a.dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notification dispatcher shutdown", "error", err)
	}
}
