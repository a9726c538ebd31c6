package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"marketflow/assessment"
	"marketflow/assistant"
	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/config"
	"marketflow/logger"
	"marketflow/memstore"
	"marketflow/notification"
	"marketflow/profile"
	"marketflow/realtime"
	"marketflow/support"
)

// repositories is the storage backend the services run on: Postgres, or the
// in-memory store in mock mode.
type repositories struct {
	users         auth.Repository
	profiles      profile.Repository
	products      catalog.Repository
	assessments   assessment.Repository
	conversations chat.Repository
	notifications notification.Repository
	tickets       support.Repository
	ping          func(context.Context) error
}

func postgresRepositories(pool *pgxpool.Pool) repositories {
	return repositories{
		users:         auth.NewRepository(pool),
		profiles:      profile.NewRepository(pool),
		products:      catalog.NewRepository(pool),
		assessments:   assessment.NewRepository(pool),
		conversations: chat.NewRepository(pool),
		notifications: notification.NewRepository(pool),
		tickets:       support.NewRepository(pool),
		ping:          pool.Ping,
	}
}

func memoryRepositories(store *memstore.Store) repositories {
	return repositories{
		users:         store.Users(),
		profiles:      store.Profiles(),
		products:      store.Products(),
		assessments:   store.Assessments(),
		conversations: store.Conversations(),
		notifications: store.Notifications(),
		tickets:       store.Tickets(),
	}
}

// app owns the long-lived pieces that need shutting down.
type app struct {
	server     *Server
	dispatcher *notification.Dispatcher
}

func newApp(cfg *config.Config, repos repositories, hub *realtime.Hub, publisher realtime.Publisher, model assistant.Model, log *logger.Logger) *app {
	dispatcher := notification.NewDispatcher(repos.notifications, publisher, log, 256)
	profiles := profile.NewService(repos.profiles)

	srv := &Server{
		log:           log.With("component", "HTTPServer"),
		auth:          auth.NewService(repos.users, cfg.JWTSecret, cfg.JWTTTL),
		profiles:      profiles,
		catalog:       catalog.NewService(repos.products),
		assessments:   assessment.NewService(repos.assessments, dispatcher, log).WithStrictTransitions(cfg.StrictTransitions),
		chat:          chat.NewService(repos.conversations, repos.users, profiles, publisher, log),
		notifications: notification.NewService(repos.notifications),
		support:       support.NewService(repos.tickets),
		assistant:     assistant.NewService(model, cfg.AssistantMaxTurns, log),
		hub:           hub,
		limiter:       newRateLimiter(cfg.MessageRatePerSecond, cfg.MessageRateBurst),
		corsOrigins:   cfg.CORSOrigins,
		ping:          repos.ping,
	}
	return &app{server: srv, dispatcher: dispatcher}
}
