package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Stream writes sub's events to w as text/event-stream until ctx ends or the
// subscription closes. Events whose id was already sent are skipped.
func (h *Hub) Stream(ctx context.Context, w http.ResponseWriter, sub *Subscription) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("realtime: streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	dedupe := NewDeduper(512)
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if dedupe.Seen(ev.ID) {
				continue
			}
			body, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to marshal realtime event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, body); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
