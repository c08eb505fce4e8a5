package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/couchcryptid/sitaware/internal/engine"
)

const (
	eventBuffer       = 16
	keepaliveInterval = 15 * time.Second
)

// handleEvents streams engine notifications as server-sent events. The first
// event is always a data-ready carrying the current snapshot. Slow clients
// miss events rather than stall the engine.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline failed", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan engine.Event, eventBuffer)
	unsubscribe := s.engine.Subscribe(func(ev engine.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	snap := s.engine.Snapshot()
	if err := writeEvent(w, engine.Event{Type: engine.EventDataReady, Snapshot: &snap}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Debug("flush event stream failed", "error", err)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
