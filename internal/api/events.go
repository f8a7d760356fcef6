package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// handleEvents streams bus records as Server-Sent Events. Each record is
// sent with its type as the SSE event name. The optional types query
// parameter is a comma-separated list of event types to keep; heartbeats
// are always sent so clients can detect a dead stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	var keep map[lighting.EventType]bool
	if types := r.URL.Query().Get("types"); types != "" {
		keep = make(map[lighting.EventType]bool)
		for _, t := range strings.Split(types, ",") {
			keep[lighting.EventType(strings.TrimSpace(t))] = true
		}
	}

	sub := s.events.Subscribe(s.eventBuffer)
	defer sub.Close()

	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("event stream: write deadline not cleared", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream: flushing unsupported", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if keep != nil && ev.Type != lighting.EventHeartbeat && !keep[ev.Type] {
				continue
			}
			if err := writeSSE(w, eventbus.NewRecord(ev, s.devices)); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeSSE writes one record as an SSE frame.
func writeSSE(w http.ResponseWriter, rec eventbus.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", rec.Type, data)
	return err
}
