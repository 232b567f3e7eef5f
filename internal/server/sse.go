package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream streams run events to the client via Server-Sent Events.
// It replays the current status snapshot once on attach, then relays
// every published event verbatim, tagged with its type. A keep-alive
// comment is written when no event arrives within KeepAliveInterval,
// which also lets the handler notice a closed connection promptly.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.deps.Bus.Subscribe()
	defer s.deps.Bus.Unsubscribe(sub)

	snapshot, err := json.Marshal(s.deps.Snapshot.Get())
	if err != nil {
		s.deps.Logger.Error("marshal snapshot failed", "error", err)
		http.Error(w, "snapshot unavailable", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", snapshot)
	flusher.Flush()

	for {
		event, ok, err := sub.Next(r.Context(), KeepAliveInterval)
		if err != nil {
			// Context cancelled or subscription closed.
			return
		}
		if !ok {
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(event)
		if err != nil {
			s.deps.Logger.Error("marshal event failed", "type", event.Type, "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
		flusher.Flush()
	}
}
