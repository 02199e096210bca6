package stream

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/penwyp/podscope/internal/util"
)

// ServeSSE writes session events to w as Server-Sent Events until the
// terminal event or until the request is cancelled, which closes the session.
func ServeSSE(w http.ResponseWriter, r *http.Request, s *Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.Close()
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", s.ID())
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			data, err := sonic.Marshal(ev)
			if err != nil {
				util.LogError("Encode stream event failed", util.F("session", s.ID()), util.F("error", err))
				s.Close()
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				s.Close()
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}
