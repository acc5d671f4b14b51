package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// identityFromRequest trusts the identity headers set by the auth layer in
// front of this process; the engine itself performs no authentication.
func identityFromRequest(r *http.Request) Identity {
	return Identity{
		UserID: r.Header.Get("X-User-ID"),
		Role:   r.Header.Get("X-User-Role"),
	}
}

// ServeSSE streams hub events to one client as server-sent events. The
// keepalive envelope becomes a comment-only heartbeat line so intermediaries
// keep the connection open and dead clients fail the write.
func ServeSSE(h *Hub, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Subscribe(identityFromRequest(r))
	defer h.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if env.Type == Keepalive {
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			data, err := json.Marshal(env.Payload)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
