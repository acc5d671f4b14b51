package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikromon/mikromon/internal/alerter"
	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/stream"
	"github.com/mikromon/mikromon/internal/version"
)

// Server exposes the monitoring state over HTTP: alert queries, operator
// actions, and the live event stream (SSE and websocket).
type Server struct {
	engine    *alerter.Engine
	hub       *stream.Hub
	cfg       *config.Config
	provider  registry.Provider
	logger    zerolog.Logger
	port      string
	startTime time.Time
}

// NewServer creates an API server.
func NewServer(engine *alerter.Engine, hub *stream.Hub, cfg *config.Config, provider registry.Provider, logger zerolog.Logger, port string) *Server {
	return &Server{
		engine:    engine,
		hub:       hub,
		cfg:       cfg,
		provider:  provider,
		logger:    logger.With().Str("component", "api").Logger(),
		port:      port,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Exposed separately so tests can drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/history", s.handleAlertHistory)
	mux.HandleFunc("/api/alerts/", s.handleAlertAction)
	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)

	return mux
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", srv.Addr).Msg("api server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := s.engine.EntityStates()
	up, down := 0, 0
	for _, st := range states {
		switch st {
		case "up":
			up++
		case "down":
			down++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_alerts": len(s.engine.ActiveAlerts()),
		"entities":      len(states),
		"entities_up":   up,
		"entities_down": down,
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
		"version":       version.Version,
		"commit":        version.Commit,
		"build_date":    version.BuildDate,
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.engine.ActiveAlerts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	alerts := s.engine.History()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleAlertAction routes /api/alerts/{id}/ack and /api/alerts/{id}/resolve.
func (s *Server) handleAlertAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "alert id and action required", http.StatusBadRequest)
		return
	}
	id, action := parts[0], parts[1]

	var err error
	switch action {
	case "ack":
		var body struct {
			By string `json:"by"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		if body.By == "" {
			body.By = r.Header.Get("X-User-ID")
		}
		err = s.engine.Acknowledge(id, body.By)
	case "resolve":
		err = s.engine.Resolve(id)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	states := s.engine.EntityStates()

	entities := make([]map[string]interface{}, 0)
	for _, ent := range s.provider.Snapshot() {
		state, ok := states[ent.ID]
		if !ok {
			state = "unknown"
		}
		entities = append(entities, map[string]interface{}{
			"id":       ent.ID,
			"name":     ent.Name,
			"kind":     string(ent.Kind),
			"address":  ent.Address,
			"group":    ent.Group,
			"location": ent.Location,
			"state":    state,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream.ServeSSE(s.hub, w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	stream.ServeWS(s.hub, w, r, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
