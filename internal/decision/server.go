// Package decision is the read-side HTTP surface: stateless variant
// assignment against the in-memory config snapshot.
package decision

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/variantflow/variantflow/internal/configstore"
	"github.com/variantflow/variantflow/internal/engine"
	"github.com/variantflow/variantflow/internal/telemetry"
)

// Server serves /decide and /health against a config store.
type Server struct {
	configs *configstore.Store
	log     zerolog.Logger
}

// NewServer creates a decision server.
func NewServer(configs *configstore.Store, log zerolog.Logger) *Server {
	return &Server{configs: configs, log: log}
}

// Router builds the decision-side router. /decide is rate limited per IP;
// assignment itself is pure computation, the limit protects the lazy
// registration path.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(telemetry.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))
		r.Get("/decide", s.handleDecide)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	return r
}

type decideResponse struct {
	UserKey       string              `json:"user_key"`
	Environment   string              `json:"environment"`
	ConfigVersion int                 `json:"config_version"`
	Assignments   []engine.Assignment `json:"assignments"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userKey := q.Get("user_key")
	env := q.Get("env")
	if userKey == "" {
		writeError(w, http.StatusBadRequest, "user_key is required")
		return
	}
	if env == "" {
		writeError(w, http.StatusBadRequest, "env is required")
		return
	}

	userContext := map[string]any{}
	if raw := q.Get("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &userContext); err != nil {
			writeError(w, http.StatusBadRequest, "context must be a URL-encoded JSON object")
			return
		}
	}

	snap, err := s.configs.GetConfig(r.Context(), env)
	if err != nil {
		if errors.Is(err, configstore.ErrNoConfig) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, decideResponse{
		UserKey:       userKey,
		Environment:   env,
		ConfigVersion: snap.Version,
		Assignments:   engine.Assign(snap.Experiments, userKey, userContext),
	})
}

type healthResponse struct {
	Status         string          `json:"status"`
	ConfigVersions map[string]*int `json:"config_versions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		ConfigVersions: s.configs.Versions(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
