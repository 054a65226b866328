package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/memory"
	"github.com/contextd/contextd/internal/observability"
)

type Server struct {
	cfg      config.Config
	svc      *memory.Service
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc *memory.Service) *Server {
	return &Server{
		cfg: cfg,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin by default: other sites must not be able
				// to tap a session's memory event stream.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/v1/metrics", s.handleMetrics)

	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/turns", s.handleAddTurn)
		r.Get("/context", s.handleGetContext)
		r.Get("/stats", s.handleStats)
		r.Delete("/history", s.handleClearHistory)
		r.Post("/clear", s.handleAuthorizedClear)
		r.Get("/events", s.handleEvents)
	})

	return r
}
