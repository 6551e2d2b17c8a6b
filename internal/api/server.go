package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ulift/internal/config"
	"ulift/internal/metrics"
	"ulift/internal/middleware"
	"ulift/internal/pipeline"
	"ulift/internal/roster"
	"ulift/internal/session"
)

// Deps are the collaborators of the HTTP front end.
type Deps struct {
	Config *config.Config
	Users  pipeline.UserCreator
	Store  session.Store
	Logger *zap.Logger
	// ChatURL resolves the chat service address for a request. It defaults to
	// the request host on the configured chat port.
	ChatURL func(r *http.Request) string
}

// Server serves the registration and chat pages.
type Server struct {
	cfg      *config.Config
	users    pipeline.UserCreator
	store    session.Store
	registry *session.Registry
	limiter  *middleware.RateLimiter
	tmpl     *template.Template
	log      *zap.Logger
	chatURL  func(r *http.Request) string
}

// NewServer wires the registry, rate limiter and templates.
func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:     cfg,
		users:   d.Users,
		store:   d.Store,
		limiter: middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log),
		tmpl:    parseTemplates(),
		log:     log,
		chatURL: d.ChatURL,
	}
	if s.chatURL == nil {
		s.chatURL = func(r *http.Request) string {
			return roster.ChatAddress(r.Host, cfg.Chat.Port, cfg.Chat.Path, cfg.Chat.Secure)
		}
	}
	s.registry = session.NewRegistry(session.RegistryOptions{
		IdleTTL: cfg.GetSessionIdleTTL(),
		Build:   s.newInstance,
		Logger:  log,
		OnSize:  metrics.SetInstances,
	})
	return s
}

func (s *Server) newInstance(id string) *session.Instance {
	return session.NewInstance(id, pipeline.Options{
		Users:  s.users,
		Logger: s.log,
		Observe: func(st pipeline.State, took time.Duration) {
			metrics.RecordRegistration(st.String(), took)
		},
	})
}

// Run sweeps idle form instances and rate limiters until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.Sweep()
			s.limiter.Cleanup(s.cfg.GetSessionIdleTTL())
		}
	}
}

// Close releases every form instance and its chat connection.
func (s *Server) Close() error {
	return s.registry.Close()
}
