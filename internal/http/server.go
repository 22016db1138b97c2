package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledger/internal/auth"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
	appweb "ledger/web"
)

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerPinger checks the event broker connection.
type BrokerPinger interface {
	Ping() error
}

// Deps are the collaborators the server needs. Broker is optional.
type Deps struct {
	Config   *config.Config
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Location *time.Location

	Store  Pinger
	Broker BrokerPinger

	Gate     *auth.Gate
	Sessions *auth.Sessions
	Projects *services.ProjectService
	Reports  *services.ReportService
}

type Server struct {
	http.Server
	pages    map[string]*template.Template
	logger   *log.Logger
	deps     Deps
	currency string
	now      func() time.Time
	started  time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates, registers routes and wraps them
// in the middleware chain. The result is ready for ListenAndServe.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	logger := log.OrDefault(deps.Logger, log.ComponentHTTP)

	s := &Server{
		logger:   logger,
		deps:     deps,
		currency: deps.Config.CurrencySymbol,
		started:  time.Now(),
		detector: security.NewDetector(logger.WithComponent(log.ComponentSecurity)),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.Config.RateLimitPerMinute,
		}),
	}
	s.now = func() time.Time { return time.Now().In(deps.Location) }

	pages, err := parsePages(appweb.TemplatesFS, s.templateFuncs())
	if err != nil {
		s.limiter.Stop()
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.pages = pages

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		s.limiter.Stop()
		return nil, err
	}

	var handler http.Handler = mux
	handler = deps.Metrics.Middleware(handler)
	handler = s.loadSession(handler)
	handler = s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger.WithComponent(log.ComponentTrace), s.detector.ClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// WithClock overrides the time source used for status and reports.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /register", s.handleRegisterForm)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.Handle("POST /logout", s.requireSession(s.handleLogout))

	mux.Handle("GET /{$}", s.requireAction(auth.ActionView, s.handleDashboard))
	mux.Handle("GET /upcoming", s.requireAction(auth.ActionView, s.handleUpcoming))
	mux.Handle("GET /completed", s.requireAction(auth.ActionView, s.handleCompleted))
	mux.Handle("GET /history", s.requireAction(auth.ActionView, s.handleHistory))

	mux.Handle("GET /projects/new", s.requireAction(auth.ActionCreateProject, s.handleNewProject))
	mux.Handle("POST /projects", s.requireAction(auth.ActionCreateProject, s.handleCreateProject))
	mux.Handle("GET /projects/{id}/edit", s.requireAction(auth.ActionEditProject, s.handleEditProject))
	mux.Handle("POST /projects/{id}", s.requireAction(auth.ActionEditProject, s.handleUpdateProject))
	mux.Handle("POST /projects/{id}/delete", s.requireAction(auth.ActionDeleteProject, s.handleDeleteProject))

	mux.Handle("GET /projects/{id}/report", s.requireAction(auth.ActionView, s.handleReport))
	mux.Handle("GET /projects/{id}/report/print", s.requireAction(auth.ActionPrintReport, s.handlePrintReport))
	mux.Handle("GET /projects/{id}/attachments/{slot}", s.requireAction(auth.ActionView, s.handleAttachment))
	return nil
}

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}
