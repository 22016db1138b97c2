package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/auth"
	"ledger/internal/backend"
	"ledger/internal/blob"
	"ledger/internal/cache"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/metrics"
	"ledger/internal/services"
	"ledger/internal/store"
	"ledger/internal/summary"
)

// cacheSweepInterval is how often expired in-process summaries are dropped.
const cacheSweepInterval = 5 * time.Minute

// App holds every long-lived collaborator a ledger binary needs.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Location *time.Location

	Store      store.Store
	Blobs      blob.Store
	Summarizer *summary.Summarizer
	AMQP       *amqp.Client

	Gate     *auth.Gate
	Sessions *auth.Sessions
	Projects *services.ProjectService
	Reports  *services.ReportService

	cacheManager *cache.Manager
	cleanups     []backend.CleanupFunc
}

// Options select the optional parts of Bootstrap.
type Options struct {
	// RequireAMQP fails Bootstrap when the broker cannot be reached instead
	// of running without events.
	RequireAMQP bool
}

// Bootstrap opens the configured backends and wires the services. Close
// releases everything it opened.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	app.Location = loc

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger)

	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	app.cleanups = append(app.cleanups, res.Cleanup)
	app.Store = app.Metrics.InstrumentStore(res.Store)

	if app.Blobs, err = factory.CreateBlobStore(ctx, bcfg); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.setupSummarizer(ctx, factory, bcfg); err != nil {
		app.Close()
		return nil, err
	}

	var publisher amqp.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP))
		switch {
		case err != nil && opts.RequireAMQP:
			app.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		case err != nil:
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		default:
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			app.AMQP = client
			app.cleanups = append(app.cleanups, client.Close)
			publisher = app.Metrics.InstrumentPublisher(client)
		}
	}

	hasher, err := auth.NewHasher(cfg.PasswordHashing)
	if err != nil {
		app.Close()
		return nil, err
	}
	secret, err := jwtSecret(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Gate = auth.NewGate(app.Store, hasher)
	app.Sessions = auth.NewSessions(app.Store, auth.NewTokenIssuer(secret), cfg.SessionTTL)

	app.Projects = services.NewProjectService(app.Store, app.Blobs, publisher, logger.WithComponent(log.ComponentProject))
	app.Reports = services.NewReportService(app.Projects, app.Summarizer)
	return app, nil
}

func (a *App) setupSummarizer(ctx context.Context, factory *backend.DefaultFactory, bcfg backend.Config) error {
	sc, err := factory.CreateSummaryCache(bcfg)
	if err != nil {
		return err
	}
	if sc.Cleanup != nil {
		a.cleanups = append(a.cleanups, sc.Cleanup)
	}
	if sc.LRU != nil {
		a.cacheManager = cache.NewManager(a.Logger.WithComponent(log.ComponentCache))
		a.cacheManager.Register(sc.LRU)
		a.cacheManager.Start(ctx, cacheSweepInterval)
	}

	var gen summary.TextGenerator
	if a.Config.GeminiAPIKey != "" {
		g, err := summary.NewGeminiGenerator(ctx, a.Config.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("initialize Gemini client: %w", err)
		}
		gen = g
	} else {
		a.Logger.Warn("GEMINI_API_KEY not set, audit summaries will use the fallback text")
	}

	a.Summarizer = summary.New(gen, summary.Options{
		Model:   a.Config.GeminiModel,
		Timeout: a.Config.SummaryTimeout,
		Cache:   sc.Cache,
		Logger:  a.Logger.WithComponent(log.ComponentSummary),
		Now:     func() time.Time { return time.Now().In(a.Location) },
		OnOutcome: func(o summary.Outcome) {
			a.Metrics.ObserveSummary(string(o))
		},
	})
	return nil
}

// jwtSecret returns the configured secret. The memory backend may run
// without one; sessions then die with the process anyway.
func jwtSecret(cfg *config.Config, logger *log.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	logger.Warn("JWT_SECRET not set, using an ephemeral session secret")
	return secret, nil
}

// Close stops background sweeps and releases backends in reverse order.
func (a *App) Close() error {
	if a.cacheManager != nil {
		a.cacheManager.Stop()
	}
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if a.cleanups[i] == nil {
			continue
		}
		if err := a.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	return errors.Join(errs...)
}
