package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"term-forge/internal/agent"
	"term-forge/internal/commit"
	"term-forge/internal/config"
	"term-forge/internal/credentials"
	"term-forge/internal/generation"
	"term-forge/internal/ontology"
	"term-forge/internal/service"
	"term-forge/internal/taskmanager"
	"term-forge/internal/templatecache"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *taskmanager.Registry
	managers []*taskmanager.Manager
	service  *service.Service
	metrics  *prometheus.Registry

	closers []func() error
}

// newApp assembles the service from configuration. Nothing is loaded yet;
// each ontology is loaded by its first task.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if len(cfg.Ontologies) == 0 {
		return nil, fmt.Errorf("no ontologies configured")
	}
	a := &app{cfg: cfg, logger: logger, registry: taskmanager.NewRegistry(), metrics: prometheus.NewRegistry()}
	metrics := taskmanager.NewMetrics(a.metrics)

	for _, o := range cfg.Ontologies {
		m := taskmanager.New(o.Descriptor(), ontology.FileSource{}, taskmanager.Options{Logger: logger, Metrics: metrics})
		if err := a.registry.Register(m); err != nil {
			return nil, err
		}
		a.managers = append(a.managers, m)
	}

	committer, err := a.committer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	validator, err := a.credentials()
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := service.Options{
		Registry:    a.registry,
		Templates:   templatecache.New(templatecache.DirLoader(cfg.TemplatesDir), logger),
		Generator:   generation.NewEngine(generation.BuiltinRules(), nil, logger),
		Commits:     commit.NewEngine(committer, commit.Options{Logger: logger}),
		Credentials: validator,
		Logger:      logger,
	}

	reviewer, err := agent.NewAgent(ctx, apiKey(cfg, logger), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize review agent: %w", err)
	}
	if reviewer != nil {
		opts.Reviewer = reviewer
		a.closers = append(a.closers, func() error { reviewer.Close(); return nil })
	}

	a.service = service.New(opts)
	return a, nil
}

// committer builds the commit backend selected by the store configuration.
func (a *app) committer(ctx context.Context) (commit.Committer, error) {
	switch a.cfg.Store.Type {
	case config.PostgreSQLStore:
		pc, err := commit.OpenPostgresCommitter(ctx, a.cfg.Store.ConnectionString)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pc.Close)
		a.logger.Info("committing to database", "connection", maskConnectionString(a.cfg.Store.ConnectionString))
		return pc, nil
	default:
		router := make(commit.Router, len(a.cfg.Ontologies))
		for _, o := range a.cfg.Ontologies {
			router[o.Name] = commit.NewFileCommitter(o.Source, o.IDPrefix)
		}
		return router, nil
	}
}

func (a *app) credentials() (credentials.Validator, error) {
	if a.cfg.CredentialsFile == "" {
		a.logger.Warn("no credentials file configured; any identity may commit")
		return credentials.AllowAll{}, nil
	}
	return credentials.LoadFile(a.cfg.CredentialsFile)
}

// Close releases database connections and the agent client.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads configuration, builds the app and runs fn with it.
func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// apiKey prefers the configured key, then GEMINI_API_KEY, then
// GOOGLE_API_KEY.
func apiKey(cfg config.Config, logger *slog.Logger) string {
	if cfg.GeminiAPIKey != "" {
		return cfg.GeminiAPIKey
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		logger.Info("using GOOGLE_API_KEY for Gemini API (consider setting gemini_api_key)")
		return key
	}
	return ""
}

// maskConnectionString masks sensitive parts of a database connection string
// for display.
func maskConnectionString(connStr string) string {
	if len(connStr) > 20 {
		return connStr[:10] + "..." + connStr[len(connStr)-10:]
	}
	return "***"
}
