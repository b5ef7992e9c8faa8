package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"term-forge/internal/taskmanager"
)

const (
	watchDebounce   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func serveCommand() *cobra.Command {
	var (
		addr   string
		noWarm bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and metrics, keeping ontologies loaded",
		Long: `Serve the JSON API under /api/ and Prometheus metrics under /metrics.

Ontologies are loaded at start-up unless --lazy is given, reloaded on their
configured interval, and reloaded when their source files change if watch is
enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				if addr == "" {
					addr = a.cfg.MetricsAddr
				}
				return a.serve(cmd.Context(), addr, !noWarm)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default metrics_addr)")
	cmd.Flags().BoolVar(&noWarm, "lazy", false, "load each ontology on its first request")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string, warm bool) error {
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if warm {
		g, gctx := errgroup.WithContext(ctx)
		for _, m := range a.managers {
			g.Go(func() error {
				if err := m.Load(gctx); err != nil {
					return fmt.Errorf("failed to load %s: %w", m.Name(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	var done []<-chan struct{}
	for _, m := range a.managers {
		o, _ := a.cfg.Ontology(m.Name())
		done = append(done, m.StartPeriodicReload(ctx, o.ReloadInterval))
		if !o.Watch {
			continue
		}
		w, err := taskmanager.NewWatcher(m, watchDebounce)
		if err != nil {
			return err
		}
		defer w.Stop()
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	a.service.RegisterHTTPHandlers("api", mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving", "addr", addr, "ontologies", a.registry.Names())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
	}
	for _, d := range done {
		<-d
	}
	return nil
}
