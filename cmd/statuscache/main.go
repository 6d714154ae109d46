// Command statuscache serves aggregated provider status from a warm cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/statuscache/internal/jobs"
	"github.com/Sternrassler/statuscache/pkg/cache"
	"github.com/Sternrassler/statuscache/pkg/config"
	"github.com/Sternrassler/statuscache/pkg/logging"
	"github.com/Sternrassler/statuscache/pkg/statuspage"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"_CONFIG"), "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "statuscache: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LoggingConfig())

	providers, err := statuspage.LoadProviders(cfg.Warmup.ProvidersFile)
	if err != nil {
		return err
	}

	app, err := newApp(cfg, providers, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Warmup.OnStartup {
		if err := app.scheduler.RunNow(ctx, jobs.WarmupTaskName); err != nil {
			logger.Warn().Err(err).Msg("Startup warmup incomplete")
		}
	}
	app.scheduler.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.server.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("providers", len(providers)).
			Str("warmup_schedule", cfg.Warmup.Schedule).
			Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app holds the wired components of the service.
type app struct {
	cache     *cache.Cache[statuspage.Status]
	scheduler *jobs.Scheduler
	server    *server
}

func newApp(cfg config.Config, providers []statuspage.Provider, logger zerolog.Logger) (*app, error) {
	c, err := cache.New[statuspage.Status](cfg.CacheConfig(),
		cache.WithLogger(logger.With().Str("component", "cache").Logger()),
	)
	if err != nil {
		return nil, err
	}

	fetchCfg := cfg.FetchConfig()
	if backend := c.Backend(); backend != nil {
		fetchCfg.RateLimits = backend
	}
	client, err := statuspage.New(fetchCfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	fetch := client.Fetcher(providers)

	priorityIDs := append(statuspage.PriorityIDs(providers), cfg.Warmup.PriorityIDs...)
	warmup := jobs.NewWarmupTask(c, statuspage.Subjects(providers), priorityIDs, fetch)

	scheduler := jobs.NewScheduler(logger.With().Str("component", "jobs").Logger())
	if err := scheduler.Add(cfg.Warmup.Schedule, warmup); err != nil {
		_ = c.Close()
		return nil, err
	}

	return &app{
		cache:     c,
		scheduler: scheduler,
		server: &server{
			cache:        c,
			fetch:        fetch,
			providers:    providers,
			scheduler:    scheduler,
			warmup:       warmup,
			fetchTimeout: cfg.CacheConfig().FetchTimeout,
			logger:       logger.With().Str("component", "server").Logger(),
		},
	}, nil
}

// close stops scheduled work before the cache so no task outlives it.
func (a *app) close() {
	a.scheduler.Stop()
	_ = a.cache.Close()
}
