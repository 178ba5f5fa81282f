package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	sig "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/storage"
)

const pruneEvery = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setLevel(cfg.LogLevel)
	cfg.OnChange(func(next *config.Config) { setLevel(next.LogLevel) })

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	reg := app.NewRegistry()
	m := metrics.New()
	o := &orch.Orchestrator{
		Registry:      reg,
		Rooms:         app.NewRoomIndex(db, reg, cfg.MembershipTimeout),
		Calls:         app.NewCallRegistry(nil),
		Messages:      db,
		Policy:        policyFor(cfg.Backpressure),
		Metrics:       m,
		MaxMessageLen: cfg.MaxMessageLen,
		StoreTimeout:  cfg.StoreTimeout,
	}
	ws := sig.NewSignalWSController(o, cfg)

	r := router.SetupRouter(ctx, cfg, &router.Server{Orch: o, Store: db, Signal: ws, Metrics: m})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(pruneEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				ws.Limiter.Prune()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

func policyFor(name string) app.Policy {
	if name == "drop" {
		return app.LenientPolicy{}
	}
	return app.SimplePolicy{}
}

func setLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}
