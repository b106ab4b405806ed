// Package server wires the Holvi application service: the event bus,
// the worklet runner, the REST/WebSocket API, and the harvest loop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gg-glitch-88/holvi/internal/api"
	"github.com/gg-glitch-88/holvi/internal/bus"
	"github.com/gg-glitch-88/holvi/internal/config"
	"github.com/gg-glitch-88/holvi/internal/harvest"
	"github.com/gg-glitch-88/holvi/internal/store"
	"github.com/gg-glitch-88/holvi/internal/worklet"
)

// Server is the central application service.
type Server struct {
	cfg       *config.Config
	db        *store.DB
	log       *zap.Logger
	bus       *bus.Bus
	runner    *worklet.Runner
	harvester *harvest.Manager
	server    *http.Server
}

// New constructs a Server without starting it.
func New(cfg *config.Config, db *store.DB, log *zap.Logger) *Server {
	b := bus.New()
	runner := worklet.NewRunner(db, db, b, cfg.Worklet.BeaconBase, log)
	router := api.NewRouter(db, runner, b, cfg.Store.ExposeReads, log)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s := &Server{
		cfg:    cfg,
		db:     db,
		log:    log,
		bus:    b,
		runner: runner,
		server: srv,
	}
	if cfg.Harvest.Enabled {
		s.harvester = harvest.New(&cfg.Harvest, runner, log)
	}
	return s
}

// Start launches all subsystems and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.log.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.harvester != nil {
		g.Go(func() error {
			return s.harvester.Start(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("context cancelled – shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutCtx)
	})

	return g.Wait()
}
