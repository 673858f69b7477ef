package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"georelay/internal/relay"
	"georelay/internal/service/web"
	"georelay/internal/shared/logger"
	"georelay/internal/shared/types"
	manager "georelay/proxypool"
	"georelay/proxypool/scraper"
	"georelay/proxypool/storage"
	"georelay/proxypool/validator"
)

const shutdownTimeout = 10 * time.Second

// AppServer is the application's main struct.
type AppServer struct {
	cfg *types.Config

	hub              *web.Hub
	proxyPoolManager *manager.Manager
	engine           *relay.Engine
	webServer        *web.Server

	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	stopOnce  sync.Once
}

// New wires the pool manager, the relay engine and the web layer together.
// sources is the list of remote proxy lists, usually from config.LoadSources.
func New(cfg *types.Config, sources []scraper.Source) (*AppServer, error) {
	poolCfg := cfg.ProxyPoolConf

	seedStorage := storage.NewSeedStorage(poolCfg.SeedFile, poolCfg.Seeds)
	seeds, err := seedStorage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load seeds: %w", err)
	}

	// 未开启校验时必须传入 nil 接口，而不是 nil 指针
	var v manager.Validator
	if poolCfg.ValidateOnRefresh {
		v = validator.NewValidator(
			time.Duration(poolCfg.ValidationTimeoutSeconds)*time.Second,
			poolCfg.ValidationConcurrency,
			poolCfg.ProbeURL,
		)
	}

	poolOpts := manager.OptionsFromConfig(poolCfg)
	m := manager.NewManager(poolOpts, seeds, v)
	for _, src := range sources {
		sc, err := scraper.New(src, poolOpts.SourceTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", src.Name, err)
		}
		m.AddScraper(sc)
	}

	hub := web.NewHub()
	m.OnRefresh(hub.BroadcastPoolRefresh)

	engine := relay.NewEngine(relay.OptionsFromConfig(cfg.RelayConf), m)

	logger.Info().
		Int("seeds", len(seeds)).
		Int("sources", len(sources)).
		Bool("validate", v != nil).
		Msg("Application components created.")

	return &AppServer{
		cfg:              cfg,
		hub:              hub,
		proxyPoolManager: m,
		engine:           engine,
		webServer:        web.NewServer(cfg.ServerConf, m, engine, hub),
	}, nil
}

// Start launches the hub, the pool scheduler and the HTTP listener.
// It returns an error only when the listening port cannot be bound.
func (s *AppServer) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.webServer.Start(&s.waitGroup); err != nil {
		s.cancel()
		return err
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.hub.Run(ctx)
	}()

	s.proxyPoolManager.Start(ctx)
	return nil
}

// Run is the server's entry point. It blocks until SIGINT or SIGTERM.
func (s *AppServer) Run() error {
	logger.Info().Msgf("Starting %s...", s.cfg.ServerConf.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	s.Stop()
	return nil
}

// Stop gracefully shuts down the server.
func (s *AppServer) Stop() {
	s.stopOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.webServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Web server did not shut down cleanly.")
		}

		s.proxyPoolManager.Stop()
		if s.cancel != nil {
			s.cancel()
		}
		s.waitGroup.Wait()
		logger.Info().Msg("Server stopped.")
	})
}

// Addr returns the bound HTTP address after Start.
func (s *AppServer) Addr() string {
	return s.webServer.Addr()
}
