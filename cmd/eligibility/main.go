// Package main запускает HTTP-сервер сервиса подбора государственных программ.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/config"
	"github.com/mmeshcher/scheme-eligibility/internal/documents"
	"github.com/mmeshcher/scheme-eligibility/internal/handler"
	"github.com/mmeshcher/scheme-eligibility/internal/matching"
	"github.com/mmeshcher/scheme-eligibility/internal/metrics"
	"github.com/mmeshcher/scheme-eligibility/internal/middleware"
	"github.com/mmeshcher/scheme-eligibility/internal/repository"
	"github.com/mmeshcher/scheme-eligibility/internal/service"
	"github.com/mmeshcher/scheme-eligibility/internal/tracker"
	"github.com/mmeshcher/scheme-eligibility/internal/userstore"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zap.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	holder := catalog.NewHolder(nil)
	c, err := holder.Reload(cfg.CatalogPath)
	if err != nil {
		sugar.Fatalw("catalog load error", "path", cfg.CatalogPath, "error", err.Error())
	}
	m.CatalogLoaded(c.Len(), nil)
	sugar.Infow("catalog loaded", "path", cfg.CatalogPath, "schemes", c.Len())

	repo, err := newRepository(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	docs, err := documents.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		sugar.Fatalw("upload storage initialization error", "error", err.Error())
	}

	opts := []service.Option{service.WithDocumentStorage(docs)}
	if cfg.UserServiceAddress != "" {
		opts = append(opts, service.WithProfileSource(userstore.NewClient(cfg.UserServiceAddress)))
	}

	tr := tracker.New(repo, holder, logger, tracker.WithRecorder(m))
	svc := service.NewService(repo, holder, matching.NewEngine(m), tr, logger, opts...)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is empty, tokens are signed with a random key")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, metrics.Handler(reg))

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Перезагрузка каталога по SIGHUP. При ошибке продолжает работать прежний каталог.
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				c, err := holder.Reload(cfg.CatalogPath)
				if err != nil {
					m.CatalogLoaded(0, err)
					sugar.Errorw("catalog reload failed", "path", cfg.CatalogPath, "error", err.Error())
					continue
				}
				m.CatalogLoaded(c.Len(), nil)
				sugar.Infow("catalog reloaded", "path", cfg.CatalogPath, "schemes", c.Len())
			}
		}
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting eligibility server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
