package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lendinglibrary/internal/config"
	"lendinglibrary/internal/handlers"
	"lendinglibrary/internal/metrics"
	"lendinglibrary/internal/repositories"
	"lendinglibrary/internal/session"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "listen address")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for shared sessions; empty keeps sessions in memory")
	flags.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "how long a login stays valid")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cfg.NewLogger()
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer repositories.Close(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return err
	}

	svc := newService(db, logger, rec)
	if _, err := svc.EnsureSeedAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminSecret); err != nil {
		logger.WithError(err).Error("failed to seed administrator")
		return err
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(logger))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(router, svc, sessions, logger)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server error")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSessionStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("sessions kept in process memory")
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}
	client, err := session.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		logger.WithError(err).Error("failed to connect redis")
		return nil, nil, err
	}
	logger.WithField("addr", cfg.RedisAddr).Info("sessions stored in redis")
	return session.NewRedisStore(client, cfg.SessionTTL), func() { _ = client.Close() }, nil
}
