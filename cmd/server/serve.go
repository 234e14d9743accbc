package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/election-voting-portal/internal/app"
	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/logging"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

var runAuditConsumer bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the lifecycle sweeper and the audit consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		closer := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
		defer closer.Close()
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&runAuditConsumer, "audit-consumer", true, "consume audit events from RabbitMQ in this process")
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			return err
		}
	}

	opts := app.Options{
		Config:    cfg,
		DB:        db,
		Dialect:   dialect,
		Redis:     config.NewRedisClient(),
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	}
	if opts.Redis != nil {
		defer opts.Redis.Close()
	}

	if cfg.AMQPURL != "" {
		pub := queue.NewAMQPPublisher(cfg.AMQPURL)
		defer pub.Close()
		opts.Events = pub
		opts.Notifier = pub
		if runAuditConsumer {
			go queue.NewAuditConsumer(cfg.AMQPURL, repository.NewAuditRepo(db)).Run(ctx)
		}
	} else {
		log.Info("RABBITMQ_URL not set; audit events are written inline and OTPs are logged")
	}

	a := app.New(opts)
	a.Sweeper.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.WithFields(log.Fields{"addr": addr, "env": cfg.Env, "db": dialect}).Info("listening")
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Echo.Shutdown(shutdownCtx)
}
