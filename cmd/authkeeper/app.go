package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/authkeeper/internal/db"
	"github.com/nkiryanov/authkeeper/internal/handlers"
	"github.com/nkiryanov/authkeeper/internal/logger"
	"github.com/nkiryanov/authkeeper/internal/mailer"
	"github.com/nkiryanov/authkeeper/internal/repository"
	"github.com/nkiryanov/authkeeper/internal/repository/memory"
	"github.com/nkiryanov/authkeeper/internal/repository/postgres"
	"github.com/nkiryanov/authkeeper/internal/repository/redis"
	"github.com/nkiryanov/authkeeper/internal/service/auth"
	"github.com/nkiryanov/authkeeper/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authkeeper/internal/service/hasher"
	"github.com/nkiryanov/authkeeper/internal/service/passwordreset"
	"github.com/nkiryanov/authkeeper/internal/service/purger"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	purger *purger.Purger

	// Reset emails still being delivered
	resetFlow *passwordreset.Flow

	// Email queue worker, nil if redis not configured
	worker    *asynq.Server
	workerMux *asynq.ServeMux

	// Released when app stops
	closers []func()

	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	// Storage: postgres if configured, process memory otherwise
	var storage repository.Storage
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		storage = postgres.NewStorage(pool)
	} else {
		l.Warn("Database not configured, using in-memory storage")
		storage = memory.NewStorage()
	}

	// Revocations live in redis if it configured: every replica sees them at once
	revocations := storage.Revocation()
	purgeTargets := []purger.Target{{Name: "reset_tokens", Repo: storage.ResetToken()}}
	var queueOpt asynq.RedisConnOpt
	if c.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error while parsing redis url. Err: %w", err)
		}
		rdb := goredis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			app.Close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		revocations = redis.NewRevocationRepo(rdb)

		queueOpt, err = asynq.ParseRedisURI(c.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("error while parsing redis url for queue. Err: %w", err)
		}
	} else {
		purgeTargets = append(purgeTargets, purger.Target{Name: "revocations", Repo: revocations})
	}

	passwordHasher := hasher.NewPool(hasher.Bcrypt{}, c.HashWorkers)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		Alg:        c.JWTAlg,
		AccessTTL:  c.AccessTTL(),
		RefreshTTL: c.RefreshTTL(),
	}, revocations)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(ctx, auth.Config{Hasher: passwordHasher}, tokenManager, storage.User(), l)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Emails are sent by the queue worker if redis configured, right in request otherwise
	mailSender, err := mailer.New(mailer.Config{
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		Username:    c.SMTPUser,
		Password:    c.SMTPPassword,
		FromEmail:   c.SMTPFromEmail,
		FromName:    c.SMTPFromName,
		FrontendURL: c.FrontendURL,
		AppName:     c.AppName,
	}, l)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating mailer. Err: %w", err)
	}
	var resetSender passwordreset.Sender = mailSender
	if queueOpt != nil {
		client := asynq.NewClient(queueOpt)
		app.closers = append(app.closers, func() { _ = client.Close() })
		resetSender = mailer.NewQueueSender(client)

		app.worker = asynq.NewServer(queueOpt, asynq.Config{
			Concurrency: 2,
			Queues:      map[string]int{mailer.QueueName: 1},
			Logger:      asynqLogger{l.WithGroup("queue")},
		})
		app.workerMux = mailer.NewWorkerMux(mailSender, l)
	}

	resetFlow, err := passwordreset.New(passwordreset.Config{
		TTL:    c.ResetTTL(),
		Hasher: passwordHasher,
	}, storage, resetSender, l)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error while creating password reset flow. Err: %w", err)
	}

	app.resetFlow = resetFlow
	app.purger = purger.New(c.PurgeInterval, l, purgeTargets...)
	app.Handler = handlers.NewRouter(authService, resetFlow, l)

	return app, nil
}

// Run starts http server with background workers and stops them all on context cancellation
// First failing part stops the others
func (s *ServerApp) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	g.Go(func() error {
		s.logger.Info("Starting server", "address", s.ListenAddr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	g.Go(func() error {
		<-s.purger.Run(ctx)
		return nil
	})

	if s.worker != nil {
		g.Go(func() error {
			if err := s.worker.Start(s.workerMux); err != nil {
				return fmt.Errorf("email worker: %w", err)
			}
			<-ctx.Done()
			s.worker.Shutdown()
			s.logger.Info("Email worker stopped")
			return nil
		})
	}

	err := g.Wait()
	s.resetFlow.Wait()
	s.Close()

	return err
}

// Release connections
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Adapter of app logger to the one queue server expects
type asynqLogger struct {
	l logger.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
