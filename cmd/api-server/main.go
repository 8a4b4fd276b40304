package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/api"
	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/booking"
	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/directory"
	"github.com/hackgods/doctor-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/seed"
	"github.com/hackgods/doctor-booking/internal/timegrid"
	"github.com/hackgods/doctor-booking/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		os.Exit(logging.Fail(logger, "api-server stopped", err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", string(cfg.Store)),
		zap.String("locker", string(cfg.Locker)),
		zap.String("id_allocator", string(cfg.IDAllocator)),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Int("slot_minutes", cfg.SlotMinutes),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo     appointment.Repository
		doctors  appointment.DoctorDirectory
		pgHealth api.Pinger
		rdHealth api.Pinger
	)

	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.OpenPool(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			AppName:          "doctor-booking-api",
			MaxConns:         cfg.PostgresMaxConns,
			MinConns:         cfg.PostgresMinConns,
			ConnectTimeout:   cfg.PostgresConnectTimeout,
			StatementTimeout: cfg.PostgresStatementTimeout,
		})
		cancelPg()
		if err != nil {
			return err
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		pgRepo := appointment.NewPgRepository(pgPool)
		repo, doctors = pgRepo, pgRepo
		pgHealth = pgPool
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		mem := appointment.NewMemoryRepository()
		sum, err := seed.NewGenerator(0).Populate(rootCtx, mem, cfg.MemorySeedDoctors, timegrid.DateOf(time.Now()), cfg.HorizonDays)
		if err != nil {
			return err
		}
		for _, id := range sum.DoctorIDs {
			logger.Info("demo doctor available", zap.Stringer("doctor_id", id))
		}
		repo, doctors = mem, mem
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		var err error
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		rdHealth = api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var locker redisclient.Locker
	if cfg.Locker == config.LockerRedis {
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	} else {
		locker = redisclient.NewLocalLocker(cfg.LockTTL)
	}

	var ids appointment.IDAllocator = repo
	if cfg.IDAllocator == config.IDAllocatorRedis {
		ids = redisclient.NewIDAllocator(rdb)
	}

	m := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	resolver := availability.NewResolver(
		availability.NewIndex(repo, cfg.SlotMinutes),
		availability.NewOccupancy(repo),
		m,
	)
	bookings := booking.NewService(repo, resolver, locker,
		booking.WithIDAllocator(ids),
		booking.WithMetrics(m),
		booking.WithLogger(logger),
	)
	blocks := availability.NewManager(repo, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Doctors:        directory.NewService(doctors, locker, logger),
		Bookings:       bookings,
		Resolver:       resolver,
		Blocks:         blocks,
		HorizonDays:    cfg.HorizonDays,
		MaxHorizonDays: cfg.MaxHorizonDays,
		Postgres:       pgHealth,
		Redis:          rdHealth,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         logger,
		Env:            cfg.Env,
		Version:        cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("api-server stopped")
	return nil
}
