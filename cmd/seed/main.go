package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/seed"
	"github.com/hackgods/doctor-booking/internal/timegrid"
	"github.com/hackgods/doctor-booking/pkg/logging"
)

type options struct {
	doctors int
	days    int
	seed    uint64
}

func main() {
	var opts options
	flag.IntVar(&opts.doctors, "doctors", 100, "number of doctors to create")
	flag.IntVar(&opts.days, "days", 30, "days of availability to publish per doctor, starting today")
	flag.Uint64Var(&opts.seed, "seed", 0, "random seed, 0 for a random one")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, opts); err != nil {
		os.Exit(logging.Fail(logger, "seed failed", err))
	}
}

func run(cfg config.Config, logger *zap.Logger, opts options) error {
	logger.Info("seed starting", zap.Int("doctors", opts.doctors), zap.Int("days", opts.days))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.OpenPool(ctx, cfg.PostgresDSN, db.PoolOptions{
		AppName:        "doctor-booking-seed",
		MaxConns:       cfg.PostgresMaxConns,
		MinConns:       1,
		ConnectTimeout: cfg.PostgresConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := appointment.NewPgRepository(pool)
	sum, err := seed.NewGenerator(opts.seed).Populate(ctx, repo, opts.doctors, timegrid.DateOf(time.Now()), opts.days)
	if err != nil {
		return fmt.Errorf("seed doctors: %w", err)
	}

	logger.Info("seed complete", zap.Int("doctors", len(sum.DoctorIDs)), zap.Int("blocks", sum.Blocks))
	return nil
}
