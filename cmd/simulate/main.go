package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
)

// errDoubleBooked is returned when a run ends with a slot held by two live
// appointments.
var errDoubleBooked = errors.New("double bookings detected")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "simulate",
		Short:         "Drive concurrent booking traffic against a running API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "api", "http://localhost:8080", "API base URL")
	f.DurationVar(&opts.duration, "duration", 30*time.Second, "How long to generate traffic")
	f.IntVar(&opts.workers, "workers", 10, "Concurrent clients")
	f.IntVar(&opts.bookWeight, "book-weight", 5, "Relative weight of booking attempts")
	f.IntVar(&opts.cancelWeight, "cancel-weight", 1, "Relative weight of cancellations")
	f.IntVar(&opts.readWeight, "read-weight", 4, "Relative weight of availability and appointment reads")
	f.IntVar(&opts.patients, "patients", 1000, "Patients loaded from the database")
	f.IntVar(&opts.doctors, "doctors", 5, "Published doctors to contend on")
	f.IntVar(&opts.days, "days", 7, "Days ahead to book into")

	return cmd
}

type options struct {
	baseURL      string
	duration     time.Duration
	workers      int
	bookWeight   int
	cancelWeight int
	readWeight   int
	patients     int
	doctors      int
	days         int
}

func (o options) validate() error {
	switch {
	case o.workers <= 0:
		return fmt.Errorf("--workers must be > 0")
	case o.duration <= 0:
		return fmt.Errorf("--duration must be > 0")
	case o.days <= 0:
		return fmt.Errorf("--days must be > 0")
	case o.bookWeight < 0 || o.cancelWeight < 0 || o.readWeight < 0:
		return fmt.Errorf("weights must not be negative")
	case o.bookWeight+o.cancelWeight+o.readWeight == 0:
		return fmt.Errorf("at least one weight must be positive")
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required to load patients and doctors")
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	fx, err := loadFixtures(loadCtx, pool, opts)
	if err != nil {
		return err
	}

	log.Info("simulator starting",
		zap.String("api", opts.baseURL),
		zap.Duration("duration", opts.duration),
		zap.Int("workers", opts.workers),
		zap.Int("patients", len(fx.patients)),
		zap.Int("doctors", len(fx.doctors)),
	)

	sim := newSimulator(opts, fx, log)
	sim.run(ctx)
	sim.report(os.Stdout)

	if n := sim.ledger.doubleBooked(log); n > 0 {
		log.Error("double bookings detected", zap.Int("slots", n))
		return errDoubleBooked
	}
	return nil
}
