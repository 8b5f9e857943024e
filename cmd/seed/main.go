package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/lock"
	"github.com/hackgods/clinic-booking/internal/logger"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}
	if cfg.StoreBackend != config.StoreBackendPostgres {
		panic("seed requires STORE_BACKEND=postgres")
	}

	log, err := logger.New(cfg)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	ctx := context.Background()

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancel()
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	faker := gofakeit.New(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool)
	svc := appointment.NewService(repo, lock.NewLocalLocker(lock.Options{}), cfg, log)

	doctors := getInt("SEED_DOCTORS", 20)
	patients := getInt("SEED_PATIENTS", 2000)

	if err := seedDoctors(ctx, log, svc, faker, doctors); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(ctx, log, pool, faker, patients); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

// seedDoctors creates doctors in distinct offices with a weekday morning and
// afternoon window each.
func seedDoctors(ctx context.Context, log *zap.Logger, svc *appointment.Service, faker *gofakeit.Faker, count int) error {
	log.Info("seeding doctors", zap.Int("count", count))

	admin := appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}

	for i := 0; i < count; i++ {
		name := "Dr. " + faker.FirstName() + " " + faker.LastName()
		spec := specializations[faker.Number(0, len(specializations)-1)]
		office := strconv.Itoa(100 + i)

		d, err := svc.CreateDoctor(ctx, admin, name, spec, office, true)
		if err != nil {
			return err
		}

		morningEnd := []string{"12:00", "12:30", "11:45"}[faker.Number(0, 2)]
		for day := 1; day <= 5; day++ {
			windows := [][2]string{{"09:00", morningEnd}, {"14:00", "17:00"}}
			for _, w := range windows {
				_, err := svc.AddScheduleEntry(ctx, admin, d.Slug, day, w[0], w[1], "")
				if err != nil && !errors.Is(err, appointment.ErrScheduleConflict) {
					return err
				}
			}
		}
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
