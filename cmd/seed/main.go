package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/config"
	"github.com/hackgods/medtest-appointment-scheduling/internal/db"
	"github.com/hackgods/medtest-appointment-scheduling/internal/logging"
)

const (
	hospitalCount = 12
	testsPerHosp  = 8
	patientCount  = 2000
	batchSize     = 500
)

var districts = []string{"Gasabo", "Kicukiro", "Nyarugenge", "Musanze", "Huye", "Rubavu", "Rwamagana", "Muhanga"}

type testTemplate struct {
	name     string
	category string
	price    float64
	duration string // minutes, as stored
}

var testCatalog = []testTemplate{
	{"Complete Blood Count", "Hematology", 8000, "15"},
	{"Lipid Panel", "Biochemistry", 15000, "15"},
	{"Chest X-Ray", "Radiology", 25000, "30"},
	{"Abdominal Ultrasound", "Radiology", 35000, "45"},
	{"MRI Brain", "Radiology", 180000, "90"},
	{"CT Scan Abdomen", "Radiology", 120000, "60"},
	{"Electrocardiogram", "Cardiology", 20000, "30"},
	{"Echocardiogram", "Cardiology", 60000, "45"},
	{"HbA1c", "Biochemistry", 12000, "15"},
	{"Thyroid Function Test", "Endocrinology", 22000, "15"},
	{"Malaria Rapid Test", "Parasitology", 3000, "15"},
	{"Mammogram", "Radiology", 70000, "30"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.Component(logging.New(cfg.LogLevel, cfg.Env), "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := seedHospitals(context.Background(), pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed hospitals")
	}
	if err := seedPatients(context.Background(), pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	adminID, err := seedAdmin(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed admin")
	}

	logger.Info().Str("admin_id", adminID.String()).Msg("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	logger.Info().Int("hospitals", hospitalCount).Int("tests_per_hospital", testsPerHosp).Msg("seeding catalog")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < hospitalCount; i++ {
		hospitalID := uuid.New()
		district := districts[gofakeit.Number(0, len(districts)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, email, phone, province, district, sector, street)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, hospitalID,
			fmt.Sprintf("%s %s Hospital", gofakeit.LastName(), district),
			gofakeit.Email(),
			"+25078"+strconv.Itoa(gofakeit.Number(1000000, 9999999)),
			"Kigali City",
			district,
			gofakeit.City(),
			gofakeit.Street(),
		)
		if err != nil {
			return fmt.Errorf("insert hospital: %w", err)
		}

		first := gofakeit.Number(0, len(testCatalog)-1)
		for j := 0; j < testsPerHosp; j++ {
			tmpl := testCatalog[(first+j)%len(testCatalog)]
			_, err := tx.Exec(ctx, `
				INSERT INTO medical_tests (id, hospital_id, name, description, category, price, currency, duration)
				VALUES ($1, $2, $3, $4, $5, $6, 'RWF', $7)
			`, uuid.New(), hospitalID, tmpl.name, tmpl.name+" ("+tmpl.category+")", tmpl.category, tmpl.price, tmpl.duration)
			if err != nil {
				return fmt.Errorf("insert medical test: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("catalog seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	logger.Info().Int("count", patientCount).Msg("seeding patients")

	for offset := 0; offset < patientCount; offset += batchSize {
		end := min(offset+batchSize, patientCount)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, phone, role)
				VALUES ($1, $2, $3, $4, 'patient')
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), "07"+strconv.Itoa(gofakeit.Number(80000000, 89999999)))
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", patientCount).Msg("patients seeded")
	}
	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, role)
		VALUES ($1, 'Scheduling Admin', 'admin@medtest.local', 'admin')
		ON CONFLICT (email) DO UPDATE SET role = 'admin'
		RETURNING id
	`, uuid.New()).Scan(&id)
	return id, err
}
