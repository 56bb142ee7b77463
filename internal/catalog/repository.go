package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrHospitalNotFound = errors.New("hospital not found")
	ErrTestNotFound     = errors.New("medical test not found")
)

// Repository is the read-only view of hospitals and the tests they offer.
type Repository interface {
	ListHospitals(ctx context.Context) ([]Hospital, error)
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	// ListTests returns available tests, optionally restricted to one hospital.
	ListTests(ctx context.Context, hospitalID *uuid.UUID) ([]MedicalTest, error)
	GetTest(ctx context.Context, id uuid.UUID) (*MedicalTest, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

const hospitalColumns = `id, name, email, phone, province, district, sector, street, is_active, created_at, updated_at`

const testColumns = `id, hospital_id, name, description, category, price::float8, currency, duration, is_available, created_at, updated_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Email,
		&h.Phone,
		&h.Province,
		&h.District,
		&h.Sector,
		&h.Street,
		&h.IsActive,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, err
	}
	return &h, nil
}

func scanTest(row pgx.Row) (*MedicalTest, error) {
	var t MedicalTest
	err := row.Scan(
		&t.ID,
		&t.HospitalID,
		&t.Name,
		&t.Description,
		&t.Category,
		&t.Price,
		&t.Currency,
		&t.Duration,
		&t.IsAvailable,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) ListHospitals(ctx context.Context) ([]Hospital, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+hospitalColumns+`
		FROM hospitals
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	defer rows.Close()

	result := []Hospital{}
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+hospitalColumns+`
		FROM hospitals
		WHERE id = $1
	`, id)
	return scanHospital(row)
}

func (r *PgRepository) ListTests(ctx context.Context, hospitalID *uuid.UUID) ([]MedicalTest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+testColumns+`
		FROM medical_tests
		WHERE is_available
		  AND ($1::uuid IS NULL OR hospital_id = $1)
		ORDER BY name
	`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("list medical tests: %w", err)
	}
	defer rows.Close()

	result := []MedicalTest{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetTest(ctx context.Context, id uuid.UUID) (*MedicalTest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+testColumns+`
		FROM medical_tests
		WHERE id = $1
	`, id)
	return scanTest(row)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
