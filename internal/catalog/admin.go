package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

const (
	pgForeignKeyViolation = "23503"

	defaultCurrency = "RWF"
)

// Store adds the admin writes to the read-only Repository.
//
// Hospitals and tests are referenced by appointments and results, so removal is
// a soft delete: the row stays and drops out of the public listings.
type Store interface {
	Repository

	CreateHospital(ctx context.Context, in HospitalInput) (*Hospital, error)
	UpdateHospital(ctx context.Context, id uuid.UUID, in HospitalInput) (*Hospital, error)
	// DeactivateHospital hides a hospital and retires every test it offers.
	DeactivateHospital(ctx context.Context, id uuid.UUID) error

	CreateTest(ctx context.Context, in TestInput) (*MedicalTest, error)
	UpdateTest(ctx context.Context, id uuid.UUID, in TestInput) (*MedicalTest, error)
	RetireTest(ctx context.Context, id uuid.UUID) error
}

type HospitalInput struct {
	Name     string  `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Province *string `json:"province"`
	District *string `json:"district"`
	Sector   *string `json:"sector"`
	Street   *string `json:"street"`
	IsActive *bool   `json:"is_active"`
}

func (in *HospitalInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return scheduling.NewValidationError("name", "Hospital name is required.")
	}
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
	return nil
}

type TestInput struct {
	HospitalID  uuid.UUID `json:"hospital_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	// Duration in whole minutes, kept as text like the column.
	Duration    *string `json:"duration"`
	IsAvailable *bool   `json:"is_available"`
}

func (in *TestInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.HospitalID == uuid.Nil:
		return scheduling.NewValidationError("hospital_id", "hospital_id is required.")
	case in.Name == "":
		return scheduling.NewValidationError("name", "Test name is required.")
	case in.Price < 0:
		return scheduling.NewValidationError("price", "Price cannot be negative.")
	}

	if in.Duration != nil {
		d := strings.TrimSpace(*in.Duration)
		if d == "" {
			in.Duration = nil
		} else if n, err := strconv.Atoi(d); err != nil || n <= 0 {
			return scheduling.NewValidationError("duration", "Duration must be a positive number of minutes.")
		} else {
			in.Duration = &d
		}
	}

	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	if in.IsAvailable == nil {
		available := true
		in.IsAvailable = &available
	}
	return nil
}

func (r *PgRepository) CreateHospital(ctx context.Context, in HospitalInput) (*Hospital, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO hospitals (id, name, email, phone, province, district, sector, street, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+hospitalColumns,
		uuid.New(), in.Name, in.Email, in.Phone, in.Province, in.District, in.Sector, in.Street, *in.IsActive)
	h, err := scanHospital(row)
	if err != nil {
		return nil, fmt.Errorf("create hospital: %w", err)
	}
	return h, nil
}

func (r *PgRepository) UpdateHospital(ctx context.Context, id uuid.UUID, in HospitalInput) (*Hospital, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE hospitals
		SET name = $2, email = $3, phone = $4, province = $5, district = $6, sector = $7, street = $8,
		    is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+hospitalColumns,
		id, in.Name, in.Email, in.Phone, in.Province, in.District, in.Sector, in.Street, *in.IsActive)
	return scanHospital(row)
}

func (r *PgRepository) DeactivateHospital(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := r.db.QueryRow(ctx, `
		WITH h AS (
			UPDATE hospitals SET is_active = FALSE, updated_at = now()
			WHERE id = $1
			RETURNING id
		), t AS (
			UPDATE medical_tests SET is_available = FALSE, updated_at = now()
			WHERE hospital_id IN (SELECT id FROM h)
		)
		SELECT id FROM h
	`, id).Scan(&got)
	if err != nil {
		if isNoRows(err) {
			return ErrHospitalNotFound
		}
		return fmt.Errorf("deactivate hospital: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateTest(ctx context.Context, in TestInput) (*MedicalTest, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO medical_tests (id, hospital_id, name, description, category, price, currency, duration, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+testColumns,
		uuid.New(), in.HospitalID, in.Name, in.Description, in.Category, in.Price, in.Currency, in.Duration, *in.IsAvailable)
	t, err := scanTest(row)
	if err != nil {
		if isHospitalFK(err) {
			return nil, ErrHospitalNotFound
		}
		return nil, fmt.Errorf("create medical test: %w", err)
	}
	return t, nil
}

func (r *PgRepository) UpdateTest(ctx context.Context, id uuid.UUID, in TestInput) (*MedicalTest, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE medical_tests
		SET hospital_id = $2, name = $3, description = $4, category = $5, price = $6, currency = $7,
		    duration = $8, is_available = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+testColumns,
		id, in.HospitalID, in.Name, in.Description, in.Category, in.Price, in.Currency, in.Duration, *in.IsAvailable)
	t, err := scanTest(row)
	if err != nil && isHospitalFK(err) {
		return nil, ErrHospitalNotFound
	}
	return t, err
}

func (r *PgRepository) RetireTest(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := r.db.QueryRow(ctx, `
		UPDATE medical_tests SET is_available = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING id
	`, id).Scan(&got)
	if err != nil {
		if isNoRows(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("retire medical test: %w", err)
	}
	return nil
}

func isHospitalFK(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

var _ Store = (*PgRepository)(nil)
