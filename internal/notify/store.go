package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrContactNotFound      = errors.New("patient contact not found")
)

const (
	TypeAppointmentBooked       = "appointment_booked"
	TypeAppointmentConfirmation = "appointment_confirmation"
	TypeAppointmentUpdate       = "appointment_update"
	TypeResultReady             = "result_ready"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"

	// ListLimit caps the in-app inbox.
	ListLimit = 50
)

type Notification struct {
	ID        uuid.UUID       `json:"id"`
	PatientID uuid.UUID       `json:"patient_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Channels  []string        `json:"channels"`
	Priority  string          `json:"priority"`
	Read      bool            `json:"read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Contact is how a patient can be reached.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Store persists in-app notifications and looks up patient contact details.
type Store interface {
	Create(ctx context.Context, n Notification) (*Notification, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, patientID uuid.UUID) (*Notification, error)
	PatientContact(ctx context.Context, patientID uuid.UUID) (*Contact, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{db: pool}
}

const notificationColumns = `id, patient_id, type, title, message, data, channels, priority, read, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var data []byte
	err := row.Scan(
		&n.ID,
		&n.PatientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&data,
		&n.Channels,
		&n.Priority,
		&n.Read,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if len(data) > 0 {
		n.Data = data
	}
	return &n, nil
}

func (s *PgStore) Create(ctx context.Context, n Notification) (*Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	var data []byte
	if len(n.Data) > 0 {
		data = n.Data
	}

	created, err := scanNotification(s.db.QueryRow(ctx, `
		INSERT INTO notifications (id, patient_id, type, title, message, data, channels, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+notificationColumns,
		n.ID, n.PatientID, n.Type, n.Title, n.Message, data, n.Channels, n.Priority))
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

func (s *PgStore) ListForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > ListLimit {
		limit = ListLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

// MarkRead marks a patient's own notification read. Another patient's id is not found.
func (s *PgStore) MarkRead(ctx context.Context, id, patientID uuid.UUID) (*Notification, error) {
	return scanNotification(s.db.QueryRow(ctx, `
		UPDATE notifications
		SET read = true,
		    read_at = COALESCE(read_at, now())
		WHERE id = $1
		  AND patient_id = $2
		RETURNING `+notificationColumns,
		id, patientID))
}

func (s *PgStore) PatientContact(ctx context.Context, patientID uuid.UUID) (*Contact, error) {
	var c Contact
	var email, phone *string
	err := s.db.QueryRow(ctx, `
		SELECT name, email, phone
		FROM users
		WHERE id = $1
	`, patientID).Scan(&c.Name, &email, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("load patient contact: %w", err)
	}
	if email != nil {
		c.Email = *email
	}
	if phone != nil {
		c.Phone = *phone
	}
	return &c, nil
}
