package scheduling

import "errors"

// Error kinds. A *BookingError unwraps to exactly one of these so callers can
// branch with errors.Is.
var (
	// ErrValidation is a caller mistake (missing field, malformed date or time).
	ErrValidation = errors.New("validation error")
	// ErrPolicy is a well formed request on a day or hour that is not bookable.
	ErrPolicy = errors.New("policy violation")
	// ErrConflict means the requested interval overlaps an existing booking.
	ErrConflict = errors.New("booking conflict")
	// ErrReferenceCollision means the generated reference hit the unique constraint.
	// A fresh attempt generates a new reference.
	ErrReferenceCollision = errors.New("reference collision")
)

// BookingError carries the kind of failure, the offending field (if any) and a
// message suitable for the API response.
type BookingError struct {
	Kind    error
	Field   string
	Message string
}

func (e *BookingError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func (e *BookingError) Unwrap() error { return e.Kind }

// NewValidationError reports a problem with field.
func NewValidationError(field, message string) *BookingError {
	return &BookingError{Kind: ErrValidation, Field: field, Message: message}
}

// NewPolicyError reports a violated weekday or business hours policy.
func NewPolicyError(field, message string) *BookingError {
	return &BookingError{Kind: ErrPolicy, Field: field, Message: message}
}

// NewConflictError reports an overlap with an existing booking.
func NewConflictError(message string) *BookingError {
	return &BookingError{Kind: ErrConflict, Field: "time_slot", Message: message}
}

// NewReferenceCollisionError reports a duplicate reference at insert time.
func NewReferenceCollisionError() *BookingError {
	return &BookingError{Kind: ErrReferenceCollision, Field: "reference", Message: "Duplicate reference generated. Please try again."}
}

// Message returns the human readable message of a BookingError, or err.Error().
func Message(err error) string {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
