package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/metrics"
	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
)

const (
	channelEmail    = "email"
	channelInApp    = "in_app"
	channelRealtime = "websocket"

	defaultTimeout = 15 * time.Second
)

// Publisher receives realtime events. *Hub is the production implementation.
type Publisher interface {
	Publish(ev Event)
}

// Dispatcher fans committed appointment changes and recorded results out to email, the in-app inbox and
// connected websocket clients. Every send runs in the background; failures are logged
// and counted but never reach the caller.
type Dispatcher struct {
	store   Store
	email   EmailSender
	hub     Publisher
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

type DispatcherConfig struct {
	Store   Store
	Email   EmailSender
	Hub     Publisher
	Metrics *metrics.BookingMetrics
	Logger  zerolog.Logger
	Timeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Dispatcher{
		store:   cfg.Store,
		email:   cfg.Email,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}
}

func (d *Dispatcher) AppointmentBooked(detail appointment.AppointmentDetail) {
	d.dispatch(func(ctx context.Context) {
		d.publish(EventAppointmentBooked, detail, "")

		msg := fmt.Sprintf("Your %s appointment at %s on %s at %s has been booked. Reference: %s.",
			detail.Test.Name, detail.Hospital.Name, detail.AppointmentDate, detail.TimeSlot, detail.Reference)
		d.createInApp(ctx, appointmentSubject(detail), Notification{
			Type:     TypeAppointmentBooked,
			Title:    "Appointment booked",
			Message:  msg,
			Channels: []string{channelInApp},
			Priority: PriorityMedium,
		})
		d.sendEmail(ctx, appointmentSubject(detail), "Appointment booked: "+detail.Reference, msg)
	})
}

func (d *Dispatcher) AppointmentStatusChanged(detail appointment.AppointmentDetail, previous appointment.Status) {
	d.dispatch(func(ctx context.Context) {
		d.publish(EventAppointmentStatusChanged, detail, previous)

		switch detail.Status {
		case appointment.StatusConfirmed:
			msg := fmt.Sprintf("Your appointment %s has been confirmed for %s", detail.Reference, detail.AppointmentDate)
			d.createInApp(ctx, appointmentSubject(detail), Notification{
				Type:     TypeAppointmentConfirmation,
				Title:    "Appointment confirmed",
				Message:  msg,
				Channels: []string{channelEmail, channelInApp},
				Priority: PriorityHigh,
			})
			d.sendEmail(ctx, appointmentSubject(detail), "Appointment confirmed: "+detail.Reference, msg+" at "+detail.TimeSlot+".")
		case appointment.StatusCancelled, appointment.StatusRescheduled:
			d.createInApp(ctx, appointmentSubject(detail), Notification{
				Type:     TypeAppointmentUpdate,
				Title:    "Appointment updated",
				Message:  fmt.Sprintf("Your appointment %s is now %s.", detail.Reference, detail.Status),
				Channels: []string{channelInApp},
				Priority: PriorityMedium,
			})
		}
	})
}

// ResultReady tells the patient a result is available. Critical values raise the
// in-app priority to urgent.
func (d *Dispatcher) ResultReady(detail results.Detail) {
	d.dispatch(func(ctx context.Context) {
		if d.hub != nil {
			d.hub.Publish(Event{Type: EventResultReady, PatientID: detail.PatientID, Data: map[string]any{"result": detail}})
		}

		priority := PriorityHigh
		if detail.HasCriticalValues() {
			priority = PriorityUrgent
		}
		msg := fmt.Sprintf("Results for your %s test (%s) are now available.", detail.Test.Name, detail.Reference)
		sub := subject{
			PatientID:     detail.PatientID,
			AppointmentID: detail.AppointmentID,
			Reference:     detail.Reference,
			Data: map[string]any{
				"result_id":      detail.ID,
				"appointment_id": detail.AppointmentID,
				"reference":      detail.Reference,
				"status":         detail.Status,
				"priority":       detail.Priority,
			},
		}
		d.createInApp(ctx, sub, Notification{
			Type:     TypeResultReady,
			Title:    "Test result available",
			Message:  msg,
			Channels: []string{channelEmail, channelInApp},
			Priority: priority,
		})
		d.sendEmail(ctx, sub, "Test results ready: "+detail.Reference, msg)
	})
}

// Wait blocks until every in-flight dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Interface("panic", r).Msg("notification dispatch panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *Dispatcher) publish(eventType string, detail appointment.AppointmentDetail, previous appointment.Status) {
	if d.hub == nil {
		return
	}
	data := map[string]any{"appointment": detail}
	if previous != "" {
		data["previous_status"] = previous
	}
	d.hub.Publish(Event{Type: eventType, PatientID: detail.PatientID, Data: data})
}

// subject is who a notification is about and what goes into its data payload.
type subject struct {
	PatientID     uuid.UUID
	AppointmentID uuid.UUID
	Reference     string
	Data          map[string]any
}

func appointmentSubject(detail appointment.AppointmentDetail) subject {
	return subject{
		PatientID:     detail.PatientID,
		AppointmentID: detail.ID,
		Reference:     detail.Reference,
		Data: map[string]any{
			"appointment_id":   detail.ID,
			"reference":        detail.Reference,
			"appointment_date": detail.AppointmentDate,
			"time_slot":        detail.TimeSlot,
			"status":           detail.Status,
		},
	}
}

func (d *Dispatcher) createInApp(ctx context.Context, sub subject, n Notification) {
	if d.store == nil {
		return
	}
	data, err := json.Marshal(sub.Data)
	if err == nil {
		n.Data = data
	}
	n.PatientID = sub.PatientID

	if _, err := d.store.Create(ctx, n); err != nil {
		d.fail(channelInApp, sub, err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, sub subject, title, body string) {
	if d.email == nil || d.store == nil {
		return
	}
	contact, err := d.store.PatientContact(ctx, sub.PatientID)
	if err != nil {
		d.fail(channelEmail, sub, err)
		return
	}
	if contact.Email == "" {
		d.logger.Debug().Str("appointment_id", sub.AppointmentID.String()).Msg("patient has no email, skipping")
		return
	}

	err = d.email.Send(ctx, EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: title,
		Body:    body,
	})
	if err != nil {
		d.fail(channelEmail, sub, err)
	}
}

func (d *Dispatcher) fail(channel string, sub subject, err error) {
	d.metrics.ObserveNotificationFailure(channel)
	d.logger.Warn().Err(err).
		Str("channel", channel).
		Str("appointment_id", sub.AppointmentID.String()).
		Str("reference", sub.Reference).
		Msg("notification failed")
}

var (
	_ appointment.Notifier = (*Dispatcher)(nil)
	_ results.Notifier     = (*Dispatcher)(nil)
)
