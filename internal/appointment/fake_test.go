package appointment

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	redisclient "github.com/hackgods/medtest-appointment-scheduling/internal/redis"
	"github.com/hackgods/medtest-appointment-scheduling/internal/reference"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

// memStore is an in-memory Repository. Transactions are serialized and work on a copy
// of the appointments that is swapped in on commit. The reference sequence lives outside
// the copy, like a Postgres sequence.
type memStore struct {
	mu sync.Mutex

	hospitals    map[uuid.UUID]string
	tests        map[uuid.UUID]*string
	testHospital map[uuid.UUID]uuid.UUID
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	clock        time.Time

	seq       int64
	seqErr    error
	latestErr error
	insertErr error

	txCount   int
	calls     []string
	lastQuery ListFilter
}

func newMemStore() *memStore {
	return &memStore{
		hospitals:    map[uuid.UUID]string{},
		tests:        map[uuid.UUID]*string{},
		testHospital: map[uuid.UUID]uuid.UUID{},
		appointments: map[uuid.UUID]Appointment{},
		clock:        time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addHospital(name string) uuid.UUID {
	id := uuid.New()
	m.hospitals[id] = name
	return id
}

func (m *memStore) addTest(hospitalID uuid.UUID, duration *string) uuid.UUID {
	id := uuid.New()
	m.tests[id] = duration
	m.testHospital[id] = hospitalID
	return id
}

func (m *memStore) testDuration(hospitalID, testID uuid.UUID) (*string, error) {
	d, ok := m.tests[testID]
	if !ok || m.testHospital[testID] != hospitalID {
		return nil, catalog.ErrTestNotFound
	}
	return d, nil
}

// seed inserts an appointment directly, bypassing the booking flow.
func (m *memStore) seed(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	m.clock = m.clock.Add(time.Second)
	a.CreatedAt, a.UpdatedAt = m.clock, m.clock
	m.appointments[a.ID] = a
	return a
}

func (m *memStore) active(hospitalID uuid.UUID, date string) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.HospitalID == hospitalID && a.AppointmentDate == date && a.Status.Active() {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	uow := &memUnitOfWork{store: m, appointments: maps.Clone(m.appointments), clock: m.clock}
	if err := fn(uow); err != nil {
		return err
	}
	m.appointments = uow.appointments
	m.events = append(m.events, uow.events...)
	m.clock = uow.clock
	return nil
}

func (m *memStore) GetTestDuration(_ context.Context, hospitalID, testID uuid.UUID) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.testDuration(hospitalID, testID)
}

func (m *memStore) ListActiveBookings(_ context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return activeBookings(m.appointments, m.tests, hospitalID, date), nil
}

func (m *memStore) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return detailOf(m.appointments, m.hospitals, m.tests, id)
}

func (m *memStore) GetAppointmentByReference(_ context.Context, ref string) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.appointments {
		if a.Reference == ref {
			return detailOf(m.appointments, m.hospitals, m.tests, id)
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memStore) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []AppointmentDetail{}
	for id, a := range m.appointments {
		if a.PatientID == patientID {
			d, _ := detailOf(m.appointments, m.hospitals, m.tests, id)
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AppointmentDate != result[j].AppointmentDate {
			return result[i].AppointmentDate > result[j].AppointmentDate
		}
		return result[i].TimeSlot > result[j].TimeSlot
	})
	return result, nil
}

func (m *memStore) ListAppointments(_ context.Context, filter ListFilter) ([]AppointmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = filter
	return []AppointmentDetail{}, 0, nil
}

func activeBookings(appointments map[uuid.UUID]Appointment, tests map[uuid.UUID]*string, hospitalID uuid.UUID, date string) []scheduling.Booking {
	var out []scheduling.Booking
	for _, a := range appointments {
		if a.HospitalID != hospitalID || a.AppointmentDate != date || !a.Status.Active() {
			continue
		}
		out = append(out, scheduling.Booking{ID: a.ID.String(), TimeSlot: a.TimeSlot, TestDuration: deref(tests[a.TestID])})
	}
	return out
}

func detailOf(appointments map[uuid.UUID]Appointment, hospitals map[uuid.UUID]string, tests map[uuid.UUID]*string, id uuid.UUID) (*AppointmentDetail, error) {
	a, ok := appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &AppointmentDetail{
		Appointment: a,
		Hospital:    catalog.HospitalSummary{ID: a.HospitalID, Name: hospitals[a.HospitalID]},
		Test:        catalog.TestSummary{ID: a.TestID, Name: "test", Currency: "RWF", Duration: tests[a.TestID]},
	}, nil
}

type memUnitOfWork struct {
	store        *memStore
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	clock        time.Time
}

func (u *memUnitOfWork) record(call string) {
	u.store.calls = append(u.store.calls, call)
}

func (u *memUnitOfWork) LockHospitalDay(context.Context, uuid.UUID, string) error {
	u.record("LockHospitalDay")
	return nil
}

func (u *memUnitOfWork) GetTestDuration(_ context.Context, hospitalID, testID uuid.UUID) (*string, error) {
	u.record("GetTestDuration")
	return u.store.testDuration(hospitalID, testID)
}

func (u *memUnitOfWork) ListActiveBookings(_ context.Context, hospitalID uuid.UUID, date string) ([]scheduling.Booking, error) {
	u.record("ListActiveBookings")
	return activeBookings(u.appointments, u.store.tests, hospitalID, date), nil
}

func (u *memUnitOfWork) NextReferenceSequence(context.Context) (int64, error) {
	u.record("NextReferenceSequence")
	if u.store.seqErr != nil {
		return 0, u.store.seqErr
	}
	u.store.seq++
	return u.store.seq, nil
}

func (u *memUnitOfWork) LatestReference(_ context.Context, prefix string) (string, error) {
	u.record("LatestReference")
	if u.store.latestErr != nil {
		return "", u.store.latestErr
	}
	var latest Appointment
	for _, a := range u.appointments {
		if strings.HasPrefix(a.Reference, prefix) && a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest.Reference, nil
}

func (u *memUnitOfWork) InsertAppointment(_ context.Context, n NewAppointment) (*Appointment, error) {
	u.record("InsertAppointment")
	if u.store.insertErr != nil {
		return nil, u.store.insertErr
	}
	for _, a := range u.appointments {
		if a.Reference == n.Reference {
			return nil, scheduling.NewReferenceCollisionError()
		}
	}
	if _, ok := u.store.hospitals[n.HospitalID]; !ok {
		return nil, catalog.ErrHospitalNotFound
	}
	u.clock = u.clock.Add(time.Second)
	a := Appointment{
		ID:              n.ID,
		Reference:       n.Reference,
		PatientID:       n.PatientID,
		HospitalID:      n.HospitalID,
		TestID:          n.TestID,
		AppointmentDate: n.AppointmentDate,
		TimeSlot:        n.TimeSlot,
		Status:          StatusPending,
		PatientName:     n.PatientName,
		PatientPhone:    n.PatientPhone,
		CreatedAt:       u.clock,
		UpdatedAt:       u.clock,
	}
	u.appointments[a.ID] = a
	return &a, nil
}

func (u *memUnitOfWork) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	u.record("GetAppointmentDetail")
	return detailOf(u.appointments, u.store.hospitals, u.store.tests, id)
}

func (u *memUnitOfWork) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	u.record("GetAppointmentForUpdate")
	a, ok := u.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (u *memUnitOfWork) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	u.record("UpdateAppointmentStatus")
	a, ok := u.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	u.appointments[id] = a
	return &a, nil
}

func (u *memUnitOfWork) InsertEvent(_ context.Context, ev EventLog) error {
	u.record("InsertEvent")
	u.events = append(u.events, ev)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	booked  []AppointmentDetail
	changed []Status
}

func (n *recordingNotifier) AppointmentBooked(d AppointmentDetail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.booked = append(n.booked, d)
}

func (n *recordingNotifier) AppointmentStatusChanged(d AppointmentDetail, previous Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, d.Status)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

var _ reference.Store = (*memUnitOfWork)(nil)
