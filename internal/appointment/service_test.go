package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/lock"
)

// 2024-01-01 is a Monday.
const monday = "2024-01-01"

type fixture struct {
	repo    *MemoryRepository
	svc     *Service
	doctor  *Doctor
	patient Patient
	admin   Actor
}

func (f *fixture) patientActor() Actor {
	return Actor{ID: f.patient.ID, Role: RolePatient}
}

func (f *fixture) addPatient(t *testing.T) Patient {
	t.Helper()
	p := Patient{ID: uuid.New(), Name: "Test Patient"}
	f.repo.AddPatient(p)
	return p
}

func (f *fixture) addDoctor(t *testing.T, name, office string, windows ...[2]string) *Doctor {
	t.Helper()
	ctx := context.Background()
	d, err := f.svc.CreateDoctor(ctx, f.admin, name, "General Practice", office, true)
	require.NoError(t, err)
	for _, w := range windows {
		_, err := f.svc.AddScheduleEntry(ctx, f.admin, d.Slug, 1, w[0], w[1], "")
		require.NoError(t, err)
	}
	return d
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	locker := lock.NewLocalLocker(lock.Options{Wait: time.Second})
	svc := NewService(repo, locker, config.Config{Location: time.UTC}, zap.NewNop(), opts...)

	f := &fixture{
		repo:  repo,
		svc:   svc,
		admin: Actor{ID: uuid.New(), Role: RoleAdmin},
	}
	f.patient = f.addPatient(t)
	f.doctor = f.addDoctor(t, "Ivan Petrov", "101", [2]string{"09:00", "12:00"})
	return f
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustClock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}

func clocks(t *testing.T, values ...string) []Clock {
	t.Helper()
	out := make([]Clock, 0, len(values))
	for _, v := range values {
		out = append(out, mustClock(t, v))
	}
	return out
}

type recordingObserver struct {
	bookings      []string
	cancellations []string
	availability  []int
}

func (o *recordingObserver) ObserveBooking(outcome string)      { o.bookings = append(o.bookings, outcome) }
func (o *recordingObserver) ObserveCancellation(outcome string) { o.cancellations = append(o.cancellations, outcome) }
func (o *recordingObserver) ObserveAvailability(slots int)      { o.availability = append(o.availability, slots) }

func TestListDoctors_PagesPublishedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		f.addDoctor(t, "Doctor "+string(rune('A'+i)), "20"+string(rune('0'+i)))
	}
	_, err := f.svc.CreateDoctor(ctx, f.admin, "Hidden Doctor", "", "999", false)
	require.NoError(t, err)

	first, err := f.svc.ListDoctors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first.Items, PageSize)
	require.Equal(t, 7, first.Total)
	require.True(t, first.HasNext)

	second, err := f.svc.ListDoctors(ctx, 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	require.False(t, second.HasNext)

	for _, d := range append(first.Items, second.Items...) {
		require.True(t, d.Published)
		require.NotEqual(t, "hidden-doctor", d.Slug)
	}

	beyond, err := f.svc.ListDoctors(ctx, 9)
	require.NoError(t, err)
	require.Empty(t, beyond.Items)
}

func TestDoctorDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.svc.DoctorDetail(ctx, f.doctor.Slug)
	require.NoError(t, err)
	require.Equal(t, f.doctor.ID, detail.ID)
	require.Len(t, detail.Schedule, 1)
	require.Equal(t, "101", detail.Schedule[0].Office)

	_, err = f.svc.DoctorDetail(ctx, "nobody")
	require.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestGetAppointment_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, mustDate(t, monday), mustClock(t, "09:00"))
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, appt.ID, f.patientActor())
	require.NoError(t, err)
	require.Equal(t, appt.ID, got.ID)

	_, err = f.svc.GetAppointment(ctx, appt.ID, f.admin)
	require.NoError(t, err)

	_, err = f.svc.GetAppointment(ctx, appt.ID, Actor{ID: uuid.New(), Role: RolePatient})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetAppointment(ctx, uuid.New(), f.admin)
	require.ErrorIs(t, err, ErrAppointmentNotFound)

	f.repo.SetPublished(appt.ID, false)
	_, err = f.svc.GetAppointment(ctx, appt.ID, f.admin)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPatientAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := mustDate(t, monday)

	times := []string{"11:00", "09:00", "10:30", "09:30", "10:00", "11:30"}
	for _, at := range times {
		_, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, mustClock(t, at))
		require.NoError(t, err)
	}

	page, err := f.svc.PatientAppointments(ctx, f.patientActor(), f.patient.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 6, page.Total)
	require.True(t, page.HasNext)
	require.Len(t, page.Items, PageSize)
	require.Equal(t, mustClock(t, "09:00"), page.Items[0].Time)
	require.Equal(t, mustClock(t, "11:00"), page.Items[4].Time)

	out, err := f.svc.Cancel(ctx, page.Items[0].ID, f.patientActor())
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Appointment.Status)

	page, err = f.svc.PatientAppointments(ctx, f.patientActor(), f.patient.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.False(t, page.HasNext)

	_, err = f.svc.PatientAppointments(ctx, Actor{ID: uuid.New(), Role: RolePatient}, f.patient.ID, 1)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCompleteElapsed(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	date := mustDate(t, monday)

	early, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, mustClock(t, "09:00"))
	require.NoError(t, err)
	running, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, mustClock(t, "10:00"))
	require.NoError(t, err)
	cancelled, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, mustClock(t, "09:30"))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, cancelled.ID, f.patientActor())
	require.NoError(t, err)

	n, err := f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := f.repo.GetAppointmentByID(ctx, early.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	got, err = f.repo.GetAppointmentByID(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, got.Status)

	got, err = f.repo.GetAppointmentByID(ctx, cancelled.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	// completed appointments keep occupying the slot
	slots, err := f.svc.AvailableSlots(ctx, f.doctor.ID, date)
	require.NoError(t, err)
	require.NotContains(t, slots, mustClock(t, "09:00"))

	n, err = f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
