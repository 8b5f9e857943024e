package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAppointment_MondayScenario(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, WithObserver(obs))
	ctx := context.Background()

	appt, err := f.svc.CreateAppointment(ctx, f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "09:30")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)
	assert.Equal(t, "101", appt.Office)
	assert.Equal(t, mustClock(t, "09:30"), appt.Time)
	assert.Equal(t, monday, FormatDate(appt.Date))
	assert.True(t, appt.Published)

	slots, err := f.svc.GetAvailability(ctx, f.doctor.Slug, monday)
	require.NoError(t, err)
	assert.Equal(t, clocks(t, "09:00", "10:00", "10:30", "11:00", "11:30"), slots)

	_, err = f.svc.CreateAppointment(ctx, f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "09:30")
	require.ErrorIs(t, err, ErrSlotTaken)

	assert.Equal(t, []string{"booked", "slot_taken"}, obs.bookings)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   Actor
		slug    string
		patient uuid.UUID
		date    string
		at      string
		wantErr error
	}{
		{"bad date", f.patientActor(), f.doctor.Slug, uuid.Nil, "2024-02-31", "09:00", ErrInvalidDate},
		{"bad time", f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "9h", ErrInvalidTime},
		{"unknown doctor", f.patientActor(), "nobody", uuid.Nil, monday, "09:00", ErrDoctorNotFound},
		{"before the window", f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "08:30", ErrSlotNotOffered},
		{"off the grid", f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "09:15", ErrSlotNotOffered},
		{"window end", f.patientActor(), f.doctor.Slug, uuid.Nil, monday, "12:00", ErrSlotNotOffered},
		{"day without schedule", f.patientActor(), f.doctor.Slug, uuid.Nil, "2024-01-02", "09:00", ErrSlotNotOffered},
		{"booking for someone else", Actor{ID: uuid.New(), Role: RolePatient}, f.doctor.Slug, f.patient.ID, monday, "09:00", ErrForbidden},
		{"unknown patient", f.admin, f.doctor.Slug, uuid.New(), monday, "09:00", ErrPatientNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, tt.actor, tt.slug, tt.patient, tt.date, tt.at)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	slots, err := f.svc.GetAvailability(ctx, f.doctor.Slug, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 6, "failed bookings must not occupy slots")
}

func TestCreateAppointment_AdminBooksForPatient(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.CreateAppointment(context.Background(), f.admin, f.doctor.Slug, f.patient.ID, monday, "11:30")
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, appt.PatientID)
}

func TestBook_UnpublishedDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hidden, err := f.svc.CreateDoctor(ctx, f.admin, "Hidden Doctor", "", "303", false)
	require.NoError(t, err)
	_, err = f.svc.AddScheduleEntry(ctx, f.admin, hidden.Slug, 1, "09:00", "10:00", "")
	require.NoError(t, err)

	_, err = f.svc.CreateAppointment(ctx, f.patientActor(), hidden.Slug, uuid.Nil, monday, "09:00")
	require.ErrorIs(t, err, ErrDoctorUnavailable)

	_, err = f.svc.Book(ctx, uuid.New(), f.patient.ID, mustDate(t, monday), mustClock(t, "09:00"))
	require.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBook_OfficeSharedAcrossDoctors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := mustDate(t, monday)

	// same office, window starts earlier so the weekly entries do not collide
	other := f.addDoctor(t, "Anna Smirnova", "202")
	_, err := f.svc.AddScheduleEntry(ctx, f.admin, other.Slug, 1, "08:30", "10:00", "101")
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, mustClock(t, "09:00"))
	require.NoError(t, err)

	second := f.addPatient(t)
	_, err = f.svc.Book(ctx, other.ID, second.ID, date, mustClock(t, "09:00"))
	require.ErrorIs(t, err, ErrSlotTaken)

	appt, err := f.svc.Book(ctx, other.ID, second.ID, date, mustClock(t, "08:30"))
	require.NoError(t, err)
	assert.Equal(t, "101", appt.Office)
}

func TestBook_RebookAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := mustDate(t, monday)
	at := mustClock(t, "10:00")

	first, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, at)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, first.ID, f.patientActor())
	require.NoError(t, err)

	second, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, date, at)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := f.repo.GetAppointmentByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := mustDate(t, monday)
	at := mustClock(t, "10:30")

	const n = 20

	patients := make([]Patient, n)
	for i := range patients {
		patients[i] = f.addPatient(t)
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.svc.Book(ctx, f.doctor.ID, patients[i].ID, date, at)
		}(i)
	}
	close(start)
	wg.Wait()

	success := 0
	for _, err := range results {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotTaken)
	}
	assert.Equal(t, 1, success)

	occupied, err := f.repo.OccupiedTimes(ctx, f.doctor.ID, date)
	require.NoError(t, err)
	assert.Equal(t, []Clock{at}, occupied)
}

func TestBook_NormalizesDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 17, 45, 0, 0, time.UTC)
	appt, err := f.svc.Book(ctx, f.doctor.ID, f.patient.ID, at, mustClock(t, "09:00"))
	require.NoError(t, err)
	assert.Equal(t, mustDate(t, monday), appt.Date)

	_, err = f.svc.Book(ctx, f.doctor.ID, f.patient.ID, mustDate(t, monday), mustClock(t, "09:00"))
	require.ErrorIs(t, err, ErrSlotTaken)
}

func TestSlotLockKeys(t *testing.T) {
	id := uuid.MustParse("7b0c1c2e-2f4a-4e4b-9a39-0b8f1a3c9d11")
	keys := SlotLockKeys(id, "101", mustDate(t, monday), mustClock(t, "09:30"))
	assert.Equal(t, []string{
		"slot:office:101:2024-01-01:09:30",
		"slot:doctor:7b0c1c2e-2f4a-4e4b-9a39-0b8f1a3c9d11:2024-01-01:09:30",
	}, keys)
}
