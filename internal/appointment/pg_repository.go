package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Helpers

func pgClock(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c.Duration() / time.Microsecond), Valid: true}
}

func clockFromPg(t pgtype.Time) Clock {
	return Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

const doctorColumns = `id, name, specialization, office, slug, is_published, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.Office,
		&d.Slug,
		&d.Published,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

const scheduleColumns = `id, doctor_id, day_of_week, start_time, end_time, office, created_at`

func scanScheduleEntry(row pgx.Row) (*ScheduleEntry, error) {
	var e ScheduleEntry
	var start, end pgtype.Time
	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.DayOfWeek,
		&start,
		&end,
		&e.Office,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Start = clockFromPg(start)
	e.End = clockFromPg(end)
	return &e, nil
}

const appointmentColumns = `id, doctor_id, patient_id, office, appt_date, appt_time, status, is_published, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var at pgtype.Time

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Office,
		&a.Date,
		&at,
		&a.Status,
		&a.Published,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = clockFromPg(at)
	a.Date = truncateDate(a.Date)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func collectSchedule(rows pgx.Rows) ([]ScheduleEntry, error) {
	defer rows.Close()

	var result []ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Doctors and patients

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorBySlug(ctx context.Context, slug string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE slug = $1
	`, slug)
	return scanDoctor(row)
}

func (r *PgRepository) ListPublishedDoctors(ctx context.Context, limit, offset int) ([]Doctor, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM doctors WHERE is_published`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE is_published
		ORDER BY slug
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, office, slug, is_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Specialization, d.Office, d.Slug, d.Published)

	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Email)

	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET name = $2,
		    email = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, email, created_at, updated_at
	`, p.ID, p.Name, p.Email)

	updated, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return err
		}
		return fmt.Errorf("update patient: %w", err)
	}
	*p = *updated
	return nil
}

// Schedule

func (r *PgRepository) EntriesFor(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedule_entries
		WHERE doctor_id = $1 AND day_of_week = $2
		ORDER BY start_time
	`, doctorID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	return collectSchedule(rows)
}

func (r *PgRepository) ListSchedule(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedule_entries
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectSchedule(rows)
}

func (r *PgRepository) AddScheduleEntry(ctx context.Context, e *ScheduleEntry) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_entries (id, doctor_id, day_of_week, start_time, end_time, office, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING created_at
	`, e.ID, e.DoctorID, e.DayOfWeek, pgClock(e.Start), pgClock(e.End), e.Office)

	if err := row.Scan(&e.CreatedAt); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrScheduleConflict
		}
		return fmt.Errorf("insert schedule entry: %w", err)
	}
	return nil
}

// Ledger

func (r *PgRepository) OccupiedTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Clock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appt_time
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND status IN ('scheduled', 'completed')
		  AND is_published
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Clock
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, clockFromPg(t))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) FindActiveConflict(ctx context.Context, doctorID uuid.UUID, office string, date time.Time, t Clock) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appt_date = $3
		  AND appt_time = $4
		  AND (doctor_id = $1 OR office = $2)
		  AND status IN ('scheduled', 'completed')
		  AND is_published
		LIMIT 1
	`, doctorID, office, date, pgClock(t))
	return scanAppointment(row)
}

func (r *PgRepository) InsertScheduled(ctx context.Context, a *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, office, appt_date, appt_time, status, is_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', TRUE, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.DoctorID, a.PatientID, a.Office, a.Date, pgClock(a.Time))

	stored, err := scanAppointment(row)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	*a = *stored
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListScheduledByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled' AND is_published
	`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count patient appointments: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status = 'scheduled' AND is_published
		ORDER BY appt_date, appt_time
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	if result == nil {
		result = []Appointment{}
	}
	return result, total, nil
}

func (r *PgRepository) FindElapsedScheduled(ctx context.Context, date time.Time, t Clock) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND (appt_date < $1 OR (appt_date = $1 AND appt_time <= $2))
	`, date, pgClock(t))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
