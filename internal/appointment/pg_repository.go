package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/doctor-booking/internal/timegrid"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	// activeSlotIndex is the partial unique index over pending and completed
	// appointments (migrations/0001_init.up.sql).
	activeSlotIndex = "appointments_active_slot_uniq"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanBlock(row pgx.Row) (*AvailabilityBlock, error) {
	var b AvailabilityBlock
	var date time.Time
	var start, end int

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&date,
		&start,
		&end,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Date = timegrid.DateOf(date)
	b.StartTime = timegrid.Clock(start)
	b.EndTime = timegrid.Clock(end)
	return &b, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var minute int
	var status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&minute,
		&status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = timegrid.DateOf(date)
	a.Time = timegrid.Clock(minute)
	a.Status = AppointmentStatus(status)
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

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isActiveSlotConflict reports a unique violation on the active slot index.
// Other unique violations, such as a reused primary key, do not qualify.
func isActiveSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotIndex
}

// nullable maps the zero value of a filter field to SQL NULL.
func nullable[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

const appointmentColumns = `id, patient_id, doctor_id, appt_date, appt_minute, status, notes, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// InsertDoctor leaves an existing row with the same id untouched.
func (r *PgRepository) InsertDoctor(ctx context.Context, d Doctor) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO doctors (id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Name, d.Specialty)
	if err != nil {
		return fmt.Errorf("insert doctor: %w", err)
	}
	return nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE ($1::text IS NULL OR name ILIKE $1::text || '%')
		  AND ($2::text IS NULL OR specialty ILIKE $2::text || '%')
		ORDER BY name, id
	`, nullable(escapeLike(filter.Name)), nullable(escapeLike(filter.Specialty)))
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *PgRepository) ListBlocks(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doctor_id, block_date, start_minute, end_minute
		FROM availability_blocks
		WHERE doctor_id = $1
		ORDER BY block_date, start_minute
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query availability blocks: %w", err)
	}
	defer rows.Close()

	var result []AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetBlock(ctx context.Context, doctorID, blockID uuid.UUID) (*AvailabilityBlock, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, block_date, start_minute, end_minute
		FROM availability_blocks
		WHERE id = $1 AND doctor_id = $2
	`, blockID, doctorID)
	return scanBlock(row)
}

func (r *PgRepository) InsertBlock(ctx context.Context, b AvailabilityBlock) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO availability_blocks (id, doctor_id, block_date, start_minute, end_minute, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, b.ID, b.DoctorID, b.Date.Time(), int(b.StartTime), int(b.EndTime))
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("insert availability block: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateBlock(ctx context.Context, b AvailabilityBlock) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE availability_blocks
		SET block_date = $3,
		    start_minute = $4,
		    end_minute = $5,
		    updated_at = now()
		WHERE id = $1 AND doctor_id = $2
	`, b.ID, b.DoctorID, b.Date.Time(), int(b.StartTime), int(b.EndTime))
	if err != nil {
		return fmt.Errorf("update availability block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) DeleteBlock(ctx context.Context, doctorID, blockID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM availability_blocks
		WHERE id = $1 AND doctor_id = $2
	`, blockID, doctorID)
	if err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date = $2
		ORDER BY appt_minute, id
	`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("query appointments for day: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	var date any
	if !filter.Date.IsZero() {
		date = filter.Date.Time()
	}
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1::uuid)
		  AND ($2::uuid IS NULL OR doctor_id = $2::uuid)
		  AND ($3::text IS NULL OR status = $3::text)
		  AND ($4::date IS NULL OR appt_date = $4::date)
		ORDER BY appt_date DESC, appt_minute DESC, id DESC
		LIMIT $5 OFFSET $6
	`, nullable(filter.PatientID), nullable(filter.DoctorID), nullable(string(filter.Status)), date, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) AllocateAppointmentID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('appointment_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate appointment id: %w", err)
	}
	return id, nil
}

// InsertAppointment relies on the partial unique index over active
// appointments; the NOT EXISTS guard only avoids burning a constraint error
// in the common case.
func (r *PgRepository) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		SELECT $1::bigint, $2::uuid, $3::uuid, $4::date, $5::int, 'pending', $6::text, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $3::uuid
			  AND appt_date = $4::date
			  AND appt_minute = $5::int
			  AND status IN ('pending', 'completed')
		)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.Date.Time(), int(appt.Time), appt.Notes)

	created, err := scanAppointment(row)
	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, ErrAppointmentNotFound), isActiveSlotConflict(err):
		return nil, ErrSlotTaken
	case pgErrorCode(err) == pgForeignKeyViolation:
		return nil, ErrDoctorNotFound
	case pgErrorCode(err) == pgUniqueViolation:
		return nil, fmt.Errorf("insert appointment %d: %w: %w", appt.ID, ErrDuplicateID, err)
	default:
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
}

func (r *PgRepository) MoveAppointment(ctx context.Context, id int64, date timegrid.Date, at timegrid.Clock) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments AS a
		SET appt_date = $2::date,
		    appt_minute = $3::int,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM appointments o
			WHERE o.doctor_id = a.doctor_id
			  AND o.appt_date = $2::date
			  AND o.appt_minute = $3::int
			  AND o.status IN ('pending', 'completed')
			  AND o.id <> a.id
		  )
		RETURNING `+appointmentColumns+`
	`, id, date.Time(), int(at))

	moved, err := scanAppointment(row)
	if err == nil {
		return moved, nil
	}
	if isActiveSlotConflict(err) {
		return nil, ErrSlotTaken
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("move appointment: %w", err)
	}

	// Zero rows: either the appointment is gone or no longer pending, or
	// the target slot is held by someone else.
	current, getErr := r.GetAppointment(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrSlotTaken
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	return scanAppointment(row)
}
