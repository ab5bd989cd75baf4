package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/AlarisGit/FamilyHealth/internal/domain/directory"
	"github.com/AlarisGit/FamilyHealth/internal/platform/db"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

func providerColumn(kind VisitType) (string, error) {
	switch kind {
	case VisitDoctor:
		return "doctor_id", nil
	case VisitService:
		return "service_id", nil
	}
	return "", fmt.Errorf("unknown visit type %q", kind)
}

func clockOf(t pgtype.Time) time.Duration {
	return time.Duration(t.Microseconds) * time.Microsecond
}

// =========== Window Repository ===========

type windowRepoPG struct{ db db.Beginner }

func NewWindowRepoPG(pool db.Beginner) AvailabilityIndex { return &windowRepoPG{db: pool} }

func (r *windowRepoPG) conn(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}

const doctorWindowSearch = `SELECT ds.id, ds.doctor_id, ds.clinic_id, ds.work_date, ds.time_start, ds.time_end,
	d.last_name, d.first_name, d.middle_name, c.name, c.district, d.duration_minutes, d.buffer_minutes
	FROM doctor_schedule ds
	JOIN doctor d ON d.id = ds.doctor_id
	JOIN clinic c ON c.id = ds.clinic_id
	WHERE ds.work_date >= $1::date AND ds.work_date <= $2::date`

const serviceWindowSearch = `SELECT ss.id, ss.service_id, s.clinic_id, ss.work_date, ss.time_start, ss.time_end,
	s.name, c.name, c.district, s.duration_minutes, s.buffer_minutes
	FROM service_schedule ss
	JOIN service s ON s.id = ss.service_id
	JOIN clinic c ON c.id = s.clinic_id
	WHERE ss.work_date >= $1::date AND ss.work_date <= $2::date`

func (r *windowRepoPG) SearchWindows(ctx context.Context, q SlotQuery) ([]WindowMatch, error) {
	switch q.Kind {
	case VisitDoctor:
		return r.searchDoctorWindows(ctx, q)
	case VisitService:
		return r.searchServiceWindows(ctx, q)
	}
	return nil, fmt.Errorf("unknown slot kind %q", q.Kind)
}

func (r *windowRepoPG) searchDoctorWindows(ctx context.Context, q SlotQuery) ([]WindowMatch, error) {
	query := doctorWindowSearch
	args := []interface{}{localtime.Day(q.From), localtime.Day(q.To)}
	idx := 3

	if q.District != "" {
		query += fmt.Sprintf(` AND c.district = $%d`, idx)
		args = append(args, q.District)
		idx++
	}
	if q.ClinicID != 0 {
		query += fmt.Sprintf(` AND ds.clinic_id = $%d`, idx)
		args = append(args, q.ClinicID)
		idx++
	}
	if q.DirectionID != 0 {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM doctor_direction dd WHERE dd.doctor_id = d.id AND dd.direction_id = $%d)`, idx)
		args = append(args, q.DirectionID)
		idx++
	}
	if q.DoctorName != "" {
		query += fmt.Sprintf(` AND (d.first_name ILIKE $%d OR d.last_name ILIKE $%d OR d.middle_name ILIKE $%d)`, idx, idx, idx)
		args = append(args, directory.LikePattern(q.DoctorName))
		idx++
	}
	query += ` ORDER BY ds.work_date, ds.time_start, ds.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search doctor windows: %w", err)
	}
	defer rows.Close()

	var items []WindowMatch
	for rows.Next() {
		var m WindowMatch
		var ts, te pgtype.Time
		var last, first string
		var middle *string
		if err := rows.Scan(&m.Window.ID, &m.Window.Provider.ID, &m.Window.ClinicID, &m.Window.WorkDate, &ts, &te,
			&last, &first, &middle, &m.ClinicName, &m.District, &m.DurationMinutes, &m.BufferMinutes); err != nil {
			return nil, fmt.Errorf("scan doctor window: %w", err)
		}
		m.Window.Provider.Kind = VisitDoctor
		m.Window.TimeStart, m.Window.TimeEnd = clockOf(ts), clockOf(te)
		m.ProviderName = directory.DoctorName(last, first, middle)
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *windowRepoPG) searchServiceWindows(ctx context.Context, q SlotQuery) ([]WindowMatch, error) {
	query := serviceWindowSearch
	args := []interface{}{localtime.Day(q.From), localtime.Day(q.To)}
	idx := 3

	if q.District != "" {
		query += fmt.Sprintf(` AND c.district = $%d`, idx)
		args = append(args, q.District)
		idx++
	}
	if q.ClinicID != 0 {
		query += fmt.Sprintf(` AND s.clinic_id = $%d`, idx)
		args = append(args, q.ClinicID)
		idx++
	}
	if q.ServiceID != 0 {
		query += fmt.Sprintf(` AND ss.service_id = $%d`, idx)
		args = append(args, q.ServiceID)
		idx++
	}
	query += ` ORDER BY ss.work_date, ss.time_start, ss.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search service windows: %w", err)
	}
	defer rows.Close()

	var items []WindowMatch
	for rows.Next() {
		var m WindowMatch
		var ts, te pgtype.Time
		if err := rows.Scan(&m.Window.ID, &m.Window.Provider.ID, &m.Window.ClinicID, &m.Window.WorkDate, &ts, &te,
			&m.ProviderName, &m.ClinicName, &m.District, &m.DurationMinutes, &m.BufferMinutes); err != nil {
			return nil, fmt.Errorf("scan service window: %w", err)
		}
		m.Window.Provider.Kind = VisitService
		m.Window.TimeStart, m.Window.TimeEnd = clockOf(ts), clockOf(te)
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *windowRepoPG) ListWindows(ctx context.Context, ref ProviderRef, from, to time.Time) ([]ScheduleWindow, error) {
	var query string
	switch ref.Kind {
	case VisitDoctor:
		query = `SELECT id, clinic_id, work_date, time_start, time_end FROM doctor_schedule
			WHERE doctor_id = $1 AND work_date >= $2::date AND work_date <= $3::date
			ORDER BY work_date, time_start, id`
	case VisitService:
		query = `SELECT ss.id, s.clinic_id, ss.work_date, ss.time_start, ss.time_end
			FROM service_schedule ss JOIN service s ON s.id = ss.service_id
			WHERE ss.service_id = $1 AND ss.work_date >= $2::date AND ss.work_date <= $3::date
			ORDER BY ss.work_date, ss.time_start, ss.id`
	default:
		return nil, fmt.Errorf("unknown visit type %q", ref.Kind)
	}

	rows, err := r.conn(ctx).Query(ctx, query, ref.ID, localtime.Day(from), localtime.Day(to))
	if err != nil {
		return nil, fmt.Errorf("list windows of %s: %w", ref, err)
	}
	defer rows.Close()

	var items []ScheduleWindow
	for rows.Next() {
		w := ScheduleWindow{Provider: ref}
		var ts, te pgtype.Time
		if err := rows.Scan(&w.ID, &w.ClinicID, &w.WorkDate, &ts, &te); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		w.TimeStart, w.TimeEnd = clockOf(ts), clockOf(te)
		items = append(items, w)
	}
	return items, rows.Err()
}

// =========== Visit Repository ===========

type visitRepoPG struct{ db db.Beginner }

func NewVisitRepoPG(pool db.Beginner) VisitRepository { return &visitRepoPG{db: pool} }

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}

const visitCols = `id, patient_id, visit_type, doctor_id, service_id, clinic_id,
	start_datetime, duration_minutes, buffer_minutes, created_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var visitType string
	if err := row.Scan(&v.ID, &v.PatientID, &visitType, &v.DoctorID, &v.ServiceID, &v.ClinicID,
		&v.Start, &v.DurationMinutes, &v.BufferMinutes, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.VisitType = VisitType(visitType)
	return &v, nil
}

func (r *visitRepoPG) LockProviderDay(ctx context.Context, ref ProviderRef, day time.Time) error {
	return db.AdvisoryXactLock(ctx, r.conn(ctx), ref.LockKey(day))
}

func (r *visitRepoPG) ListDayOccupancy(ctx context.Context, ref ProviderRef, day time.Time) ([]Occupied, error) {
	col, err := providerColumn(ref.Kind)
	if err != nil {
		return nil, err
	}
	day = localtime.Day(day)

	rows, err := r.conn(ctx).Query(ctx, `SELECT id, patient_id, start_datetime, duration_minutes, buffer_minutes
		FROM visit WHERE `+col+` = $1 AND start_datetime >= $2 AND start_datetime < $3
		ORDER BY start_datetime, id`, ref.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list occupancy of %s: %w", ref, err)
	}
	defer rows.Close()

	var items []Occupied
	for rows.Next() {
		var o Occupied
		if err := rows.Scan(&o.VisitID, &o.PatientID, &o.Start, &o.DurationMinutes, &o.BufferMinutes); err != nil {
			return nil, fmt.Errorf("scan occupancy: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *visitRepoPG) FindByStart(ctx context.Context, ref ProviderRef, start time.Time) (*Visit, error) {
	col, err := providerColumn(ref.Kind)
	if err != nil {
		return nil, err
	}
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visit WHERE `+col+` = $1 AND start_datetime = $2`, ref.ID, start))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find visit of %s at %s: %w", ref, localtime.Format(start), err)
	}
	return v, nil
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit (patient_id, visit_type, doctor_id, service_id, clinic_id,
			start_datetime, duration_minutes, buffer_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		v.PatientID, string(v.VisitType), v.DoctorID, v.ServiceID, v.ClinicID,
		v.Start, v.DurationMinutes, v.BufferMinutes, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *visitRepoPG) GetForUpdate(ctx context.Context, id int64) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit %d: %w", id, err)
	}
	return v, nil
}

func (r *visitRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete visit %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVisitNotFound
	}
	return nil
}

func (r *visitRepoPG) List(ctx context.Context, f VisitFilter) ([]VisitItem, error) {
	query := `SELECT v.id, v.patient_id, v.visit_type, v.clinic_id, c.name,
		v.doctor_id, d.last_name, d.first_name, d.middle_name, v.service_id, s.name,
		v.start_datetime, v.duration_minutes
		FROM visit v
		JOIN clinic c ON c.id = v.clinic_id
		LEFT JOIN doctor d ON d.id = v.doctor_id
		LEFT JOIN service s ON s.id = v.service_id
		WHERE v.start_datetime >= $1 AND v.start_datetime <= $2`
	args := []interface{}{f.From, f.To}
	if !f.AllPatients {
		query += ` AND v.patient_id = $3`
		args = append(args, f.PatientID)
	}
	query += ` ORDER BY v.start_datetime, v.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	items := []VisitItem{}
	for rows.Next() {
		var it VisitItem
		var visitType string
		var last, first, middle *string
		var start time.Time
		var duration int
		if err := rows.Scan(&it.VisitID, &it.PatientID, &visitType, &it.ClinicID, &it.ClinicName,
			&it.DoctorID, &last, &first, &middle, &it.ServiceID, &it.ServiceName,
			&start, &duration); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		it.VisitType = VisitType(visitType)
		if it.DoctorID != nil && last != nil && first != nil {
			name := directory.DoctorName(*last, *first, middle)
			it.DoctorName = &name
		}
		it.Start = localtime.Time{Time: start}
		it.End = localtime.Time{Time: start.Add(minutes(duration))}
		items = append(items, it)
	}
	return items, rows.Err()
}

// =========== Transactions ===========

type txRunnerPG struct{ db db.Beginner }

func NewTxRunnerPG(pool db.Beginner) TxRunner { return &txRunnerPG{db: pool} }

func (r *txRunnerPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.db, fn)
}
