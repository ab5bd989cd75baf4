package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/AlarisGit/FamilyHealth/internal/platform/db"
)

type repoPG struct{ db db.Beginner }

func NewRepoPG(pool db.Beginner) Repository { return &repoPG{db: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.FromContext(ctx, r.db)
}

func (r *repoPG) ListClinics(ctx context.Context) ([]Clinic, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, district, address FROM clinic ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()

	items := []Clinic{}
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.District, &c.Address); err != nil {
			return nil, fmt.Errorf("scan clinic: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) ListDirections(ctx context.Context) ([]Direction, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM direction ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query directions: %w", err)
	}
	defer rows.Close()

	items := []Direction{}
	for rows.Next() {
		var d Direction
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan direction: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const doctorCols = `d.id, d.first_name, d.last_name, d.middle_name, d.bio_text, d.photo_path,
	d.duration_minutes, d.buffer_minutes`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.MiddleName, &d.BioText, &d.PhotoPath,
		&d.DurationMinutes, &d.BufferMinutes)
	return &d, err
}

func (r *repoPG) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	query := `SELECT ` + doctorCols + ` FROM doctor d WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DirectionID != 0 {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM doctor_direction dd WHERE dd.doctor_id = d.id AND dd.direction_id = $%d)`, idx)
		args = append(args, f.DirectionID)
		idx++
	}
	if strings.TrimSpace(f.Name) != "" {
		query += fmt.Sprintf(` AND (d.first_name ILIKE $%d OR d.last_name ILIKE $%d OR d.middle_name ILIKE $%d)`, idx, idx, idx)
		args = append(args, LikePattern(f.Name))
		idx++
	}
	query += ` ORDER BY d.last_name, d.first_name, d.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	defer rows.Close()

	items := []Doctor{}
	ids := []int64{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		d.Directions = []Direction{}
		items = append(items, *d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doctors: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	byDoctor, err := r.directionsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if dirs, ok := byDoctor[items[i].ID]; ok {
			items[i].Directions = dirs
		}
	}
	return items, nil
}

func (r *repoPG) directionsOf(ctx context.Context, doctorIDs []int64) (map[int64][]Direction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT dd.doctor_id, dir.id, dir.name
		FROM doctor_direction dd
		JOIN direction dir ON dir.id = dd.direction_id
		WHERE dd.doctor_id = ANY($1)
		ORDER BY dir.name, dir.id`, doctorIDs)
	if err != nil {
		return nil, fmt.Errorf("query doctor directions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Direction)
	for rows.Next() {
		var doctorID int64
		var d Direction
		if err := rows.Scan(&doctorID, &d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan doctor direction: %w", err)
		}
		out[doctorID] = append(out[doctorID], d)
	}
	return out, rows.Err()
}

func (r *repoPG) ListServices(ctx context.Context, f ServiceFilter) ([]Service, error) {
	query := `SELECT s.id, s.name, s.clinic_id, c.name, s.duration_minutes, s.buffer_minutes
		FROM service s JOIN clinic c ON c.id = s.clinic_id WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.ClinicID != 0 {
		query += fmt.Sprintf(` AND s.clinic_id = $%d`, idx)
		args = append(args, f.ClinicID)
		idx++
	}
	if strings.TrimSpace(f.Name) != "" {
		query += fmt.Sprintf(` AND s.name ILIKE $%d`, idx)
		args = append(args, LikePattern(f.Name))
		idx++
	}
	query += ` ORDER BY s.name, s.id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	items := []Service{}
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.ClinicID, &s.ClinicName, &s.DurationMinutes, &s.BufferMinutes); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) GetClinic(ctx context.Context, id int64) (*Clinic, error) {
	var c Clinic
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, district, address FROM clinic WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.District, &c.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic %d: %w", id, err)
	}
	return &c, nil
}

func (r *repoPG) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor d WHERE d.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %d: %w", id, err)
	}

	dirs, err := r.directionsOf(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	d.Directions = dirs[id]
	if d.Directions == nil {
		d.Directions = []Direction{}
	}
	return d, nil
}

func (r *repoPG) GetService(ctx context.Context, id int64) (*Service, error) {
	var s Service
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT s.id, s.name, s.clinic_id, c.name, s.duration_minutes, s.buffer_minutes
		FROM service s JOIN clinic c ON c.id = s.clinic_id
		WHERE s.id = $1`, id).
		Scan(&s.ID, &s.Name, &s.ClinicID, &s.ClinicName, &s.DurationMinutes, &s.BufferMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	return &s, nil
}
