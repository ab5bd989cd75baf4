package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AlarisGit/FamilyHealth/internal/domain/directory"
	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/db"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

// memStore is an in-memory AvailabilityIndex, VisitRepository, TxRunner and
// ProviderDirectory. Transactions are serialized by one mutex and roll back
// the visit table on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	clinics  map[int64]*directory.Clinic
	doctors  map[int64]*directory.Doctor
	services map[int64]*directory.Service
	windows  []ScheduleWindow
	visits   map[int64]*Visit
	nextID   int64

	locks     []string
	commitErr error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		clinics:  make(map[int64]*directory.Clinic),
		doctors:  make(map[int64]*directory.Doctor),
		services: make(map[int64]*directory.Service),
		visits:   make(map[int64]*Visit),
	}
}

func (m *memStore) addClinic(id int64, name, district string) {
	m.clinics[id] = &directory.Clinic{ID: id, Name: name, District: district}
}

func (m *memStore) addDoctor(id int64, last, first string, duration, buffer int) {
	m.doctors[id] = &directory.Doctor{ID: id, LastName: last, FirstName: first,
		DurationMinutes: duration, BufferMinutes: buffer, Directions: []directory.Direction{}}
}

func (m *memStore) addService(id int64, name string, clinicID int64, duration, buffer int) {
	m.services[id] = &directory.Service{ID: id, Name: name, ClinicID: clinicID,
		ClinicName: m.clinics[clinicID].Name, DurationMinutes: duration, BufferMinutes: buffer}
}

// addWindow registers a window given as "2006-01-02", "09:00", "12:00".
func (m *memStore) addWindow(ref ProviderRef, clinicID int64, date, from, to string) {
	day, err := localtime.Parse(date)
	if err != nil {
		panic(err)
	}
	m.windows = append(m.windows, ScheduleWindow{
		ID:        int64(len(m.windows) + 1),
		Provider:  ref,
		ClinicID:  clinicID,
		WorkDate:  day,
		TimeStart: clock(from),
		TimeEnd:   clock(to),
	})
}

func clock(hhmm string) time.Duration {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// -- ProviderDirectory --

func (m *memStore) GetDoctor(_ context.Context, id int64) (*directory.Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, apierror.NotFound("doctor %d not found", id)
}

func (m *memStore) GetClinic(_ context.Context, id int64) (*directory.Clinic, error) {
	if c, ok := m.clinics[id]; ok {
		return c, nil
	}
	return nil, apierror.NotFound("clinic %d not found", id)
}

func (m *memStore) GetService(_ context.Context, id int64) (*directory.Service, error) {
	if s, ok := m.services[id]; ok {
		return s, nil
	}
	return nil, apierror.NotFound("service %d not found", id)
}

// -- AvailabilityIndex --

func (m *memStore) SearchWindows(_ context.Context, q SlotQuery) ([]WindowMatch, error) {
	from, to := localtime.Day(q.From), localtime.Day(q.To)
	var out []WindowMatch
	for _, w := range m.windows {
		if w.Provider.Kind != q.Kind || w.WorkDate.Before(from) || w.WorkDate.After(to) {
			continue
		}
		clinic := m.clinics[w.ClinicID]
		if q.District != "" && clinic.District != q.District {
			continue
		}
		if q.ClinicID != 0 && w.ClinicID != q.ClinicID {
			continue
		}
		match := WindowMatch{Window: w, ClinicName: clinic.Name, District: clinic.District}
		if w.Provider.Kind == VisitDoctor {
			d := m.doctors[w.Provider.ID]
			if q.DoctorName != "" && !strings.Contains(strings.ToLower(d.DisplayName()), strings.ToLower(q.DoctorName)) {
				continue
			}
			match.ProviderName = d.DisplayName()
			match.DurationMinutes, match.BufferMinutes = d.DurationMinutes, d.BufferMinutes
		} else {
			s := m.services[w.Provider.ID]
			if q.ServiceID != 0 && s.ID != q.ServiceID {
				continue
			}
			match.ProviderName = s.Name
			match.DurationMinutes, match.BufferMinutes = s.DurationMinutes, s.BufferMinutes
		}
		out = append(out, match)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Window, out[j].Window
		if !a.WorkDate.Equal(b.WorkDate) {
			return a.WorkDate.Before(b.WorkDate)
		}
		if a.TimeStart != b.TimeStart {
			return a.TimeStart < b.TimeStart
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *memStore) ListWindows(_ context.Context, ref ProviderRef, from, to time.Time) ([]ScheduleWindow, error) {
	var out []ScheduleWindow
	for _, w := range m.windows {
		if w.Provider == ref && !w.WorkDate.Before(localtime.Day(from)) && !w.WorkDate.After(localtime.Day(to)) {
			out = append(out, w)
		}
	}
	return out, nil
}

// -- VisitRepository --

func (m *memStore) LockProviderDay(_ context.Context, ref ProviderRef, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = append(m.locks, ref.LockKey(day))
	return nil
}

func (m *memStore) ListDayOccupancy(_ context.Context, ref ProviderRef, day time.Time) ([]Occupied, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := day.AddDate(0, 0, 1)
	var out []Occupied
	for _, v := range m.sortedVisits() {
		if v.Provider() != ref || v.Start.Before(day) || !v.Start.Before(next) {
			continue
		}
		out = append(out, Occupied{VisitID: v.ID, PatientID: v.PatientID, Start: v.Start,
			DurationMinutes: v.DurationMinutes, BufferMinutes: v.BufferMinutes})
	}
	return out, nil
}

func (m *memStore) FindByStart(_ context.Context, ref ProviderRef, start time.Time) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.visits {
		if v.Provider() == ref && v.Start.Equal(start) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

// Create enforces the storage constraints of the visit table.
func (m *memStore) Create(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	end := v.Start.Add(minutes(v.DurationMinutes + v.BufferMinutes))
	for _, o := range m.visits {
		if o.Provider() != v.Provider() {
			continue
		}
		oEnd := o.Start.Add(minutes(o.DurationMinutes + o.BufferMinutes))
		if v.Start.Before(oEnd) && o.Start.Before(end) {
			return &pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"}
		}
	}
	m.nextID++
	cp := *v
	cp.ID = m.nextID
	m.visits[cp.ID] = &cp
	v.ID = cp.ID
	return nil
}

func (m *memStore) GetForUpdate(_ context.Context, id int64) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.visits[id]; !ok {
		return ErrVisitNotFound
	}
	delete(m.visits, id)
	return nil
}

func (m *memStore) List(_ context.Context, f VisitFilter) ([]VisitItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []VisitItem{}
	for _, v := range m.sortedVisits() {
		if v.Start.Before(f.From) || v.Start.After(f.To) {
			continue
		}
		if !f.AllPatients && v.PatientID != f.PatientID {
			continue
		}
		it := VisitItem{
			VisitID:    v.ID,
			PatientID:  v.PatientID,
			VisitType:  v.VisitType,
			ClinicID:   v.ClinicID,
			ClinicName: m.clinics[v.ClinicID].Name,
			DoctorID:   v.DoctorID,
			ServiceID:  v.ServiceID,
			Start:      localtime.Time{Time: v.Start},
			End:        localtime.Time{Time: v.Start.Add(minutes(v.DurationMinutes))},
		}
		if v.DoctorID != nil {
			name := m.doctors[*v.DoctorID].DisplayName()
			it.DoctorName = &name
		}
		if v.ServiceID != nil {
			name := m.services[*v.ServiceID].Name
			it.ServiceName = &name
		}
		items = append(items, it)
	}
	return items, nil
}

func (m *memStore) sortedVisits() []*Visit {
	out := make([]*Visit, 0, len(m.visits))
	for _, v := range m.visits {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// -- TxRunner --

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[int64]*Visit, len(m.visits))
	for id, v := range m.visits {
		snapshot[id] = v
	}
	m.mu.Unlock()

	rollback := func() {
		m.mu.Lock()
		m.visits = snapshot
		m.mu.Unlock()
	}

	if err := fn(ctx); err != nil {
		rollback()
		return err
	}
	if m.commitErr != nil {
		rollback()
		return &db.CommitError{Err: m.commitErr}
	}
	return nil
}

func (m *memStore) visitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visits)
}
