package scheduling

import (
	"context"
	"time"

	"github.com/AlarisGit/FamilyHealth/internal/domain/directory"
)

// AvailabilityIndex answers window queries. Results are ordered by
// work_date, time_start and id.
type AvailabilityIndex interface {
	// SearchWindows returns the windows of providers matching q whose days
	// intersect [q.From, q.To].
	SearchWindows(ctx context.Context, q SlotQuery) ([]WindowMatch, error)
	// ListWindows returns the provider's windows with work_date in [from, to].
	ListWindows(ctx context.Context, ref ProviderRef, from, to time.Time) ([]ScheduleWindow, error)
}

// OccupancyIndex lists the visits of a provider whose start falls on a day.
type OccupancyIndex interface {
	ListDayOccupancy(ctx context.Context, ref ProviderRef, day time.Time) ([]Occupied, error)
}

type VisitRepository interface {
	OccupancyIndex

	// LockProviderDay serializes bookings of ref on day until the
	// surrounding transaction ends.
	LockProviderDay(ctx context.Context, ref ProviderRef, day time.Time) error
	// FindByStart returns the visit of ref starting exactly at start, or nil.
	FindByStart(ctx context.Context, ref ProviderRef, start time.Time) (*Visit, error)
	// Create inserts v and sets its ID and CreatedAt.
	Create(ctx context.Context, v *Visit) error
	// GetForUpdate loads and row-locks a visit. Returns ErrVisitNotFound.
	GetForUpdate(ctx context.Context, id int64) (*Visit, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f VisitFilter) ([]VisitItem, error)
}

// TxRunner runs fn in one transaction. Repositories called with the ctx
// passed to fn take part in it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProviderDirectory resolves providers and clinics. Missing records are
// reported as apierror not_found errors.
type ProviderDirectory interface {
	GetDoctor(ctx context.Context, id int64) (*directory.Doctor, error)
	GetClinic(ctx context.Context, id int64) (*directory.Clinic, error)
	GetService(ctx context.Context, id int64) (*directory.Service, error)
}
