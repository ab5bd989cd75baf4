package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

// ErrVisitNotFound is returned by visit lookups that match no row.
var ErrVisitNotFound = errors.New("visit not found")

// VisitType selects the provider a visit or slot belongs to.
type VisitType string

const (
	VisitDoctor  VisitType = "DOCTOR"
	VisitService VisitType = "SERVICE"
)

// ParseSlotKind maps the lower-case search "type" parameter to a VisitType.
func ParseSlotKind(s string) (VisitType, bool) {
	switch s {
	case "doctor":
		return VisitDoctor, true
	case "service":
		return VisitService, true
	}
	return "", false
}

// ProviderRef identifies a doctor or a service.
type ProviderRef struct {
	Kind VisitType
	ID   int64
}

func (p ProviderRef) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.ID)
}

// LockKey names the advisory lock serializing bookings of the provider on
// the given day.
func (p ProviderRef) LockKey(day time.Time) string {
	return fmt.Sprintf("visit:%s:%d:%s", p.Kind, p.ID, day.Format(localtime.DateLayout))
}

// ScheduleWindow is one working interval of a provider on a calendar day.
// Windows of the same provider may overlap.
type ScheduleWindow struct {
	ID        int64
	Provider  ProviderRef
	ClinicID  int64
	WorkDate  time.Time
	TimeStart time.Duration
	TimeEnd   time.Duration
}

func (w ScheduleWindow) Start() time.Time { return w.WorkDate.Add(w.TimeStart) }

func (w ScheduleWindow) End() time.Time { return w.WorkDate.Add(w.TimeEnd) }

// Contains reports whether [start, start+d) lies inside the window.
func (w ScheduleWindow) Contains(start time.Time, d time.Duration) bool {
	return !start.Before(w.Start()) && !start.Add(d).After(w.End())
}

// WindowMatch is a window joined with the provider and clinic attributes
// needed to render slots.
type WindowMatch struct {
	Window          ScheduleWindow
	ProviderName    string
	ClinicName      string
	District        string
	DurationMinutes int
	BufferMinutes   int
}

// Occupied is the interval [Start, Start+Duration+Buffer) held by a visit.
type Occupied struct {
	VisitID         int64
	PatientID       int64
	Start           time.Time
	DurationMinutes int
	BufferMinutes   int
}

func (o Occupied) End() time.Time {
	return o.Start.Add(minutes(o.DurationMinutes + o.BufferMinutes))
}

type Visit struct {
	ID              int64
	PatientID       int64
	VisitType       VisitType
	DoctorID        *int64
	ServiceID       *int64
	ClinicID        int64
	Start           time.Time
	DurationMinutes int
	BufferMinutes   int
	CreatedAt       time.Time
}

// Provider returns the doctor or service the visit is booked with.
func (v *Visit) Provider() ProviderRef {
	if v.VisitType == VisitDoctor && v.DoctorID != nil {
		return ProviderRef{Kind: VisitDoctor, ID: *v.DoctorID}
	}
	if v.ServiceID != nil {
		return ProviderRef{Kind: VisitService, ID: *v.ServiceID}
	}
	return ProviderRef{Kind: v.VisitType}
}

// SlotQuery selects the windows a slot search scans. Zero-valued filters
// mean "any". Doctor searches ignore ServiceID; service searches ignore
// DirectionID and DoctorName.
type SlotQuery struct {
	Kind        VisitType
	From        time.Time
	To          time.Time
	District    string
	ClinicID    int64
	DirectionID int64
	DoctorName  string
	ServiceID   int64
	IncludeBusy bool
}

type Slot struct {
	SlotType      string         `json:"slot_type"`
	ClinicID      int64          `json:"clinic_id"`
	ClinicName    string         `json:"clinic_name"`
	District      string         `json:"district"`
	DoctorID      *int64         `json:"doctor_id"`
	DoctorName    *string        `json:"doctor_name"`
	ServiceID     *int64         `json:"service_id"`
	ServiceName   *string        `json:"service_name"`
	Start         localtime.Time `json:"start"`
	End           localtime.Time `json:"end"`
	IsFree        bool           `json:"is_free"`
	BusyPatientID *int64         `json:"busy_patient_id"`

	name string
}

// BookingRequest is a validated-at-the-edge request to book a visit.
type BookingRequest struct {
	VisitType VisitType
	DoctorID  *int64
	ServiceID *int64
	ClinicID  *int64
	Start     time.Time
}

// BookingResult carries the visit id and whether this call created it.
type BookingResult struct {
	VisitID int64
	Created bool
}

// Visit listing scopes.
const (
	ScopeMine = "mine"
	ScopeAll  = "all"
)

// VisitQuery bounds ListVisits. Nil bounds take the defaults.
type VisitQuery struct {
	From  *time.Time
	To    *time.Time
	Scope string
}

// VisitFilter is the storage-level form of a visit listing. PatientID is
// always matched unless AllPatients is set.
type VisitFilter struct {
	PatientID   int64
	AllPatients bool
	From        time.Time
	To          time.Time
}

type VisitItem struct {
	VisitID     int64          `json:"visit_id"`
	PatientID   int64          `json:"patient_id"`
	VisitType   VisitType      `json:"visit_type"`
	ClinicID    int64          `json:"clinic_id"`
	ClinicName  string         `json:"clinic_name"`
	DoctorID    *int64         `json:"doctor_id"`
	DoctorName  *string        `json:"doctor_name"`
	ServiceID   *int64         `json:"service_id"`
	ServiceName *string        `json:"service_name"`
	Start       localtime.Time `json:"start"`
	End         localtime.Time `json:"end"`
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
