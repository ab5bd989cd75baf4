package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/auth"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

type dayKey struct {
	ref ProviderRef
	day time.Time
}

// SearchSlots scans every window matching q minute by minute and returns the
// slots whose occupied interval is free, plus busy ones when a privileged
// caller asks for them. Results are ordered by start, then provider name.
func (s *Service) SearchSlots(ctx context.Context, caller auth.Caller, q SlotQuery) (slots []Slot, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.search_slots")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("slot.kind", string(q.Kind)),
		attribute.String("slot.from", localtime.Format(q.From)),
		attribute.String("slot.to", localtime.Format(q.To)),
		attribute.Bool("slot.include_busy", q.IncludeBusy),
	)
	defer func() { s.metrics.ObserveSearch(string(q.Kind), outcome(err, "ok"), len(slots)) }()

	if q.IncludeBusy && !caller.Privileged {
		return nil, apierror.Forbidden("include_busy is only available to privileged callers")
	}
	if q.Kind != VisitDoctor && q.Kind != VisitService {
		return nil, apierror.InvalidRequest("type must be doctor or service")
	}

	matches, err := s.windows.SearchWindows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search windows: %w", err)
	}

	occupancy := make(map[dayKey][]Occupied)
	slots = []Slot{}
	for _, m := range matches {
		key := dayKey{ref: m.Window.Provider, day: localtime.Day(m.Window.WorkDate)}
		occupied, ok := occupancy[key]
		if !ok {
			occupied, err = s.visits.ListDayOccupancy(ctx, key.ref, key.day)
			if err != nil {
				return nil, fmt.Errorf("load occupancy: %w", err)
			}
			occupancy[key] = occupied
		}
		slots = s.appendWindowSlots(slots, m, occupied, q, caller)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start.Time) {
			return slots[i].Start.Before(slots[j].Start.Time)
		}
		return slots[i].name < slots[j].name
	})
	span.SetAttributes(attribute.Int("slot.count", len(slots)))
	return slots, nil
}

func (s *Service) appendWindowSlots(slots []Slot, m WindowMatch, occupied []Occupied, q SlotQuery, caller auth.Caller) []Slot {
	duration := minutes(m.DurationMinutes)
	windowEnd := m.Window.End()

	t := m.Window.Start()
	if q.From.After(t) {
		t = q.From
	}
	t = localtime.CeilMinute(t)

	violations := 0
	for ; !t.Add(duration).After(windowEnd) && t.Before(q.To); t = t.Add(time.Minute) {
		busy, count := Overlaps(t, m.DurationMinutes, m.BufferMinutes, occupied)
		if count > 1 {
			violations++
		}
		if busy != nil && !(q.IncludeBusy && caller.Privileged) {
			continue
		}
		slots = append(slots, newSlot(m, t, busy, caller))
	}
	if violations > 0 {
		s.logger.Warn().
			Str("provider", m.Window.Provider.String()).
			Str("day", m.Window.WorkDate.Format(localtime.DateLayout)).
			Int("candidates", violations).
			Msg("occupied intervals of provider overlap each other")
	}
	return slots
}

func newSlot(m WindowMatch, start time.Time, busy *Occupied, caller auth.Caller) Slot {
	id := m.Window.Provider.ID
	name := m.ProviderName
	slot := Slot{
		SlotType:   string(m.Window.Provider.Kind),
		ClinicID:   m.Window.ClinicID,
		ClinicName: m.ClinicName,
		District:   m.District,
		Start:      localtime.Time{Time: start},
		End:        localtime.Time{Time: start.Add(minutes(m.DurationMinutes))},
		IsFree:     busy == nil,
		name:       name,
	}
	if m.Window.Provider.Kind == VisitDoctor {
		slot.DoctorID, slot.DoctorName = &id, &name
	} else {
		slot.ServiceID, slot.ServiceName = &id, &name
	}
	if busy != nil && caller.Privileged {
		pid := busy.PatientID
		slot.BusyPatientID = &pid
	}
	return slot
}
