package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/auth"
	"github.com/AlarisGit/FamilyHealth/internal/platform/db"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

// bookingTarget is a booking request with its provider resolved.
type bookingTarget struct {
	ref      ProviderRef
	clinicID int64
	duration int
	buffer   int
}

// BookVisit books req for the caller. Booking the same provider and start
// again as the same patient returns the existing visit with Created false.
func (s *Service) BookVisit(ctx context.Context, caller auth.Caller, req BookingRequest) (res BookingResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.book_visit")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("visit.type", string(req.VisitType)),
		attribute.String("visit.start", localtime.Format(req.Start)),
	)
	defer func() {
		ok := "booked"
		if err == nil && !res.Created {
			ok = "replayed"
		}
		s.metrics.ObserveBooking(string(req.VisitType), outcome(err, ok))
	}()

	if caller.Privileged || caller.PatientID <= 0 {
		return BookingResult{}, apierror.InvalidRequest("patient_id must be > 0 for booking")
	}
	if err := checkBookingFields(req); err != nil {
		return BookingResult{}, err
	}

	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return BookingResult{}, err
	}
	span.SetAttributes(attribute.String("visit.provider", target.ref.String()))

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		res, err = s.bookLocked(ctx, caller.PatientID, target, req.Start)
		return err
	})

	var commitErr *db.CommitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &commitErr):
		s.logger.Warn().Err(err).
			Str("provider", target.ref.String()).
			Str("start", localtime.Format(req.Start)).
			Msg("booking lost at commit")
		return BookingResult{}, apierror.SlotBusy("the slot was taken concurrently")
	}
	return BookingResult{}, err
}

func checkBookingFields(req BookingRequest) error {
	switch req.VisitType {
	case VisitDoctor:
		if req.DoctorID == nil || *req.DoctorID <= 0 {
			return apierror.InvalidRequest("doctor_id is required for DOCTOR visits")
		}
		if req.ClinicID == nil || *req.ClinicID <= 0 {
			return apierror.InvalidRequest("clinic_id is required for DOCTOR visits")
		}
	case VisitService:
		if req.ServiceID == nil || *req.ServiceID <= 0 {
			return apierror.InvalidRequest("service_id is required for SERVICE visits")
		}
	default:
		return apierror.InvalidRequest("unknown visit_type %q", req.VisitType)
	}
	if req.Start.IsZero() {
		return apierror.InvalidRequest("start is required")
	}
	return nil
}

// resolveTarget loads the provider; duration and buffer always come from the
// provider record.
func (s *Service) resolveTarget(ctx context.Context, req BookingRequest) (bookingTarget, error) {
	if req.VisitType == VisitDoctor {
		doctor, err := s.providers.GetDoctor(ctx, *req.DoctorID)
		if err != nil {
			return bookingTarget{}, err
		}
		clinic, err := s.providers.GetClinic(ctx, *req.ClinicID)
		if err != nil {
			return bookingTarget{}, err
		}
		return bookingTarget{
			ref:      ProviderRef{Kind: VisitDoctor, ID: doctor.ID},
			clinicID: clinic.ID,
			duration: doctor.DurationMinutes,
			buffer:   doctor.BufferMinutes,
		}, nil
	}

	svc, err := s.providers.GetService(ctx, *req.ServiceID)
	if err != nil {
		return bookingTarget{}, err
	}
	return bookingTarget{
		ref:      ProviderRef{Kind: VisitService, ID: svc.ID},
		clinicID: svc.ClinicID,
		duration: svc.DurationMinutes,
		buffer:   svc.BufferMinutes,
	}, nil
}

// bookLocked runs inside the booking transaction.
func (s *Service) bookLocked(ctx context.Context, patientID int64, target bookingTarget, start time.Time) (BookingResult, error) {
	day := localtime.Day(start)
	if err := s.visits.LockProviderDay(ctx, target.ref, day); err != nil {
		return BookingResult{}, err
	}

	inSchedule, err := s.inSchedule(ctx, target, start)
	if err != nil {
		return BookingResult{}, err
	}
	if !inSchedule {
		return BookingResult{}, apierror.NotInSchedule("%s has no window covering %s", target.ref.Kind, localtime.Format(start))
	}

	existing, err := s.visits.FindByStart(ctx, target.ref, start)
	if err != nil {
		return BookingResult{}, err
	}
	if existing != nil {
		if existing.PatientID == patientID {
			return BookingResult{VisitID: existing.ID}, nil
		}
		return BookingResult{}, apierror.SlotBusy("the slot is already booked")
	}

	occupied, err := s.visits.ListDayOccupancy(ctx, target.ref, day)
	if err != nil {
		return BookingResult{}, err
	}
	if busy, count := Overlaps(start, target.duration, target.buffer, occupied); busy != nil {
		if count > 1 {
			s.logger.Warn().
				Str("provider", target.ref.String()).
				Str("start", localtime.Format(start)).
				Int("conflicts", count).
				Msg("occupied intervals of provider overlap each other")
		}
		return BookingResult{}, apierror.SlotBusy("the slot overlaps visit %d", busy.VisitID)
	}

	v := &Visit{
		PatientID:       patientID,
		VisitType:       target.ref.Kind,
		ClinicID:        target.clinicID,
		Start:           start,
		DurationMinutes: target.duration,
		BufferMinutes:   target.buffer,
		CreatedAt:       s.now(),
	}
	id := target.ref.ID
	if target.ref.Kind == VisitDoctor {
		v.DoctorID = &id
	} else {
		v.ServiceID = &id
	}
	if err := s.visits.Create(ctx, v); err != nil {
		level := s.logger.Warn()
		if !db.IsConflict(err) {
			level = s.logger.Error()
		}
		level.Err(err).
			Str("provider", target.ref.String()).
			Str("start", localtime.Format(start)).
			Msg("visit insert rejected")
		return BookingResult{}, apierror.SlotBusy("the slot was taken concurrently")
	}
	return BookingResult{VisitID: v.ID, Created: true}, nil
}

// inSchedule reports whether [start, start+duration) fits one of the
// provider's windows on that day. Doctor windows must belong to the booked
// clinic.
func (s *Service) inSchedule(ctx context.Context, target bookingTarget, start time.Time) (bool, error) {
	day := localtime.Day(start)
	windows, err := s.windows.ListWindows(ctx, target.ref, day, day)
	if err != nil {
		return false, fmt.Errorf("load windows: %w", err)
	}
	timeOfDay := start.Sub(day)
	for _, w := range windows {
		if target.ref.Kind == VisitDoctor && w.ClinicID != target.clinicID {
			continue
		}
		if w.TimeStart > timeOfDay {
			continue
		}
		if w.Contains(start, minutes(target.duration)) {
			return true, nil
		}
	}
	return false, nil
}
