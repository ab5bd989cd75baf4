package scheduling

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/auth"
)

// DefaultVisitHorizon is how far ahead ListVisits looks without time_to.
const DefaultVisitHorizon = 90 * 24 * time.Hour

// ListVisits returns visits starting within [from, to], ordered by start.
// Scope "all" lists every patient and needs a privileged caller; any other
// scope lists the caller's own visits.
func (s *Service) ListVisits(ctx context.Context, caller auth.Caller, q VisitQuery) ([]VisitItem, error) {
	if q.Scope == ScopeAll && !caller.Privileged {
		return nil, apierror.Forbidden("scope=all is only available to privileged callers")
	}

	now := s.now()
	f := VisitFilter{PatientID: caller.PatientID, From: now, To: now.Add(DefaultVisitHorizon)}
	if q.From != nil {
		f.From = *q.From
	}
	if q.To != nil {
		f.To = *q.To
	}
	if q.Scope == ScopeAll {
		f.AllPatients = true
	}
	return s.visits.List(ctx, f)
}

// CancelVisit deletes a visit owned by the caller. Privileged callers may
// cancel any visit.
func (s *Service) CancelVisit(ctx context.Context, caller auth.Caller, id int64) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.cancel_visit")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Int64("visit.id", id))
	defer func() { s.metrics.ObserveCancel(outcome(err, "deleted")) }()

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		v, err := s.visits.GetForUpdate(ctx, id)
		if errors.Is(err, ErrVisitNotFound) {
			return apierror.NotFound("visit %d not found", id)
		}
		if err != nil {
			return err
		}
		if !caller.Privileged && v.PatientID != caller.PatientID {
			return apierror.Forbidden("you can only cancel your own visits")
		}
		if err := s.visits.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrVisitNotFound) {
				return apierror.NotFound("visit %d not found", id)
			}
			return err
		}
		return nil
	})
}
