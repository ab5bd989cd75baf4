package scheduling

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/telemetry"
	"github.com/AlarisGit/FamilyHealth/pkg/localtime"
)

var tracer = otel.Tracer("familyhealth/scheduling")

// Service generates slots and coordinates bookings and cancellations.
type Service struct {
	windows   AvailabilityIndex
	visits    VisitRepository
	tx        TxRunner
	providers ProviderDirectory
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func NewService(windows AvailabilityIndex, visits VisitRepository, tx TxRunner, providers ProviderDirectory,
	logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		windows:   windows,
		visits:    visits,
		tx:        tx,
		providers: providers,
		logger:    logger.With().Str("component", "scheduling").Logger(),
		metrics:   metrics,
		now:       localtime.Now,
	}
}

// outcome labels a finished operation for metrics.
func outcome(err error, ok string) string {
	if err == nil {
		return ok
	}
	return string(apierror.KindOf(err))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apierror.KindOf(err)))
	}
	span.End()
}
