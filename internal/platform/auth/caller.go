package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
)

type contextKey string

const CallerKey contextKey = "caller"

// Caller is the identity attached to every scheduling request. Privileged
// callers see other patients' visits and the occupants of busy slots.
type Caller struct {
	PatientID  int64
	Privileged bool
}

// Resolver turns the patient identifier presented by a request into a Caller.
type Resolver interface {
	Resolve(patientID int64) Caller
}

// SentinelResolver grants privilege to exactly one patient identifier.
type SentinelResolver struct {
	Sentinel int64
}

func (r SentinelResolver) Resolve(patientID int64) Caller {
	return Caller{PatientID: patientID, Privileged: patientID == r.Sentinel}
}

// CallerMiddleware resolves the patient_id query parameter and binds the
// resulting Caller to the request context. Requests without a valid
// patient_id are rejected.
func CallerMiddleware(r Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.QueryParam("patient_id"))
			if raw == "" {
				return apierror.InvalidRequest("patient_id is required")
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return apierror.InvalidRequest("patient_id must be an integer")
			}

			caller := r.Resolve(id)
			c.Set("patient_id", caller.PatientID)
			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(Caller)
	return caller, ok
}
