package http

import (
	"context"
	"errors"
	"net/http"

	"estoque/internal/core"
	"estoque/internal/dashboard"
	applog "estoque/internal/log"
	"estoque/internal/records"
)

type ownerKey struct{}

func withOwner(ctx context.Context, owner core.Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// ownerFrom returns the owner stored by requireOwner.
func ownerFrom(ctx context.Context) core.Owner {
	owner, _ := ctx.Value(ownerKey{}).(core.Owner)
	return owner
}

// errorResponse maps a service error to its HTTP response.
func errorResponse(err error) *HTMXResponseBuilder {
	var (
		ve *core.ValidationError
		ae *core.AuthError
		we *core.WriteError
	)
	switch {
	case errors.As(err, &ve):
		return UnprocessableEntityError("invalid input", ve.Messages()).
			TriggerErrorNotification("Please correct the highlighted fields")
	case errors.As(err, &ae):
		if ae.Kind == core.AuthEmailInUse {
			return ErrorResponse(http.StatusConflict, ae.Message()).
				TriggerErrorNotification(ae.Message())
		}
		return UnauthorizedError(ae.Message())
	case errors.Is(err, dashboard.ErrSignedOut):
		return UnauthorizedError("session ended")
	case errors.Is(err, records.ErrNotFound):
		return NotFoundError("record not found")
	case errors.As(err, &we):
		return ErrorResponse(http.StatusBadGateway, "could not save changes").
			TriggerErrorNotification("Could not save changes, please try again")
	case errors.Is(err, records.ErrClosed):
		return ErrorResponse(http.StatusServiceUnavailable, "service shutting down")
	default:
		return InternalServerError("internal error")
	}
}

// writeError logs err at a level matching its class and writes the mapped
// response. Cancelled requests get no response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if errors.Is(err, context.Canceled) {
		logger.DebugContext(ctx, "Request cancelled", applog.FieldOperation, op)
		return
	}

	var ae *core.AuthError
	if errors.As(err, &ae) {
		s.countAuthFailure()
	}

	resp := errorResponse(err)
	if resp.statusCode >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err,
			applog.FieldStatusCode, resp.statusCode)
	} else {
		logger.WarnContext(ctx, "Request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err,
			applog.FieldStatusCode, resp.statusCode)
	}
	resp.Write(w)
}
