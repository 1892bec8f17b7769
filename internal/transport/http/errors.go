package http

import (
	"errors"
	"net/http"

	"github.com/mvaleed/acs/internal/domain"
)

var errUnauthenticated = errors.New("missing or invalid bearer token")

type errorResponse struct {
	Error         string            `json:"error"`
	Code          string            `json:"code"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// writeError maps a core error onto spec §7's closed Kind taxonomy and
// from there onto an HTTP status, the same one-to-one mapping spec.md
// promises external handlers ("Errors are stable enough to map one-to-one
// to transport-level status codes").
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "UNAUTHENTICATED"})
		return
	}

	kind := domain.ClassifyError(err)
	resp := errorResponse{Error: err.Error(), Code: string(kind)}

	var corrErr *domain.CommandError
	if errors.As(err, &corrErr) {
		resp.CorrelationID = corrErr.CorrelationID
	}

	var ve domain.ValidationError
	var ves domain.ValidationErrors
	switch {
	case errors.As(err, &ves):
		resp.Details = make(map[string]string, len(ves))
		for _, e := range ves {
			resp.Details[e.Field] = e.Message
		}
	case errors.As(err, &ve):
		resp.Details = map[string]string{ve.Field: ve.Message}
	}

	s.writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists, domain.KindConflict, domain.KindWouldCreateCycle:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindNotSupported:
		return http.StatusNotImplemented
	case domain.KindCircuitOpen, domain.KindShuttingDown:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindCanceled:
		return 499
	case domain.KindPersistenceFailure, domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
