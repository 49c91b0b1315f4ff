package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mars-protocol/v1-core-sub000/core/numeric"
	nativecommon "github.com/mars-protocol/v1-core-sub000/native/common"
	"github.com/mars-protocol/v1-core-sub000/native/redbank"
	"github.com/mars-protocol/v1-core-sub000/native/redbank/ledger"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps engine error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, redbank.ErrValidation),
		errors.Is(err, numeric.ErrInvalidDecimal):
		return http.StatusBadRequest
	case errors.Is(err, redbank.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, redbank.ErrSolvency),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, redbank.ErrConsistency):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrPriceNotFound),
		errors.Is(err, ledger.ErrUnknownToken),
		errors.Is(err, ledger.ErrRoleNotFound):
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := http.StatusText(status)
	if err != nil && status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID(r.Context())})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", requestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, r, status, err)
}
