package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/flightplan-simulator/internal/ledger"
	"github.com/signalsfoundry/flightplan-simulator/internal/logging"
	"github.com/signalsfoundry/flightplan-simulator/kb"
)

// ErrBadRequest marks malformed or incomplete request bodies.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ledger.ErrInvalidRequest),
		errors.Is(err, kb.ErrInvalidFlightPlan):
		return http.StatusBadRequest

	case errors.Is(err, kb.ErrDroneNotFound),
		errors.Is(err, kb.ErrOperatorNotFound),
		errors.Is(err, kb.ErrFlightPlanNotFound),
		errors.Is(err, ledger.ErrOperatorNotFound):
		return http.StatusNotFound

	case errors.Is(err, kb.ErrDroneExists),
		errors.Is(err, kb.ErrOperatorExists):
		return http.StatusConflict

	case errors.Is(err, ledger.ErrUpstream),
		errors.Is(err, ledger.ErrZoneLimits),
		errors.Is(err, ledger.ErrDroneMint):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	log := requestLogger(r)
	if code >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", logging.Int("status", code), logging.Err(err))
	} else {
		log.Debug(r.Context(), "request rejected", logging.Int("status", code), logging.Err(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error(), RequestID: logging.RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func requestLogger(r *http.Request) logging.Logger {
	if log := logging.LoggerFromContext(r.Context()); log != nil {
		return log
	}
	return logging.Noop()
}
