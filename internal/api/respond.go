package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"agendamento/internal/booking"
	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error     string              `json:"error"`
	Kind      booking.Kind        `json:"kind,omitempty"`
	Resource  models.ResourceType `json:"resource_id,omitempty"`
	Remaining *int64              `json:"remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// writeServiceError maps service failures to responses. Storage errors are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if rej, ok := booking.AsRejection(err); ok {
		resp := errorResponse{Error: rej.Message, Kind: rej.Kind, Resource: rej.Resource}
		status := http.StatusUnprocessableEntity
		if rej.Kind.IsConflict() {
			status = http.StatusConflict
		}
		if rej.Kind == booking.KindCapacityExceeded {
			remaining := rej.Remaining
			resp.Remaining = &remaining
		}
		writeJSON(w, status, resp)
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrReservationCanceled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrPastDate),
		errors.Is(err, domain.ErrDateTooFar),
		errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
