package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"agendamento/internal/booking"
	"agendamento/internal/export"
	"agendamento/internal/models"

	"github.com/gorilla/mux"
)

var errVersionRequired = errors.New("version is required")

// bookingRequest is the body of the check and create endpoints.
type bookingRequest struct {
	Resources   []models.ResourceType `json:"resources"`
	Date        string                `json:"date"`
	StartTime   *models.Clock         `json:"start_time"`
	EndTime     *models.Clock         `json:"end_time"`
	Quantity    *int64                `json:"quantity,omitempty"`
	Room        string                `json:"room,omitempty"`
	ExcludingID string                `json:"excluding_id,omitempty"`
}

func (b bookingRequest) toRequest() (booking.Request, error) {
	date, err := models.ParseDate(b.Date)
	if err != nil {
		return booking.Request{}, err
	}
	if b.StartTime == nil || b.EndTime == nil {
		return booking.Request{}, errors.New("start_time and end_time are required")
	}
	return booking.Request{
		Resources: b.Resources,
		Date:      date,
		StartTime: *b.StartTime,
		EndTime:   *b.EndTime,
		Quantity:  b.Quantity,
		Room:      b.Room,
	}, nil
}

type patchRequest struct {
	Version   int64         `json:"version"`
	Date      *string       `json:"date,omitempty"`
	StartTime *models.Clock `json:"start_time,omitempty"`
	EndTime   *models.Clock `json:"end_time,omitempty"`
	Quantity  *int64        `json:"quantity,omitempty"`
	Room      *string       `json:"room,omitempty"`
}

func (p patchRequest) toPatch() (models.ReservationPatch, error) {
	patch := models.ReservationPatch{
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Quantity:  p.Quantity,
		Room:      p.Room,
	}
	if p.Date != nil {
		date, err := models.ParseDate(*p.Date)
		if err != nil {
			return patch, err
		}
		patch.Date = &date
	}
	return patch, nil
}

type statusRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

type reservationsResponse struct {
	Reservations []*models.Reservation `json:"reservations"`
}

func (s *HTTPServer) handleResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resources": s.services.Reservations.Catalog().All()})
}

func (s *HTTPServer) handleTimeSlots(w http.ResponseWriter, _ *http.Request) {
	slots := s.services.TimeSlots
	if len(slots) == 0 {
		slots = models.DefaultTimeSlots
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_slots": slots})
}

func (s *HTTPServer) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := models.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := models.ParseClock(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := models.ParseClock(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	occupancy, err := s.services.Reservations.Occupancy(r.Context(), date, start, end)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": models.DateKey(date), "occupancy": occupancy})
}

func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.services.Reservations.Check(r.Context(), UserFromContext(r.Context()), req, body.ExcludingID); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *HTTPServer) handleCreateReservations(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.services.Reservations.CreateReservations(r.Context(), UserFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservationsResponse{Reservations: created})
}

// handleListReservations serves the caller's reservations from a date on.
// Administrators see everyone's and may bound the range with "to".
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	q := r.URL.Query()

	var from time.Time
	if raw := q.Get("from"); raw != "" {
		parsed, err := models.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = parsed
	}

	var (
		list []*models.Reservation
		err  error
	)
	if raw := q.Get("to"); raw != "" {
		to, perr := models.ParseDate(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		list, err = s.services.Reservations.ListBetween(r.Context(), user, from, to)
	} else {
		list, err = s.services.Reservations.ListReservations(r.Context(), user, from)
	}
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	if list == nil {
		list = []*models.Reservation{}
	}
	writeJSON(w, http.StatusOK, reservationsResponse{Reservations: list})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.services.Reservations.Summary(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleEditReservation(w http.ResponseWriter, r *http.Request) {
	var body patchRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Version <= 0 {
		writeError(w, http.StatusBadRequest, errVersionRequired.Error())
		return
	}
	patch, err := body.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := mux.Vars(r)["id"]
	updated, err := s.services.Reservations.EditReservation(r.Context(), UserFromContext(r.Context()), id, body.Version, patch)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	updated, err := s.services.Reservations.ConfirmReservation(r.Context(), UserFromContext(r.Context()), id, body.Version)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeStatus(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	updated, err := s.services.Reservations.CancelReservation(r.Context(), UserFromContext(r.Context()), id, body.Version, body.Reason)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) decodeStatus(w http.ResponseWriter, r *http.Request) (statusRequest, bool) {
	var body statusRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	if body.Version <= 0 {
		writeError(w, http.StatusBadRequest, errVersionRequired.Error())
		return body, false
	}
	return body, true
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.services.Reservations.DeleteReservation(r.Context(), UserFromContext(r.Context()), id); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := models.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := models.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.services.Reservations.ListBetween(r.Context(), UserFromContext(r.Context()), from, to)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}

	exporter := s.services.Exporter
	if exporter == nil {
		exporter = export.NewExporter(s.services.Reservations.Catalog(), "", &s.log)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	if err := exporter.Write(w, from, to, list); err != nil {
		// headers are already out, only the log is left
		s.log.Error().Err(err).Msg("export failed")
	}
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	draft, err := s.services.Drafts.GetDraft(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	if draft == nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	var draft models.Draft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	draft.UserID = UserFromContext(r.Context()).ID

	if err := s.services.Drafts.SaveDraft(r.Context(), &draft); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, &draft)
}

func (s *HTTPServer) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Drafts.ClearDraft(r.Context(), UserFromContext(r.Context()).ID); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	stored, err := s.services.Users.GetUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *HTTPServer) handleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user := UserFromContext(r.Context())
	if err := s.services.Users.LinkTelegram(r.Context(), user.ID, body.ChatID); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
