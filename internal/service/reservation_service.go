package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agendamento/internal/booking"
	"agendamento/internal/config"
	"agendamento/internal/domain"
	"agendamento/internal/events"
	"agendamento/internal/metrics"
	"agendamento/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sync task types understood by the sheets worker.
const (
	SyncUpsert = "upsert"
	SyncDelete = "delete"
)

type ReservationService struct {
	repo         domain.Repository
	validator    *booking.Validator
	drafts       domain.DraftManager
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	notifier     domain.Notifier
	cfg          config.BookingConfig
	location     *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewReservationService(
	repo domain.Repository,
	validator *booking.Validator,
	drafts domain.DraftManager,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	notifier domain.Notifier,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *ReservationService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if cfg.DefaultCancelNote == "" {
		cfg.DefaultCancelNote = models.DefaultCancelNote
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}
	if validator == nil {
		validator = booking.NewValidator(nil)
	}
	return &ReservationService{
		repo:         repo,
		validator:    validator,
		drafts:       drafts,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		notifier:     notifier,
		cfg:          cfg,
		location:     loc,
		now:          time.Now,
		logger:       logger,
	}
}

// Catalog returns the resource table used for validation.
func (s *ReservationService) Catalog() *models.Catalog {
	return s.validator.Catalog()
}

// today is the local calendar date expressed as UTC midnight, the same form
// reservation dates are stored in.
func (s *ReservationService) today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *ReservationService) ValidateBookingDate(date time.Time) error {
	today := s.today()
	if date.Before(today) {
		return domain.ErrPastDate
	}
	if date.After(today.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return domain.ErrDateTooFar
	}
	return nil
}

// Check runs the validator against the current snapshot without writing.
// It returns nil, a *booking.Rejection, or a date policy or storage error.
func (s *ReservationService) Check(ctx context.Context, actor *models.User, req booking.Request, excludingID string) error {
	if actor == nil {
		return domain.ErrForbidden
	}
	if err := s.ValidateBookingDate(req.Date); err != nil {
		return err
	}
	// Only the owner may check an edit of their own reservation.
	if excludingID != "" {
		current, err := s.repo.GetReservation(ctx, excludingID)
		if err != nil {
			return err
		}
		if current.UserID != actor.ID {
			return domain.ErrForbidden
		}
	}
	_, err := s.validate(ctx, req, excludingID)
	return err
}

func (s *ReservationService) validate(ctx context.Context, req booking.Request, excludingID string) ([]booking.Candidate, error) {
	existing, err := s.repo.ListActiveReservations(ctx, req.Date, req.Resources)
	if err != nil {
		return nil, err
	}
	candidates, rej := s.validator.ValidateRequest(req, existing, excludingID)
	if rej != nil {
		metrics.IncRejection(string(rej.Kind))
		return nil, rej
	}
	return candidates, nil
}

// CreateReservations books every selected resource for the requested slot.
// Either all reservations are written or none.
func (s *ReservationService) CreateReservations(ctx context.Context, actor *models.User, req booking.Request) ([]*models.Reservation, error) {
	if actor == nil {
		return nil, domain.ErrForbidden
	}
	if err := s.ValidateBookingDate(req.Date); err != nil {
		return nil, err
	}
	if err := s.allowWrite(ctx, actor.ID); err != nil {
		return nil, err
	}

	candidates, err := s.validate(ctx, req, "")
	if err != nil {
		return nil, err
	}

	batch := s.materialize(actor, candidates)
	if err := s.repo.CreateReservations(ctx, batch); err != nil {
		if rej, ok := booking.AsRejection(err); ok {
			metrics.IncRejection(string(rej.Kind))
		}
		return nil, err
	}

	for _, r := range batch {
		metrics.IncReservationCreated(string(r.Resource))
		s.publishEvent(events.EventReservationCreated, r, actor.ID)
		s.enqueueSync(ctx, r)
	}
	if s.notifier != nil {
		s.notifier.ReservationsCreated(ctx, actor, batch)
	}
	if s.drafts != nil {
		if err := s.drafts.ClearDraft(ctx, actor.ID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", actor.ID).Msg("failed to clear draft")
		}
	}

	s.logger.Info().Str("user_id", actor.ID).Int("count", len(batch)).Str("date", models.DateKey(req.Date)).Msg("reservations created")
	return batch, nil
}

func (s *ReservationService) materialize(actor *models.User, candidates []booking.Candidate) []*models.Reservation {
	catalog := s.validator.Catalog()
	batch := make([]*models.Reservation, 0, len(candidates))
	for _, c := range candidates {
		r := &models.Reservation{
			ID:        uuid.NewString(),
			UserID:    actor.ID,
			UserName:  actor.Name,
			Resource:  c.Resource,
			Date:      c.Date,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
			Status:    models.StatusPending,
		}
		res, _ := catalog.Get(c.Resource)
		if res.IsPooled() {
			q := booking.RequestedQuantity(res, c.Quantity)
			r.Quantity = &q
		}
		if res.RequiresRoom {
			r.Room = strings.TrimSpace(c.Room)
		}
		batch = append(batch, r)
	}
	return batch
}

// EditReservation lets the owner move or resize a reservation. Status, note
// and creation time are kept.
func (s *ReservationService) EditReservation(ctx context.Context, actor *models.User, id string, version int64, patch models.ReservationPatch) (*models.Reservation, error) {
	current, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || current.UserID != actor.ID {
		return nil, domain.ErrForbidden
	}
	if current.IsCanceled() {
		return nil, domain.ErrReservationCanceled
	}
	if patch.Empty() {
		return current, nil
	}
	if patch.Date != nil {
		if err := s.ValidateBookingDate(*patch.Date); err != nil {
			return nil, err
		}
	}
	if err := s.allowWrite(ctx, actor.ID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateReservation(ctx, id, version, patch)
	if err != nil {
		if rej, ok := booking.AsRejection(err); ok {
			metrics.IncRejection(string(rej.Kind))
		}
		return nil, err
	}

	s.publishEvent(events.EventReservationUpdated, updated, actor.ID)
	s.enqueueSync(ctx, updated)
	return updated, nil
}

func (s *ReservationService) ConfirmReservation(ctx context.Context, actor *models.User, id string, version int64) (*models.Reservation, error) {
	return s.changeStatus(ctx, actor, id, version, models.StatusConfirmed, "", events.EventReservationConfirmed)
}

// CancelReservation cancels with reason; a blank reason gets the default note.
func (s *ReservationService) CancelReservation(ctx context.Context, actor *models.User, id string, version int64, reason string) (*models.Reservation, error) {
	note := strings.TrimSpace(reason)
	if note == "" {
		note = s.cfg.DefaultCancelNote
	}
	return s.changeStatus(ctx, actor, id, version, models.StatusCanceled, note, events.EventReservationCanceled)
}

func (s *ReservationService) changeStatus(ctx context.Context, actor *models.User, id string, version int64, status models.Status, note, eventType string) (*models.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	updated, err := s.repo.UpdateReservationStatus(ctx, id, version, status, note)
	if err != nil {
		return nil, err
	}

	metrics.IncStatusChange(string(status))
	s.publishEvent(eventType, updated, actor.ID)
	s.enqueueSync(ctx, updated)
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, updated)
	}

	s.logger.Info().Str("reservation_id", id).Str("status", string(status)).Str("admin_id", actor.ID).Msg("reservation status changed")
	return updated, nil
}

// DeleteReservation removes a reservation; allowed for its owner and admins.
func (s *ReservationService) DeleteReservation(ctx context.Context, actor *models.User, id string) error {
	current, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil || (current.UserID != actor.ID && !actor.IsAdmin()) {
		return domain.ErrForbidden
	}
	if err := s.repo.DeleteReservation(ctx, id); err != nil {
		return err
	}

	s.publishEvent(events.EventReservationDeleted, current, actor.ID)
	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueDelete(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("reservation_id", id).Msg("sheets enqueue error")
		}
	}
	return nil
}

// ListReservations returns reservations dated from onward: all of them for
// admins, the actor's own otherwise.
func (s *ReservationService) ListReservations(ctx context.Context, actor *models.User, from time.Time) ([]*models.Reservation, error) {
	if actor == nil {
		return nil, domain.ErrForbidden
	}
	if actor.IsAdmin() {
		return s.repo.ListReservationsFrom(ctx, from)
	}
	return s.repo.ListUserReservations(ctx, actor.ID, from)
}

// ListBetween returns every reservation in [from, to]. Admin only.
func (s *ReservationService) ListBetween(ctx context.Context, actor *models.User, from, to time.Time) ([]*models.Reservation, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if to.Before(from) {
		return nil, domain.ErrInvalidInput
	}
	return s.repo.ListReservationsBetween(ctx, from, to)
}

type Summary struct {
	Total int                 `json:"total"`
	Next  *models.Reservation `json:"next,omitempty"`
}

// Summary counts the actor's reservations and finds the next one that is not
// canceled and has not ended yet.
func (s *ReservationService) Summary(ctx context.Context, actor *models.User) (*Summary, error) {
	if actor == nil {
		return nil, domain.ErrForbidden
	}
	all, err := s.repo.ListUserReservations(ctx, actor.ID, time.Time{})
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.location)
	today := s.today()
	clock := models.Clock(now.Hour()*60 + now.Minute())

	summary := &Summary{Total: len(all)}
	// list is ordered by date and start time, first match wins
	for _, r := range all {
		if r.IsCanceled() || r.Date.Before(today) {
			continue
		}
		if r.Date.Equal(today) && r.EndTime <= clock {
			continue
		}
		summary.Next = r
		break
	}
	return summary, nil
}

// Occupancy reports, per resource, how much is booked over an interval.
func (s *ReservationService) Occupancy(ctx context.Context, date time.Time, start, end models.Clock) ([]models.Occupancy, error) {
	if start >= end {
		return nil, domain.ErrInvalidInput
	}
	all := s.validator.Catalog().All()
	ids := make([]models.ResourceType, 0, len(all))
	for _, res := range all {
		ids = append(ids, res.ID)
	}
	existing, err := s.repo.ListActiveReservations(ctx, date, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Occupancy, 0, len(all))
	for _, res := range all {
		c := booking.Candidate{Resource: res.ID, Date: date, StartTime: start, EndTime: end}
		var booked int64
		for _, r := range booking.Conflicts(c, existing, "") {
			if res.IsPooled() {
				booked += r.QuantityOrZero()
			} else {
				booked = 1
			}
		}
		available := res.Capacity - booked
		if available < 0 {
			available = 0
		}
		out = append(out, models.Occupancy{
			Resource:  res.ID,
			Date:      models.DateKey(date),
			Booked:    booked,
			Available: available,
		})
	}
	return out, nil
}

func (s *ReservationService) allowWrite(ctx context.Context, userID string) error {
	if s.drafts == nil {
		return nil
	}
	allowed, err := s.drafts.AllowWrite(ctx, userID)
	if err != nil {
		// limiter outage must not block bookings
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *ReservationService) publishEvent(eventType string, r *models.Reservation, actorID string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewReservationPayload(r, actorID)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *ReservationService) enqueueSync(ctx context.Context, r *models.Reservation) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, SyncUpsert, r); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("sheets enqueue error")
	}
}

// IsClientError reports whether err is caused by the request rather than by
// the system.
func IsClientError(err error) bool {
	if _, ok := booking.AsRejection(err); ok {
		return true
	}
	for _, target := range []error{
		domain.ErrNotFound, domain.ErrForbidden, domain.ErrConcurrentModification,
		domain.ErrInvalidTransition, domain.ErrReservationCanceled, domain.ErrPastDate,
		domain.ErrDateTooFar, domain.ErrRateLimited, domain.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
