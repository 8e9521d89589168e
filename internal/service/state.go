package service

import (
	"context"
	"fmt"
	"time"

	"agendamento/internal/config"
	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/rs/zerolog"
)

// DraftService keeps unfinished booking forms and meters reservation writes.
type DraftService struct {
	draftRepo   domain.DraftRepository
	writeLimit  int
	writeWindow time.Duration
	logger      *zerolog.Logger
}

func NewDraftService(draftRepo domain.DraftRepository, cfg config.BookingConfig, logger *zerolog.Logger) *DraftService {
	limit := cfg.RateLimitWrites
	if limit <= 0 {
		limit = models.RateLimitWrites
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = models.RateLimitWindow
	}
	return &DraftService{
		draftRepo:   draftRepo,
		writeLimit:  limit,
		writeWindow: time.Duration(window) * time.Second,
		logger:      logger,
	}
}

func (s *DraftService) GetDraft(ctx context.Context, userID string) (*models.Draft, error) {
	draft, err := s.draftRepo.GetDraft(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to get draft")
		return nil, err
	}
	return draft, nil
}

// SaveDraft stores the form as entered. Only the resource ids are checked;
// the rest is validated when the booking is submitted.
func (s *DraftService) SaveDraft(ctx context.Context, draft *models.Draft) error {
	if draft == nil || draft.UserID == "" {
		return fmt.Errorf("%w: draft without user", domain.ErrInvalidInput)
	}
	for _, id := range draft.Resources {
		if !id.Valid() {
			return fmt.Errorf("%w: %w", domain.ErrInvalidInput, models.ErrUnknownResource)
		}
	}
	draft.UpdatedAt = time.Now().UTC()
	return s.draftRepo.SetDraft(ctx, draft)
}

func (s *DraftService) ClearDraft(ctx context.Context, userID string) error {
	return s.draftRepo.ClearDraft(ctx, userID)
}

// AllowWrite reports whether the user is still under the write limit.
func (s *DraftService) AllowWrite(ctx context.Context, userID string) (bool, error) {
	return s.draftRepo.CheckRateLimit(ctx, "writes:"+userID, s.writeLimit, s.writeWindow)
}
