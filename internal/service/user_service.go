package service

import (
	"context"
	"fmt"
	"time"

	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// SyncProfile records the identity presented by a token. The stored Telegram
// link is kept.
func (s *UserService) SyncProfile(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("%w: user without id", domain.ErrInvalidInput)
	}
	user.LastActivity = time.Now().UTC()
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to save profile")
		return err
	}
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// LinkTelegram stores the chat the user wants notifications in.
func (s *UserService) LinkTelegram(ctx context.Context, userID string, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("%w: chat id is required", domain.ErrInvalidInput)
	}
	return s.repo.SetUserTelegramChat(ctx, userID, chatID)
}
