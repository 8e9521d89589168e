package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agendamento/internal/domain"
	"agendamento/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

func messageTo(chatID int64, contains ...string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		if !ok || msg.ChatID != chatID || msg.ParseMode != models.ParseModeMarkdown {
			return false
		}
		for _, s := range contains {
			if !strings.Contains(msg.Text, s) {
				return false
			}
		}
		return true
	})
}

func TestTelegramNotifier_ReservationsCreated(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	batch := []*models.Reservation{
		stored("r-1", teacher.ID, models.ResourceTablets, "09:10", "10:00", models.Int64Ptr(20), models.StatusPending),
		stored("r-2", teacher.ID, models.ResourceDataShow, "09:10", "10:00", nil, models.StatusPending),
	}
	batch[0].Room = "12"

	t.Run("AdminChatAndLinkedAdmins", func(t *testing.T) {
		bot := new(MockTelegramSender)
		repo := new(MockRepository)
		n := NewTelegramNotifier(bot, repo, nil, 100, &logger)

		repo.On("ListAdmins", ctx).Return([]*models.User{
			{ID: "a-1", Role: models.RoleAdmin, TelegramChatID: 7},
			{ID: "a-2", Role: models.RoleAdmin},
			{ID: "a-3", Role: models.RoleAdmin, TelegramChatID: 100},
		}, nil).Once()
		bot.On("Send", messageTo(100, "Ana", "2024-05-01 09:10-10:00", "20 units", "room 12")).
			Return(tgbotapi.Message{}, nil).Once()
		bot.On("Send", messageTo(7, "Ana")).Return(tgbotapi.Message{}, nil).Once()

		n.ReservationsCreated(ctx, teacher, batch)
		bot.AssertExpectations(t)
		bot.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("NobodyToTell", func(t *testing.T) {
		bot := new(MockTelegramSender)
		repo := new(MockRepository)
		n := NewTelegramNotifier(bot, repo, nil, 0, &logger)

		repo.On("ListAdmins", ctx).Return(nil, errors.New("db down")).Once()
		n.ReservationsCreated(ctx, teacher, batch)
		bot.AssertNotCalled(t, "Send", mock.Anything)
	})
}

func TestTelegramNotifier_StatusChanged(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("LinkedOwner", func(t *testing.T) {
		bot := new(MockTelegramSender)
		repo := new(MockRepository)
		n := NewTelegramNotifier(bot, repo, nil, 100, &logger)

		r := stored("r-1", teacher.ID, models.ResourceDataShow, "09:10", "10:00", nil, models.StatusCanceled)
		r.AdminNote = "Projector in repair"
		repo.On("GetUser", ctx, teacher.ID).Return(&models.User{ID: teacher.ID, TelegramChatID: 42}, nil).Once()
		bot.On("Send", messageTo(42, "CANCELED", "Projector in repair")).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

		n.StatusChanged(ctx, r)
		bot.AssertExpectations(t)
	})

	t.Run("UnlinkedOwner", func(t *testing.T) {
		bot := new(MockTelegramSender)
		repo := new(MockRepository)
		n := NewTelegramNotifier(bot, repo, nil, 100, &logger)

		repo.On("GetUser", ctx, teacher.ID).Return(&models.User{ID: teacher.ID}, nil).Once()
		n.StatusChanged(ctx, stored("r-1", teacher.ID, models.ResourceDataShow, "09:10", "10:00", nil, models.StatusConfirmed))

		repo.On("GetUser", ctx, other.ID).Return(nil, domain.ErrNotFound).Once()
		n.StatusChanged(ctx, stored("r-2", other.ID, models.ResourceDataShow, "09:10", "10:00", nil, models.StatusConfirmed))

		bot.AssertNotCalled(t, "Send", mock.Anything)
	})
}
