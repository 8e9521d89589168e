package service

import (
	"context"
	"time"

	"agendamento/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock of the domain.Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) reservations(args mock.Arguments) ([]*models.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

func (m *MockRepository) reservation(args mock.Arguments) (*models.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *MockRepository) ListReservations(ctx context.Context) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx))
}

func (m *MockRepository) ListReservationsFrom(ctx context.Context, from time.Time) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, from))
}

func (m *MockRepository) ListReservationsBetween(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, from, to))
}

func (m *MockRepository) ListUserReservations(ctx context.Context, userID string, from time.Time) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, userID, from))
}

func (m *MockRepository) ListActiveReservations(ctx context.Context, date time.Time, resources []models.ResourceType) ([]*models.Reservation, error) {
	return m.reservations(m.Called(ctx, date, resources))
}

func (m *MockRepository) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id))
}

func (m *MockRepository) CreateReservations(ctx context.Context, batch []*models.Reservation) error {
	return m.Called(ctx, batch).Error(0)
}

func (m *MockRepository) UpdateReservation(ctx context.Context, id string, version int64, patch models.ReservationPatch) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id, version, patch))
}

func (m *MockRepository) UpdateReservationStatus(ctx context.Context, id string, version int64, status models.Status, note string) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id, version, status, note))
}

func (m *MockRepository) DeleteReservation(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) UpsertUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) SetUserTelegramChat(ctx context.Context, id string, chatID int64) error {
	return m.Called(ctx, id, chatID).Error(0)
}

func (m *MockRepository) ListAdmins(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type MockDraftRepository struct {
	mock.Mock
}

func (m *MockDraftRepository) GetDraft(ctx context.Context, userID string) (*models.Draft, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draft), args.Error(1)
}

func (m *MockDraftRepository) SetDraft(ctx context.Context, draft *models.Draft) error {
	return m.Called(ctx, draft).Error(0)
}

func (m *MockDraftRepository) ClearDraft(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type MockDraftManager struct {
	mock.Mock
}

func (m *MockDraftManager) GetDraft(ctx context.Context, userID string) (*models.Draft, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draft), args.Error(1)
}

func (m *MockDraftManager) SaveDraft(ctx context.Context, draft *models.Draft) error {
	return m.Called(ctx, draft).Error(0)
}

func (m *MockDraftManager) ClearDraft(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockDraftManager) AllowWrite(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type MockSyncWorker struct {
	mock.Mock
}

func (m *MockSyncWorker) EnqueueTask(ctx context.Context, taskType string, reservation *models.Reservation) error {
	return m.Called(ctx, taskType, reservation).Error(0)
}

func (m *MockSyncWorker) EnqueueDelete(ctx context.Context, reservationID string) error {
	return m.Called(ctx, reservationID).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ReservationsCreated(ctx context.Context, owner *models.User, reservations []*models.Reservation) {
	m.Called(ctx, owner, reservations)
}

func (m *MockNotifier) StatusChanged(ctx context.Context, reservation *models.Reservation) {
	m.Called(ctx, reservation)
}

type MockTelegramSender struct {
	mock.Mock
}

func (m *MockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}
