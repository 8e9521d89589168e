package domain

import (
	"context"
	"time"

	"agendamento/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the booking store. Writes re-validate against committed
// state and return *booking.Rejection unchanged when a candidate is refused.
type Repository interface {
	ListReservations(ctx context.Context) ([]*models.Reservation, error)
	ListReservationsFrom(ctx context.Context, from time.Time) ([]*models.Reservation, error)
	ListReservationsBetween(ctx context.Context, from, to time.Time) ([]*models.Reservation, error)
	ListUserReservations(ctx context.Context, userID string, from time.Time) ([]*models.Reservation, error)
	ListActiveReservations(ctx context.Context, date time.Time, resources []models.ResourceType) ([]*models.Reservation, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	CreateReservations(ctx context.Context, batch []*models.Reservation) error
	UpdateReservation(ctx context.Context, id string, version int64, patch models.ReservationPatch) (*models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, version int64, status models.Status, note string) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error

	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetUserTelegramChat(ctx context.Context, id string, chatID int64) error
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

type DraftRepository interface {
	GetDraft(ctx context.Context, userID string) (*models.Draft, error)
	SetDraft(ctx context.Context, draft *models.Draft) error
	ClearDraft(ctx context.Context, userID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type DraftManager interface {
	GetDraft(ctx context.Context, userID string) (*models.Draft, error)
	SaveDraft(ctx context.Context, draft *models.Draft) error
	ClearDraft(ctx context.Context, userID string) error
	AllowWrite(ctx context.Context, userID string) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier interface {
	ReservationsCreated(ctx context.Context, owner *models.User, reservations []*models.Reservation)
	StatusChanged(ctx context.Context, reservation *models.Reservation)
}

type SheetsWriter interface {
	UpsertReservation(ctx context.Context, reservation *models.Reservation) error
	DeleteReservationRow(ctx context.Context, reservationID string) error
	ReplaceReservations(ctx context.Context, reservations []*models.Reservation) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservation *models.Reservation) error
	EnqueueDelete(ctx context.Context, reservationID string) error
}
