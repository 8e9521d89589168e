package service

import (
	"context"
	"fmt"
	"strings"

	"agendamento/internal/domain"
	"agendamento/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier tells the admin chat about new reservations and the owner
// about status changes. Delivery failures are logged, never returned.
type TelegramNotifier struct {
	bot         domain.TelegramSender
	users       domain.Repository
	catalog     *models.Catalog
	adminChatID int64
	logger      *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, users domain.Repository, catalog *models.Catalog, adminChatID int64, logger *zerolog.Logger) *TelegramNotifier {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	return &TelegramNotifier{
		bot:         bot,
		users:       users,
		catalog:     catalog,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

// ReservationsCreated goes to the admin chat and to every administrator who
// linked a private chat.
func (n *TelegramNotifier) ReservationsCreated(ctx context.Context, owner *models.User, reservations []*models.Reservation) {
	if len(reservations) == 0 {
		return
	}
	recipients := n.adminRecipients(ctx)
	if len(recipients) == 0 {
		return
	}

	name := reservations[0].UserName
	if owner != nil && owner.Name != "" {
		name = owner.Name
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*New reservation request* from %s\n", escape(name))
	for _, r := range reservations {
		sb.WriteString(n.describe(r))
		sb.WriteString("\n")
	}
	for _, chatID := range recipients {
		n.SendMarkdown(chatID, sb.String())
	}
}

func (n *TelegramNotifier) adminRecipients(ctx context.Context) []int64 {
	var out []int64
	seen := make(map[int64]bool)
	add := func(chatID int64) {
		if chatID != 0 && !seen[chatID] {
			seen[chatID] = true
			out = append(out, chatID)
		}
	}

	add(n.adminChatID)
	admins, err := n.users.ListAdmins(ctx)
	if err != nil {
		n.logger.Warn().Err(err).Msg("admin lookup failed")
		return out
	}
	for _, a := range admins {
		add(a.TelegramChatID)
	}
	return out
}

func (n *TelegramNotifier) StatusChanged(ctx context.Context, r *models.Reservation) {
	owner, err := n.users.GetUser(ctx, r.UserID)
	if err != nil {
		n.logger.Warn().Err(err).Str("user_id", r.UserID).Msg("owner lookup failed, notification skipped")
		return
	}
	if owner.TelegramChatID == 0 {
		return
	}

	text := fmt.Sprintf("Your reservation is now *%s*\n%s", r.Status, n.describe(r))
	if r.AdminNote != "" {
		text += "\nNote: " + escape(r.AdminNote)
	}
	n.SendMarkdown(owner.TelegramChatID, text)
}

func (n *TelegramNotifier) describe(r *models.Reservation) string {
	name := string(r.Resource)
	if res, ok := n.catalog.Get(r.Resource); ok {
		name = res.Name
	}
	line := fmt.Sprintf("• %s, %s %s-%s", escape(name), r.DateKey(), r.StartTime, r.EndTime)
	if r.Quantity != nil {
		line += fmt.Sprintf(", %d units", *r.Quantity)
	}
	if r.Room != "" {
		line += ", room " + escape(r.Room)
	}
	return line
}

// SendMarkdown sends text to chatID with Markdown formatting.
func (n *TelegramNotifier) SendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
