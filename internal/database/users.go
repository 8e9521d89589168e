package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/Masterminds/squirrel"
)

var userColumns = []string{
	"id", "name", "email", "role", "telegram_chat_id", "last_activity", "created_at", "updated_at",
}

// UpsertUser stores the profile from token claims. The linked Telegram chat
// is kept on conflict.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	lastActivity := user.LastActivity
	if lastActivity.IsZero() {
		lastActivity = now
	}

	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Name, user.Email, string(user.Role), nullableChat(user.TelegramChatID), lastActivity, now, now).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                email = excluded.email,
                role = excluded.role,
                last_activity = excluded.last_activity,
                updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build user upsert: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}

	u, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetUserTelegramChat links a Telegram chat for notifications; 0 unlinks.
func (db *DB) SetUserTelegramChat(ctx context.Context, id string, chatID int64) error {
	query, args, err := psql.Update("users").
		Set("telegram_chat_id", nullableChat(chatID)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build user update: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update telegram chat: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (db *DB) ListAdmins(ctx context.Context) ([]*models.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"role": string(models.RoleAdmin)}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build admins query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get admins: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		role string
		chat sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &chat, &u.LastActivity, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.TelegramChatID = chat.Int64
	return &u, nil
}

func nullableChat(chatID int64) interface{} {
	if chatID == 0 {
		return nil
	}
	return chatID
}
