package database

import (
	"context"
	"fmt"
	"time"

	"agendamento/internal/models"

	"github.com/Masterminds/squirrel"
)

var syncTaskColumns = []string{
	"id", "task_type", "reservation_id", "payload", "status", "retry_count",
	"last_error", "created_at", "processed_at", "next_retry_at",
}

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	now := time.Now().UTC()
	status := task.Status
	if status == "" {
		status = models.SyncStatusPending
	}

	query, args, err := psql.Insert("sync_queue").
		Columns("task_type", "reservation_id", "payload", "status", "retry_count", "last_error", "created_at", "next_retry_at").
		Values(task.TaskType, task.ReservationID, task.Payload, status, task.RetryCount, task.LastError, now, utcPtr(task.NextRetryAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sync task insert: %w", err)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.Status = status
	task.CreatedAt = now

	return nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	q := psql.Select(syncTaskColumns...).
		From("sync_queue").
		Where(squirrel.Eq{"status": []string{models.SyncStatusPending, models.SyncStatusRetry}}).
		Where(squirrel.Or{
			squirrel.Eq{"next_retry_at": nil},
			squirrel.LtOrEq{"next_retry_at": time.Now().UTC()},
		}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit))
	tasks, err := db.querySyncTasks(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	// stored times are compared as text, keep them all in UTC
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	q := psql.Update("sync_queue").
		Set("status", status).
		Set("last_error", errMsg).
		Set("next_retry_at", nextRetryAt).
		Where(squirrel.Eq{"id": id})

	switch status {
	case models.SyncStatusRetry:
		q = q.Set("retry_count", squirrel.Expr("retry_count + 1"))
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		q = q.Set("processed_at", time.Now().UTC())
	}

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sync task update: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	q := psql.Select(syncTaskColumns...).
		From("sync_queue").
		Where(squirrel.Eq{"status": models.SyncStatusFailed}).
		OrderBy("created_at DESC")
	tasks, err := db.querySyncTasks(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sync tasks: %w", err)
	}
	return tasks, nil
}

func (db *DB) querySyncTasks(ctx context.Context, q squirrel.SelectBuilder) ([]models.SyncTask, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.ReservationID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
