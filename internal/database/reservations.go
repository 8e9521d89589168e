package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"agendamento/internal/booking"
	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/Masterminds/squirrel"
)

var reservationColumns = []string{
	"id", "user_id", "user_name", "resource_id", "booking_date", "start_time", "end_time",
	"quantity", "room", "status", "admin_note", "created_at", "updated_at", "version",
}

func selectReservations() squirrel.SelectBuilder {
	return psql.Select(reservationColumns...).From("reservations")
}

func ordered(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	return q.OrderBy("booking_date ASC", "start_time ASC", "created_at ASC")
}

func (db *DB) ListReservations(ctx context.Context) ([]*models.Reservation, error) {
	return queryReservations(ctx, db, ordered(selectReservations()))
}

// ListReservationsFrom returns reservations dated on or after from.
func (db *DB) ListReservationsFrom(ctx context.Context, from time.Time) ([]*models.Reservation, error) {
	q := selectReservations().Where(squirrel.GtOrEq{"booking_date": models.DateKey(from)})
	return queryReservations(ctx, db, ordered(q))
}

func (db *DB) ListReservationsBetween(ctx context.Context, from, to time.Time) ([]*models.Reservation, error) {
	q := selectReservations().Where(squirrel.And{
		squirrel.GtOrEq{"booking_date": models.DateKey(from)},
		squirrel.LtOrEq{"booking_date": models.DateKey(to)},
	})
	return queryReservations(ctx, db, ordered(q))
}

func (db *DB) ListUserReservations(ctx context.Context, userID string, from time.Time) ([]*models.Reservation, error) {
	q := selectReservations().Where(squirrel.And{
		squirrel.Eq{"user_id": userID},
		squirrel.GtOrEq{"booking_date": models.DateKey(from)},
	})
	return queryReservations(ctx, db, ordered(q))
}

// ListActiveReservations returns the non-canceled reservations of the given
// resources on one date. An empty resource list means all resources.
func (db *DB) ListActiveReservations(ctx context.Context, date time.Time, resources []models.ResourceType) ([]*models.Reservation, error) {
	return activeReservations(ctx, db, []string{models.DateKey(date)}, resources)
}

func activeReservations(ctx context.Context, ex execer, dates []string, resources []models.ResourceType) ([]*models.Reservation, error) {
	where := squirrel.And{
		squirrel.Eq{"booking_date": dates},
		squirrel.NotEq{"status": string(models.StatusCanceled)},
	}
	if len(resources) > 0 {
		ids := make([]string, len(resources))
		for i, r := range resources {
			ids[i] = string(r)
		}
		where = append(where, squirrel.Eq{"resource_id": ids})
	}
	return queryReservations(ctx, ex, ordered(selectReservations().Where(where)))
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

func getReservation(ctx context.Context, ex execer, id string) (*models.Reservation, error) {
	query, args, err := selectReservations().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build reservation query: %w", err)
	}

	r, err := scanReservation(ex.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// CreateReservations validates the batch against committed state and inserts
// all of it or nothing. A refused batch returns the *booking.Rejection.
func (db *DB) CreateReservations(ctx context.Context, batch []*models.Reservation) error {
	if len(batch) == 0 {
		return &booking.Rejection{Kind: booking.KindNoResourceSelected, Message: "Select at least one resource."}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		dateSet := make(map[string]bool)
		var dates []string
		var resources []models.ResourceType
		candidates := make([]booking.Candidate, 0, len(batch))
		for _, r := range batch {
			if key := r.DateKey(); !dateSet[key] {
				dateSet[key] = true
				dates = append(dates, key)
			}
			resources = append(resources, r.Resource)
			candidates = append(candidates, candidateOf(r))
		}

		existing, err := activeReservations(ctx, tx, dates, resources)
		if err != nil {
			return err
		}

		if rej := db.validator.ValidateBatch(candidates, existing, ""); rej != nil {
			return rej
		}
		// Members of the batch must not collide with each other either.
		for i := 1; i < len(batch); i++ {
			existing = append(existing, batch[i-1])
			if rej := db.validator.Validate(candidates[i], existing, ""); rej != nil {
				return rej
			}
		}

		now := time.Now().UTC()
		for _, r := range batch {
			r.CreatedAt = now
			r.UpdatedAt = now
			r.Version = 1
			if err := insertReservation(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertReservation(ctx context.Context, ex execer, r *models.Reservation) error {
	query, args, err := psql.Insert("reservations").
		Columns(reservationColumns...).
		Values(
			r.ID, r.UserID, r.UserName, string(r.Resource), r.DateKey(),
			r.StartTime.String(), r.EndTime.String(), nullableInt(r.Quantity), r.Room,
			string(r.Status), r.AdminNote, r.CreatedAt, r.UpdatedAt, r.Version,
		).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

// UpdateReservation applies an owner edit. The schedule is re-validated
// inside the transaction, ignoring the reservation itself.
func (db *DB) UpdateReservation(ctx context.Context, id string, version int64, patch models.ReservationPatch) (*models.Reservation, error) {
	var updated *models.Reservation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Version != version {
			return domain.ErrConcurrentModification
		}
		if current.IsCanceled() {
			return domain.ErrReservationCanceled
		}

		next := patch.Apply(*current)
		res, ok := db.validator.Catalog().Get(next.Resource)
		if ok {
			normalize(res, &next)
		}

		existing, err := activeReservations(ctx, tx, []string{next.DateKey()}, []models.ResourceType{next.Resource})
		if err != nil {
			return err
		}
		if rej := db.validator.Validate(candidateOf(&next), existing, id); rej != nil {
			return rej
		}

		next.UpdatedAt = time.Now().UTC()
		query, args, err := psql.Update("reservations").
			Set("booking_date", next.DateKey()).
			Set("start_time", next.StartTime.String()).
			Set("end_time", next.EndTime.String()).
			Set("quantity", nullableInt(next.Quantity)).
			Set("room", next.Room).
			Set("updated_at", next.UpdatedAt).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"id": id, "version": version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build update: %w", err)
		}
		if err := execOne(ctx, tx, query, args); err != nil {
			return err
		}
		next.Version = version + 1
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateReservationStatus moves a reservation along the status machine.
func (db *DB) UpdateReservationStatus(ctx context.Context, id string, version int64, status models.Status, note string) (*models.Reservation, error) {
	var updated *models.Reservation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Version != version {
			return domain.ErrConcurrentModification
		}
		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
		}

		now := time.Now().UTC()
		query, args, err := psql.Update("reservations").
			Set("status", string(status)).
			Set("admin_note", note).
			Set("updated_at", now).
			Set("version", squirrel.Expr("version + 1")).
			Where(squirrel.Eq{"id": id, "version": version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build status update: %w", err)
		}
		if err := execOne(ctx, tx, query, args); err != nil {
			return err
		}

		current.Status = status
		current.AdminNote = note
		current.UpdatedAt = now
		current.Version = version + 1
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteReservation fails with domain.ErrNotFound when no row matched.
func (db *DB) DeleteReservation(ctx context.Context, id string) error {
	query, args, err := psql.Delete("reservations").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func execOne(ctx context.Context, ex execer, query string, args []interface{}) error {
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// normalize drops fields the resource does not use.
func normalize(res models.Resource, r *models.Reservation) {
	if !res.IsPooled() {
		r.Quantity = nil
	}
	if !res.RequiresRoom {
		r.Room = ""
	}
}

func candidateOf(r *models.Reservation) booking.Candidate {
	return booking.Candidate{
		Resource:  r.Resource,
		Date:      r.Date,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Quantity:  r.Quantity,
		Room:      r.Room,
	}
}

func queryReservations(ctx context.Context, ex execer, q squirrel.SelectBuilder) ([]*models.Reservation, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build reservations query: %w", err)
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                         models.Reservation
		resource, status          string
		dateStr, startStr, endStr string
		quantity                  sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.UserName, &resource, &dateStr, &startStr, &endStr,
		&quantity, &r.Room, &status, &r.AdminNote, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.Resource = models.ResourceType(resource)
	r.Status = models.Status(status)
	if quantity.Valid {
		r.Quantity = models.Int64Ptr(quantity.Int64)
	}
	if r.Date, err = models.ParseDate(dateStr); err != nil {
		return nil, err
	}
	if r.StartTime, err = models.ParseClock(startStr); err != nil {
		return nil, err
	}
	if r.EndTime, err = models.ParseClock(endStr); err != nil {
		return nil, err
	}
	return &r, nil
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
