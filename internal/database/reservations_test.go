package database

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	"agendamento/internal/booking"
	"agendamento/internal/domain"
	"agendamento/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(25))
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{r}))
	assert.Equal(t, int64(1), r.Version)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, models.ResourceTablets, got.Resource)
	assert.Equal(t, "2024-05-01", got.DateKey())
	assert.Equal(t, "09:10", got.StartTime.String())
	assert.Equal(t, "10:00", got.EndTime.String())
	require.NotNil(t, got.Quantity)
	assert.Equal(t, int64(25), *got.Quantity)
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = db.GetReservation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateReservations_RevalidatesAgainstCommittedState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("Exclusive", func(t *testing.T) {
		first := newReservation(models.ResourceDataShow, testDay, "09:10", "10:00", nil)
		require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{first}))

		second := newReservation(models.ResourceDataShow, testDay, "09:30", "10:10", nil)
		err := db.CreateReservations(ctx, []*models.Reservation{second})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindResourceUnavailable, rej.Kind)

		_, err = db.GetReservation(ctx, second.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Pooled", func(t *testing.T) {
		require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{
			newReservation(models.ResourceTablets, testDay, "13:00", "13:50", models.Int64Ptr(25)),
		}))

		err := db.CreateReservations(ctx, []*models.Reservation{
			newReservation(models.ResourceTablets, testDay, "13:00", "13:50", models.Int64Ptr(20)),
		})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindCapacityExceeded, rej.Kind)
		assert.Equal(t, int64(15), rej.Remaining)

		assert.NoError(t, db.CreateReservations(ctx, []*models.Reservation{
			newReservation(models.ResourceTablets, testDay, "13:00", "13:50", models.Int64Ptr(15)),
		}))
	})

	t.Run("BatchIsAllOrNothing", func(t *testing.T) {
		tablets := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(5))
		dataShow := newReservation(models.ResourceDataShow, testDay, "09:10", "10:00", nil)

		err := db.CreateReservations(ctx, []*models.Reservation{tablets, dataShow})
		require.Error(t, err)

		_, err = db.GetReservation(ctx, tablets.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BatchMembersCollide", func(t *testing.T) {
		other := testDay.AddDate(0, 0, 7)
		a := newReservation(models.ResourceLousaSala17, other, "09:10", "10:00", nil)
		b := newReservation(models.ResourceLousaSala17, other, "09:30", "10:20", nil)
		err := db.CreateReservations(ctx, []*models.Reservation{a, b})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindResourceUnavailable, rej.Kind)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		rej, ok := booking.AsRejection(db.CreateReservations(ctx, nil))
		require.True(t, ok)
		assert.Equal(t, booking.KindNoResourceSelected, rej.Kind)
	})
}

func TestListReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	later := newReservation(models.ResourceLousaSala17, testDay.AddDate(0, 0, 2), "07:30", "08:20", nil)
	early := newReservation(models.ResourceLousaSala17, testDay, "10:20", "11:10", nil)
	earliest := newReservation(models.ResourceDataShow, testDay, "07:30", "08:20", nil)
	earliest.UserID = "teacher-2"
	past := newReservation(models.ResourceDataShow, testDay.AddDate(0, 0, -3), "07:30", "08:20", nil)

	for _, r := range []*models.Reservation{later, early, earliest, past} {
		require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{r}))
	}

	all, err := db.ListReservations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, past.ID, all[0].ID)

	from, err := db.ListReservationsFrom(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, from, 3)
	assert.Equal(t, []string{earliest.ID, early.ID, later.ID}, []string{from[0].ID, from[1].ID, from[2].ID})

	between, err := db.ListReservationsBetween(ctx, testDay, testDay)
	require.NoError(t, err)
	assert.Len(t, between, 2)

	mine, err := db.ListUserReservations(ctx, "teacher-1", testDay)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = db.UpdateReservationStatus(ctx, early.ID, 1, models.StatusCanceled, "no")
	require.NoError(t, err)
	active, err := db.ListActiveReservations(ctx, testDay, []models.ResourceType{models.ResourceLousaSala17})
	require.NoError(t, err)
	assert.Empty(t, active)

	active, err = db.ListActiveReservations(ctx, testDay, nil)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestUpdateReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	own := newReservation(models.ResourceDataShow, testDay, "09:10", "10:00", nil)
	blocker := newReservation(models.ResourceDataShow, testDay, "11:10", "12:00", nil)
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{own}))
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{blocker}))

	t.Run("ExtendWithoutSelfConflict", func(t *testing.T) {
		end := models.MustClock("10:20")
		got, err := db.UpdateReservation(ctx, own.ID, 1, models.ReservationPatch{EndTime: &end})
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, end, got.EndTime)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		end := models.MustClock("10:00")
		_, err := db.UpdateReservation(ctx, own.ID, 1, models.ReservationPatch{EndTime: &end})
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})

	t.Run("ConflictWithOther", func(t *testing.T) {
		end := models.MustClock("11:40")
		_, err := db.UpdateReservation(ctx, own.ID, 2, models.ReservationPatch{EndTime: &end})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindResourceUnavailable, rej.Kind)

		current, err := db.GetReservation(ctx, own.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), current.Version)
	})

	t.Run("EmptyRoomIsApplied", func(t *testing.T) {
		empty := ""
		_, err := db.UpdateReservation(ctx, own.ID, 2, models.ReservationPatch{Room: &empty})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindMissingRoom, rej.Kind)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		start := models.MustClock("12:00")
		_, err := db.UpdateReservation(ctx, own.ID, 2, models.ReservationPatch{StartTime: &start})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, booking.KindInvalidInterval, rej.Kind)
	})

	t.Run("Canceled", func(t *testing.T) {
		_, err := db.UpdateReservationStatus(ctx, blocker.ID, 1, models.StatusCanceled, "x")
		require.NoError(t, err)
		room := "7"
		_, err = db.UpdateReservation(ctx, blocker.ID, 2, models.ReservationPatch{Room: &room})
		assert.ErrorIs(t, err, domain.ErrReservationCanceled)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := db.UpdateReservation(ctx, "missing", 1, models.ReservationPatch{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateReservation_PooledQuantity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	own := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(10))
	other := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(25))
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{own}))
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{other}))

	_, err := db.UpdateReservation(ctx, own.ID, 1, models.ReservationPatch{Quantity: models.Int64Ptr(16)})
	rej, ok := booking.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, int64(15), rej.Remaining)

	_, err = db.UpdateReservation(ctx, own.ID, 1, models.ReservationPatch{Quantity: models.Int64Ptr(0)})
	rej, ok = booking.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, booking.KindInvalidQuantity, rej.Kind)

	got, err := db.UpdateReservation(ctx, own.ID, 1, models.ReservationPatch{Quantity: models.Int64Ptr(15)})
	require.NoError(t, err)
	assert.Equal(t, int64(15), *got.Quantity)
}

func TestOversizedQuantityIsNeverStored(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(25))
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{base}))

	for _, q := range []int64{41, math.MaxInt64} {
		huge := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(q))
		err := db.CreateReservations(ctx, []*models.Reservation{huge})
		rej, ok := booking.AsRejection(err)
		require.True(t, ok, "q=%d", q)
		assert.Equal(t, booking.KindInvalidQuantity, rej.Kind)

		_, err = db.GetReservation(ctx, huge.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = db.UpdateReservation(ctx, base.ID, 1, models.ReservationPatch{Quantity: models.Int64Ptr(q)})
		rej, ok = booking.AsRejection(err)
		require.True(t, ok, "q=%d", q)
		assert.Equal(t, booking.KindInvalidQuantity, rej.Kind)
	}

	// The pool still holds exactly the 15 units left next to the first booking.
	over := newReservation(models.ResourceTablets, testDay, "09:10", "10:00", models.Int64Ptr(16))
	rej, ok := booking.AsRejection(db.CreateReservations(ctx, []*models.Reservation{over}))
	require.True(t, ok)
	assert.Equal(t, booking.KindCapacityExceeded, rej.Kind)
	assert.Equal(t, int64(15), rej.Remaining)

	got, err := db.GetReservation(ctx, base.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), *got.Quantity)
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateReservationStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(models.ResourceLousaSala17, testDay, "09:10", "10:00", nil)
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{r}))

	confirmed, err := db.UpdateReservationStatus(ctx, r.ID, 1, models.StatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	_, err = db.UpdateReservationStatus(ctx, r.ID, 1, models.StatusCanceled, "late")
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	canceled, err := db.UpdateReservationStatus(ctx, r.ID, 2, models.StatusCanceled, "Room closed")
	require.NoError(t, err)
	assert.Equal(t, "Room closed", canceled.AdminNote)

	_, err = db.UpdateReservationStatus(ctx, r.ID, 3, models.StatusConfirmed, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, stored.Status)
	assert.Equal(t, "Room closed", stored.AdminNote)

	// the slot is free again
	assert.NoError(t, db.CreateReservations(ctx, []*models.Reservation{
		newReservation(models.ResourceLousaSala17, testDay, "09:10", "10:00", nil),
	}))
}

func TestDeleteReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	r := newReservation(models.ResourceLousaSala17, testDay, "09:10", "10:00", nil)
	require.NoError(t, db.CreateReservations(ctx, []*models.Reservation{r}))

	require.NoError(t, db.DeleteReservation(ctx, r.ID))
	assert.ErrorIs(t, db.DeleteReservation(ctx, r.ID), domain.ErrNotFound)
}

type brokenResult struct{}

func (brokenResult) LastInsertId() (int64, error) { return 0, nil }
func (brokenResult) RowsAffected() (int64, error) {
	return 0, errors.New("rows affected unsupported")
}

type resultExecer struct {
	execer
	result sql.Result
}

func (e resultExecer) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return e.result, nil
}

func TestExecOne_RowsAffectedError(t *testing.T) {
	ctx := context.Background()

	err := execOne(ctx, resultExecer{result: brokenResult{}}, "UPDATE reservations SET version = 2", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Contains(t, err.Error(), "rows affected unsupported")

	err = execOne(ctx, resultExecer{result: driverResult(0)}, "UPDATE reservations SET version = 2", nil)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	assert.NoError(t, execOne(ctx, resultExecer{result: driverResult(1)}, "UPDATE reservations SET version = 2", nil))
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }
