package reconcile

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"telecare/internal/database"
	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/models"
	"telecare/internal/refunds"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

type recorder struct {
	published []events.AppointmentsCancelled
}

func (r *recorder) PublishJSON(_ context.Context, eventType string, payload any) error {
	if eventType == events.TypeAppointmentsCancelled {
		r.published = append(r.published, payload.(events.AppointmentsCancelled))
	}
	return nil
}

func setup(t *testing.T) (*database.DB, *Reconciler, *recorder) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "reconcile.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := domain.ClockFunc(func() time.Time { return now })
	rec := &recorder{}
	r := NewReconciler(db, refunds.NewCompensator(db, clock, logger), rec, clock, logger)
	return db, r, rec
}

func insert(t *testing.T, db *database.DB, doctorID, userID string, start time.Time) models.Appointment {
	t.Helper()
	a := &models.Appointment{
		DoctorID: doctorID, UserID: userID, SessionID: "s1",
		Date:  start.Format(models.DateLayout),
		Start: start, End: start.Add(20 * time.Minute), DurationMinutes: 20, Fee: 400,
		AppointmentStatus: models.StatusBooked, PaymentStatus: models.PaymentPaid,
	}
	require.NoError(t, db.InsertAppointment(context.Background(), a))
	return *a
}

func TestReconcileDoctor(t *testing.T) {
	db, r, rec := setup(t)
	ctx := context.Background()

	expired := insert(t, db, "d1", "u1", now.Add(-2*time.Hour))
	running := insert(t, db, "d1", "u2", now.Add(-10*time.Minute))
	otherDoctor := insert(t, db, "d2", "u3", now.Add(-2*time.Hour))

	cancelled, err := r.ReconcileDoctor(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, expired.ID, cancelled[0].ID)

	got, err := db.GetAppointment(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.AppointmentStatus)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, refunds.ReasonExpired, got.CancelReason)

	balance, err := db.WalletBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)

	txs, err := db.TransactionsForAppointment(ctx, expired.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "d1", txs[0].DoctorID)
	assert.Equal(t, models.MethodWallet, txs[0].Method)

	for _, id := range []string{running.ID, otherDoctor.ID} {
		got, err := db.GetAppointment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBooked, got.AppointmentStatus)
	}

	require.Len(t, rec.published, 1)
	assert.Equal(t, refunds.ReasonExpired, rec.published[0].Reason)

	// Second run finds nothing and credits nothing.
	cancelled, err = r.ReconcileDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, cancelled)
	balance, err = db.WalletBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
	assert.Len(t, rec.published, 1)
}

func TestReconcileAll(t *testing.T) {
	db, r, _ := setup(t)
	ctx := context.Background()

	insert(t, db, "d1", "u1", now.Add(-3*time.Hour))
	insert(t, db, "d1", "u1", now.Add(-2*time.Hour))
	insert(t, db, "d2", "u2", now.Add(-2*time.Hour))
	insert(t, db, "d3", "u3", now.Add(time.Hour))

	n, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := db.ListExpiredBooked(ctx, "", now)
	require.NoError(t, err)
	assert.Empty(t, left)

	balance, err := db.WalletBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSweeperRespectsLock(t *testing.T) {
	db, r, _ := setup(t)
	ctx := context.Background()
	a := insert(t, db, "d1", "u1", now.Add(-2*time.Hour))

	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set(LockKey, "other-replica"))

	sweeper := NewSweeper(r, rdb, time.Hour, 10*time.Second, zerolog.New(io.Discard))
	assert.False(t, sweeper.RunOnce(ctx))

	got, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, got.AppointmentStatus)

	mr.Del(LockKey)
	assert.True(t, sweeper.RunOnce(ctx))

	got, err = db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.AppointmentStatus)
	assert.False(t, mr.Exists(LockKey), "lock released after sweep")
}

func TestSweeperDoesNotReleaseForeignLock(t *testing.T) {
	_, r, _ := setup(t)
	mr, rdb := newRedis(t)

	sweeper := NewSweeper(r, rdb, time.Hour, 10*time.Second, zerolog.New(io.Discard))
	acquired, err := sweeper.acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	// Lock expired and was taken by another replica.
	require.NoError(t, mr.Set(LockKey, "other-replica"))
	sweeper.release()

	val, err := mr.Get(LockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-replica", val)
}

func TestSweeperStartStop(t *testing.T) {
	db, r, _ := setup(t)
	ctx := context.Background()
	a := insert(t, db, "d1", "u1", now.Add(-2*time.Hour))

	sweeper := NewSweeper(r, nil, time.Hour, time.Second, zerolog.New(io.Discard))

	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := db.GetAppointment(ctx, a.ID)
		return err == nil && got.AppointmentStatus == models.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
