package appointments

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telecare/internal/database"
	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/models"
	"telecare/internal/reconcile"
	"telecare/internal/refunds"
	"telecare/internal/schedule"
	"telecare/internal/slots"
	"telecare/shared/access"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	db      *database.DB
	svc     *Service
	clock   *testClock
	access  *access.Service
	session models.SessionTemplate
	bus     *events.EventBus
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "appointments.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &testClock{now: monday.Add(-24 * time.Hour)}
	bus := events.NewEventBus(logger)
	compensator := refunds.NewCompensator(db, clock, logger)
	guard := access.NewService(db, db, logger)

	session := models.SessionTemplate{
		DoctorID: "d1", DayOfWeek: 1, StartTime: "10:00", EndTime: "12:00",
		DurationMinutes: 20, Fee: 300,
	}
	require.NoError(t, db.CreateSession(ctx, &session))
	require.NoError(t, db.CreditWallet(ctx, "u1", 1000))

	svc := NewService(Deps{
		Appointments: db,
		Users:        db,
		Tx:           db,
		Generator:    slots.NewGenerator(db, db, db, time.UTC),
		Reconciler:   reconcile.NewReconciler(db, compensator, bus, clock, logger),
		Compensator:  compensator,
		Guard:        guard,
		Publisher:    bus,
		Clock:        clock,
	}, logger)

	return &fixture{db: db, svc: svc, clock: clock, access: guard, session: session, bus: bus}
}

func (f *fixture) request(at time.Time) BookRequest {
	return BookRequest{
		DoctorID:  "d1",
		UserID:    "u1",
		SessionID: f.session.ID,
		SlotKey:   at.UnixMilli(),
		Method:    models.MethodWallet,
	}
}

func TestBookWithWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := monday.Add(10*time.Hour + 40*time.Minute)

	a, err := f.svc.Book(ctx, f.request(start))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "2025-03-03", a.Date)
	assert.True(t, a.Start.Equal(start))
	assert.True(t, a.End.Equal(start.Add(20*time.Minute)))
	assert.Equal(t, models.StatusBooked, a.AppointmentStatus)
	assert.Equal(t, models.PaymentPaid, a.PaymentStatus)

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance)

	revenue, err := f.db.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), revenue)

	txs, err := f.db.TransactionsForAppointment(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.PartyUser, txs[0].From)
	assert.Equal(t, models.PartyAdmin, txs[0].To)
	assert.Equal(t, models.PaymentForAppointment, txs[0].PaymentFor)

	schedule, err := f.svc.generator.Generate(ctx, "d1", monday)
	require.NoError(t, err)
	slot, ok := slots.FindSlot(schedule, f.session.ID, start.UnixMilli())
	require.True(t, ok)
	assert.Equal(t, models.SlotBooked, slot.Status)

	_, err = f.svc.Book(ctx, f.request(start))
	assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)
}

func TestBookOnlineSkipsWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := f.request(monday.Add(11 * time.Hour))
	req.UserID = "u2"
	req.Method = models.MethodOnline
	_, err := f.svc.Book(ctx, req)
	require.NoError(t, err)

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestBookInsufficientFundsRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := monday.Add(10 * time.Hour)

	require.NoError(t, f.db.DebitWallet(ctx, "u1", 900))

	_, err := f.svc.Book(ctx, f.request(start))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	page, err := f.svc.ReconcileAndFetch(ctx, "d1", 1, 10, domain.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Appointments)

	revenue, err := f.db.Revenue(ctx)
	require.NoError(t, err)
	assert.Zero(t, revenue)
}

func TestBookRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("past slot", func(t *testing.T) {
		_, err := f.svc.Book(ctx, f.request(monday.AddDate(0, 0, -7).Add(10*time.Hour)))
		assert.ErrorIs(t, err, domain.ErrSlotNotAvailable)
	})

	t.Run("off grid", func(t *testing.T) {
		_, err := f.svc.Book(ctx, f.request(monday.Add(10*time.Hour+5*time.Minute)))
		assert.ErrorIs(t, err, domain.ErrSlotNotAvailable)
	})

	t.Run("blocked day", func(t *testing.T) {
		require.NoError(t, f.db.SetDayBlocked(ctx, "d1", "2025-03-10", true))
		_, err := f.svc.Book(ctx, f.request(monday.AddDate(0, 0, 7).Add(10*time.Hour)))
		assert.ErrorIs(t, err, domain.ErrSlotNotAvailable)
	})

	t.Run("unknown method", func(t *testing.T) {
		req := f.request(monday.Add(10 * time.Hour))
		req.Method = "cash"
		_, err := f.svc.Book(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("blocked patient", func(t *testing.T) {
		require.NoError(t, f.db.BlockUser(ctx, "u1", "no-shows", "admin"))
		_, err := f.svc.Book(ctx, f.request(monday.Add(10*time.Hour)))
		assert.True(t, access.IsAccessDenied(err))
	})
}

func TestCancelAppointment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var notified atomic.Int32
	f.bus.Subscribe(events.TypeAppointmentsCancelled, func(_ context.Context, e events.Event) error {
		var payload events.AppointmentsCancelled
		require.NoError(t, e.Decode(&payload))
		assert.Equal(t, refunds.ReasonCancelledByDoctor, payload.Reason)
		notified.Add(1)
		return nil
	})

	a, err := f.svc.Book(ctx, f.request(monday.Add(10*time.Hour)))
	require.NoError(t, err)

	res := f.svc.CancelAppointment(ctx, a.ID)
	assert.True(t, res.Status)

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	revenue, err := f.db.Revenue(ctx)
	require.NoError(t, err)
	assert.Zero(t, revenue)

	again := f.svc.CancelAppointment(ctx, a.ID)
	assert.False(t, again.Status)
	assert.NotEmpty(t, again.Message)

	missing := f.svc.CancelAppointment(ctx, "nope")
	assert.False(t, missing.Status)
	assert.Equal(t, "Appointment not found", missing.Message)

	assert.Equal(t, int32(1), notified.Load())

	// The freed slot can be booked again.
	_, err = f.svc.Book(ctx, f.request(monday.Add(10*time.Hour)))
	require.NoError(t, err)
}

func TestConcurrentCancelCreditsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, f.request(monday.Add(11*time.Hour+20*time.Minute)))
	require.NoError(t, err)

	const workers = 8
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.svc.CancelAppointment(ctx, a.ID).Status {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	txs, err := f.db.TransactionsForAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestReconcileAndFetch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, offset := range []time.Duration{10 * time.Hour, 10*time.Hour + 20*time.Minute, 11 * time.Hour} {
		_, err := f.svc.Book(ctx, f.request(monday.Add(offset)))
		require.NoError(t, err)
	}

	// 10:00 and 10:20 have ended, 11:00 has not started.
	f.clock.Set(monday.Add(10*time.Hour + 45*time.Minute))

	page, err := f.svc.ReconcileAndFetch(ctx, "d1", 1, 2, domain.AppointmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Appointments, 2)
	assert.Equal(t, models.StatusCancelled, page.Appointments[0].AppointmentStatus)
	assert.Equal(t, refunds.ReasonExpired, page.Appointments[0].CancelReason)
	assert.Equal(t, models.StatusCancelled, page.Appointments[1].AppointmentStatus)

	booked, err := f.svc.ReconcileAndFetch(ctx, "d1", 1, 0, domain.AppointmentFilter{AppointmentStatus: models.StatusBooked})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, booked.Limit)
	require.Len(t, booked.Appointments, 1)
	assert.Equal(t, 1, booked.TotalPages)

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000-300), balance)

	empty, err := f.svc.ReconcileAndFetch(ctx, "d9", 3, 10, domain.AppointmentFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Appointments)
	assert.Zero(t, empty.TotalPages)

	_, err = f.svc.ReconcileAndFetch(ctx, "", 1, 10, domain.AppointmentFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRebookAfterDurationChangeDoesNotOverlap(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	first, err := f.svc.Book(ctx, f.request(monday.Add(10*time.Hour+40*time.Minute)))
	require.NoError(t, err)

	compensator := refunds.NewCompensator(f.db, f.clock, logger)
	cascade := refunds.NewCascade(f.db, compensator, f.clock, time.UTC)
	sched := schedule.NewService(f.db, f.db, cascade, f.bus, time.UTC, logger)

	updated := f.session
	updated.DurationMinutes = 30
	res, err := sched.UpdateSession(ctx, f.session.ID, updated)
	require.NoError(t, err)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, first.ID, res.Cancelled[0].ID)

	second, err := f.svc.Book(ctx, f.request(monday.Add(10*time.Hour+30*time.Minute)))
	require.NoError(t, err)
	assert.True(t, second.End.Equal(monday.Add(11*time.Hour)))

	page, err := f.svc.ReconcileAndFetch(ctx, "d1", 1, MaxPageSize, domain.AppointmentFilter{AppointmentStatus: models.StatusBooked})
	require.NoError(t, err)
	require.Len(t, page.Appointments, 1)
	assert.Equal(t, second.ID, page.Appointments[0].ID)

	balance, err := f.svc.Wallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), balance, "first fee refunded, second charged")
}
