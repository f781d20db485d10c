package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/SscSPs/allowance_wallet/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// barrier holds callers until n of them arrived or the timeout passed.
type barrier struct {
	n       int
	timeout time.Duration

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrier(n int, timeout time.Duration) *barrier {
	return &barrier{n: n, timeout: timeout, release: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(b.timeout):
	}
}

type gatedAccounts struct {
	portsrepo.AccountRepositoryFacade
	gate  *barrier
	stall bool
}

func (r *gatedAccounts) FindAccountsByIDs(ctx context.Context, ids []string) (map[string]domain.Account, error) {
	if r.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.gate != nil {
		r.gate.wait()
	}
	return r.AccountRepositoryFacade.FindAccountsByIDs(ctx, ids)
}

type gatedWindows struct {
	portsrepo.LimitWindowRepositoryFacade
	gate *barrier
}

func (r *gatedWindows) ListWindowsByChild(ctx context.Context, childID string, activeOnly bool) ([]domain.LimitWindow, error) {
	windows, err := r.LimitWindowRepositoryFacade.ListWindowsByChild(ctx, childID, activeOnly)
	if r.gate != nil {
		r.gate.wait()
	}
	return windows, err
}

type stallingUnit struct {
	portsrepo.UnitOfWork
	stall bool
}

func (u *stallingUnit) RunAtomic(ctx context.Context, fn func(ctx context.Context, store portsrepo.LedgerStore) error) error {
	if !u.stall {
		return u.UnitOfWork.RunAtomic(ctx, fn)
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingUnit struct {
	portsrepo.UnitOfWork
	mu    sync.Mutex
	calls []string
}

func (u *recordingUnit) RunAtomic(ctx context.Context, fn func(ctx context.Context, store portsrepo.LedgerStore) error) error {
	return u.UnitOfWork.RunAtomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		return fn(ctx, &recordingStore{LedgerStore: store, unit: u})
	})
}

func (u *recordingUnit) record(call string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, call)
}

type recordingStore struct {
	portsrepo.LedgerStore
	unit *recordingUnit
}

func (s *recordingStore) LockUsage(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	s.unit.record("LockUsage")
	return s.LedgerStore.LockUsage(ctx, windowID, periodStart)
}

func (s *recordingStore) SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	s.unit.record("SumReserved")
	return s.LedgerStore.SumReserved(ctx, windowID, periodStart)
}

func (s *recordingStore) SetConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	s.unit.record("SetConsumed")
	return s.LedgerStore.SetConsumed(ctx, windowID, periodStart, amount)
}

// shiftingPolicy runs shift once, right after the first resolution it serves.
type shiftingPolicy struct {
	portssvc.LimitPolicyReaderSvc
	shift func()
	once  sync.Once
}

func (p *shiftingPolicy) ApplicableWindows(ctx context.Context, childID string, at time.Time, category string) ([]domain.WindowUsage, error) {
	usages, err := p.LimitPolicyReaderSvc.ApplicableWindows(ctx, childID, at, category)
	p.once.Do(p.shift)
	return usages, err
}

func TestReconcile_LocksUsageBeforeSumming(t *testing.T) {
	unit := &recordingUnit{}
	w := newWrappedWallet(t, middayMarch, "UTC", func(r portsrepo.RepositoryProvider) portsrepo.RepositoryProvider {
		unit.UnitOfWork = r.UnitOfWork
		r.UnitOfWork = unit
		return r
	})
	window := createDaily(t, w, "50.00", "")
	_, err := w.pay("12.00", "")
	require.NoError(t, err)

	unit.mu.Lock()
	unit.calls = nil
	unit.mu.Unlock()

	usage, err := w.svc.Ledger.Reconcile(context.Background(), ptrActor(actorOf(w.parent)), window.WindowID, middayMarch)

	require.NoError(t, err)
	assert.True(t, dec("12").Equal(usage.Consumed))
	assert.Equal(t, []string{"LockUsage", "SumReserved", "SetConsumed"}, unit.calls)
}

func TestAttemptPayment_ReservesAgainstStoredCeiling(t *testing.T) {
	tests := []struct {
		name   string
		change func(*domain.LimitWindow)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "ceiling lowered",
			change: func(lw *domain.LimitWindow) { lw.Ceiling = dec("10") },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)
			},
		},
		{
			name:   "window deactivated",
			change: func(lw *domain.LimitWindow) { lw.IsActive = false },
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ReasonNoLimitConfigured, apperrors.ReasonOf(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWallet(t, middayMarch, "UTC")
			ctx := context.Background()
			window := createDaily(t, w, "50.00", "")

			policy := &shiftingPolicy{
				LimitPolicyReaderSvc: w.svc.LimitPolicy,
				shift: func() {
					changed := *window
					tt.change(&changed)
					changed.Version++
					require.NoError(t, w.store.UpdateWindow(ctx, changed))
				},
			}
			enforcement := services.NewEnforcementService(memory.NewRepositoryProvider(w.store), policy, w.svc.Ledger,
				services.WithEnforcementClock(w.clock),
				services.WithRetryInterval(time.Millisecond),
			)

			_, err := enforcement.AttemptPayment(ctx, actorOf(w.child), domain.PaymentRequest{
				ChildID:    w.child.AccountID,
				MerchantID: w.merchant.AccountID,
				Amount:     dec("30.00"),
			})

			require.Error(t, err)
			tt.check(t, err)
			assert.True(t, w.consumed(t, window.WindowID, middayMarch).IsZero())
		})
	}
}

func TestSubmit_ConcurrentRefundsNeverExceedPayment(t *testing.T) {
	accounts := &gatedAccounts{}
	w := newWrappedWallet(t, middayMarch, "UTC", func(r portsrepo.RepositoryProvider) portsrepo.RepositoryProvider {
		accounts.AccountRepositoryFacade = r.AccountRepo
		r.AccountRepo = accounts
		return r
	})
	ctx := context.Background()
	createDaily(t, w, "100.00", "")
	payment, err := w.pay("30.00", "")
	require.NoError(t, err)
	_, err = w.svc.Ledger.Confirm(ctx, ptrActor(actorOf(w.merchant)), payment.TransactionID, "settle-1")
	require.NoError(t, err)

	accounts.gate = newBarrier(2, time.Second)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.svc.Enforcement.Submit(ctx, actorOf(w.merchant), domain.MovementRequest{
				FromAccountID: w.merchant.AccountID,
				ToAccountID:   w.child.AccountID,
				Kind:          domain.KindRefund,
				Amount:        dec("30.00"),
				RefundOf:      &payment.TransactionID,
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.Equal(t, apperrors.ReasonRefundExceedsOriginal, apperrors.ReasonOf(err))
	}
	assert.Equal(t, 1, accepted)
}

func TestCreateWindow_ConcurrentOverlapRejected(t *testing.T) {
	windows := &gatedWindows{}
	w := newWrappedWallet(t, middayMarch, "UTC", func(r portsrepo.RepositoryProvider) portsrepo.RepositoryProvider {
		windows.LimitWindowRepositoryFacade = r.WindowRepo
		r.WindowRepo = windows
		return r
	})
	ctx := context.Background()

	windows.gate = newBarrier(2, 100*time.Millisecond)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.svc.LimitPolicy.CreateWindow(ctx, actorOf(w.parent), w.child.AccountID, dto.CreateWindowRequest{
				Kind:    domain.WindowDaily,
				Ceiling: dec("50"),
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrOverlap)
	}
	assert.Equal(t, 1, created)

	active, err := w.store.ListWindowsByChild(ctx, w.child.AccountID, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLedger_StalledPersistenceTimesOut(t *testing.T) {
	unit := &stallingUnit{}
	w := newWrappedWallet(t, middayMarch, "UTC", func(r portsrepo.RepositoryProvider) portsrepo.RepositoryProvider {
		unit.UnitOfWork = r.UnitOfWork
		r.UnitOfWork = unit
		return r
	}, func(c *config.Config) { c.PersistenceTimeout = 50 * time.Millisecond })
	ctx := context.Background()
	createDaily(t, w, "50.00", "")
	payment, err := w.pay("10.00", "")
	require.NoError(t, err)

	unit.stall = true
	started := time.Now()

	_, err = w.svc.Ledger.Confirm(ctx, ptrActor(actorOf(w.merchant)), payment.TransactionID, "settle-1")
	assert.Equal(t, apperrors.KindPersistenceTimeout, apperrors.KindOf(err))

	_, err = w.svc.Ledger.Cancel(ctx, ptrActor(actorOf(w.child)), payment.TransactionID, "changed my mind")
	assert.Equal(t, apperrors.KindPersistenceTimeout, apperrors.KindOf(err))

	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestSubmit_StalledAccountLookupTimesOut(t *testing.T) {
	accounts := &gatedAccounts{}
	w := newWrappedWallet(t, middayMarch, "UTC", func(r portsrepo.RepositoryProvider) portsrepo.RepositoryProvider {
		accounts.AccountRepositoryFacade = r.AccountRepo
		r.AccountRepo = accounts
		return r
	}, func(c *config.Config) { c.PersistenceTimeout = 50 * time.Millisecond })
	accounts.stall = true

	_, err := w.svc.Enforcement.Submit(context.Background(), actorOf(w.parent), domain.MovementRequest{
		FromAccountID: w.parent.AccountID,
		ToAccountID:   w.child.AccountID,
		Kind:          domain.KindAllowance,
		Amount:        dec("5"),
	})

	assert.Equal(t, apperrors.KindPersistenceTimeout, apperrors.KindOf(err))
}

func TestSpentInWindow_CountsOnlyEnforcedReservations(t *testing.T) {
	t.Run("override leaves recurring windows untouched", func(t *testing.T) {
		w := newWallet(t, middayMarch, "UTC", func(c *config.Config) { c.LimitStackingPolicy = config.StackingOverride })
		ctx := context.Background()
		monthly, err := w.svc.LimitPolicy.CreateWindow(ctx, actorOf(w.parent), w.child.AccountID, dto.CreateWindowRequest{
			Kind:    domain.WindowMonthly,
			Ceiling: dec("100"),
		})
		require.NoError(t, err)
		treat, err := w.svc.LimitPolicy.CreateWindow(ctx, actorOf(w.parent), w.child.AccountID, dto.CreateWindowRequest{
			Kind:    domain.WindowDiscretionary,
			Ceiling: dec("40"),
			Date:    "2024-03-05",
		})
		require.NoError(t, err)

		_, err = w.pay("30.00", "")
		require.NoError(t, err)
		assert.True(t, dec("30").Equal(w.consumed(t, treat.WindowID, middayMarch)))

		usage, err := w.svc.Ledger.Reconcile(ctx, ptrActor(actorOf(w.parent)), monthly.WindowID, middayMarch)
		require.NoError(t, err)
		assert.True(t, usage.Consumed.IsZero())
		assert.True(t, w.consumed(t, monthly.WindowID, middayMarch).IsZero())
	})

	t.Run("window created after a payment in its period", func(t *testing.T) {
		w := newWallet(t, middayMarch, "UTC")
		ctx := context.Background()
		weekly, err := w.svc.LimitPolicy.CreateWindow(ctx, actorOf(w.parent), w.child.AccountID, dto.CreateWindowRequest{
			Kind:    domain.WindowWeekly,
			Ceiling: dec("100"),
		})
		require.NoError(t, err)
		_, err = w.pay("10.00", "")
		require.NoError(t, err)

		daily := createDaily(t, w, "20.00", "")
		require.False(t, daily.Start.After(middayMarch))

		spent, err := w.svc.Ledger.SpentInWindow(ctx, domain.WindowUsage{Window: *daily, Period: daily.PeriodAt(middayMarch, time.UTC)})
		require.NoError(t, err)
		assert.True(t, spent.IsZero())

		usage, err := w.svc.Ledger.Reconcile(ctx, ptrActor(actorOf(w.parent)), daily.WindowID, middayMarch)
		require.NoError(t, err)
		assert.True(t, usage.Consumed.IsZero())

		usage, err = w.svc.Ledger.Reconcile(ctx, ptrActor(actorOf(w.parent)), weekly.WindowID, middayMarch)
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(usage.Consumed))
	})
}

func TestAmountsFinerThanLedgerPrecisionRejected(t *testing.T) {
	w := newWallet(t, middayMarch, "UTC")
	ctx := context.Background()

	_, err := w.svc.LimitPolicy.CreateWindow(ctx, actorOf(w.parent), w.child.AccountID, dto.CreateWindowRequest{
		Kind:    domain.WindowDaily,
		Ceiling: dec("50.00001"),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	window := createDaily(t, w, "50.00", "")

	_, err = w.pay("0.12345", "")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = w.svc.Enforcement.Submit(ctx, actorOf(w.parent), domain.MovementRequest{
		FromAccountID: w.parent.AccountID,
		ToAccountID:   w.child.AccountID,
		Kind:          domain.KindAllowance,
		Amount:        dec("1.00001"),
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = w.pay("0.1234", "")
	require.NoError(t, err)
	assert.True(t, dec("0.1234").Equal(w.consumed(t, window.WindowID, middayMarch)))
}
