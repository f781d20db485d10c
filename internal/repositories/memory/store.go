// Package memory is a process-local implementation of every repository port.
// It backs local runs and the concurrency tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

type usageKey struct {
	windowID    string
	periodStart int64 // unix microseconds
}

func keyOf(windowID string, periodStart time.Time) usageKey {
	return usageKey{windowID: windowID, periodStart: periodStart.UnixMicro()}
}

type state struct {
	accounts     map[string]domain.Account
	windows      map[string]domain.LimitWindow
	usage        map[usageKey]decimal.Decimal
	transactions map[string]domain.Transaction
	reservations map[string][]domain.Reservation
}

func newState() *state {
	return &state{
		accounts:     make(map[string]domain.Account),
		windows:      make(map[string]domain.LimitWindow),
		usage:        make(map[usageKey]decimal.Decimal),
		transactions: make(map[string]domain.Transaction),
		reservations: make(map[string][]domain.Reservation),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.windows {
		c.windows[k] = v
	}
	for k, v := range st.usage {
		c.usage[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.reservations {
		c.reservations[k] = append([]domain.Reservation(nil), v...)
	}
	return c
}

// Store holds all wallet data behind one mutex.
// RunAtomic stages writes on a copy of the state and swaps it in only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// NewRepositoryProvider exposes the store through the repository ports.
func NewRepositoryProvider(store *Store) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		AccountRepo:     store,
		WindowRepo:      store,
		TransactionRepo: store,
		UnitOfWork:      store,
	}
}

var (
	_ portsrepo.AccountRepositoryFacade     = (*Store)(nil)
	_ portsrepo.LimitWindowRepositoryFacade = (*Store)(nil)
	_ portsrepo.TransactionRepositoryFacade = (*Store)(nil)
	_ portsrepo.UnitOfWork                  = (*Store)(nil)
)

// RunAtomic serializes fn against every other atomic unit and every read.
// fn must only use the store it is given.
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, store portsrepo.LedgerStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(ctx, &ledgerStore{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = staged
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Accounts

func (s *Store) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	var (
		acc domain.Account
		ok  bool
	)
	s.read(func(st *state) { acc, ok = st.accounts[accountID] })
	if !ok {
		return nil, apperrors.NewNotFound("account", accountID)
	}
	return &acc, nil
}

func (s *Store) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	out := make(map[string]domain.Account, len(accountIDs))
	s.read(func(st *state) {
		for _, id := range accountIDs {
			if acc, ok := st.accounts[id]; ok {
				out[id] = acc
			}
		}
	})
	return out, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]domain.Account, error) {
	var children []domain.Account
	s.read(func(st *state) {
		for _, acc := range st.accounts {
			if acc.IsActive && acc.Role == domain.RoleChild && acc.ParentID != nil && *acc.ParentID == parentID {
				children = append(children, acc)
			}
		}
	})
	sort.Slice(children, func(i, j int) bool {
		if children[i].Name != children[j].Name {
			return children[i].Name < children[j].Name
		}
		return children[i].AccountID < children[j].AccountID
	})
	return children, nil
}

func (s *Store) SaveAccount(ctx context.Context, account domain.Account) error {
	return s.write(func(st *state) error {
		if _, exists := st.accounts[account.AccountID]; exists {
			return apperrors.New(apperrors.KindConflict, "account %s already exists", account.AccountID)
		}
		st.accounts[account.AccountID] = account
		return nil
	})
}

func (s *Store) SetActive(ctx context.Context, accountID string, active bool, userID string, now time.Time) error {
	return s.write(func(st *state) error {
		acc, ok := st.accounts[accountID]
		if !ok {
			return apperrors.NewNotFound("account", accountID)
		}
		touch := func(a domain.Account) domain.Account {
			a.IsActive = active
			a.LastUpdatedAt = now
			a.LastUpdatedBy = userID
			a.Version++
			return a
		}
		st.accounts[accountID] = touch(acc)
		if acc.Role == domain.RoleParent && !active {
			for id, child := range st.accounts {
				if child.ParentID != nil && *child.ParentID == accountID && child.IsActive {
					st.accounts[id] = touch(child)
				}
			}
		}
		return nil
	})
}

// Windows

func (s *Store) FindWindowByID(ctx context.Context, windowID string) (*domain.LimitWindow, error) {
	var (
		w  domain.LimitWindow
		ok bool
	)
	s.read(func(st *state) { w, ok = st.windows[windowID] })
	if !ok {
		return nil, apperrors.NewNotFound("limit window", windowID)
	}
	return &w, nil
}

func (s *Store) ListWindowsByChild(ctx context.Context, childID string, activeOnly bool) ([]domain.LimitWindow, error) {
	var windows []domain.LimitWindow
	s.read(func(st *state) {
		for _, w := range st.windows {
			if w.ChildID == childID && (!activeOnly || w.IsActive) {
				windows = append(windows, w)
			}
		}
	})
	sortWindows(windows)
	return windows, nil
}

func (s *Store) ListActiveWindows(ctx context.Context) ([]domain.LimitWindow, error) {
	var windows []domain.LimitWindow
	s.read(func(st *state) {
		for _, w := range st.windows {
			if w.IsActive {
				windows = append(windows, w)
			}
		}
	})
	sortWindows(windows)
	return windows, nil
}

func (s *Store) FindConsumed(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	consumed := decimal.Zero
	s.read(func(st *state) {
		if v, ok := st.usage[keyOf(windowID, periodStart)]; ok {
			consumed = v
		}
	})
	return consumed, nil
}

func (s *Store) TotalConsumed(ctx context.Context, windowID string) (decimal.Decimal, error) {
	total := decimal.Zero
	s.read(func(st *state) {
		for k, v := range st.usage {
			if k.windowID == windowID {
				total = total.Add(v)
			}
		}
	})
	return total, nil
}

func (s *Store) SaveWindow(ctx context.Context, window domain.LimitWindow) error {
	return s.write(func(st *state) error {
		if _, exists := st.windows[window.WindowID]; exists {
			return apperrors.New(apperrors.KindConflict, "limit window %s already exists", window.WindowID)
		}
		st.windows[window.WindowID] = window
		return nil
	})
}

func (s *Store) UpdateWindow(ctx context.Context, window domain.LimitWindow) error {
	return s.write(func(st *state) error {
		current, ok := st.windows[window.WindowID]
		if !ok {
			return apperrors.NewNotFound("limit window", window.WindowID)
		}
		if current.Version != window.Version-1 {
			return apperrors.New(apperrors.KindConflict, "limit window %s was modified concurrently", window.WindowID)
		}
		st.windows[window.WindowID] = window
		return nil
	})
}

func (s *Store) DeleteWindow(ctx context.Context, windowID string) error {
	return s.write(func(st *state) error {
		if _, ok := st.windows[windowID]; !ok {
			return apperrors.NewNotFound("limit window", windowID)
		}
		delete(st.windows, windowID)
		for k := range st.usage {
			if k.windowID == windowID {
				delete(st.usage, k)
			}
		}
		return nil
	})
}

// Transactions

func (s *Store) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var (
		txn domain.Transaction
		ok  bool
	)
	s.read(func(st *state) { txn, ok = st.transactions[transactionID] })
	if !ok {
		return nil, apperrors.NewNotFound("transaction", transactionID)
	}
	return &txn, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, limit int, after *portsrepo.TransactionCursor) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	s.read(func(st *state) {
		for _, t := range st.transactions {
			if t.FromAccountID == accountID || t.ToAccountID == accountID {
				txns = append(txns, t)
			}
		}
	})
	sort.Slice(txns, func(i, j int) bool {
		return newer(txns[i].CreatedAt, txns[i].TransactionID, txns[j].CreatedAt, txns[j].TransactionID)
	})

	out := make([]domain.Transaction, 0, limit)
	for _, t := range txns {
		if after != nil && !newer(after.CreatedAt, after.TransactionID, t.CreatedAt, t.TransactionID) {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	s.read(func(st *state) { total = sumReserved(st, windowID, periodStart) })
	return total, nil
}

// ledgerStore is the view of a staged state handed to RunAtomic callbacks.
type ledgerStore struct {
	st *state
}

var _ portsrepo.LedgerStore = (*ledgerStore)(nil)

func (l *ledgerStore) FindTransactionForUpdate(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, ok := l.st.transactions[transactionID]
	if !ok {
		return nil, apperrors.NewNotFound("transaction", transactionID)
	}
	return &txn, nil
}

func (l *ledgerStore) SaveTransaction(ctx context.Context, txn domain.Transaction) error {
	if _, exists := l.st.transactions[txn.TransactionID]; exists {
		return apperrors.New(apperrors.KindConflict, "transaction %s already exists", txn.TransactionID)
	}
	l.st.transactions[txn.TransactionID] = txn
	return nil
}

func (l *ledgerStore) UpdateTransactionStatus(ctx context.Context, txn domain.Transaction) error {
	if _, ok := l.st.transactions[txn.TransactionID]; !ok {
		return apperrors.NewNotFound("transaction", txn.TransactionID)
	}
	l.st.transactions[txn.TransactionID] = txn
	return nil
}

func (l *ledgerStore) IncrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	window, ok := l.st.windows[windowID]
	if !ok || !window.IsActive {
		return apperrors.New(apperrors.KindConflict, "window %s is no longer active", windowID)
	}
	k := keyOf(windowID, periodStart)
	next := l.st.usage[k].Add(amount)
	if next.GreaterThan(window.Ceiling) {
		return apperrors.New(apperrors.KindConflict, "window %s has no capacity left for %s", windowID, amount)
	}
	l.st.usage[k] = next
	return nil
}

// LockUsage needs no row lock here; the unit already holds the store mutex.
func (l *ledgerStore) LockUsage(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	if _, ok := l.st.windows[windowID]; !ok {
		return decimal.Zero, apperrors.NewNotFound("limit window", windowID)
	}
	k := keyOf(windowID, periodStart)
	consumed, ok := l.st.usage[k]
	if !ok {
		consumed = decimal.Zero
		l.st.usage[k] = consumed
	}
	return consumed, nil
}

func (l *ledgerStore) DecrementConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	k := keyOf(windowID, periodStart)
	next := l.st.usage[k].Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	l.st.usage[k] = next
	return nil
}

func (l *ledgerStore) SetConsumed(ctx context.Context, windowID string, periodStart time.Time, amount decimal.Decimal) error {
	l.st.usage[keyOf(windowID, periodStart)] = amount
	return nil
}

func (l *ledgerStore) SaveReservations(ctx context.Context, reservations []domain.Reservation) error {
	for _, r := range reservations {
		l.st.reservations[r.TransactionID] = append(l.st.reservations[r.TransactionID], r)
	}
	return nil
}

func (l *ledgerStore) FindReservations(ctx context.Context, transactionID string) ([]domain.Reservation, error) {
	return append([]domain.Reservation(nil), l.st.reservations[transactionID]...), nil
}

func (l *ledgerStore) SumReserved(ctx context.Context, windowID string, periodStart time.Time) (decimal.Decimal, error) {
	return sumReserved(l.st, windowID, periodStart), nil
}

func (l *ledgerStore) SumRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range l.st.transactions {
		if t.Kind == domain.KindRefund && t.RefundOf != nil && *t.RefundOf == paymentID && countsTowardSpend(t.Status) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func sumReserved(st *state, windowID string, periodStart time.Time) decimal.Decimal {
	total := decimal.Zero
	for txnID, reservations := range st.reservations {
		txn, ok := st.transactions[txnID]
		if !ok || !countsTowardSpend(txn.Status) {
			continue
		}
		for _, r := range reservations {
			if r.WindowID == windowID && r.PeriodStart.Equal(periodStart) {
				total = total.Add(r.Amount)
			}
		}
	}
	return total
}

func countsTowardSpend(status domain.TransactionStatus) bool {
	return status == domain.StatusPending || status == domain.StatusCompleted
}

// newer orders transactions by creation time descending, then id descending.
func newer(aCreated time.Time, aID string, bCreated time.Time, bID string) bool {
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return aID > bID
}

func sortWindows(windows []domain.LimitWindow) {
	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].Start.Equal(windows[j].Start) {
			return windows[i].Start.Before(windows[j].Start)
		}
		return windows[i].WindowID < windows[j].WindowID
	})
}
