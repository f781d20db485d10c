package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	systemActor     = "system"
)

// ledgerService implements the LedgerSvcFacade interface.
// It is the only writer of window consumption.
type ledgerService struct {
	BaseService
	accountRepo portsrepo.AccountReader
	txnRepo     portsrepo.TransactionReader
	windowRepo  portsrepo.LimitWindowReader
	uow         portsrepo.UnitOfWork
	publisher   portssvc.EventPublisher
	timeout     time.Duration
}

// LedgerOption is a functional option for configuring the ledger service
type LedgerOption func(*ledgerService)

// WithLedgerClock overrides the clock used for transaction timestamps.
func WithLedgerClock(c clock.Clock) LedgerOption {
	return func(s *ledgerService) {
		s.Clock = c
	}
}

// WithLedgerPublisher publishes lifecycle events after each committed change.
func WithLedgerPublisher(p portssvc.EventPublisher) LedgerOption {
	return func(s *ledgerService) {
		s.publisher = p
	}
}

// WithLedgerTimeout bounds every read and atomic unit the ledger issues.
func WithLedgerTimeout(d time.Duration) LedgerOption {
	return func(s *ledgerService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewLedgerService creates a new ledger service with the provided options
func NewLedgerService(repos portsrepo.RepositoryProvider, options ...LedgerOption) portssvc.LedgerSvcFacade {
	svc := &ledgerService{
		BaseService: BaseService{Clock: clock.System{}},
		accountRepo: repos.AccountRepo,
		txnRepo:     repos.TransactionRepo,
		windowRepo:  repos.WindowRepo,
		uow:         repos.UnitOfWork,
		timeout:     defaultPersistenceTimeout,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

func (s *ledgerService) Create(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	txn := s.newTransaction(draft)

	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		return store.SaveTransaction(ctx, txn)
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to create transaction", slog.String("kind", string(draft.Kind)))
		return nil, persistenceError(err, "creating transaction")
	}

	s.LogInfo(ctx, "Transaction created",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("kind", string(txn.Kind)),
		slog.String("amount", txn.Amount.String()))
	s.publish(ctx, domain.EventTransactionCreated, txn)
	return &txn, nil
}

func (s *ledgerService) CreateReserved(ctx context.Context, draft domain.TransactionDraft, usages []domain.WindowUsage) (*domain.Transaction, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if draft.Kind != domain.KindPayment {
		return nil, apperrors.NewValidation("only payments reserve window capacity")
	}
	txn := s.newTransaction(draft)

	// A fixed lock order keeps concurrent reservations on shared windows deadlock-free.
	ordered := make([]domain.WindowUsage, len(usages))
	copy(ordered, usages)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Window.WindowID != ordered[j].Window.WindowID {
			return ordered[i].Window.WindowID < ordered[j].Window.WindowID
		}
		return ordered[i].Period.Start.Before(ordered[j].Period.Start)
	})

	reservations := make([]domain.Reservation, 0, len(ordered))
	for _, u := range ordered {
		reservations = append(reservations, domain.Reservation{
			TransactionID: txn.TransactionID,
			WindowID:      u.Window.WindowID,
			PeriodStart:   u.Period.Start,
			Amount:        txn.Amount,
		})
	}

	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		for _, u := range ordered {
			if err := store.IncrementConsumed(ctx, u.Window.WindowID, u.Period.Start, txn.Amount); err != nil {
				return err
			}
		}
		if err := store.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		return store.SaveReservations(ctx, reservations)
	})
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindConflict {
			s.LogError(ctx, err, "Failed to reserve payment", slog.String("child_id", draft.FromAccountID))
		}
		return nil, persistenceError(err, "reserving payment")
	}

	s.LogInfo(ctx, "Payment reserved",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("child_id", txn.FromAccountID),
		slog.String("amount", txn.Amount.String()),
		slog.Int("windows", len(reservations)))
	s.publish(ctx, domain.EventPaymentReserved, txn)
	return &txn, nil
}

// CreateRefund locks the refunded payment, sums what was already refunded and
// lets check decide before the refund is inserted, all in one atomic unit.
func (s *ledgerService) CreateRefund(ctx context.Context, draft domain.TransactionDraft, check portssvc.RefundCheck) (*domain.Transaction, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	if draft.Kind != domain.KindRefund || draft.RefundOf == nil || *draft.RefundOf == "" {
		return nil, apperrors.NewValidation("a refund must reference a payment")
	}
	txn := s.newTransaction(draft)

	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		original, err := store.FindTransactionForUpdate(ctx, *draft.RefundOf)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		refunded := decimal.Zero
		if original != nil {
			if refunded, err = store.SumRefunds(ctx, original.TransactionID); err != nil {
				return err
			}
		}
		if err := check(original, refunded); err != nil {
			return err
		}
		return store.SaveTransaction(ctx, txn)
	})
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindAuthorizationDenied {
			s.LogError(ctx, err, "Failed to create refund", slog.String("refund_of", *draft.RefundOf))
		}
		return nil, persistenceError(err, "creating refund")
	}

	s.LogInfo(ctx, "Refund created",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("refund_of", *draft.RefundOf),
		slog.String("amount", txn.Amount.String()))
	s.publish(ctx, domain.EventTransactionCreated, txn)
	return &txn, nil
}

func (s *ledgerService) Confirm(ctx context.Context, actor *domain.Actor, transactionID string, settlementRef string) (*domain.Transaction, error) {
	if actor != nil {
		readCtx, cancel := s.bounded(ctx)
		err := s.checkParty(readCtx, *actor, transactionID)
		cancel()
		if err != nil {
			return nil, persistenceError(err, "loading transaction")
		}
	}

	var confirmed domain.Transaction
	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		txn, err := store.FindTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := txn.Complete(settlementRef, s.Now(), actorID(actor)); err != nil {
			return transitionError(err, txn)
		}
		if err := store.UpdateTransactionStatus(ctx, *txn); err != nil {
			return err
		}
		confirmed = *txn
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "confirming transaction")
	}

	s.LogInfo(ctx, "Transaction confirmed", slog.String("transaction_id", transactionID))
	s.publish(ctx, domain.EventTransactionConfirmed, confirmed)
	return &confirmed, nil
}

func (s *ledgerService) Cancel(ctx context.Context, actor *domain.Actor, transactionID string, reason string) (*domain.Transaction, error) {
	if actor != nil {
		readCtx, cancel := s.bounded(ctx)
		err := s.checkCanceller(readCtx, *actor, transactionID)
		cancel()
		if err != nil {
			return nil, persistenceError(err, "loading transaction")
		}
	}

	var (
		cancelled domain.Transaction
		changed   bool
	)
	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		txn, err := store.FindTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status == domain.StatusCancelled {
			cancelled = *txn
			return nil
		}
		if err := txn.Cancel(reason, s.Now(), actorID(actor)); err != nil {
			return transitionError(err, txn)
		}
		if err := store.UpdateTransactionStatus(ctx, *txn); err != nil {
			return err
		}

		reservations, err := store.FindReservations(ctx, transactionID)
		if err != nil {
			return err
		}
		for _, r := range reservations {
			if err := store.DecrementConsumed(ctx, r.WindowID, r.PeriodStart, r.Amount); err != nil {
				return err
			}
		}
		cancelled = *txn
		changed = true
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "cancelling transaction")
	}

	if changed {
		s.LogInfo(ctx, "Transaction cancelled", slog.String("transaction_id", transactionID))
		s.publish(ctx, domain.EventTransactionCancelled, cancelled)
	} else {
		s.LogDebug(ctx, "Transaction already cancelled", slog.String("transaction_id", transactionID))
	}
	return &cancelled, nil
}

func (s *ledgerService) RecordFailure(ctx context.Context, draft domain.TransactionDraft, cause error) (*domain.Transaction, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	txn := s.newTransaction(draft)
	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}
	if err := txn.Fail(reason, txn.CreatedAt, systemActor); err != nil {
		return nil, transitionError(err, &txn)
	}

	err := s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		return store.SaveTransaction(ctx, txn)
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to record failed transaction", slog.String("cause", reason))
		return nil, persistenceError(err, "recording failed transaction")
	}

	s.LogWarn(ctx, "Transaction recorded as failed",
		slog.String("transaction_id", txn.TransactionID),
		slog.String("cause", reason))
	s.publish(ctx, domain.EventTransactionFailed, txn)
	return &txn, nil
}

// SpentInWindow sums the capacity that pending and completed payments reserved
// in the usage's window period. A payment reserves exactly the windows that were
// enforced against it, so this is the value consumed must hold.
func (s *ledgerService) SpentInWindow(ctx context.Context, usage domain.WindowUsage) (decimal.Decimal, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	spent, err := s.txnRepo.SumReserved(ctx, usage.Window.WindowID, usage.Period.Start)
	if err != nil {
		return decimal.Zero, persistenceError(err, "summing reservations")
	}
	return spent, nil
}

func (s *ledgerService) Reconcile(ctx context.Context, actor *domain.Actor, windowID string, at time.Time) (*domain.WindowUsage, error) {
	readCtx, cancel := s.bounded(ctx)
	window, child, err := s.reconcileTarget(readCtx, actor, windowID)
	cancel()
	if err != nil {
		return nil, persistenceError(err, "loading window")
	}

	usage := domain.WindowUsage{Window: *window, Period: window.PeriodAt(at, child.Location())}
	var previous decimal.Decimal
	err = s.atomic(ctx, func(ctx context.Context, store portsrepo.LedgerStore) error {
		// Reservations and releases on this period wait behind the lock, so the
		// sum below cannot miss one that commits before the overwrite.
		locked, err := store.LockUsage(ctx, window.WindowID, usage.Period.Start)
		if err != nil {
			return err
		}
		previous = locked
		spent, err := store.SumReserved(ctx, window.WindowID, usage.Period.Start)
		if err != nil {
			return err
		}
		usage.Consumed = spent
		return store.SetConsumed(ctx, window.WindowID, usage.Period.Start, spent)
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to reconcile window", slog.String("window_id", windowID))
		return nil, persistenceError(err, "reconciling window")
	}

	s.LogInfo(ctx, "Window reconciled",
		slog.String("window_id", windowID),
		slog.Time("period_start", usage.Period.Start),
		slog.String("consumed", usage.Consumed.String()),
		slog.String("stored", previous.String()))
	s.publish(ctx, domain.EventWindowReconciled, usage)
	return &usage, nil
}

func (s *ledgerService) reconcileTarget(ctx context.Context, actor *domain.Actor, windowID string) (*domain.LimitWindow, *domain.Account, error) {
	window, err := s.windowRepo.FindWindowByID(ctx, windowID)
	if err != nil {
		return nil, nil, err
	}
	child, err := s.accountRepo.FindAccountByID(ctx, window.ChildID)
	if err != nil {
		return nil, nil, err
	}
	if actor != nil {
		parent := domain.Account{AccountID: actor.AccountID, Role: actor.Role}
		if !parent.IsParentOf(*child) {
			return nil, nil, apperrors.Denied(apperrors.ReasonNotYourChild, "account %s does not manage child %s", actor.AccountID, child.AccountID)
		}
	}
	return window, child, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, persistenceError(err, "loading transaction")
	}
	visible, err := s.canView(ctx, actor, txn.FromAccountID, txn.ToAccountID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "transaction %s is not visible to %s", transactionID, actor.AccountID)
	}
	return txn, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, actor domain.Actor, accountID string, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	visible, err := s.canView(ctx, actor, accountID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "transactions of %s are not visible to %s", accountID, actor.AccountID)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var after *portsrepo.TransactionCursor
	if params.NextToken != "" {
		createdAt, id, err := pagination.DecodeCursorToken(params.NextToken)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindValidation, err, "invalid nextToken")
		}
		after = &portsrepo.TransactionCursor{CreatedAt: createdAt, TransactionID: id}
	}

	txns, err := s.txnRepo.ListTransactionsByAccount(ctx, accountID, limit+1, after)
	if err != nil {
		return nil, persistenceError(err, "listing transactions")
	}

	res := &dto.ListTransactionsResponse{}
	if len(txns) > limit {
		txns = txns[:limit]
		last := txns[len(txns)-1]
		token := pagination.EncodeCursorToken(last.CreatedAt, last.TransactionID)
		res.NextToken = &token
	}
	res.Transactions = dto.ToTransactionResponses(txns)
	return res, nil
}

func (s *ledgerService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// atomic runs fn in one unit of work bounded by the persistence timeout.
func (s *ledgerService) atomic(ctx context.Context, fn func(ctx context.Context, store portsrepo.LedgerStore) error) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.uow.RunAtomic(ctx, fn)
}

func (s *ledgerService) newTransaction(draft domain.TransactionDraft) domain.Transaction {
	now := s.Now()
	createdBy := draft.CreatedBy
	if createdBy == "" {
		createdBy = draft.FromAccountID
	}
	return domain.Transaction{
		TransactionID: uuid.NewString(),
		FromAccountID: draft.FromAccountID,
		ToAccountID:   draft.ToAccountID,
		Amount:        draft.Amount,
		Kind:          draft.Kind,
		Status:        domain.StatusPending,
		Category:      draft.Category,
		ProductRef:    draft.ProductRef,
		RefundOf:      draft.RefundOf,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     createdBy,
			LastUpdatedAt: now,
			LastUpdatedBy: createdBy,
			Version:       1,
		},
	}
}

// checkParty allows only the payer or the payee.
func (s *ledgerService) checkParty(ctx context.Context, actor domain.Actor, transactionID string) error {
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if actor.AccountID != txn.FromAccountID && actor.AccountID != txn.ToAccountID {
		return apperrors.Denied(apperrors.ReasonNotPermitted, "account %s is not a party to transaction %s", actor.AccountID, transactionID)
	}
	return nil
}

// checkCanceller allows either party or the parent of either party.
func (s *ledgerService) checkCanceller(ctx context.Context, actor domain.Actor, transactionID string) error {
	txn, err := s.txnRepo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	visible, err := s.canView(ctx, actor, txn.FromAccountID, txn.ToAccountID)
	if err != nil {
		return err
	}
	if !visible {
		return apperrors.Denied(apperrors.ReasonNotPermitted, "account %s may not cancel transaction %s", actor.AccountID, transactionID)
	}
	return nil
}

// canView reports whether the actor is one of the accounts or the parent of one.
func (s *ledgerService) canView(ctx context.Context, actor domain.Actor, accountIDs ...string) (bool, error) {
	for _, id := range accountIDs {
		if id == actor.AccountID {
			return true, nil
		}
	}
	if actor.Role != domain.RoleParent {
		return false, nil
	}
	accounts, err := s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
	if err != nil {
		return false, persistenceError(err, "loading accounts")
	}
	parent := domain.Account{AccountID: actor.AccountID, Role: actor.Role}
	for _, acc := range accounts {
		if parent.IsParentOf(acc) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ledgerService) publish(ctx context.Context, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	aggregateID := ""
	switch p := payload.(type) {
	case domain.Transaction:
		aggregateID = p.TransactionID
	case domain.WindowUsage:
		aggregateID = p.Window.WindowID
	}
	event := domain.Event{Type: eventType, AggregateID: aggregateID, OccurredAt: s.Now(), Data: payload}
	if err := s.publisher.Publish(ctx, event); err != nil {
		// The ledger change is already committed; delivery is best effort.
		s.LogWarn(ctx, "Failed to publish event",
			slog.String("event_type", eventType),
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()))
	}
}

func validateDraft(draft domain.TransactionDraft) error {
	if draft.FromAccountID == "" || draft.ToAccountID == "" {
		return apperrors.NewValidation("from and to accounts are required")
	}
	if draft.FromAccountID == draft.ToAccountID {
		return apperrors.NewValidation("from and to accounts must differ")
	}
	if !draft.Amount.IsPositive() {
		return apperrors.NewValidation("amount must be positive")
	}
	if !domain.ValidAmountScale(draft.Amount) {
		return apperrors.NewValidation("amount has more than %d decimal places", domain.AmountScale)
	}
	if !draft.Kind.Valid() {
		return apperrors.NewValidation("unknown transaction kind %q", draft.Kind)
	}
	return nil
}

func actorID(actor *domain.Actor) string {
	if actor == nil {
		return systemActor
	}
	return actor.AccountID
}

// transitionError maps a refused domain transition to its typed error.
func transitionError(err error, txn *domain.Transaction) error {
	switch {
	case errors.Is(err, domain.ErrTransactionTerminal):
		return apperrors.New(apperrors.KindAlreadyTerminal, "transaction %s is already %s", txn.TransactionID, txn.Status)
	case errors.Is(err, domain.ErrIllegalTransition):
		return apperrors.New(apperrors.KindInvalidTransition, "transaction %s cannot leave %s", txn.TransactionID, txn.Status)
	}
	return err
}

// persistenceError keeps typed errors and classifies everything else so that no
// raw provider error escapes the service layer.
func persistenceError(err error, op string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindPersistenceTimeout, err, "%s timed out", op)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindPersistenceTimeout, err, "%s was cancelled", op)
	}
	return apperrors.Wrap(apperrors.KindInternal, err, "%s failed", op)
}
