package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

const (
	defaultPersistenceTimeout = 5 * time.Second
	defaultMaxConflictRetries = 3
	limitLockPrefix           = "lock:limits:child:"
)

// enforcementService composes authorization, limit policy and the ledger.
type enforcementService struct {
	BaseService
	accountRepo        portsrepo.AccountReader
	policy             portssvc.LimitPolicyReaderSvc
	ledger             portssvc.LedgerSvcFacade
	locker             portssvc.KeyedLocker
	persistenceTimeout time.Duration
	maxConflictRetries uint64
	allowWithoutLimits bool
	retryInterval      time.Duration
}

// EnforcementOption is a functional option for configuring the enforcement service
type EnforcementOption func(*enforcementService)

// WithEnforcementClock overrides the clock used to resolve windows.
func WithEnforcementClock(c clock.Clock) EnforcementOption {
	return func(s *enforcementService) {
		s.Clock = c
	}
}

// WithPersistenceTimeout bounds each persistence phase of a payment.
func WithPersistenceTimeout(d time.Duration) EnforcementOption {
	return func(s *enforcementService) {
		if d > 0 {
			s.persistenceTimeout = d
		}
	}
}

// WithMaxConflictRetries sets how many times a conflicting reservation is retried.
func WithMaxConflictRetries(n int) EnforcementOption {
	return func(s *enforcementService) {
		if n >= 0 {
			s.maxConflictRetries = uint64(n)
		}
	}
}

// WithRetryInterval sets the initial backoff between conflict retries.
func WithRetryInterval(d time.Duration) EnforcementOption {
	return func(s *enforcementService) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithPaymentsWithoutLimits lets payments through when no window applies.
func WithPaymentsWithoutLimits(allow bool) EnforcementOption {
	return func(s *enforcementService) {
		s.allowWithoutLimits = allow
	}
}

// WithLocker serializes a child's payments through a keyed lock.
func WithLocker(l portssvc.KeyedLocker) EnforcementOption {
	return func(s *enforcementService) {
		s.locker = l
	}
}

// NewEnforcementService creates a new enforcement service with the provided options
func NewEnforcementService(
	repos portsrepo.RepositoryProvider,
	policy portssvc.LimitPolicyReaderSvc,
	ledger portssvc.LedgerSvcFacade,
	options ...EnforcementOption,
) portssvc.EnforcementSvc {
	svc := &enforcementService{
		BaseService:        BaseService{Clock: clock.System{}},
		accountRepo:        repos.AccountRepo,
		policy:             policy,
		ledger:             ledger,
		persistenceTimeout: defaultPersistenceTimeout,
		maxConflictRetries: defaultMaxConflictRetries,
		retryInterval:      20 * time.Millisecond,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.EnforcementSvc = (*enforcementService)(nil)

func (s *enforcementService) AttemptPayment(ctx context.Context, actor domain.Actor, req domain.PaymentRequest) (*domain.Transaction, error) {
	if req.ChildID == "" || req.MerchantID == "" {
		return nil, apperrors.NewValidation("childId and merchantId are required")
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if actor.AccountID != req.ChildID {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "payments can only be made by the paying child")
	}

	from, to, err := s.loadPair(ctx, req.ChildID, req.MerchantID)
	if err != nil {
		return nil, err
	}
	decision := Authorize(AuthorizationRequest{
		ActorRole: actor.Role,
		From:      *from,
		To:        *to,
		Kind:      domain.KindPayment,
		Amount:    req.Amount,
	})
	if !decision.Allowed {
		s.LogInfo(ctx, "Payment denied", slog.String("child_id", req.ChildID), slog.String("reason", string(decision.Reason)))
		return nil, apperrors.Denied(decision.Reason, "payment from %s to %s is not allowed", req.ChildID, req.MerchantID)
	}

	draft := domain.TransactionDraft{
		FromAccountID: req.ChildID,
		ToAccountID:   req.MerchantID,
		Amount:        req.Amount,
		Kind:          domain.KindPayment,
		Category:      req.Category,
		ProductRef:    req.ProductRef,
		CreatedBy:     actor.AccountID,
	}

	var txn *domain.Transaction
	reserve := func(ctx context.Context) error {
		var err error
		txn, err = s.reserveWithRetry(ctx, draft)
		return err
	}
	if s.locker != nil {
		err = s.locker.WithLock(ctx, limitLockPrefix+req.ChildID, reserve)
	} else {
		err = reserve(ctx)
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// reserveWithRetry resolves windows, checks capacity and reserves, retrying the
// whole sequence when another writer consumed the same capacity first.
func (s *enforcementService) reserveWithRetry(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.maxConflictRetries), ctx)

	attempt := 0
	var txn *domain.Transaction
	operation := func() error {
		attempt++
		var err error
		txn, err = s.reserveOnce(ctx, draft)
		if err == nil {
			return nil
		}
		if apperrors.KindOf(err) == apperrors.KindConflict {
			s.LogDebug(ctx, "Reservation conflicted", slog.String("child_id", draft.FromAccountID), slog.Int("attempt", attempt))
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, b); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = persistenceError(err, "reserving payment")
		}
		if apperrors.KindOf(err) == apperrors.KindConflict {
			s.LogWarn(ctx, "Reservation kept conflicting", slog.String("child_id", draft.FromAccountID), slog.Int("attempts", attempt))
		}
		return nil, err
	}
	return txn, nil
}

func (s *enforcementService) reserveOnce(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	now := s.Now()

	resolveCtx, cancel := context.WithTimeout(ctx, s.persistenceTimeout)
	usages, err := s.policy.ApplicableWindows(resolveCtx, draft.FromAccountID, now, draft.Category)
	cancel()
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, persistenceError(err, "resolving limit windows")
		}
		if !s.allowWithoutLimits {
			return nil, apperrors.Denied(apperrors.ReasonNoLimitConfigured, "no limit window applies to child %s", draft.FromAccountID)
		}
		usages = nil
	}

	if tightest, ok := tightestExceeded(usages, draft.Amount); ok {
		remaining := tightest.RemainingCapacity()
		s.LogInfo(ctx, "Payment exceeds limit",
			slog.String("child_id", draft.FromAccountID),
			slog.String("window_id", tightest.Window.WindowID),
			slog.String("remaining", remaining.String()))
		return nil, apperrors.NewLimitExceeded(tightest.Window.WindowID, string(tightest.Window.Kind), remaining.String())
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.persistenceTimeout)
	defer cancel()
	txn, err := s.ledger.CreateReserved(writeCtx, draft, usages)
	if err == nil {
		return txn, nil
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindConflict, apperrors.KindPersistenceTimeout, apperrors.KindValidation:
		return nil, err
	}
	// Unexpected failures still leave a trace in the ledger.
	if _, ferr := s.ledger.RecordFailure(ctx, draft, err); ferr != nil {
		s.LogError(ctx, ferr, "Failed to record payment failure", slog.String("child_id", draft.FromAccountID))
	}
	return nil, err
}

// tightestExceeded returns the window with the least remaining capacity when the
// amount does not fit in at least one of them.
func tightestExceeded(usages []domain.WindowUsage, amount decimal.Decimal) (domain.WindowUsage, bool) {
	var (
		tightest domain.WindowUsage
		exceeded bool
	)
	for _, u := range usages {
		remaining := u.RemainingCapacity()
		if amount.LessThanOrEqual(remaining) {
			continue
		}
		if !exceeded || remaining.LessThan(tightest.RemainingCapacity()) {
			tightest = u
			exceeded = true
		}
	}
	return tightest, exceeded
}

func (s *enforcementService) Submit(ctx context.Context, actor domain.Actor, req domain.MovementRequest) (*domain.Transaction, error) {
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return nil, apperrors.NewValidation("from and to accounts are required")
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Kind == domain.KindPayment {
		return nil, apperrors.NewValidation("payments go through the payment endpoint")
	}
	if actor.AccountID != req.FromAccountID {
		return nil, apperrors.Denied(apperrors.ReasonNotPermitted, "account %s cannot move money out of %s", actor.AccountID, req.FromAccountID)
	}

	from, to, err := s.loadPair(ctx, req.FromAccountID, req.ToAccountID)
	if err != nil {
		return nil, err
	}

	authReq := AuthorizationRequest{
		ActorRole: actor.Role,
		From:      *from,
		To:        *to,
		Kind:      req.Kind,
		Amount:    req.Amount,
	}
	draft := domain.TransactionDraft{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Kind:          req.Kind,
		RefundOf:      req.RefundOf,
		CreatedBy:     actor.AccountID,
	}

	if req.Kind == domain.KindRefund {
		if req.RefundOf == nil || *req.RefundOf == "" {
			return nil, apperrors.NewValidation("refundOf is required for refunds")
		}
		return s.ledger.CreateRefund(ctx, draft, func(original *domain.Transaction, refundedSoFar decimal.Decimal) error {
			authReq.RefundOf = original
			authReq.RefundedSoFar = refundedSoFar
			return s.authorizeMovement(ctx, authReq)
		})
	}

	if err := s.authorizeMovement(ctx, authReq); err != nil {
		return nil, err
	}
	return s.ledger.Create(ctx, draft)
}

func (s *enforcementService) authorizeMovement(ctx context.Context, req AuthorizationRequest) error {
	decision := Authorize(req)
	if decision.Allowed {
		return nil
	}
	s.LogInfo(ctx, "Movement denied",
		slog.String("kind", string(req.Kind)),
		slog.String("from", req.From.AccountID),
		slog.String("reason", string(decision.Reason)))
	return apperrors.Denied(decision.Reason, "%s from %s to %s is not allowed", req.Kind, req.From.AccountID, req.To.AccountID)
}

func (s *enforcementService) loadPair(ctx context.Context, fromID, toID string) (*domain.Account, *domain.Account, error) {
	if fromID == toID {
		return nil, nil, apperrors.NewValidation("from and to accounts must differ")
	}
	readCtx, cancel := context.WithTimeout(ctx, s.persistenceTimeout)
	defer cancel()
	accounts, err := s.accountRepo.FindAccountsByIDs(readCtx, []string{fromID, toID})
	if err != nil {
		return nil, nil, persistenceError(err, "loading accounts")
	}
	from, ok := accounts[fromID]
	if !ok {
		return nil, nil, apperrors.NewNotFound("account", fromID)
	}
	to, ok := accounts[toID]
	if !ok {
		return nil, nil, apperrors.NewNotFound("account", toID)
	}
	return &from, &to, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.NewValidation("amount must be positive")
	}
	if !domain.ValidAmountScale(amount) {
		return apperrors.NewValidation("amount has more than %d decimal places", domain.AmountScale)
	}
	return nil
}
