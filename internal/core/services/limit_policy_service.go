package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/apperrors"
	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/dto"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/lock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StackingPolicy decides how a discretionary window combines with recurring
// windows covering the same instant.
type StackingPolicy string

const (
	// StackAll requires capacity in every applicable window.
	StackAll StackingPolicy = "stack"
	// DiscretionaryOverrides ignores recurring windows whenever a discretionary one applies.
	DiscretionaryOverrides StackingPolicy = "override"
)

const windowLockPrefix = "lock:windows:child:"

// limitPolicyService implements the LimitPolicySvcFacade interface
type limitPolicyService struct {
	BaseService
	accountRepo portsrepo.AccountReader
	windowRepo  portsrepo.LimitWindowRepositoryFacade
	stacking    StackingPolicy
	locker      portssvc.KeyedLocker
}

// LimitPolicyOption is a functional option for configuring the limit policy service
type LimitPolicyOption func(*limitPolicyService)

// WithPolicyClock overrides the clock used for defaults and audit timestamps.
func WithPolicyClock(c clock.Clock) LimitPolicyOption {
	return func(s *limitPolicyService) {
		s.Clock = c
	}
}

// WithStackingPolicy selects how overlapping discretionary and recurring windows combine.
func WithStackingPolicy(p StackingPolicy) LimitPolicyOption {
	return func(s *limitPolicyService) {
		if p == StackAll || p == DiscretionaryOverrides {
			s.stacking = p
		}
	}
}

// WithPolicyLocker serializes window definition changes per child, possibly
// across processes. The default only covers the current process.
func WithPolicyLocker(l portssvc.KeyedLocker) LimitPolicyOption {
	return func(s *limitPolicyService) {
		if l != nil {
			s.locker = l
		}
	}
}

// NewLimitPolicyService creates a new limit policy service with the provided options
func NewLimitPolicyService(accountRepo portsrepo.AccountReader, windowRepo portsrepo.LimitWindowRepositoryFacade, options ...LimitPolicyOption) portssvc.LimitPolicySvcFacade {
	svc := &limitPolicyService{
		BaseService: BaseService{Clock: clock.System{}},
		accountRepo: accountRepo,
		windowRepo:  windowRepo,
		stacking:    StackAll,
		locker:      lock.NewLocalLocker(),
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.LimitPolicySvcFacade = (*limitPolicyService)(nil)

func (s *limitPolicyService) ApplicableWindows(ctx context.Context, childID string, at time.Time, category string) ([]domain.WindowUsage, error) {
	child, err := s.findChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	windows, err := s.windowRepo.ListWindowsByChild(ctx, childID, true)
	if err != nil {
		return nil, fmt.Errorf("listing windows for child %s: %w", childID, err)
	}

	loc := child.Location()
	usages := make([]domain.WindowUsage, 0, len(windows))
	for _, w := range windows {
		if !w.AppliesTo(at, category) {
			continue
		}
		period := w.PeriodAt(at, loc)
		consumed, err := s.windowRepo.FindConsumed(ctx, w.WindowID, period.Start)
		if err != nil {
			return nil, fmt.Errorf("reading consumed for window %s: %w", w.WindowID, err)
		}
		usages = append(usages, domain.WindowUsage{Window: w, Period: period, Consumed: consumed})
	}

	sort.SliceStable(usages, func(i, j int) bool {
		pi, pj := usages[i].Window.Kind.Priority(), usages[j].Window.Kind.Priority()
		if pi != pj {
			return pi < pj
		}
		return usages[i].Window.WindowID < usages[j].Window.WindowID
	})

	if s.stacking == DiscretionaryOverrides && len(usages) > 0 && usages[0].Window.Kind == domain.WindowDiscretionary {
		n := 0
		for n < len(usages) && usages[n].Window.Kind == domain.WindowDiscretionary {
			n++
		}
		usages = usages[:n]
	}

	if len(usages) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound, "no active limit window applies to child %s", childID)
	}
	return usages, nil
}

func (s *limitPolicyService) RemainingCapacity(usage domain.WindowUsage) decimal.Decimal {
	return usage.RemainingCapacity()
}

func (s *limitPolicyService) ResolveWindows(ctx context.Context, actor domain.Actor, childID string, at time.Time, category string) ([]domain.WindowUsage, error) {
	if _, err := s.childVisibleTo(ctx, actor, childID); err != nil {
		return nil, err
	}
	return s.ApplicableWindows(ctx, childID, at, category)
}

func (s *limitPolicyService) GetWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error) {
	w, err := s.windowRepo.FindWindowByID(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if _, err := s.childVisibleTo(ctx, actor, w.ChildID); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *limitPolicyService) ListWindows(ctx context.Context, actor domain.Actor, childID string) ([]domain.LimitWindow, error) {
	if _, err := s.childVisibleTo(ctx, actor, childID); err != nil {
		return nil, err
	}
	return s.windowRepo.ListWindowsByChild(ctx, childID, false)
}

func (s *limitPolicyService) CreateWindow(ctx context.Context, actor domain.Actor, childID string, req dto.CreateWindowRequest) (*domain.LimitWindow, error) {
	child, err := s.childManagedBy(ctx, actor, childID)
	if err != nil {
		return nil, err
	}
	if !child.IsActive {
		return nil, apperrors.Denied(apperrors.ReasonAccountInactive, "child account %s is inactive", childID)
	}
	if !req.Kind.Valid() {
		return nil, apperrors.NewValidation("unknown window kind %q", req.Kind)
	}
	if err := validateCeiling(req.Ceiling); err != nil {
		return nil, err
	}

	now := s.Now()
	window := domain.LimitWindow{
		WindowID: uuid.NewString(),
		ChildID:  childID,
		Kind:     req.Kind,
		Ceiling:  req.Ceiling,
		Category: req.Category,
		IsActive: true,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.AccountID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.AccountID,
			Version:       1,
		},
	}

	loc := child.Location()
	switch {
	case req.Kind == domain.WindowDiscretionary && req.Date != "":
		date, err := time.ParseInLocation("2006-01-02", req.Date, loc)
		if err != nil {
			return nil, apperrors.NewValidation("invalid date %q", req.Date)
		}
		start, end := domain.DayBounds(date, loc)
		window.Start, window.End = start, &end
	case req.Kind == domain.WindowDiscretionary:
		if req.Start == nil || req.End == nil {
			return nil, apperrors.NewValidation("a discretionary window needs a date or both start and end")
		}
		end := domain.Normalize(req.End.UTC())
		window.Start, window.End = domain.Normalize(req.Start.UTC()), &end
	default:
		if req.Date != "" {
			return nil, apperrors.NewValidation("date only applies to discretionary windows")
		}
		// Default to the start of the current period so the whole period is covered.
		window.Start = domain.CalendarPeriod(req.Kind, now, loc).Start
		if req.Start != nil {
			window.Start = domain.Normalize(req.Start.UTC())
		}
		if req.End != nil {
			end := domain.Normalize(req.End.UTC())
			window.End = &end
		}
	}

	err = s.locker.WithLock(ctx, windowLockPrefix+childID, func(ctx context.Context) error {
		if err := s.checkRangeAndOverlap(ctx, window); err != nil {
			return err
		}
		if err := s.windowRepo.SaveWindow(ctx, window); err != nil {
			s.LogError(ctx, err, "Failed to save limit window", slog.String("child_id", childID))
			return fmt.Errorf("saving window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.LogInfo(ctx, "Limit window created",
		slog.String("window_id", window.WindowID),
		slog.String("child_id", childID),
		slog.String("kind", string(window.Kind)),
		slog.String("ceiling", window.Ceiling.String()))
	return &window, nil
}

func (s *limitPolicyService) UpdateWindow(ctx context.Context, actor domain.Actor, windowID string, req dto.UpdateWindowRequest) (*domain.LimitWindow, error) {
	window, err := s.managedWindow(ctx, actor, windowID)
	if err != nil {
		return nil, err
	}

	if req.Ceiling != nil {
		if err := validateCeiling(*req.Ceiling); err != nil {
			return nil, err
		}
		window.Ceiling = *req.Ceiling
	}
	if req.Category != nil {
		window.Category = *req.Category
	}
	if req.IsActive != nil {
		window.IsActive = *req.IsActive
	}
	if req.Start != nil {
		window.Start = domain.Normalize(req.Start.UTC())
	}
	if req.End != nil {
		end := domain.Normalize(req.End.UTC())
		window.End = &end
	}
	if req.ClearEnd {
		if window.Kind == domain.WindowDiscretionary {
			return nil, apperrors.NewValidation("a discretionary window must keep its end")
		}
		window.End = nil
	}

	var updated *domain.LimitWindow
	err = s.locker.WithLock(ctx, windowLockPrefix+window.ChildID, func(ctx context.Context) error {
		if err := s.checkRangeAndOverlap(ctx, *window); err != nil {
			return err
		}
		var perr error
		updated, perr = s.persistUpdate(ctx, actor, window)
		return perr
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *limitPolicyService) DeactivateWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error) {
	window, err := s.managedWindow(ctx, actor, windowID)
	if err != nil {
		return nil, err
	}
	if !window.IsActive {
		return window, nil
	}
	window.IsActive = false
	return s.persistUpdate(ctx, actor, window)
}

func (s *limitPolicyService) DeleteWindow(ctx context.Context, actor domain.Actor, windowID string) (bool, error) {
	window, err := s.managedWindow(ctx, actor, windowID)
	if err != nil {
		return false, err
	}

	total, err := s.windowRepo.TotalConsumed(ctx, windowID)
	if err != nil {
		return false, fmt.Errorf("reading consumption of window %s: %w", windowID, err)
	}

	if total.IsZero() {
		if err := s.windowRepo.DeleteWindow(ctx, windowID); err != nil {
			s.LogError(ctx, err, "Failed to delete limit window", slog.String("window_id", windowID))
			return false, fmt.Errorf("deleting window %s: %w", windowID, err)
		}
		s.LogInfo(ctx, "Limit window deleted", slog.String("window_id", windowID))
		return true, nil
	}

	// Consumption history exists; keep the row for audit and only deactivate it.
	if window.IsActive {
		window.IsActive = false
		if _, err := s.persistUpdate(ctx, actor, window); err != nil {
			return false, err
		}
	}
	s.LogInfo(ctx, "Limit window deactivated instead of deleted",
		slog.String("window_id", windowID),
		slog.String("total_consumed", total.String()))
	return false, nil
}

func (s *limitPolicyService) persistUpdate(ctx context.Context, actor domain.Actor, window *domain.LimitWindow) (*domain.LimitWindow, error) {
	window.LastUpdatedAt = s.Now()
	window.LastUpdatedBy = actor.AccountID
	window.Version++
	if err := s.windowRepo.UpdateWindow(ctx, *window); err != nil {
		s.LogError(ctx, err, "Failed to update limit window", slog.String("window_id", window.WindowID))
		return nil, fmt.Errorf("updating window %s: %w", window.WindowID, err)
	}
	return window, nil
}

func (s *limitPolicyService) checkRangeAndOverlap(ctx context.Context, window domain.LimitWindow) error {
	if window.End != nil && window.Start.After(*window.End) {
		return apperrors.New(apperrors.KindInvalidRange, "window start %s is after end %s",
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
	}
	if !window.IsActive {
		return nil
	}

	existing, err := s.windowRepo.ListWindowsByChild(ctx, window.ChildID, true)
	if err != nil {
		return fmt.Errorf("listing windows for overlap check: %w", err)
	}
	for _, other := range existing {
		if other.WindowID == window.WindowID || other.Kind != window.Kind {
			continue
		}
		if window.Overlaps(other) {
			return &apperrors.AppError{
				Kind:    apperrors.KindOverlap,
				Message: fmt.Sprintf("%s window overlaps active window %s", window.Kind, other.WindowID),
				Details: map[string]any{"windowId": other.WindowID},
			}
		}
	}
	return nil
}

func (s *limitPolicyService) managedWindow(ctx context.Context, actor domain.Actor, windowID string) (*domain.LimitWindow, error) {
	window, err := s.windowRepo.FindWindowByID(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if _, err := s.childManagedBy(ctx, actor, window.ChildID); err != nil {
		return nil, err
	}
	return window, nil
}

func (s *limitPolicyService) findChild(ctx context.Context, childID string) (*domain.Account, error) {
	child, err := s.accountRepo.FindAccountByID(ctx, childID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find child", slog.String("child_id", childID))
		}
		return nil, err
	}
	if child.Role != domain.RoleChild {
		return nil, apperrors.NewValidation("account %s is not a child", childID)
	}
	return child, nil
}

// childManagedBy loads the child and checks that the actor is its linked parent.
func (s *limitPolicyService) childManagedBy(ctx context.Context, actor domain.Actor, childID string) (*domain.Account, error) {
	child, err := s.findChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	parent := domain.Account{AccountID: actor.AccountID, Role: actor.Role}
	if !parent.IsParentOf(*child) {
		return nil, apperrors.Denied(apperrors.ReasonNotYourChild, "account %s does not manage child %s", actor.AccountID, childID)
	}
	return child, nil
}

// childVisibleTo loads the child and checks that the actor is the child or its parent.
func (s *limitPolicyService) childVisibleTo(ctx context.Context, actor domain.Actor, childID string) (*domain.Account, error) {
	child, err := s.findChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if actor.AccountID == child.AccountID {
		return child, nil
	}
	parent := domain.Account{AccountID: actor.AccountID, Role: actor.Role}
	if !parent.IsParentOf(*child) {
		return nil, apperrors.Denied(apperrors.ReasonNotYourChild, "account %s cannot view limits of %s", actor.AccountID, childID)
	}
	return child, nil
}

func validateCeiling(ceiling decimal.Decimal) error {
	if !ceiling.IsPositive() {
		return apperrors.NewValidation("ceiling must be positive")
	}
	if !domain.ValidAmountScale(ceiling) {
		return apperrors.NewValidation("ceiling has more than %d decimal places", domain.AmountScale)
	}
	return nil
}
