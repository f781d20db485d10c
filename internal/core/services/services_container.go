package services

import (
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
)

// Integrations carries the optional outbound collaborators of the services.
// Nil fields disable the corresponding behaviour.
type Integrations struct {
	Publisher portssvc.EventPublisher
	Locker    portssvc.KeyedLocker
	Clock     clock.Clock
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, integrations Integrations) *portssvc.ServiceContainer {
	clk := integrations.Clock
	if clk == nil {
		clk = clock.System{}
	}

	container := &portssvc.ServiceContainer{}

	container.Account = NewAccountService(
		repos.AccountRepo,
		WithAccountClock(clk),
		WithDefaultTimeZone(cfg.DefaultTimeZone),
	)

	container.LimitPolicy = NewLimitPolicyService(
		repos.AccountRepo,
		repos.WindowRepo,
		WithPolicyClock(clk),
		WithStackingPolicy(StackingPolicy(cfg.LimitStackingPolicy)),
		WithPolicyLocker(integrations.Locker),
	)

	ledgerOpts := []LedgerOption{
		WithLedgerClock(clk),
		WithLedgerTimeout(cfg.PersistenceTimeout),
	}
	if integrations.Publisher != nil {
		ledgerOpts = append(ledgerOpts, WithLedgerPublisher(integrations.Publisher))
	}
	container.Ledger = NewLedgerService(repos, ledgerOpts...)

	enforcementOpts := []EnforcementOption{
		WithEnforcementClock(clk),
		WithPersistenceTimeout(cfg.PersistenceTimeout),
		WithMaxConflictRetries(cfg.MaxConflictRetries),
		WithPaymentsWithoutLimits(cfg.AllowPaymentsWithoutLimits),
	}
	if integrations.Locker != nil {
		enforcementOpts = append(enforcementOpts, WithLocker(integrations.Locker))
	}
	container.Enforcement = NewEnforcementService(repos, container.LimitPolicy, container.Ledger, enforcementOpts...)

	return container
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.AccountSvcFacade     = (*accountService)(nil)
	_ portssvc.LimitPolicySvcFacade = (*limitPolicyService)(nil)
	_ portssvc.LedgerSvcFacade      = (*ledgerService)(nil)
	_ portssvc.EnforcementSvc       = (*enforcementService)(nil)
)
