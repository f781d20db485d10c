package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/SscSPs/allowance_wallet/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// wallet is a fully wired service container over the in-memory store with one
// family and one merchant already registered.
type wallet struct {
	store    *memory.Store
	clock    *clock.Fixed
	svc      *portssvc.ServiceContainer
	parent   domain.Account
	child    domain.Account
	merchant domain.Account
}

func testConfig() *config.Config {
	return &config.Config{
		PersistenceTimeout:  time.Second,
		MaxConflictRetries:  5,
		LimitStackingPolicy: config.StackingStack,
		DefaultTimeZone:     "UTC",
	}
}

func newWallet(t *testing.T, now time.Time, childZone string, mutate ...func(*config.Config)) *wallet {
	t.Helper()
	return newWrappedWallet(t, now, childZone, nil, mutate...)
}

// newWrappedWallet is newWallet with the repositories seen by the services
// passed through wrap first.
func newWrappedWallet(t *testing.T, now time.Time, childZone string, wrap func(portsrepo.RepositoryProvider) portsrepo.RepositoryProvider, mutate ...func(*config.Config)) *wallet {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	store := memory.NewStore()
	repos := memory.NewRepositoryProvider(store)
	if wrap != nil {
		repos = wrap(repos)
	}
	clk := clock.NewFixed(now)
	w := &wallet{
		store: store,
		clock: clk,
		svc:   services.NewServiceContainer(cfg, repos, services.Integrations{Clock: clk}),
	}

	w.parent = seedAccount(t, store, "parent-1", domain.RoleParent, nil, childZone)
	w.child = seedAccount(t, store, "child-1", domain.RoleChild, strPtr(w.parent.AccountID), childZone)
	w.merchant = seedAccount(t, store, "merchant-1", domain.RoleMerchant, nil, "UTC")
	return w
}

func seedAccount(t *testing.T, store *memory.Store, id string, role domain.Role, parentID *string, tz string) domain.Account {
	t.Helper()
	acc := domain.Account{
		AccountID: id,
		Name:      id,
		Role:      role,
		ParentID:  parentID,
		TimeZone:  tz,
		IsActive:  true,
		AuditFields: domain.AuditFields{
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			CreatedBy: id,
			Version:   1,
		},
	}
	require.NoError(t, store.SaveAccount(context.Background(), acc))
	return acc
}

func actorOf(acc domain.Account) domain.Actor {
	return domain.Actor{AccountID: acc.AccountID, Role: acc.Role}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (w *wallet) pay(amount, category string) (*domain.Transaction, error) {
	return w.svc.Enforcement.AttemptPayment(context.Background(), actorOf(w.child), domain.PaymentRequest{
		ChildID:    w.child.AccountID,
		MerchantID: w.merchant.AccountID,
		Amount:     dec(amount),
		Category:   category,
	})
}

func (w *wallet) consumed(t *testing.T, windowID string, at time.Time) decimal.Decimal {
	t.Helper()
	window, err := w.store.FindWindowByID(context.Background(), windowID)
	require.NoError(t, err)
	period := window.PeriodAt(at, w.child.Location())
	c, err := w.store.FindConsumed(context.Background(), windowID, period.Start)
	require.NoError(t, err)
	return c
}
