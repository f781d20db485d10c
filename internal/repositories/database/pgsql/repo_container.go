package pgsql

import (
	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		AccountRepo:     newPgxAccountRepository(dbPool),
		WindowRepo:      newPgxLimitWindowRepository(dbPool),
		TransactionRepo: newPgxTransactionRepository(dbPool),
		UnitOfWork:      newPgxUnitOfWork(dbPool),
	}
}
