package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridrace/race-service-go/pkg/repository"
	"github.com/gridrace/race-service-go/pkg/repository/api"
)

type pgxTransaction struct {
	pool *pgxpool.Pool
}

var _ api.TransactionManager = (*pgxTransaction)(nil)

func NewTransactionManager(pool *pgxpool.Pool) api.TransactionManager {
	return &pgxTransaction{pool: pool}
}

// the contract with the repositories is:
// we put the current transaction into the context, the repository should
// first look in the context for an executor and then use it for queries
func (t *pgxTransaction) RunInTx(
	ctx context.Context,
	fn func(ctx context.Context) error,
) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(repository.NewContext(ctx, tx))
	})
}
