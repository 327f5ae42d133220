package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the common query surface of pool, conn and transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var (
	_ Querier = (*pgx.Conn)(nil)
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = pgx.Tx(nil)
)

type ctxKey struct{}

// NewContext stores a transaction executor in the context. Repositories
// prefer the context executor over their own connection so that work
// started via TransactionManager.RunInTx stays inside the transaction.
func NewContext(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, ctxKey{}, q)
}

// FromContext returns the executor stored by NewContext, if any.
func FromContext(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(ctxKey{}).(Querier)
	return q, ok
}
