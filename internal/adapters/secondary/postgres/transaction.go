package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
)

// TransactionManager runs functions in a database transaction with a
// synchronization scope, so callbacks registered during fn fire on commit
// or rollback.
type TransactionManager struct {
	pool     *pgxpool.Pool
	executor *txsync.Executor
}

var _ ports.TransactionManager = (*TransactionManager)(nil)

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(pool *pgxpool.Pool, executor *txsync.Executor) *TransactionManager {
	return &TransactionManager{pool: pool, executor: executor}
}

// WithTransaction executes fn within a database transaction. A call made
// while a transaction is already active joins it.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.executor.Execute(ctx, tm.begin(pgx.TxOptions{}), fn)
}

// WithReadOnlyTransaction executes fn within a read-only transaction.
func (tm *TransactionManager) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.executor.Execute(ctx, tm.begin(pgx.TxOptions{AccessMode: pgx.ReadOnly}), fn)
}

func (tm *TransactionManager) begin(opts pgx.TxOptions) txsync.BeginFunc {
	return func(ctx context.Context) (context.Context, txsync.Tx, error) {
		tx, err := tm.pool.BeginTx(ctx, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("begin: %w", err)
		}
		return ContextWithTx(ctx, tx), tx, nil
	}
}

type txContextKey struct{}

// ContextWithTx returns a new context with the transaction stored
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from the context. A transaction
// whose scope has completed is not returned, so after-commit callbacks read
// through the pool.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	if !ok {
		return nil, false
	}
	if _, active := txsync.FromContext(ctx); !active {
		return nil, false
	}
	return tx, true
}

// DBTX matches both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetDBTX returns the transaction from context if available, otherwise returns the pool
func GetDBTX(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return pool
}
