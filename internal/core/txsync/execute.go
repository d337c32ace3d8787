package txsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Tx is the commit/rollback surface of a transaction. pgx.Tx satisfies it.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BeginFunc opens a transaction and returns a context bound to it.
type BeginFunc func(ctx context.Context) (context.Context, Tx, error)

// PanicError reports a panic recovered from a BeforeCommit callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in before-commit callback: %v", e.Value)
}

// Executor runs functions inside a transaction scope and fires the scope's
// callbacks when the transaction completes.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an executor logging through logger.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger.With("component", "txsync")}
}

// Execute runs fn in a new transaction opened by begin. When ctx already
// carries an active scope, fn joins that transaction and begin is not called.
func (e *Executor) Execute(ctx context.Context, begin BeginFunc, fn func(ctx context.Context) error) error {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}

	txCtx, tx, err := begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	scope := NewScope(e.logger)
	txCtx = WithScope(txCtx, scope)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			scope.complete(ctx, false)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		return e.rollback(txCtx, scope, tx, err)
	}

	if err := scope.beforeCommit(txCtx); err != nil {
		return e.rollback(txCtx, scope, tx, fmt.Errorf("before commit: %w", err))
	}

	if err := tx.Commit(txCtx); err != nil {
		scope.complete(txCtx, false)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	scope.complete(txCtx, true)
	return nil
}

func (e *Executor) rollback(ctx context.Context, scope *Scope, tx Tx, cause error) error {
	rbErr := tx.Rollback(Detach(ctx))
	scope.complete(ctx, false)
	if rbErr != nil {
		e.logger.ErrorContext(ctx, "rollback failed", "tx_id", scope.ID(), "error", rbErr)
		return errors.Join(cause, fmt.Errorf("rollback failed: %w", rbErr))
	}
	return cause
}

// LocalTx is a transaction with no backing store. It lets scope callbacks run
// where no database is configured, and in tests.
type LocalTx struct{}

func (LocalTx) Commit(context.Context) error   { return nil }
func (LocalTx) Rollback(context.Context) error { return nil }

// BeginLocal is a BeginFunc that opens a LocalTx.
func BeginLocal(ctx context.Context) (context.Context, Tx, error) {
	return ctx, LocalTx{}, nil
}
