// Package txsync binds callbacks to the boundary of a database transaction.
//
// A Scope travels in the context.Context of the code running inside a
// transaction. Components register a Synchronization on it and are told when
// the transaction is about to commit, has committed, or has rolled back.
package txsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/backoffice-realtime/internal/infrastructure/logging"
)

// Synchronization receives transaction completion callbacks.
type Synchronization interface {
	// BeforeCommit runs before the commit is attempted. Returning an error
	// rolls the transaction back.
	BeforeCommit(ctx context.Context) error
	// AfterCommit runs once the commit succeeded. ctx carries no scope.
	AfterCommit(ctx context.Context)
	// AfterRollback runs once the transaction rolled back. ctx carries no scope.
	AfterRollback(ctx context.Context)
}

// Funcs adapts plain functions to a Synchronization. Nil fields are skipped.
type Funcs struct {
	Before     func(ctx context.Context) error
	Committed  func(ctx context.Context)
	RolledBack func(ctx context.Context)
}

func (f Funcs) BeforeCommit(ctx context.Context) error {
	if f.Before == nil {
		return nil
	}
	return f.Before(ctx)
}

func (f Funcs) AfterCommit(ctx context.Context) {
	if f.Committed != nil {
		f.Committed(ctx)
	}
}

func (f Funcs) AfterRollback(ctx context.Context) {
	if f.RolledBack != nil {
		f.RolledBack(ctx)
	}
}

type state int

const (
	stateActive state = iota
	stateCompleting
	stateDone
)

// Scope is the callback registry and resource holder of one transaction.
type Scope struct {
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	state     state
	syncs     []Synchronization
	keys      map[any]struct{}
	resources map[any]any
}

// NewScope creates an active scope.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{
		id:        uuid.NewString(),
		logger:    logger,
		keys:      make(map[any]struct{}),
		resources: make(map[any]any),
	}
}

// ID identifies the scope in logs.
func (s *Scope) ID() string { return s.id }

// Active reports whether callbacks can still be registered.
func (s *Scope) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateDone
}

// Register adds sync under key. It returns false when key is already
// registered or the scope has completed.
func (s *Scope) Register(key any, sync Synchronization) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateDone {
		return false
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.syncs = append(s.syncs, sync)
	return true
}

// Resource returns the value bound under key.
func (s *Scope) Resource(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.resources[key]
	return v, ok
}

// BindResource stores value under key for the life of the scope.
func (s *Scope) BindResource(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[key] = value
}

// synchronization returns the i-th registration, or false past the end.
// Registrations made while callbacks run are picked up by the same pass.
func (s *Scope) synchronization(i int) (Synchronization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.syncs) {
		return nil, false
	}
	return s.syncs[i], true
}

func (s *Scope) beforeCommit(ctx context.Context) error {
	s.mu.Lock()
	s.state = stateCompleting
	s.mu.Unlock()

	for i := 0; ; i++ {
		sync, ok := s.synchronization(i)
		if !ok {
			return nil
		}
		if err := s.guardBefore(ctx, sync); err != nil {
			return err
		}
	}
}

func (s *Scope) guardBefore(ctx context.Context, sync Synchronization) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(s.logger.With("tx_id", s.id), p)
			err = &PanicError{Value: p}
		}
	}()
	return sync.BeforeCommit(ctx)
}

func (s *Scope) complete(ctx context.Context, committed bool) {
	s.mu.Lock()
	s.state = stateDone
	syncs := s.syncs
	s.syncs = nil
	s.resources = make(map[any]any)
	s.mu.Unlock()

	ctx = Detach(ctx)
	for _, sync := range syncs {
		s.guardAfter(ctx, sync, committed)
	}
}

func (s *Scope) guardAfter(ctx context.Context, sync Synchronization, committed bool) {
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(s.logger.With("tx_id", s.id, "committed", committed), p)
		}
	}()
	if committed {
		sync.AfterCommit(ctx)
		return
	}
	sync.AfterRollback(ctx)
}

type scopeKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	ctx = context.WithValue(ctx, scopeKey{}, s)
	if s != nil {
		ctx = logging.WithTxID(ctx, s.id)
	}
	return ctx
}

// FromContext returns the active scope carried by ctx.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil || !s.Active() {
		return nil, false
	}
	return s, true
}

// Detach strips any scope from ctx and drops its cancellation, so work done
// after a transaction outlives the request that opened it.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), scopeKey{}, (*Scope)(nil))
}
