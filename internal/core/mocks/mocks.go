package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
	"github.com/stretchr/testify/mock"
)

// MockCacheInvalidator is a mock implementation of ports.CacheInvalidator
type MockCacheInvalidator struct {
	mock.Mock
}

func NewMockCacheInvalidator() *MockCacheInvalidator {
	return &MockCacheInvalidator{}
}

func (m *MockCacheInvalidator) Invalidate(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockCacheInvalidator) InvalidateByPattern(ctx context.Context, pattern string) error {
	args := m.Called(ctx, pattern)
	return args.Error(0)
}

func (m *MockCacheInvalidator) InvalidateEntity(ctx context.Context, kind ports.EntityKind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

// MockBroker is a mock implementation of ports.Broker
type MockBroker struct {
	mock.Mock
}

func NewMockBroker() *MockBroker {
	return &MockBroker{}
}

func (m *MockBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func (m *MockBroker) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	args := m.Called(ctx, channels, handler)
	return args.Error(0)
}

func (m *MockBroker) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBroker) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockPushChannel is a mock implementation of ports.PushChannel
type MockPushChannel struct {
	mock.Mock
}

func NewMockPushChannel() *MockPushChannel {
	return &MockPushChannel{}
}

func (m *MockPushChannel) SendToTopic(destination string, frame domain.PushFrame) int {
	args := m.Called(destination, frame)
	return args.Int(0)
}

func (m *MockPushChannel) SendToUser(username, destination string, frame domain.PushFrame) int {
	args := m.Called(username, destination, frame)
	return args.Int(0)
}

// MockMessageRouter is a mock implementation of ports.MessageRouter
type MockMessageRouter struct {
	mock.Mock
}

func NewMockMessageRouter() *MockMessageRouter {
	return &MockMessageRouter{}
}

func (m *MockMessageRouter) Route(ctx context.Context, destination string, payload any, messageType, sourceService string) {
	m.Called(ctx, destination, payload, messageType, sourceService)
}

func (m *MockMessageRouter) RouteToUser(ctx context.Context, username, destination string, payload any, messageType string) {
	m.Called(ctx, username, destination, payload, messageType)
}

// MockChangeNotifier is a mock implementation of ports.ChangeNotifier
type MockChangeNotifier struct {
	mock.Mock
}

func NewMockChangeNotifier() *MockChangeNotifier {
	return &MockChangeNotifier{}
}

func (m *MockChangeNotifier) OnEntityChanged(ctx context.Context, event domain.ChangeEvent) {
	m.Called(ctx, event)
}

// MockCatalogRepository is a mock implementation of ports.CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func NewMockCatalogRepository() *MockCatalogRepository {
	return &MockCatalogRepository{}
}

func (m *MockCatalogRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockCatalogRepository) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockCatalogRepository) UpdateProductPrice(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockCatalogRepository) GetVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Variant), args.Error(1)
}

func (m *MockCatalogRepository) GetVariantForUpdate(ctx context.Context, variantID string) (*domain.Variant, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Variant), args.Error(1)
}

func (m *MockCatalogRepository) UpdateVariantQuantity(ctx context.Context, variant *domain.Variant) error {
	args := m.Called(ctx, variant)
	return args.Error(0)
}

// MockProber is a mock of the broker probe used by session recovery.
type MockProber struct {
	mock.Mock
}

func NewMockProber() *MockProber {
	return &MockProber{}
}

func (m *MockProber) Probe(ctx context.Context, kind ports.ProbeKind) error {
	args := m.Called(ctx, kind)
	return args.Error(0)
}

// ErrForcedRollback is returned by TxManager when it is told to roll back.
var ErrForcedRollback = errors.New("forced rollback")

// TxManager is a ports.TransactionManager backed by txsync with no database.
// When Rollback is set every transaction rolls back after fn succeeds.
type TxManager struct {
	Executor *txsync.Executor
	Rollback bool
}

func NewTxManager() *TxManager {
	return &TxManager{Executor: txsync.NewExecutor(nil)}
}

func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.Executor.Execute(ctx, txsync.BeginLocal, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		if m.Rollback {
			return ErrForcedRollback
		}
		return nil
	})
}

// ManualScheduler records scheduled functions and runs them only when told to.
type ManualScheduler struct {
	mu     sync.Mutex
	tasks  []*ManualTask
	delays []time.Duration
}

// ManualTask is one scheduled function.
type ManualTask struct {
	Delay   time.Duration
	fn      func()
	stopped bool
	ran     bool
}

func (t *ManualTask) Stop() bool {
	was := !t.stopped && !t.ran
	t.stopped = true
	return was
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) AfterFunc(delay time.Duration, fn func()) ports.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &ManualTask{Delay: delay, fn: fn}
	s.tasks = append(s.tasks, task)
	s.delays = append(s.delays, delay)
	return task
}

// Delays returns every delay passed to AfterFunc, in order.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// Scheduled returns how many functions were scheduled.
func (s *ManualScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunNext runs the oldest pending task and reports whether one ran.
func (s *ManualScheduler) RunNext() bool {
	s.mu.Lock()
	var next *ManualTask
	for _, t := range s.tasks {
		if !t.ran && !t.stopped {
			next = t
			break
		}
	}
	if next != nil {
		next.ran = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

// RunAll runs pending tasks, including ones they schedule, until none remain.
func (s *ManualScheduler) RunAll() int {
	n := 0
	for s.RunNext() {
		n++
	}
	return n
}

// PublishedEnvelope is one envelope seen by RecordingPublisher.
type PublishedEnvelope struct {
	Channel  domain.Channel
	Envelope domain.MessageEnvelope
}

// RecordingPublisher captures envelopes in publish order. Err, when set,
// decides the result for each envelope and failed envelopes are not recorded.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []PublishedEnvelope
	Err       func(domain.MessageEnvelope) error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, channel domain.Channel, envelope domain.MessageEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		if err := p.Err(envelope); err != nil {
			return err
		}
	}
	p.published = append(p.published, PublishedEnvelope{Channel: channel, Envelope: envelope})
	return nil
}

// Published returns a copy of the recorded envelopes.
func (p *RecordingPublisher) Published() []PublishedEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEnvelope(nil), p.published...)
}

// Destinations returns the recorded destinations in order.
func (p *RecordingPublisher) Destinations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.published))
	for _, e := range p.published {
		out = append(out, e.Envelope.Destination)
	}
	return out
}
