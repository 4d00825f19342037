package core

import (
	"context"
	"fmt"
	"time"

	"tbtr/internal/capacity"
	"tbtr/internal/infra/persistence/memory"
	"tbtr/internal/replace"
	"tbtr/internal/template"
	"tbtr/pkg/domain"
)

// World is the game state the service drives: vehicle operations, train
// introspection and the group directory.
type World interface {
	domain.GameState
	domain.GroupDirectory
}

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock yields the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reports the system time in UTC.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// Service exposes the template and replacement commands. Every command runs through
// the same logging, metrics and tracing wrapper.
type Service struct {
	store    PersistentStore
	world    World
	editor   *template.Editor
	executor *replace.Executor
	capacity *capacity.Cache
	display  *template.DisplayCache

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. Nil keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to time operations.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the recorder that observes every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer that spans every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service over store and world. When world can probe
// capacities or size sprites, the capacity cache and display cache use it.
func NewService(store PersistentStore, world World, opts ...Option) *Service {
	s := &Service{
		store:   store,
		world:   world,
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   ClockFunc(nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	prober, _ := world.(domain.CapacityProber)
	s.capacity = capacity.New(world, prober, world)
	s.editor = template.NewEditor(world, s.capacity)
	if sizer, ok := world.(template.SpriteSizer); ok {
		s.display = template.NewDisplayCache(sizer)
	}
	s.executor = replace.New(world, replace.WithLogger(s.logger))
	return s
}

// NewInMemoryService creates a service over an in-memory store carrying the
// default rules.
func NewInMemoryService(world World, opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), world, opts...)
}

// Store returns the underlying template store.
func (s *Service) Store() PersistentStore { return s.store }

// CapacityStats reports how capacity lookups were resolved so far.
func (s *Service) CapacityStats() capacity.Stats { return s.capacity.Stats() }

// ResetWorld drops every cache tied to the current game session. It must be called
// after the world was reset or a savegame was loaded.
func (s *Service) ResetWorld(ctx context.Context) error {
	return s.run(ctx, "reset_world", func(context.Context) error {
		s.capacity.Clear()
		if s.display != nil {
			s.display.InvalidateZoom()
		}
		return nil
	})
}

// InvalidateZoom drops the cached template display geometry.
func (s *Service) InvalidateZoom() {
	if s.display != nil {
		s.display.InvalidateZoom()
	}
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "op", op, "duration", duration, "error", err)
		return err
	}
	s.logger.Debug("operation completed", "op", op, "duration", duration)
	return nil
}

func (s *Service) transact(ctx context.Context, fn func(domain.Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			s.logger.Warn("rule violation", "rule", v.Rule, "severity", v.Severity, "message", v.Message)
		}
	}
	return err
}

func (s *Service) head(id domain.VehicleID) (domain.Vehicle, error) {
	nodes, err := s.world.Chain(id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if len(nodes) == 0 {
		return domain.Vehicle{}, domain.ErrNotFound{Entity: domain.EntityVehicle, ID: id.String()}
	}
	return nodes[0], nil
}

func checkOwner(actor, owner domain.OwnerID, what string) error {
	if actor != owner {
		return fmt.Errorf("%s owned by %d: %w", what, owner, domain.ErrNotOwner)
	}
	return nil
}
