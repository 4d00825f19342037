// Package replace rebuilds a real train after its template. The same algorithm
// prices the replacement in dry-run mode and performs it in execute mode, rolling
// every change back when a sub-operation fails.
package replace

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tbtr/internal/matcher"
	"tbtr/pkg/domain"
)

// Logger is the structured logging surface used by the executor. *slog.Logger
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

// Options are the per-group replacement switches plus the caller's stay-in-depot choice.
type Options struct {
	ReuseDepotVehicles bool
	KeepRemainders     bool
	RefitAsTemplate    bool
	StayInDepot        bool
}

// OptionsFor converts a group association into executor options.
func OptionsFor(g domain.GroupTemplate, stayInDepot bool) Options {
	return Options{
		ReuseDepotVehicles: g.ReuseDepotVehicles,
		KeepRemainders:     g.KeepRemainders,
		RefitAsTemplate:    g.RefitAsTemplate,
		StayInDepot:        stayInDepot,
	}
}

// Request describes one replacement attempt. Template lists the template chain head
// to tail; marker units are skipped.
type Request struct {
	Train    domain.VehicleID
	Template []domain.TemplateUnit
	Options  Options
	Mode     domain.CommandMode
}

// Outcome reports what an attempt did. In dry-run mode Bought holds one
// InvalidVehicle entry per planned purchase and NewHead may be InvalidVehicle.
type Outcome struct {
	AttemptID  uuid.UUID
	Mode       domain.CommandMode
	Cost       domain.Money
	NewHead    domain.VehicleID
	Reused     []domain.VehicleID
	FromDepot  []domain.VehicleID
	Bought     []domain.VehicleID
	Remainders []domain.VehicleID
	Sold       []domain.VehicleID
}

// Executor performs template replacements against a game state.
type Executor struct {
	state  domain.GameState
	logger Logger
	newID  func() uuid.UUID
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger. Nil keeps the no-op default.
func WithLogger(logger Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator overrides how attempt ids are generated.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New constructs an Executor.
func New(state domain.GameState, opts ...Option) *Executor {
	e := &Executor{state: state, logger: noopLogger{}, newID: uuid.New}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate prices the replacement of req.Train without changing the game state.
func (e *Executor) Estimate(ctx context.Context, req Request) (domain.Money, error) {
	req.Mode = domain.ModeDryRun
	out, err := e.Replace(ctx, req)
	return out.Cost, err
}

// Replace runs one attempt in req.Mode. Any failure is reported as
// domain.ErrCommandFailed with zero cost; in execute mode the game state is
// restored first.
func (e *Executor) Replace(ctx context.Context, req Request) (Outcome, error) {
	id := e.newID()
	out := Outcome{AttemptID: id, Mode: req.Mode}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrCommandFailed, err)
	}
	var mut mutator = newExecuteMutator(e.state)
	if req.Mode == domain.ModeDryRun {
		mut = newEstimateMutator(e.state)
	}
	a, err := e.prepare(req, mut)
	if err != nil {
		e.logger.Warn("replacement rejected", "attempt", id, "train", req.Train, "error", err)
		return out, fmt.Errorf("%w: %w", domain.ErrCommandFailed, err)
	}
	a.out.AttemptID = id
	e.logger.Debug("replacement started", "attempt", id, "train", a.head.ID, "mode", req.Mode,
		"template_units", len(a.template), "train_units", len(a.remaining))

	if err := a.run(ctx); err != nil {
		if req.Mode == domain.ModeExecute {
			a.rollback(ctx)
		}
		e.logger.Warn("replacement failed", "attempt", id, "train", a.head.ID, "mode", req.Mode, "error", err)
		return out, fmt.Errorf("%w: %w", domain.ErrCommandFailed, err)
	}
	e.logger.Info("replacement finished", "attempt", id, "train", a.head.ID, "mode", req.Mode,
		"new_head", a.out.NewHead, "cost", a.out.Cost, "bought", len(a.out.Bought),
		"reused", len(a.out.Reused), "from_depot", len(a.out.FromDepot), "sold", len(a.out.Sold))
	return a.out, nil
}

// attempt holds the bookkeeping of one replacement. remaining and pool are taken
// from the state once, so both modes make identical matching decisions. saved holds
// the state of every pre-existing vehicle the attempt may touch.
type attempt struct {
	state    domain.GameState
	logger   Logger
	mut      mutator
	opts     Options
	template []domain.TemplateUnit
	head     domain.Vehicle

	original  []domain.VehicleID
	remaining []domain.Vehicle
	pool      []domain.Vehicle
	saved     map[domain.VehicleID]domain.VehicleState
	newTail   domain.VehicleID
	placed    bool
	out       Outcome
}

func (e *Executor) prepare(req Request, mut mutator) (*attempt, error) {
	var template []domain.TemplateUnit
	for _, u := range req.Template {
		if !u.IsMarker() {
			template = append(template, u)
		}
	}
	if len(template) == 0 {
		return nil, domain.ErrNoTemplate
	}
	nodes, err := e.state.Chain(req.Train)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, domain.ErrNotFound{Entity: domain.EntityVehicle, ID: req.Train.String()}
	}
	a := &attempt{
		state:     e.state,
		logger:    e.logger,
		mut:       mut,
		opts:      req.Options,
		template:  template,
		head:      nodes[0],
		remaining: domain.RealUnits(nodes),
		saved:     make(map[domain.VehicleID]domain.VehicleState),
		out:       Outcome{Mode: req.Mode},
	}
	exclude := make(map[domain.VehicleID]struct{}, len(nodes))
	for _, v := range nodes {
		exclude[v.ID] = struct{}{}
	}
	for _, v := range a.remaining {
		a.original = append(a.original, v.ID)
		a.saved[v.ID] = domain.StateOf(v)
	}
	if req.Options.ReuseDepotVehicles {
		a.pool = matcher.DepotCandidates(e.state.DepotVehicles(a.head.Tile), a.head.Tile, exclude)
	}
	return a, nil
}

// run builds the new chain, then deals with the leftovers. Selling them is a single
// command and the last step, so a failure never leaves an original vehicle sold.
func (a *attempt) run(ctx context.Context) error {
	for i, unit := range a.template {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.placeUnit(ctx, unit); err != nil {
			return fmt.Errorf("template unit %d (%d): %w", i, unit.ID, err)
		}
	}
	if err := a.add(a.mut.copyHead(ctx, a.head.ID, a.out.NewHead)); err != nil {
		return fmt.Errorf("copy head: %w", err)
	}
	if err := a.separateRemainders(ctx); err != nil {
		return err
	}
	if err := a.transferCargo(ctx); err != nil {
		return fmt.Errorf("transfer cargo: %w", err)
	}
	if err := a.neutralizeRemainders(ctx); err != nil {
		return err
	}
	if err := a.mut.setStopped(ctx, a.out.NewHead, a.opts.StayInDepot); err != nil {
		return fmt.Errorf("start new head: %w", err)
	}
	return a.sellRemainders(ctx)
}

// placeUnit reuses a vehicle of the train, then one of the depot, and buys the
// template's engine when neither matches. The vehicle is appended to the new chain.
func (a *attempt) placeUnit(ctx context.Context, unit domain.TemplateUnit) error {
	var (
		id     domain.VehicleID
		engine = unit.EngineType
	)
	if v, ok := matcher.FindBestMatch(unit, a.remaining, a.opts.RefitAsTemplate, matcher.PreferMostCargo); ok {
		id = v.ID
		a.remaining = without(a.remaining, id)
		a.out.Reused = append(a.out.Reused, id)
	} else if v, ok := matcher.FindBestMatch(unit, a.pool, a.opts.RefitAsTemplate, matcher.PreferLeastCargo); ok {
		id = v.ID
		a.pool = without(a.pool, id)
		a.saved[id] = domain.StateOf(v)
		a.out.FromDepot = append(a.out.FromDepot, id)
	} else {
		built, cost, err := a.mut.build(ctx, domain.BuildRequest{Tile: a.head.Tile, Engine: engine, Owner: a.head.Owner})
		if err != nil {
			return fmt.Errorf("build engine %d: %w", engine, err)
		}
		a.out.Cost += cost
		id = built
		a.out.Bought = append(a.out.Bought, id)
	}

	if err := a.add(a.mut.move(ctx, id, a.newTail, engine)); err != nil {
		return fmt.Errorf("move %d: %w", id, err)
	}
	if !a.placed {
		a.out.NewHead = id
		a.placed = true
	}
	a.newTail = id

	if a.opts.RefitAsTemplate {
		if err := a.add(a.mut.refit(ctx, id, engine, unit.CargoType)); err != nil {
			return fmt.Errorf("refit %d: %w", id, err)
		}
	}
	return nil
}

// transferCargo moves the cargo of the leftover vehicles into the new chain, the
// first cargo found first, filling every slot of the same cargo type in order.
func (a *attempt) transferCargo(ctx context.Context) error {
	if a.mut.mode() == domain.ModeDryRun || len(a.remaining) == 0 {
		return nil
	}
	nodes, err := a.state.Chain(a.out.NewHead)
	if err != nil {
		return err
	}
	dests := domain.RealUnits(nodes)
	for _, r := range a.remaining {
		src, ok := a.state.Vehicle(r.ID)
		if !ok {
			continue
		}
		left := src.CargoCount
		for i := range dests {
			if left == 0 {
				break
			}
			d := &dests[i]
			if d.CargoType != src.CargoType || d.CargoCount >= d.CargoCap {
				continue
			}
			amount := min(left, d.CargoCap-d.CargoCount)
			if err := a.mut.shiftCargo(ctx, src.ID, d.ID, amount); err != nil {
				return err
			}
			d.CargoCount += amount
			left -= amount
		}
	}
	return nil
}

// separateRemainders moves every leftover engine onto its own line, leaving the
// leftover wagons together.
func (a *attempt) separateRemainders(ctx context.Context) error {
	if !a.opts.KeepRemainders {
		return nil
	}
	for _, v := range a.remaining {
		a.out.Remainders = append(a.out.Remainders, v.ID)
		if !v.Subtype.Has(domain.SubtypeEngine) {
			continue
		}
		if err := a.add(a.mut.move(ctx, v.ID, domain.InvalidVehicle, v.EngineType)); err != nil {
			return fmt.Errorf("separate remainder %d: %w", v.ID, err)
		}
	}
	return nil
}

func (a *attempt) neutralizeRemainders(ctx context.Context) error {
	if !a.opts.KeepRemainders {
		return nil
	}
	for _, v := range a.remaining {
		if !v.Subtype.Has(domain.SubtypeEngine) {
			continue
		}
		if err := a.add(a.mut.neutralize(ctx, v.ID)); err != nil {
			return fmt.Errorf("neutralize remainder %d: %w", v.ID, err)
		}
	}
	return nil
}

// sellRemainders sells every leftover vehicle at once.
func (a *attempt) sellRemainders(ctx context.Context) error {
	if a.opts.KeepRemainders || len(a.remaining) == 0 {
		return nil
	}
	if err := a.add(a.mut.sellChain(ctx, a.remaining)); err != nil {
		return fmt.Errorf("sell remainders: %w", err)
	}
	for _, v := range a.remaining {
		a.out.Sold = append(a.out.Sold, v.ID)
	}
	return nil
}

// rollback re-links the original vehicles in their original order, detaches the
// depot vehicles that were pulled in and sells every purchase. The cargo and head
// settings saved before the attempt are put back and the restored train is started.
// Failures are logged and skipped.
func (a *attempt) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	exec := newExecuteMutator(a.state)
	var errs []error
	note := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var restored []domain.VehicleID
	for _, id := range a.original {
		if _, ok := a.state.Vehicle(id); ok {
			restored = append(restored, id)
		}
	}
	for i, id := range restored {
		after := domain.InvalidVehicle
		if i > 0 {
			after = restored[i-1]
		}
		_, err := exec.move(ctx, id, after, domain.InvalidEngine)
		note(err)
	}
	var depot []domain.VehicleID
	for _, id := range a.out.FromDepot {
		if _, ok := a.state.Vehicle(id); ok {
			_, err := exec.move(ctx, id, domain.InvalidVehicle, domain.InvalidEngine)
			note(err)
			depot = append(depot, id)
		}
	}
	for _, id := range a.out.Bought {
		if _, ok := a.state.Vehicle(id); ok {
			_, err := exec.sell(ctx, id, domain.InvalidEngine)
			note(err)
		}
	}
	for _, id := range append(restored, depot...) {
		note(a.state.RestoreVehicleState(ctx, a.saved[id]))
	}
	if len(restored) > 0 {
		note(exec.setStopped(ctx, restored[0], false))
	}
	if len(restored) != len(a.original) {
		note(fmt.Errorf("%d of %d original vehicles are gone", len(a.original)-len(restored), len(a.original)))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("rollback incomplete", "train", a.head.ID, "error", err)
		return
	}
	a.logger.Debug("rollback finished", "train", a.head.ID, "restored", len(restored),
		"sold", len(a.out.Bought))
}

func (a *attempt) add(cost domain.Money, err error) error {
	if err != nil {
		return err
	}
	a.out.Cost += cost
	return nil
}

func without(vs []domain.Vehicle, id domain.VehicleID) []domain.Vehicle {
	out := vs[:0:0]
	for _, v := range vs {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}
