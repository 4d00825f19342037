// Package memory provides an in-memory implementation of the template store used
// for tests, ephemeral sessions and as the transactional core of the durable stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tbtr/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// TemplateUnit aliases domain.TemplateUnit for in-memory persistence operations.
	TemplateUnit = domain.TemplateUnit
	// Chain aliases domain.Chain.
	Chain = domain.Chain
	// GroupTemplate aliases domain.GroupTemplate.
	GroupTemplate = domain.GroupTemplate
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// TemplateID aliases domain.TemplateID.
	TemplateID = domain.TemplateID
)

// DefaultUnitLimit mirrors the size of the game's template pool.
const DefaultUnitLimit = 64000

type memoryState struct {
	units  map[domain.TemplateID]TemplateUnit
	chains map[domain.TemplateID]Chain
	groups map[domain.GroupID]GroupTemplate
	nextID domain.TemplateID
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Units  map[domain.TemplateID]TemplateUnit `json:"units"`
	Chains map[domain.TemplateID]Chain        `json:"chains"`
	Groups map[domain.GroupID]GroupTemplate   `json:"groups"`
	NextID domain.TemplateID                  `json:"next_id"`
}

func newMemoryState() memoryState {
	return memoryState{
		units:  make(map[domain.TemplateID]TemplateUnit),
		chains: make(map[domain.TemplateID]Chain),
		groups: make(map[domain.GroupID]GroupTemplate),
		nextID: 1,
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		units:  make(map[domain.TemplateID]TemplateUnit, len(s.units)),
		chains: make(map[domain.TemplateID]Chain, len(s.chains)),
		groups: make(map[domain.GroupID]GroupTemplate, len(s.groups)),
		nextID: s.nextID,
	}
	for k, v := range s.units {
		cloned.units[k] = v
	}
	for k, v := range s.chains {
		cloned.chains[k] = v
	}
	for k, v := range s.groups {
		cloned.groups[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{Units: cloned.units, Chains: cloned.chains, Groups: cloned.groups, NextID: cloned.nextID}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Units {
		state.units[k] = v
	}
	for k, v := range s.Chains {
		state.chains[k] = v
	}
	for k, v := range s.Groups {
		state.groups[k] = v
	}
	state.nextID = s.NextID
	// Snapshots written by older builds may lack the counter; never hand out a live id.
	for id := range state.units {
		if id >= state.nextID {
			state.nextID = id + 1
		}
	}
	if state.nextID == domain.InvalidTemplate {
		state.nextID = 1
	}
	return state
}

// Store provides an in-memory transactional store for template chains and group associations.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	engine    *RulesEngine
	nowFn     func() time.Time
	unitLimit int
}

// Option configures a Store.
type Option func(*Store)

// WithUnitLimit caps the number of live template units. Values <= 0 keep the default.
func WithUnitLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.unitLimit = limit
		}
	}
}

// WithNow overrides the transaction timestamp source.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:     newMemoryState(),
		engine:    engine,
		nowFn:     func() time.Time { return time.Now().UTC() },
		unitLimit: DefaultUnitLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// UnitLimit returns the maximum number of live template units.
func (s *Store) UnitLimit() int {
	return s.unitLimit
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindUnit(id domain.TemplateID) (TemplateUnit, bool) {
	u, ok := v.state.units[id]
	return u, ok
}

func (v transactionView) FindChain(head domain.TemplateID) (Chain, bool) {
	c, ok := v.state.chains[head]
	return c, ok
}

// ListUnits returns all template units ordered by id.
func (v transactionView) ListUnits() []TemplateUnit {
	out := make([]TemplateUnit, 0, len(v.state.units))
	for _, u := range v.state.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListChains returns all chain records ordered by head id.
func (v transactionView) ListChains() []Chain {
	out := make([]Chain, 0, len(v.state.chains))
	for _, c := range v.state.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Head < out[j].Head })
	return out
}

func (v transactionView) FindGroup(id domain.GroupID) (GroupTemplate, bool) {
	g, ok := v.state.groups[id]
	return g, ok
}

// ListGroups returns all group associations ordered by group id.
func (v transactionView) ListGroups() []GroupTemplate {
	out := make([]GroupTemplate, 0, len(v.state.groups))
	for _, g := range v.state.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateUnit allocates a new template unit id and stores the unit.
func (tx *transaction) CreateUnit(u TemplateUnit) (TemplateUnit, error) {
	if len(tx.state.units) >= tx.store.unitLimit {
		return TemplateUnit{}, domain.ErrPoolExhausted
	}
	u.ID = tx.state.nextID
	tx.state.nextID++
	tx.state.units[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityTemplateUnit, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUnit mutates a template unit using the provided mutator function.
func (tx *transaction) UpdateUnit(id domain.TemplateID, mutator func(*TemplateUnit) error) (TemplateUnit, error) {
	current, ok := tx.state.units[id]
	if !ok {
		return TemplateUnit{}, domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: id.String()}
	}
	before := current
	if err := mutator(&current); err != nil {
		return TemplateUnit{}, err
	}
	current.ID = id
	tx.state.units[id] = current
	tx.recordChange(Change{Entity: domain.EntityTemplateUnit, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUnit removes a single template unit. Neighbour links are the caller's concern.
func (tx *transaction) DeleteUnit(id domain.TemplateID) error {
	current, ok := tx.state.units[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: id.String()}
	}
	delete(tx.state.units, id)
	tx.recordChange(Change{Entity: domain.EntityTemplateUnit, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) FindUnit(id domain.TemplateID) (TemplateUnit, bool) {
	u, ok := tx.state.units[id]
	return u, ok
}

// PutChain creates or replaces the chain record keyed by its head.
func (tx *transaction) PutChain(c Chain) error {
	if c.Head == domain.InvalidTemplate || c.Tail == domain.InvalidTemplate {
		return fmt.Errorf("chain %d/%d: %w", c.Head, c.Tail, domain.ErrInconsistentChain)
	}
	if _, ok := tx.state.units[c.Head]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: c.Head.String()}
	}
	if _, ok := tx.state.units[c.Tail]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemplateUnit, ID: c.Tail.String()}
	}
	before, existed := tx.state.chains[c.Head]
	tx.state.chains[c.Head] = c
	if existed {
		tx.recordChange(Change{Entity: domain.EntityTemplateChain, Action: domain.ActionUpdate, Before: before, After: c})
		return nil
	}
	tx.recordChange(Change{Entity: domain.EntityTemplateChain, Action: domain.ActionCreate, After: c})
	return nil
}

// DeleteChain removes the chain record keyed by head. Units are left untouched.
func (tx *transaction) DeleteChain(head domain.TemplateID) error {
	current, ok := tx.state.chains[head]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTemplateChain, ID: head.String()}
	}
	delete(tx.state.chains, head)
	tx.recordChange(Change{Entity: domain.EntityTemplateChain, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) FindChain(head domain.TemplateID) (Chain, bool) {
	c, ok := tx.state.chains[head]
	return c, ok
}

// PutGroup creates or replaces a group association.
func (tx *transaction) PutGroup(g GroupTemplate) (GroupTemplate, error) {
	if g.GroupID == domain.DefaultGroup {
		return GroupTemplate{}, fmt.Errorf("default group cannot hold a template")
	}
	before, existed := tx.state.groups[g.GroupID]
	tx.state.groups[g.GroupID] = g
	if existed {
		tx.recordChange(Change{Entity: domain.EntityGroupTemplate, Action: domain.ActionUpdate, Before: before, After: g})
	} else {
		tx.recordChange(Change{Entity: domain.EntityGroupTemplate, Action: domain.ActionCreate, After: g})
	}
	return g, nil
}

// UpdateGroup mutates an existing group association.
func (tx *transaction) UpdateGroup(id domain.GroupID, mutator func(*GroupTemplate) error) (GroupTemplate, error) {
	current, ok := tx.state.groups[id]
	if !ok {
		return GroupTemplate{}, domain.ErrNotFound{Entity: domain.EntityGroupTemplate, ID: id.String()}
	}
	before := current
	if err := mutator(&current); err != nil {
		return GroupTemplate{}, err
	}
	current.GroupID = id
	tx.state.groups[id] = current
	tx.recordChange(Change{Entity: domain.EntityGroupTemplate, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

func (tx *transaction) FindGroup(id domain.GroupID) (GroupTemplate, bool) {
	g, ok := tx.state.groups[id]
	return g, ok
}

func (tx *transaction) ListGroups() []GroupTemplate {
	return newTransactionView(&tx.state).ListGroups()
}
