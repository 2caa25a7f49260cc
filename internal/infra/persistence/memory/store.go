// Package memory provides an in-memory implementation of the core persistence
// store used for tests and as the state engine behind the durable drivers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"spacecore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Space aliases domain.Space for in-memory persistence operations.
	Space = domain.Space
	// UpdateEvent aliases domain.UpdateEvent.
	UpdateEvent = domain.UpdateEvent
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
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	spaces map[int]Space
}

// Snapshot captures a point-in-time clone of the store state. Spaces are
// serialized as an array ordered by id so durable drivers produce stable
// output.
type Snapshot struct {
	Spaces []Space `json:"spaces"`
}

func newMemoryState() memoryState {
	return memoryState{spaces: make(map[int]Space)}
}

func (st memoryState) clone() memoryState {
	next := newMemoryState()
	for id, space := range st.spaces {
		next.spaces[id] = space.Clone()
	}
	return next
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{Spaces: make([]Space, 0, len(state.spaces))}
	for _, space := range state.spaces {
		s.Spaces = append(s.Spaces, space.Clone())
	}
	sort.Slice(s.Spaces, func(i, j int) bool { return s.Spaces[i].ID < s.Spaces[j].ID })
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, space := range s.Spaces {
		state.spaces[space.ID] = space.Clone()
	}
	return state
}

// Store is a mutex-guarded in-memory space store with transactional writes
// and rule evaluation on commit.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
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

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

func (v transactionView) ListSpaces() []Space {
	out := make([]Space, 0, len(v.state.spaces))
	for _, space := range v.state.spaces {
		out = append(out, space.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindSpace(id int) (Space, bool) {
	space, ok := v.state.spaces[id]
	if !ok {
		return Space{}, false
	}
	return space.Clone(), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Rules are evaluated against the post-mutation state; a blocking
// violation aborts the commit and the previous state stays in place.
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
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateSpace inserts a new space. A zero ID is assigned the next sequential
// id; an explicit non-zero ID must not collide with an existing record.
func (tx *transaction) CreateSpace(space Space) (Space, error) {
	if space.ID == 0 {
		space.ID = tx.nextID()
	} else if _, exists := tx.state.spaces[space.ID]; exists {
		return Space{}, domain.ValidationError{Reason: "space id already in use"}
	}
	if space.CreatedAt == "" {
		space.CreatedAt = domain.FormatTimestamp(tx.now)
	}
	if space.Status == "" {
		space.Status = domain.DeriveStatus(space)
	}
	stored := space.Clone()
	tx.state.spaces[stored.ID] = stored
	after := stored.Clone()
	tx.recordChange(Change{Action: domain.ChangeCreate, After: &after})
	return stored.Clone(), nil
}

func (tx *transaction) nextID() int {
	max := 0
	for id := range tx.state.spaces {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (tx *transaction) mutateSpace(id int, action domain.ChangeAction, mutator func(*Space) error) (Space, error) {
	current, ok := tx.state.spaces[id]
	if !ok {
		return Space{}, domain.NotFoundError{ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Space{}, err
	}
	if next.ID != id {
		return Space{}, domain.ValidationError{Reason: "space id is immutable"}
	}
	tx.state.spaces[id] = next
	beforeCopy := before.Clone()
	afterCopy := next.Clone()
	tx.recordChange(Change{Action: action, Before: &beforeCopy, After: &afterCopy})
	return next.Clone(), nil
}

// UpdateSpace applies mutator to a clone of the stored space and commits the
// result. The mutator must not change the space ID.
func (tx *transaction) UpdateSpace(id int, mutator func(*Space) error) (Space, error) {
	return tx.mutateSpace(id, domain.ChangeUpdate, mutator)
}

// AppendUpdate appends an event to the space's log via the event log engine.
func (tx *transaction) AppendUpdate(id int, event UpdateEvent, appendToImages bool) (Space, error) {
	return tx.mutateSpace(id, domain.ChangeAppend, func(space *Space) error {
		next, err := domain.ApplyUpdate(*space, event, appendToImages)
		if err != nil {
			return err
		}
		*space = next
		return nil
	})
}

// RevertUpdate pops the most recent event from the space's log.
func (tx *transaction) RevertUpdate(id int) (Space, error) {
	return tx.mutateSpace(id, domain.ChangeRevert, func(space *Space) error {
		next, err := domain.RevertLastUpdate(*space)
		if err != nil {
			return err
		}
		*space = next
		return nil
	})
}

// FindSpace looks up a space within the transactional state.
func (tx *transaction) FindSpace(id int) (Space, bool) {
	space, ok := tx.state.spaces[id]
	if !ok {
		return Space{}, false
	}
	return space.Clone(), true
}

// GetSpace returns the committed space with the given id.
func (s *Store) GetSpace(id int) (Space, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.state.spaces[id]
	if !ok {
		return Space{}, false
	}
	return space.Clone(), true
}

// ListSpaces returns all committed spaces ordered by id.
func (s *Store) ListSpaces() []Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Space, 0, len(s.state.spaces))
	for _, space := range s.state.spaces {
		out = append(out, space.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
