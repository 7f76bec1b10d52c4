package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PlanSpec is the already-bound, already-placed plan a worker executes
// for one query: a pre-built graph of sources, pipelines, and sinks
// (spec §1 "the worker-local execution runtime"; SQL parsing, catalog
// binding, and physical planning across the topology are out of scope
// collaborators that produce this graph). registerQuery's planSpec
// parameter (spec §6) is this type.
type PlanSpec struct {
	Sources   []*SourceHandle
	Pipelines []*Pipeline
	Sinks     []*SinkHandle
}

// Manager is the worker-local query lifecycle surface spec §6 describes
// as a "C-style API boundary": registerQuery/startQuery/stopQuery/
// queryStatus. Cross-worker coordination of these calls (the
// distributed query manager) is an out-of-scope collaborator (spec §1
// Non-goals); Manager only runs what it is asked to run on this
// worker.
type Manager struct {
	enqueuer TaskEnqueuer
	pool     BufferPool

	mu      sync.Mutex
	queries map[QueryID]*QEP
}

// NewManager returns a Manager that deploys queries through enqueuer
// (the scheduler) and hands pipelines pool as their local buffer pool.
func NewManager(enqueuer TaskEnqueuer, pool BufferPool) *Manager {
	return &Manager{enqueuer: enqueuer, pool: pool, queries: make(map[QueryID]*QEP)}
}

// RegisterQuery builds a QEP from plan and assigns it a fresh QueryID
// (spec §6 "registerQuery(planSpec, catalogs) → QueryId"; catalogs are
// already resolved into plan by the out-of-scope binding layer, so
// Manager does not take them directly).
func (m *Manager) RegisterQuery(plan PlanSpec) (QueryID, error) {
	id := QueryID(uuid.NewString())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queries[id]; exists {
		return "", ErrAlreadyRegistered
	}
	m.queries[id] = NewQEP(id, plan.Sources, plan.Pipelines, plan.Sinks)
	return id, nil
}

// StartQuery runs registerQuery's QEP through Setup and Start, and
// returns its termination future (spec §6 "startQuery(queryId) →
// future<Result>").
func (m *Manager) StartQuery(ctx context.Context, id QueryID) (<-chan Result, error) {
	q, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if err := q.Setup(m.enqueuer, m.pool); err != nil {
		return nil, err
	}
	if err := q.Start(ctx); err != nil {
		return nil, err
	}
	return q.Future(), nil
}

// StopQuery requests termination of a running query (spec §6
// "stopQuery(queryId, {graceful|hard})").
func (m *Manager) StopQuery(id QueryID, t TerminationType) error {
	q, err := m.get(id)
	if err != nil {
		return err
	}
	return q.Stop(t)
}

// QueryStatus reports a query's current state (spec §6
// "queryStatus(queryId) → {state, error?, timestamps{...}}").
func (m *Manager) QueryStatus(id QueryID) (QueryStatus, error) {
	q, err := m.get(id)
	if err != nil {
		return QueryStatus{}, err
	}
	return q.QueryStatus(), nil
}

// DestroyQuery releases a terminated query's QEP, removing it from the
// registry. Returns an error (and leaves the query registered) if the
// QEP has not actually finished (EXPANSION C.8).
func (m *Manager) DestroyQuery(id QueryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return ErrQueryNotFound
	}
	if err := q.Destroy(); err != nil {
		return err
	}
	delete(m.queries, id)
	return nil
}

func (m *Manager) get(id QueryID) (*QEP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, id)
	}
	return q, nil
}
