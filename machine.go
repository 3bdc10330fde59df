package hsm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stateforward/go-hfsm/activity"
	"github.com/stateforward/go-hfsm/pkg/logger"
	"github.com/stateforward/go-hfsm/pkg/metrics"
	"github.com/stateforward/go-hfsm/pkg/telemetry"
)

type behavior[T any] struct {
	entry  func(T)
	exit   func(T)
	update func(T, float64)
	guards []func(T) bool
	enter  []activity.Activity
	leave  []activity.Activity
}

type request struct {
	from, to StateID
	queued   bool
}

type Option func(*options)

type options struct {
	id       string
	logger   *zap.Logger
	provider trace.TracerProvider
	metrics  *metrics.Collector
}

func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) { o.provider = provider }
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(o *options) { o.metrics = collector }
}

// Machine runs a Model against one storage value. Hooks and guards receive
// Storage; they must not call back into the machine.
type Machine[T any] struct {
	Storage T

	id        string
	model     *Model
	behaviors []behavior[T]
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics.Collector

	// tree guards active; writers are the structural phases, Start and Terminate.
	tree   sync.RWMutex
	active []StateID

	// mu guards everything below and is always taken after tree.
	mu        sync.Mutex
	lifecycle *fsm.FSM
	ctx       context.Context
	pending   *request
	launch    *request
	settled   chan struct{}
	err       error
}

func New[T any](model *Model, storage T, opts ...Option) *Machine[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}
	m := &Machine[T]{
		Storage:   storage,
		id:        o.id,
		model:     model,
		behaviors: make([]behavior[T], model.Len()),
		logger:    o.logger.Named(logger.ComponentMachine).With(zap.String("machine", o.id)),
		tracer:    telemetry.Tracer(o.provider),
		metrics:   o.metrics,
		active:    make([]StateID, model.Len()),
		ctx:       context.Background(),
	}
	for id := range model.states {
		m.active[id] = None
		m.behaviors[id] = bind(model, StateID(id), storage)
	}
	m.lifecycle = newLifecycle(m.logger.Named(logger.ComponentLifecycle), func(phase string) {
		m.metrics.InFlight(m.id, InFlight(phase))
	})
	return m
}

func bind[T any](model *Model, id StateID, storage T) behavior[T] {
	source := &model.states[id]
	var b behavior[T]
	assign(&b.entry, source.entry, source.qualifiedName, "entry")
	assign(&b.exit, source.exit, source.qualifiedName, "exit")
	assign(&b.update, source.update, source.qualifiedName, "update")
	for _, transition := range source.transitions {
		var guard func(T) bool
		assign(&guard, transition.guard, source.qualifiedName, "guard")
		b.guards = append(b.guards, guard)
	}
	for _, declared := range source.enter {
		var factory func(T) activity.Activity
		assign(&factory, declared, source.qualifiedName, "enter activity")
		b.enter = append(b.enter, factory(storage))
	}
	for _, declared := range source.leave {
		var factory func(T) activity.Activity
		assign(&factory, declared, source.qualifiedName, "exit activity")
		b.leave = append(b.leave, factory(storage))
	}
	return b
}

func assign[F any](dst *F, src any, state, what string) {
	if src == nil {
		return
	}
	fn, ok := src.(F)
	if !ok {
		panic(fmt.Errorf("%s of %s is %T, machine expects %T", what, state, src, *dst))
	}
	*dst = fn
}

func (m *Machine[T]) ID() string {
	return m.id
}

func (m *Machine[T]) Model() *Model {
	return m.model
}

func (m *Machine[T]) Phase() string {
	return m.lifecycle.Current()
}

// Err returns the error of the last failed transition, if any.
func (m *Machine[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// fire moves the gate. The lifecycle never sees a caller's context: a
// cancelled one makes looplab/fsm return before the phase changes.
func (m *Machine[T]) fire(event string) error {
	if err := m.lifecycle.Event(context.Background(), event); err != nil {
		return lifecycleFailed(err, event, m.lifecycle.Current())
	}
	return nil
}

// Start enters the root and descends through initial states. Transitions
// launched by Tick run under ctx without its cancellation. Calling Start on a
// started machine does nothing.
func (m *Machine[T]) Start(ctx context.Context) {
	m.tree.Lock()
	defer m.tree.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycle.Current() != PhaseStopped {
		return
	}
	m.ctx = context.WithoutCancel(ctx)
	m.enter(m.model.Root(), true)
	if err := m.fire(eventStart); err != nil {
		m.logger.Error("start", zap.Error(err))
		return
	}
	m.logger.Debug("started", zap.String("state", m.model.QualifiedName(m.leafmost(m.model.Root()))))
}

// Terminate exits every active state and stops the machine.
func (m *Machine[T]) Terminate() error {
	m.tree.Lock()
	defer m.tree.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.lifecycle.Current() {
	case PhaseStopped:
		return nil
	case PhaseIdle:
	default:
		return errors.WithStack(ErrTransitionInFlight)
	}
	m.exit(m.model.Root())
	if err := m.fire(eventTerminate); err != nil {
		return err
	}
	m.logger.Debug("terminated")
	return nil
}

// Recover reopens the gate of a faulted machine. The tree stays wherever the
// failed transition left it and any pending request is dropped.
func (m *Machine[T]) Recover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycle.Current() != PhaseFaulted {
		return nil
	}
	if m.pending != nil {
		m.logger.Warn("pending transition dropped",
			zap.String("from", m.model.QualifiedName(m.pending.from)),
			zap.String("to", m.model.QualifiedName(m.pending.to)))
		m.pending = nil
	}
	m.err = nil
	return m.fire(eventRecover)
}

// Wait blocks until no transition is in flight. It returns the fault when the
// machine is faulted.
func (m *Machine[T]) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		phase := m.lifecycle.Current()
		if phase == PhaseFaulted {
			err := m.err
			m.mu.Unlock()
			return err
		}
		if !InFlight(phase) {
			m.mu.Unlock()
			return nil
		}
		settled := m.settled
		m.mu.Unlock()
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick runs one update pass over the active path, children before parents.
// It does nothing before Start or while a transition is in flight. A
// transition requested during the pass starts once the pass is over.
func (m *Machine[T]) Tick(dt float64) {
	m.tree.RLock()
	m.mu.Lock()
	if m.lifecycle.Current() != PhaseIdle {
		m.mu.Unlock()
		m.tree.RUnlock()
		return
	}
	m.mu.Unlock()
	m.update(m.model.Root(), dt)
	m.mu.Lock()
	launch, ctx := m.launch, m.ctx
	m.launch = nil
	m.mu.Unlock()
	m.tree.RUnlock()
	if launch != nil {
		go func() {
			// failures are logged and kept for Err and Wait
			_ = m.run(ctx, launch)
		}()
	}
}

func (m *Machine[T]) update(id StateID, dt float64) {
	if child := m.active[id]; child != None {
		m.update(child, dt)
	}
	if target := m.Decide(id); target != None {
		m.schedule(&request{from: m.leafmost(id), to: target})
		return
	}
	if update := m.behaviors[id].update; update != nil {
		update(m.Storage, dt)
	}
}

// schedule records a request made during a Tick pass.
func (m *Machine[T]) schedule(req *request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lifecycle.Current() != PhaseIdle {
		m.replace(req)
		return
	}
	if err := m.begin(); err != nil {
		m.logger.Error("transition not launched", zap.Error(err))
		return
	}
	m.launch = req
}

// Decide evaluates the transitions of id in declaration order and returns the
// target of the first one whose guard passes, or None.
func (m *Machine[T]) Decide(id StateID) StateID {
	if !m.model.Valid(id) {
		return None
	}
	for index, guard := range m.behaviors[id].guards {
		if guard == nil || guard(m.Storage) {
			return m.model.states[id].transitions[index].targetID
		}
	}
	return None
}

// ChangeState moves the machine from the leaf under from to to. It blocks
// while the exit and enter activities run and returns once the tree has
// settled, including any request that arrived meanwhile. When another
// transition is already in flight the request only replaces the pending one
// and ChangeState returns nil straight away.
func (m *Machine[T]) ChangeState(ctx context.Context, from, to StateID) error {
	req := &request{from: from, to: to}
	m.mu.Lock()
	switch phase := m.lifecycle.Current(); {
	case phase == PhaseStopped:
		m.mu.Unlock()
		return errors.WithStack(ErrNotStarted)
	case InFlight(phase):
		m.replace(req)
		m.mu.Unlock()
		return nil
	}
	if err := m.begin(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	return m.run(ctx, req)
}

func (m *Machine[T]) begin() error {
	if err := m.fire(eventBegin); err != nil {
		return err
	}
	m.settled = make(chan struct{})
	m.err = nil
	return nil
}

func (m *Machine[T]) replace(req *request) {
	if m.pending != nil {
		m.logger.Warn("pending transition replaced",
			zap.String("dropped", m.model.QualifiedName(m.pending.to)),
			zap.String("to", m.model.QualifiedName(req.to)))
		m.metrics.Replaced(m.id)
	}
	req.queued = true
	m.pending = req
}

// run performs req and then every request that became pending while it ran,
// handing the gate from one to the next without reopening it.
func (m *Machine[T]) run(ctx context.Context, req *request) error {
	var result error
	for first := true; req != nil; first = false {
		err := m.transition(ctx, req)
		switch {
		case err == nil:
		case errors.Is(err, ErrActivityFailed), errors.Is(err, ErrLifecycle):
			m.fault(err)
			return err
		default:
			m.logger.Error("transition rejected", zap.Error(err))
			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			if first {
				result = err
			}
		}
		if req, err = m.next(); err != nil {
			m.fault(err)
			return err
		}
	}
	return result
}

func (m *Machine[T]) next() (*request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.pending
	m.pending = nil
	if req == nil {
		if err := m.fire(eventSettle); err != nil {
			return nil, err
		}
		close(m.settled)
		return nil, nil
	}
	if m.lifecycle.Current() == PhaseEntering {
		if err := m.fire(eventRestart); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (m *Machine[T]) fault(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phase := m.lifecycle.Current()
	m.logger.Error("transition faulted", zap.String("phase", phase), zap.Error(err))
	m.metrics.Fault(m.id, phase)
	m.err = err
	if err := m.fire(eventFault); err != nil {
		m.logger.Error("fault not recorded", zap.Error(err))
	}
	close(m.settled)
}

type plan struct {
	from, to, lca StateID
	// rebased is the stale source a queued request named, or None.
	rebased StateID
	exits         []StateID
	enters        []StateID
	leave         []activity.Activity
	enter         []activity.Activity
}

func (m *Machine[T]) plan(req *request) (plan, error) {
	m.tree.RLock()
	defer m.tree.RUnlock()
	p := plan{from: req.from, to: req.to, rebased: None}
	if !m.model.Valid(p.from) || !m.model.Valid(p.to) {
		return p, invariantf("unknown state in transition %d -> %d", p.from, p.to)
	}
	if !m.isActive(p.from) {
		if !req.queued {
			return p, invariantf("source state %s is not active", m.model.QualifiedName(p.from))
		}
		m.logger.Debug("stale source rebased",
			zap.String("from", m.model.QualifiedName(p.from)),
			zap.String("leaf", m.model.QualifiedName(m.leafmost(m.model.Root()))))
		p.rebased, p.from = p.from, m.model.Root()
	}
	p.from = m.leafmost(p.from)
	p.lca = m.model.LCA(p.from, p.to)
	if p.lca == None {
		return p, invariantf("%s and %s share no ancestor", m.model.QualifiedName(p.from), m.model.QualifiedName(p.to))
	}
	for current := p.from; current != p.lca; current = m.model.Parent(current) {
		p.exits = append(p.exits, current)
		p.leave = append(p.leave, m.behaviors[current].leave...)
	}
	for current := p.to; current != p.lca; current = m.model.Parent(current) {
		p.enters = append(p.enters, current)
	}
	slices.Reverse(p.enters)
	for _, current := range p.enters {
		p.enter = append(p.enter, m.behaviors[current].enter...)
	}
	return p, nil
}

func (m *Machine[T]) transition(ctx context.Context, req *request) (err error) {
	started := time.Now()
	p, err := m.plan(req)
	if err != nil {
		return err
	}
	from, to := m.model.QualifiedName(p.from), m.model.QualifiedName(p.to)
	id := uuid.NewString()
	log := m.logger.With(zap.String("transition", id), zap.String("from", from), zap.String("to", to),
		zap.String("lca", m.model.QualifiedName(p.lca)))
	ctx, end := telemetry.Start(ctx, m.tracer, "hsm.ChangeState",
		telemetry.MachineKey.String(m.id),
		telemetry.TransitionKey.String(id),
		telemetry.FromKey.String(from),
		telemetry.ToKey.String(to),
		telemetry.LCAKey.String(m.model.QualifiedName(p.lca)),
		telemetry.PendingKey.Bool(req.queued),
	)
	defer func() { end(err) }()
	if p.rebased != None {
		telemetry.Annotate(ctx, "hsm.rebased", telemetry.FromKey.String(m.model.QualifiedName(p.rebased)))
	}

	log.Debug("exiting", zap.Int("activities", len(p.leave)))
	if err := m.perform(ctx, "hsm.exit", p.leave); err != nil {
		return activityFailed(err, "exit", from, to)
	}
	m.tree.Lock()
	for _, state := range p.exits {
		m.exit(state)
	}
	m.tree.Unlock()

	if err := m.fire(eventEnter); err != nil {
		return err
	}
	log.Debug("entering", zap.Int("activities", len(p.enter)))
	if err := m.perform(ctx, "hsm.enter", p.enter); err != nil {
		return activityFailed(err, "enter", from, to)
	}
	m.tree.Lock()
	for _, state := range p.enters {
		m.enter(state, state == p.to)
	}
	m.tree.Unlock()

	took := time.Since(started)
	m.metrics.Transition(m.id, from, to, took)
	log.Debug("transitioned", zap.Duration("took", took))
	return nil
}

func (m *Machine[T]) perform(ctx context.Context, name string, activities []activity.Activity) (err error) {
	if len(activities) == 0 {
		return nil
	}
	ctx, end := telemetry.Start(ctx, m.tracer, name, telemetry.ActivitiesKey.Int(len(activities)))
	defer func() { end(err) }()
	return activity.NewSequencer(m.logger.Named(logger.ComponentActivity), activities...).Run(ctx)
}

func (m *Machine[T]) enter(id StateID, defaultEntry bool) {
	if parent := m.model.Parent(id); parent != None {
		m.active[parent] = id
	}
	if entry := m.behaviors[id].entry; entry != nil {
		entry(m.Storage)
	}
	m.logger.Debug("entered", zap.String("state", m.model.QualifiedName(id)))
	if !defaultEntry {
		return
	}
	if initial := m.model.InitialState(id); initial != None {
		m.enter(initial, true)
	}
}

func (m *Machine[T]) exit(id StateID) {
	if child := m.active[id]; child != None {
		m.exit(child)
	}
	m.active[id] = None
	if exit := m.behaviors[id].exit; exit != nil {
		exit(m.Storage)
	}
	if parent := m.model.Parent(id); parent != None && m.active[parent] == id {
		m.active[parent] = None
	}
	m.logger.Debug("exited", zap.String("state", m.model.QualifiedName(id)))
}

func (m *Machine[T]) isActive(id StateID) bool {
	if !m.model.Valid(id) {
		return false
	}
	for current := id; current != m.model.Root(); current = m.model.Parent(current) {
		if m.active[m.model.Parent(current)] != current {
			return false
		}
	}
	return m.lifecycle.Current() != PhaseStopped
}

func (m *Machine[T]) leafmost(id StateID) StateID {
	for m.active[id] != None {
		id = m.active[id]
	}
	return id
}

/******* Queries *******/

// LCA is Model.LCA reporting unknown or unrelated states as an invariant
// error.
func (m *Machine[T]) LCA(from, to StateID) (StateID, error) {
	lca := m.model.LCA(from, to)
	if lca == None {
		return None, invariantf("no common ancestor for %d and %d", from, to)
	}
	return lca, nil
}

// LeafmostActive follows the active children of id down to a leaf.
func (m *Machine[T]) LeafmostActive(id StateID) StateID {
	if !m.model.Valid(id) {
		return None
	}
	m.tree.RLock()
	defer m.tree.RUnlock()
	return m.leafmost(id)
}

func (m *Machine[T]) Leaf() StateID {
	return m.LeafmostActive(m.model.Root())
}

// State returns the qualified name of the active leaf.
func (m *Machine[T]) State() string {
	return m.model.QualifiedName(m.Leaf())
}

func (m *Machine[T]) ActiveChild(id StateID) StateID {
	if !m.model.Valid(id) {
		return None
	}
	m.tree.RLock()
	defer m.tree.RUnlock()
	return m.active[id]
}

func (m *Machine[T]) IsActive(id StateID) bool {
	m.tree.RLock()
	defer m.tree.RUnlock()
	return m.isActive(id)
}

// ActivePath lists the active states from the root down to the leaf.
func (m *Machine[T]) ActivePath() []StateID {
	m.tree.RLock()
	defer m.tree.RUnlock()
	path := []StateID{m.model.Root()}
	for current := m.active[m.model.Root()]; current != None; current = m.active[current] {
		path = append(path, current)
	}
	return path
}

// CurrentStateLog names the active states from the leaf up to the root,
// e.g. "crouch -> grounded -> player".
func (m *Machine[T]) CurrentStateLog() string {
	leaf := m.Leaf()
	var names []string
	for current := range m.model.PathToRoot(leaf) {
		names = append(names, m.model.StateName(current))
	}
	return strings.Join(names, " -> ")
}
