package hsm

import (
	"fmt"
	"iter"
	"path"
	"slices"
	"strings"

	"github.com/stateforward/go-hfsm/activity"
	"github.com/stateforward/go-hfsm/pkg/set"
)

// StateID is the handle of a state in its Model's arena.
type StateID int

// None is the absent state.
const None StateID = -1

/******* State *******/

type state struct {
	name          string
	qualifiedName string
	parent        StateID
	children      []StateID
	initialName   string
	initial       StateID
	entry         any
	exit          any
	update        any
	transitions   []*transition
	enter         []any
	leave         []any
}

/******* Transition *******/

type transition struct {
	owner    StateID
	target   string
	targetID StateID
	guard    any
}

/******* Model *******/

// Model is an immutable state tree. States live in a single slice and refer to
// each other by StateID; the root is always StateID 0.
type Model struct {
	name   string
	states []state
	index  map[string]StateID
}

// Partial is one piece of a model declaration.
type Partial = func(model *Model, stack []any)

func apply(model *Model, stack []any, partials ...Partial) {
	for _, partial := range partials {
		partial(model, stack)
	}
}

func find[E any](stack []any) (E, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if element, ok := stack[i].(E); ok {
			return element, true
		}
	}
	var zero E
	return zero, false
}

func (model *Model) add(parent StateID, name, qualifiedName string) StateID {
	id := StateID(len(model.states))
	model.states = append(model.states, state{
		name:          name,
		qualifiedName: qualifiedName,
		parent:        parent,
		initial:       None,
	})
	model.index[qualifiedName] = id
	if parent != None {
		model.states[parent].children = append(model.states[parent].children, id)
	}
	return id
}

func (model *Model) resolve(owner StateID, name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(model.states[owner].qualifiedName, name)
}

// Define builds a model whose root state is called name. The whole tree is
// built eagerly; malformed declarations panic.
func Define(name string, partials ...Partial) Model {
	if name == "" {
		name = "root"
	}
	model := Model{name: name, index: map[string]StateID{}}
	root := model.add(None, name, "/")
	apply(&model, []any{root}, partials...)
	for id := range model.states {
		current := &model.states[id]
		if current.initialName != "" {
			initial, ok := model.index[current.initialName]
			if !ok {
				panic(fmt.Errorf("missing initial state %s for %s", current.initialName, current.qualifiedName))
			}
			if model.states[initial].parent != StateID(id) {
				panic(fmt.Errorf("initial state %s of %s must be an immediate child", current.initialName, current.qualifiedName))
			}
			current.initial = initial
		}
		for _, transition := range current.transitions {
			target, ok := model.index[transition.target]
			if !ok {
				panic(fmt.Errorf("missing target %s for transition of %s", transition.target, current.qualifiedName))
			}
			transition.targetID = target
		}
	}
	return model
}

func State(name string, partials ...Partial) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("state %s must be declared within a state", name))
		}
		if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
			panic(fmt.Errorf("invalid state name %q", name))
		}
		qualifiedName := path.Join(model.states[owner].qualifiedName, name)
		if _, exists := model.index[qualifiedName]; exists {
			panic(fmt.Errorf("state %s already exists", qualifiedName))
		}
		id := model.add(owner, name, qualifiedName)
		apply(model, append(stack, id), partials...)
	}
}

// Initial names the child a composite state descends into when it is entered
// by default. Relative names resolve against the declaring state.
func Initial(name string) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("initial must be declared within a state"))
		}
		if model.states[owner].initialName != "" {
			panic(fmt.Errorf("initial state already set for %s", model.states[owner].qualifiedName))
		}
		model.states[owner].initialName = model.resolve(owner, name)
	}
}

func Entry[T any](fn func(ctx T)) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("entry must be declared within a state"))
		}
		model.states[owner].entry = fn
	}
}

func Exit[T any](fn func(ctx T)) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("exit must be declared within a state"))
		}
		model.states[owner].exit = fn
	}
}

// Update runs once per tick while the state is active and did not request a
// transition.
func Update[T any](fn func(ctx T, dt float64)) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("update must be declared within a state"))
		}
		model.states[owner].update = fn
	}
}

// EnterActivity attaches an activity that must complete before the state is
// structurally entered. factory is called once per machine with its storage.
func EnterActivity[T any](factory func(ctx T) activity.Activity) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("enter activity must be declared within a state"))
		}
		model.states[owner].enter = append(model.states[owner].enter, factory)
	}
}

func ExitActivity[T any](factory func(ctx T) activity.Activity) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("exit activity must be declared within a state"))
		}
		model.states[owner].leave = append(model.states[owner].leave, factory)
	}
}

// Transition declares a candidate target for the owning state's decision.
// Candidates are tried in declaration order and the first whose guard passes
// wins; a candidate without a guard always passes.
func Transition(partials ...Partial) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[StateID](stack)
		if !ok {
			panic(fmt.Errorf("transition must be declared within a state"))
		}
		transition := &transition{owner: owner, targetID: None}
		apply(model, append(stack, transition), partials...)
		if transition.target == "" {
			panic(fmt.Errorf("transition of %s has no target", model.states[owner].qualifiedName))
		}
		model.states[owner].transitions = append(model.states[owner].transitions, transition)
	}
}

func Target(name string) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[*transition](stack)
		if !ok {
			panic(fmt.Errorf("Target() must be called within a Transition"))
		}
		if owner.target != "" {
			panic(fmt.Errorf("transition already has target %s", owner.target))
		}
		owner.target = model.resolve(owner.owner, name)
	}
}

func Guard[T any](fn func(ctx T) bool) Partial {
	return func(model *Model, stack []any) {
		owner, ok := find[*transition](stack)
		if !ok {
			panic(fmt.Errorf("guard must be called within a Transition"))
		}
		owner.guard = fn
	}
}

/******* Queries *******/

func (model *Model) Name() string {
	return model.name
}

func (model *Model) Root() StateID {
	return 0
}

func (model *Model) Len() int {
	return len(model.states)
}

func (model *Model) Valid(id StateID) bool {
	return id >= 0 && int(id) < len(model.states)
}

// States yields every state in declaration order, parents before children.
func (model *Model) States() iter.Seq[StateID] {
	return func(yield func(StateID) bool) {
		for id := range model.states {
			if !yield(StateID(id)) {
				return
			}
		}
	}
}

func (model *Model) Lookup(qualifiedName string) (StateID, bool) {
	id, ok := model.index[path.Clean(qualifiedName)]
	return id, ok
}

func (model *Model) MustLookup(qualifiedName string) StateID {
	id, ok := model.Lookup(qualifiedName)
	if !ok {
		panic(fmt.Errorf("unknown state %s", qualifiedName))
	}
	return id
}

func (model *Model) QualifiedName(id StateID) string {
	if !model.Valid(id) {
		return ""
	}
	return model.states[id].qualifiedName
}

func (model *Model) StateName(id StateID) string {
	if !model.Valid(id) {
		return ""
	}
	return model.states[id].name
}

func (model *Model) Parent(id StateID) StateID {
	if !model.Valid(id) {
		return None
	}
	return model.states[id].parent
}

func (model *Model) Children(id StateID) []StateID {
	if !model.Valid(id) {
		return nil
	}
	return slices.Clone(model.states[id].children)
}

// InitialState returns the default child of id, or None for leaves and
// composites without one.
func (model *Model) InitialState(id StateID) StateID {
	if !model.Valid(id) {
		return None
	}
	return model.states[id].initial
}

// Targets lists the declared transition targets of id in priority order.
func (model *Model) Targets(id StateID) []StateID {
	if !model.Valid(id) {
		return nil
	}
	targets := make([]StateID, 0, len(model.states[id].transitions))
	for _, transition := range model.states[id].transitions {
		targets = append(targets, transition.targetID)
	}
	return targets
}

// Activities reports how many enter and exit activities id declares.
func (model *Model) Activities(id StateID) (enter, exit int) {
	if !model.Valid(id) {
		return 0, 0
	}
	return len(model.states[id].enter), len(model.states[id].leave)
}

func (model *Model) Depth(id StateID) int {
	depth := -1
	for range model.PathToRoot(id) {
		depth++
	}
	return depth
}

// PathToRoot yields id and then each of its ancestors up to and including the
// root. The sequence can be ranged over any number of times.
func (model *Model) PathToRoot(id StateID) iter.Seq[StateID] {
	return func(yield func(StateID) bool) {
		for current := id; model.Valid(current); current = model.states[current].parent {
			if !yield(current) {
				return
			}
		}
	}
}

// LCA finds the lowest common ancestor of two states, where a state counts as
// its own ancestor.
//
// For example, with root / and children /g/idle, /g/crouch and /air:
// - LCA(/g/idle, /g/crouch) returns /g
// - LCA(/g/crouch, /air) returns /
// - LCA(/g, /g/idle) returns /g
// - LCA(/g/idle, /g/idle) returns /g/idle
//
// It returns None when either state is unknown.
func (model *Model) LCA(from, to StateID) StateID {
	if !model.Valid(from) || !model.Valid(to) {
		return None
	}
	if lca, ok := set.Collect(model.PathToRoot(from)).First(model.PathToRoot(to)); ok {
		return lca
	}
	return None
}
