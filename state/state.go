package state

import (
	"errors"
	"sync"
)

// Phase is the lifecycle position of a room's match.
type Phase string

const (
	BetweenGames Phase = "between_games"
	Playing      Phase = "playing"
)

// StateMachine governs phase transitions.
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from, to Phase, condition func() bool) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// ErrUnknownPhase is returned when a transition names a phase outside the enum.
var ErrUnknownPhase = errors.New("unknown phase")

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == BetweenGames || p == Playing
}

// BaseStateMachine is a table-driven machine. Only registered edges are
// legal; changing to the current phase is a no-op.
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	onEnter      map[Phase][]func(from Phase)
	onExit       map[Phase][]func(to Phase)
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
		onEnter:      make(map[Phase][]func(Phase)),
		onExit:       make(map[Phase][]func(Phase)),
	}
}

// NewPhaseMachine returns the between_games <-> playing machine every room
// starts with.
func NewPhaseMachine() *BaseStateMachine {
	sm := NewBaseStateMachine(BetweenGames)
	_ = sm.AddTransition(BetweenGames, Playing, nil)
	_ = sm.AddTransition(Playing, BetweenGames, nil)
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	if !to.Valid() {
		return ErrUnknownPhase
	}

	sm.mutex.Lock()
	from := sm.currentState
	if from == to {
		sm.mutex.Unlock()
		return nil
	}

	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[to]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.currentState = to
	exits := sm.onExit[from]
	enters := sm.onEnter[to]
	sm.mutex.Unlock()

	// hooks run unlocked so they may read the machine
	for _, fn := range exits {
		fn(to)
	}
	for _, fn := range enters {
		fn(from)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	if !from.Valid() || !to.Valid() {
		return ErrUnknownPhase
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}

	sm.transitions[from][to] = condition
	return nil
}

// OnEnter registers fn to run after the machine enters phase.
func (sm *BaseStateMachine) OnEnter(phase Phase, fn func(from Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.onEnter[phase] = append(sm.onEnter[phase], fn)
}

// OnExit registers fn to run after the machine leaves phase.
func (sm *BaseStateMachine) OnExit(phase Phase, fn func(to Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.onExit[phase] = append(sm.onExit[phase], fn)
}
