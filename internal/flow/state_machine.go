package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
)

// State is the deposit flow state, one per screen of the kiosk plus the
// desynchronized terminal state.
type State string

const (
	// StateCurrencySelection is the idle state: no transaction open on
	// the machine, the operator picks a currency.
	StateCurrencySelection State = "currency_selection"
	// StateInstructions means a transaction is open and the escrow gate
	// accepts notes.
	StateInstructions State = "instructions"
	// StateCountingDetail shows the per-denomination count; recounting
	// stays here.
	StateCountingDetail State = "counting_detail"
	// StateReceipt means the cash is stored and the deposit registered.
	StateReceipt State = "receipt"
	// StateDesynchronized means a cancel sequence failed midway: the
	// machine's real state no longer matches ours and an operator has to
	// intervene before the flow may continue.
	StateDesynchronized State = "desynchronized"
)

// Events accepted by the flow.
const (
	EventSelectCurrency = "select_currency"
	EventCount          = "count"
	EventDeposit        = "deposit"
	EventCancel         = "cancel"
	EventFinish         = "finish"
	EventDesync         = "desync"
	EventRecover        = "recover"
)

// Transition links a state and event to the next state.
type Transition struct {
	From   State
	Event  string
	To     State
	Action func(ctx context.Context, sm *StateMachine) error
}

// StateMachine tracks one machine's flow position. Transitions are
// validated against the table; an invalid event leaves the state as is.
type StateMachine struct {
	mu           sync.RWMutex
	currentState State
	deviceCode   string
	transitions  map[string][]Transition
	logger       *zap.Logger
	lastUpdate   time.Time

	onStateChange func(from, to State)
}

// NewStateMachine creates a flow state machine for one machine.
func NewStateMachine(deviceCode string, logger *zap.Logger) *StateMachine {
	sm := &StateMachine{
		currentState: StateCurrencySelection,
		deviceCode:   deviceCode,
		transitions:  make(map[string][]Transition),
		logger:       logger,
		lastUpdate:   time.Now(),
	}
	sm.initTransitions()
	return sm
}

func (sm *StateMachine) initTransitions() {
	sm.addTransition(Transition{From: StateCurrencySelection, Event: EventSelectCurrency, To: StateInstructions})
	sm.addTransition(Transition{From: StateInstructions, Event: EventCount, To: StateCountingDetail})

	// recounting stays on the detail screen
	sm.addTransition(Transition{From: StateCountingDetail, Event: EventCount, To: StateCountingDetail})

	sm.addTransition(Transition{From: StateCountingDetail, Event: EventDeposit, To: StateReceipt})
	sm.addTransition(Transition{From: StateReceipt, Event: EventFinish, To: StateCurrencySelection})

	// cancel is available from both open-transaction screens
	sm.addTransition(Transition{From: StateInstructions, Event: EventCancel, To: StateCurrencySelection})
	sm.addTransition(Transition{From: StateCountingDetail, Event: EventCancel, To: StateCurrencySelection})

	// a failed cancel leaves the machine in an unknown physical state
	for _, state := range []State{StateInstructions, StateCountingDetail} {
		sm.addTransition(Transition{From: state, Event: EventDesync, To: StateDesynchronized})
	}

	// manual recovery after an operator has verified the machine
	sm.addTransition(Transition{From: StateDesynchronized, Event: EventRecover, To: StateCurrencySelection})
}

func (sm *StateMachine) addTransition(transition Transition) {
	key := sm.transitionKey(transition.From, transition.Event)
	sm.transitions[key] = append(sm.transitions[key], transition)
}

func (sm *StateMachine) transitionKey(state State, event string) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// Trigger fires an event. The action of the matched transition runs
// before the state is updated; an action error keeps the current state.
// The state change callback runs after the lock is released, so it may
// read the machine freely.
func (sm *StateMachine) Trigger(ctx context.Context, event string) error {
	sm.mu.Lock()

	key := sm.transitionKey(sm.currentState, event)
	transitions, exists := sm.transitions[key]
	if !exists || len(transitions) == 0 {
		err := apperrors.Newf(apperrors.ErrFlowState,
			"invalid transition: state=%s event=%s", sm.currentState, event)
		sm.mu.Unlock()
		return err
	}

	transition := transitions[0]
	oldState := sm.currentState

	if transition.Action != nil {
		if err := transition.Action(ctx, sm); err != nil {
			sm.mu.Unlock()
			return fmt.Errorf("transition action failed: %w", err)
		}
	}

	sm.currentState = transition.To
	sm.lastUpdate = time.Now()
	onStateChange := sm.onStateChange
	sm.mu.Unlock()

	if onStateChange != nil {
		onStateChange(oldState, transition.To)
	}

	sm.logger.Info("flow state change",
		zap.String("device", sm.deviceCode),
		zap.String("from", string(oldState)),
		zap.String("to", string(transition.To)),
		zap.String("event", event),
	)

	return nil
}

// GetState returns the current state.
func (sm *StateMachine) GetState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// CanTrigger reports whether the event is valid in the current state.
func (sm *StateMachine) CanTrigger(event string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	key := sm.transitionKey(sm.currentState, event)
	return len(sm.transitions[key]) > 0
}

// OnStateChange registers the state change callback.
func (sm *StateMachine) OnStateChange(fn func(from, to State)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStateChange = fn
}

// LastUpdate returns the time of the last transition.
func (sm *StateMachine) LastUpdate() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastUpdate
}
