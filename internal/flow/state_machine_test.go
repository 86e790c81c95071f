package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
)

func newTestSM() *StateMachine {
	return NewStateMachine("CDM01", zap.NewNop())
}

func TestStateMachineHappyPath(t *testing.T) {
	sm := newTestSM()
	ctx := context.Background()

	assert.Equal(t, StateCurrencySelection, sm.GetState())

	assert.NoError(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.Equal(t, StateInstructions, sm.GetState())

	assert.NoError(t, sm.Trigger(ctx, EventCount))
	assert.Equal(t, StateCountingDetail, sm.GetState())

	// recount stays on the detail screen
	assert.NoError(t, sm.Trigger(ctx, EventCount))
	assert.Equal(t, StateCountingDetail, sm.GetState())

	assert.NoError(t, sm.Trigger(ctx, EventDeposit))
	assert.Equal(t, StateReceipt, sm.GetState())

	assert.NoError(t, sm.Trigger(ctx, EventFinish))
	assert.Equal(t, StateCurrencySelection, sm.GetState())
}

func TestStateMachineInvalidTransition(t *testing.T) {
	sm := newTestSM()
	ctx := context.Background()

	err := sm.Trigger(ctx, EventDeposit)
	assert.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrFlowState))
	assert.Equal(t, StateCurrencySelection, sm.GetState(), "failed trigger keeps the state")
}

func TestStateMachineCancelFromBothScreens(t *testing.T) {
	ctx := context.Background()

	sm := newTestSM()
	assert.NoError(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.NoError(t, sm.Trigger(ctx, EventCancel))
	assert.Equal(t, StateCurrencySelection, sm.GetState())

	sm = newTestSM()
	assert.NoError(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.NoError(t, sm.Trigger(ctx, EventCount))
	assert.NoError(t, sm.Trigger(ctx, EventCancel))
	assert.Equal(t, StateCurrencySelection, sm.GetState())
}

func TestStateMachineDesyncIsSticky(t *testing.T) {
	sm := newTestSM()
	ctx := context.Background()

	assert.NoError(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.NoError(t, sm.Trigger(ctx, EventDesync))
	assert.Equal(t, StateDesynchronized, sm.GetState())

	// only recover leaves the desynchronized state
	assert.Error(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.Error(t, sm.Trigger(ctx, EventCancel))
	assert.NoError(t, sm.Trigger(ctx, EventRecover))
	assert.Equal(t, StateCurrencySelection, sm.GetState())
}

func TestStateMachineOnStateChange(t *testing.T) {
	sm := newTestSM()
	ctx := context.Background()

	var gotFrom, gotTo State
	sm.OnStateChange(func(from, to State) {
		gotFrom, gotTo = from, to
	})

	assert.NoError(t, sm.Trigger(ctx, EventSelectCurrency))
	assert.Equal(t, StateCurrencySelection, gotFrom)
	assert.Equal(t, StateInstructions, gotTo)
}

// The hub wiring reads the machine from inside the callback; Trigger
// must not still hold the mutex when it fires.
func TestStateMachineCallbackMayReadState(t *testing.T) {
	sm := newTestSM()
	ctx := context.Background()

	var seen State
	sm.OnStateChange(func(from, to State) {
		seen = sm.GetState()
	})

	done := make(chan error, 1)
	go func() { done <- sm.Trigger(ctx, EventSelectCurrency) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Equal(t, StateInstructions, seen)
	case <-time.After(2 * time.Second):
		t.Fatal("Trigger never returned: callback blocked on the state machine mutex")
	}
}
