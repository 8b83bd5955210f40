// Package ledger implements the stateful core of the wheel: open
// positions, the cash balance, the append-only trade log, and the
// per-symbol lifecycle state machine with its accounting rules.
package ledger

import "fmt"

// SlotState is the wheel lifecycle state of a single symbol slot.
type SlotState string

const (
	// StateFlat means no open position in the symbol.
	StateFlat SlotState = "flat"
	// StateShortPut means a cash-secured put is open.
	StateShortPut SlotState = "short_put"
	// StateLongStock means shares are held with no call written.
	StateLongStock SlotState = "long_stock"
	// StateCovered means shares are held with a short call on top.
	StateCovered SlotState = "covered"
)

// Transition conditions.
const (
	ConditionPutSold     = "put_sold"
	ConditionPutAssigned = "put_assigned"
	ConditionPutExpired  = "put_expired"
	ConditionPutRolled   = "put_rolled"
	ConditionPutClosed   = "put_closed"
	ConditionCallSold    = "call_sold"
	ConditionCalledAway  = "called_away"
	ConditionCallExpired = "call_expired"
	ConditionCallRolled  = "call_rolled"
	ConditionCallClosed  = "call_closed"
)

// StateTransition defines a valid slot state transition.
type StateTransition struct {
	From        SlotState
	To          SlotState
	Condition   string
	Description string
}

// ValidTransitions is the complete wheel cycle. The backtest has no
// terminal state: a run can end mid-cycle with positions marked at the
// final spot price.
var ValidTransitions = []StateTransition{
	{StateFlat, StateShortPut, ConditionPutSold, "Cash-secured put sold"},
	{StateShortPut, StateLongStock, ConditionPutAssigned, "Put assigned, shares bought at strike"},
	{StateShortPut, StateFlat, ConditionPutExpired, "Put expired worthless, premium retained"},
	{StateShortPut, StateShortPut, ConditionPutRolled, "OTM put rolled one cycle out"},
	{StateShortPut, StateFlat, ConditionPutClosed, "Put bought back early"},
	{StateLongStock, StateCovered, ConditionCallSold, "Covered call sold against shares"},
	{StateCovered, StateFlat, ConditionCalledAway, "Shares called away at strike"},
	{StateCovered, StateLongStock, ConditionCallExpired, "Call expired worthless, shares retained"},
	{StateCovered, StateCovered, ConditionCallRolled, "OTM call rolled one cycle out"},
	{StateCovered, StateLongStock, ConditionCallClosed, "Call bought back early"},
}

// StateMachine tracks one symbol slot through the wheel cycle.
type StateMachine struct {
	currentState    SlotState
	previousState   SlotState
	transitionCount map[string]int
}

// NewStateMachine returns a machine in the initial flat state.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateFlat,
		previousState:   StateFlat,
		transitionCount: make(map[string]int),
	}
}

// CurrentState returns the current slot state.
func (sm *StateMachine) CurrentState() SlotState {
	return sm.currentState
}

// PreviousState returns the state before the last transition.
func (sm *StateMachine) PreviousState() SlotState {
	return sm.previousState
}

// IsValidTransition checks the transition against ValidTransitions.
func (sm *StateMachine) IsValidTransition(to SlotState, condition string) error {
	for _, tr := range ValidTransitions {
		if tr.From == sm.currentState && tr.To == to && tr.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q",
		sm.currentState, to, condition)
}

// Transition moves to a new state.
func (sm *StateMachine) Transition(to SlotState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionCount[condition]++
	return nil
}

// TransitionCount returns how many times a condition fired on this slot.
func (sm *StateMachine) TransitionCount(condition string) int {
	return sm.transitionCount[condition]
}
