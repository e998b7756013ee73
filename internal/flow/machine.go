// Package flow holds the view-controller state machine: which screen is
// active and which events are legal from it. Transitions are pure so the
// table is testable without a UI harness.
package flow

import "fmt"

// State is the active screen
type State string

const (
	// StateList is the receipt list, the initial state
	StateList State = "list"
	// StateCapturing is the camera/file capture overlay
	StateCapturing State = "capturing"
	// StateProcessing is the busy overlay while extraction is in flight
	StateProcessing State = "processing"
	// StateEditing is the draft review form
	StateEditing State = "editing"
	// StateSyncing is the list with a busy indicator during the
	// simulated sync round trip
	StateSyncing State = "syncing"
)

// Event is a user action or the completion of an async operation
type Event string

const (
	EventTapCapture          Event = "tap_capture"
	EventImageAcquired       Event = "image_acquired"
	EventCaptureCancelled    Event = "capture_cancelled"
	EventExtractionSucceeded Event = "extraction_succeeded"
	EventExtractionFailed    Event = "extraction_failed"
	EventConfirmDraft        Event = "confirm_draft"
	EventDiscardDraft        Event = "discard_draft"
	EventTapSync             Event = "tap_sync"
	EventSyncCompleted       Event = "sync_completed"
)

// ErrInvalidTransition is returned when an event is not legal in the
// current state. The state is left unchanged; this is what guarantees at
// most one extraction or sync is in flight at a time.
type ErrInvalidTransition struct {
	State State
	Event Event
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("event %q is not valid in state %q", e.Event, e.State)
}

var transitions = map[State]map[Event]State{
	StateList: {
		EventTapCapture: StateCapturing,
		EventTapSync:    StateSyncing,
	},
	StateCapturing: {
		EventImageAcquired:    StateProcessing,
		EventCaptureCancelled: StateList,
	},
	StateProcessing: {
		EventExtractionSucceeded: StateEditing,
		EventExtractionFailed:    StateList,
	},
	StateEditing: {
		EventConfirmDraft: StateList,
		EventDiscardDraft: StateList,
	},
	StateSyncing: {
		EventSyncCompleted: StateList,
	},
}

// Next returns the state reached by applying event to state
func Next(state State, event Event) (State, error) {
	if next, ok := transitions[state][event]; ok {
		return next, nil
	}
	return state, ErrInvalidTransition{State: state, Event: event}
}

// Machine tracks the current state
type Machine struct {
	current State
}

// NewMachine returns a machine in the initial List state
func NewMachine() *Machine {
	return &Machine{current: StateList}
}

// Current returns the active state
func (m *Machine) Current() State {
	return m.current
}

// Apply advances the machine, or leaves it unchanged and returns
// ErrInvalidTransition when the event is not legal
func (m *Machine) Apply(event Event) error {
	next, err := Next(m.current, event)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}
