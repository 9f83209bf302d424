// Package session keeps the single upstream market-data subscription alive
// across session phases, authentication failures and network faults.
//
// Connectivity is an explicit state machine driven by events; the Supervisor
// owns the only instance and is the only caller of Fire.
package session

import (
	"fmt"
	"sync"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Event drives the connection state machine.
type Event int

const (
	EventStart Event = iota
	EventTickReceived
	EventAuthFailure
	EventNetworkFailure
	EventWatchdogTimeout
	EventCredentialRefresh
	EventPhaseClosed
	EventStop
)

var eventNames = [...]string{
	EventStart:             "start",
	EventTickReceived:      "tick",
	EventAuthFailure:       "auth_failure",
	EventNetworkFailure:    "network_failure",
	EventWatchdogTimeout:   "watchdog_timeout",
	EventCredentialRefresh: "credential_refresh",
	EventPhaseClosed:       "phase_closed",
	EventStop:              "stop",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// DefaultAuthFailureLimit is the number of consecutive authentication
// failures that moves the machine to DEGRADED_POLLING.
const DefaultAuthFailureLimit = 3

type transitions map[Event]model.ConnectionState

// table lists every legal transition. Events missing from a state's row are
// ignored. AuthFailure is additionally subject to the failure limit.
var table = map[model.ConnectionState]transitions{
	model.StateDisconnected: {
		EventStart:             model.StateConnecting,
		EventCredentialRefresh: model.StateConnecting,
		EventStop:              model.StateDisconnected,
		EventPhaseClosed:       model.StateDisconnected,
	},
	model.StateConnecting: {
		EventTickReceived:      model.StateConnected,
		EventAuthFailure:       model.StateConnecting,
		EventNetworkFailure:    model.StateConnecting,
		EventPhaseClosed:       model.StateDisconnected,
		EventCredentialRefresh: model.StateConnecting,
		EventStop:              model.StateDisconnected,
	},
	model.StateConnected: {
		EventTickReceived:      model.StateConnected,
		EventWatchdogTimeout:   model.StateConnecting,
		EventNetworkFailure:    model.StateConnecting,
		EventAuthFailure:       model.StateConnecting,
		EventPhaseClosed:       model.StateDisconnected,
		EventCredentialRefresh: model.StateConnecting,
		EventStop:              model.StateDisconnected,
	},
	model.StateDegradedPolling: {
		EventCredentialRefresh: model.StateConnecting,
		EventPhaseClosed:       model.StateDegradedPolling,
		EventStop:              model.StateDisconnected,
	},
}

// Transition is the result of one Fire call.
type Transition struct {
	From, To model.ConnectionState
	Event    Event
	Applied  bool // false when the event is not legal in From
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool { return t.Applied && t.From != t.To }

// Machine is the connection state machine. Safe for concurrent reads.
type Machine struct {
	mu           sync.RWMutex
	state        model.ConnectionState
	authFailures int
	authLimit    int
}

// NewMachine returns a machine in DISCONNECTED.
func NewMachine(authLimit int) *Machine {
	if authLimit <= 0 {
		authLimit = DefaultAuthFailureLimit
	}
	return &Machine{state: model.StateDisconnected, authLimit: authLimit}
}

// State returns the current state.
func (m *Machine) State() model.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AuthFailures returns the consecutive authentication failure count.
func (m *Machine) AuthFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authFailures
}

// Fire applies ev and returns the resulting transition.
func (m *Machine) Fire(ev Event) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := Transition{From: m.state, To: m.state, Event: ev}
	next, ok := table[m.state][ev]
	if !ok {
		return tr
	}
	tr.Applied = true

	switch ev {
	case EventAuthFailure:
		m.authFailures++
		if m.authFailures >= m.authLimit {
			next = model.StateDegradedPolling
		}
	case EventCredentialRefresh, EventTickReceived:
		m.authFailures = 0
	}

	m.state = next
	tr.To = next
	return tr
}
