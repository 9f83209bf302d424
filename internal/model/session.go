package model

// SessionPhase is the trading-session phase derived from wall-clock time
// and the holiday calendar.
type SessionPhase string

const (
	PhasePreOpen SessionPhase = "PRE_OPEN"
	PhaseFreeze  SessionPhase = "FREEZE"
	PhaseLive    SessionPhase = "LIVE"
	PhaseClosed  SessionPhase = "CLOSED"
)

// Broadcasts reports whether ticks in this phase may be pushed to subscribers.
func (p SessionPhase) Broadcasts() bool { return p == PhaseLive }

// Ingests reports whether ticks in this phase drive indicator and signal work.
func (p SessionPhase) Ingests() bool { return p == PhasePreOpen || p == PhaseFreeze || p == PhaseLive }

// Watched reports whether the staleness watchdog is armed in this phase.
func (p SessionPhase) Watched() bool { return p == PhaseLive || p == PhasePreOpen }

// ConnectionState is the state of the single upstream subscription.
type ConnectionState string

const (
	StateDisconnected    ConnectionState = "DISCONNECTED"
	StateConnecting      ConnectionState = "CONNECTING"
	StateConnected       ConnectionState = "CONNECTED"
	StateDegradedPolling ConnectionState = "DEGRADED_POLLING"
)

// Degraded reports whether data is arriving through the polling fallback.
func (s ConnectionState) Degraded() bool { return s == StateDegradedPolling }

// Direction is a directional call shared by indicators and signal engines.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)
