package orchestrator

// State is the connection lifecycle phase of a [Session].
type State int32

const (
	// StateIdle means no connection exists and none is being set up.
	StateIdle State = iota

	// StateConnecting means credential fetch or dialing is underway.
	StateConnecting

	// StateConnected means the control channel is live.
	StateConnected

	// StateError means the live connection failed; Disconnect resets to idle.
	StateError
)

// String implements fmt.Stringer for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
