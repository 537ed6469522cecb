package chat

// State is the lifecycle of the turn currently owned by an Orchestrator.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a turn is in flight.
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}
