package domain

// ConnPhase represents the lifecycle phase of the streaming connection.
type ConnPhase int

const (
	ConnIdle ConnPhase = iota
	ConnConnecting
	ConnOpen
	ConnClosed
)

// String returns the string representation of the phase.
func (p ConnPhase) String() string {
	switch p {
	case ConnIdle:
		return "idle"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnState is the observable state of a stream client's connection.
// CloseCode and Attempt are only meaningful while Phase is ConnClosed.
type ConnState struct {
	Phase     ConnPhase
	CloseCode int
	Attempt   int
}
