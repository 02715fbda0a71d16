package player

// State is the controller's playback state
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StateSkipping
	StatePaused
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateSkipping:
		return "skipping"
	case StatePaused:
		return "paused"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// active reports whether a session handle is held in this state
func (s State) active() bool {
	return s == StatePlaying || s == StateSkipping || s == StatePaused
}
