package orchestration

// State is the orchestrator's position in the turn cycle. Exactly one
// state is active per session; StateEnded is terminal.
type State int

const (
	StateIdle State = iota
	StateGreeting
	StateListening
	StateTranscribing
	StateGenerating
	StateSynthesizing
	StateSpeaking
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StateSpeaking:
		return "speaking"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == StateEnded }
