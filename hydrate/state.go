package hydrate

// State is a hydrator lifecycle stage.
type State int32

const (
	StateCold State = iota
	StateLoading
	StateVerifying
	StateConsistent
	StateRebuilding
	StateReady
	StateShuttingDown
	StateFlushed
	StateFailed
)

var stateNames = [...]string{
	StateCold:         "cold",
	StateLoading:      "loading",
	StateVerifying:    "verifying",
	StateConsistent:   "consistent",
	StateRebuilding:   "rebuilding",
	StateReady:        "ready",
	StateShuttingDown: "shutting_down",
	StateFlushed:      "flushed",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
