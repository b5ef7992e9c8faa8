package taskmanager

// State is the lifecycle state of a managed ontology.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateBusy
	StateReloading
	StateFailed
)

var stateNames = map[State]string{
	StateUnloaded:  "unloaded",
	StateLoading:   "loading",
	StateReady:     "ready",
	StateBusy:      "busy",
	StateReloading: "reloading",
	StateFailed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
