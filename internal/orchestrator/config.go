package orchestrator

// CapabilityLevel describes the detected runtime capabilities.
// Determines which runner answers chat turns.
type CapabilityLevel int

const (
	// CapOffline has no model credentials. Turns go to the keyword fallback.
	CapOffline CapabilityLevel = iota

	// CapLocal has a model but no reachable remote agents. The orchestrator
	// runs with its local tools only.
	CapLocal

	// CapFull has a model and at least one remote agent.
	CapFull
)

func (c CapabilityLevel) String() string {
	switch c {
	case CapOffline:
		return "offline"
	case CapLocal:
		return "local"
	case CapFull:
		return "full"
	default:
		return "unknown"
	}
}
