package container

// State is the lifecycle state of a managed container.
type State int32

const (
	NotStarted State = iota
	Starting
	Ready
	Running
	Down
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Down:
		return "down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
