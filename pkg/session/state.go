package session

// State of a diagnostic session. Transitions are linear with optional
// branches and are driven by the single session worker.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateConnecting
	StateScanningECUs
	StateReadingDTCs
	StateReadingLiveData
	StateTestingSensors
	StateTestingActuators
	StatePerformingAdaptations
	StateGeneratingReport
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateConnecting:
		return "connecting"
	case StateScanningECUs:
		return "scanning ECUs"
	case StateReadingDTCs:
		return "reading fault codes"
	case StateReadingLiveData:
		return "reading live data"
	case StateTestingSensors:
		return "testing sensors"
	case StateTestingActuators:
		return "testing actuators"
	case StatePerformingAdaptations:
		return "performing adaptations"
	case StateGeneratingReport:
		return "generating report"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
