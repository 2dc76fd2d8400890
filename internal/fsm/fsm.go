package fsm

// State is a K-Line frame assembly state.
type State int

const (
	Header State = iota
	Data
	Checksum
	Error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Header:
		return "HEADER"
	case Data:
		return "DATA"
	case Checksum:
		return "CHECKSUM"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// allowed lists the targets reachable from each state. Error is reachable
// from everywhere and is therefore not listed.
var allowed = map[State][]State{
	Header:   {Data},
	Data:     {Data, Checksum},
	Checksum: {Header},
	Error:    {Header},
}

// Machine tracks the frame assembly state.
// It is not safe for concurrent use.
type Machine struct {
	state State
}

// New returns a machine in the Header state.
func New() *Machine {
	m := &Machine{}
	m.Reset()
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Allowed reports whether a transition to target is permitted from the
// current state.
func (m *Machine) Allowed(target State) bool {
	if target == Error {
		return true
	}
	for _, s := range allowed[m.state] {
		if s == target {
			return true
		}
	}
	return false
}

// Transit moves to target if the transition table permits it.
// Returns false and leaves the state unchanged otherwise.
func (m *Machine) Transit(target State) bool {
	if !m.Allowed(target) {
		return false
	}
	m.state = target
	return true
}

// Reset unconditionally returns to Header.
func (m *Machine) Reset() {
	m.state = Header
}
