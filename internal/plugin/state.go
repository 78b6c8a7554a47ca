package plugin

import "fmt"

// State is a plugin's position in its load lifecycle: Discovered ->
// ManifestParsed -> Validated -> Loaded -> Active, or Failed at any step.
type State string

const (
	StateDiscovered     State = "discovered"
	StateManifestParsed State = "manifest_parsed"
	StateValidated      State = "validated"
	StateLoaded         State = "loaded"
	StateActive         State = "active"
	StateFailed         State = "failed"
)

// Lifecycle tracks one plugin's progression through State, recording the
// reason on failure.
type Lifecycle struct {
	Dir    string
	state  State
	reason string
}

// NewLifecycle starts a plugin at StateDiscovered.
func NewLifecycle(dir string) *Lifecycle {
	return &Lifecycle{Dir: dir, state: StateDiscovered}
}

func (l *Lifecycle) State() State { return l.state }

// Reason returns the failure reason, set only when State() == StateFailed.
func (l *Lifecycle) Reason() string { return l.reason }

// Advance moves to next if the transition is legal from the current
// state, or fails the lifecycle with err's message otherwise.
func (l *Lifecycle) Advance(next State, err error) error {
	if err != nil {
		l.state = StateFailed
		l.reason = err.Error()
		return err
	}
	if !legalTransition(l.state, next) {
		failErr := fmt.Errorf("plugin: illegal transition %s -> %s", l.state, next)
		l.state = StateFailed
		l.reason = failErr.Error()
		return failErr
	}
	l.state = next
	return nil
}

func legalTransition(from, to State) bool {
	switch from {
	case StateDiscovered:
		return to == StateManifestParsed
	case StateManifestParsed:
		return to == StateValidated
	case StateValidated:
		return to == StateLoaded
	case StateLoaded:
		return to == StateActive
	default:
		return false
	}
}
