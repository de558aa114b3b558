package node

import (
	"fmt"
	"time"
)

// Phase is the lifecycle position of a node within the current cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExecuting
	PhaseCompleted
	PhaseError
)

var phaseNames = [...]string{"idle", "executing", "completed", "error"}

func (p Phase) String() string {
	if int(p) < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name on the wire.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// RuntimeState is the loop's record of one node. Copies are handed out; the
// loop owns the original.
type RuntimeState struct {
	NodeID     string
	Phase      Phase
	LastResult map[string]any
	LastError  error
	UpdatedAt  time.Time
}

// ErrorMessage returns LastError's text, or "".
func (s RuntimeState) ErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}
