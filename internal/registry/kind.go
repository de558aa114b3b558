package registry

import "fmt"

// Kind tags a definition with its broad category in the catalog.
type Kind int

const (
	KindCustom Kind = iota
	KindInput
	KindOutput
	KindProcessing
	KindControl
	KindRobot
)

var kindNames = map[Kind]string{
	KindCustom:     "custom",
	KindInput:      "input",
	KindOutput:     "output",
	KindProcessing: "processing",
	KindControl:    "control",
	KindRobot:      "robot",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
