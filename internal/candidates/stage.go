package candidates

import "fmt"

// Stage is a candidate's position in the pump pipeline. Stages only move
// forward; Expired is terminal.
type Stage int

const (
	Layer1Detected Stage = iota + 1
	Layer2Confirmed
	Layer3Validated
	Expired
)

var stageNames = map[Stage]string{
	Layer1Detected:  "layer1_detected",
	Layer2Confirmed: "layer2_confirmed",
	Layer3Validated: "layer3_validated",
	Expired:         "expired",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText renders the stage name in JSON and logs
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStage parses a stage name
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Stages lists the live and terminal stages in pipeline order
func Stages() []Stage {
	return []Stage{Layer1Detected, Layer2Confirmed, Layer3Validated, Expired}
}
