// internal/battle/status.go
package battle

import "fmt"

// Status is the on-chain battle_status enum of a token battle state.
type Status uint8

const (
	StatusCreated Status = iota
	StatusQualified
	StatusInBattle
	StatusVictoryPending
	StatusListed
	StatusPoolCreated
)

var statusNames = [...]string{
	"Created",
	"Qualified",
	"InBattle",
	"VictoryPending",
	"Listed",
	"PoolCreated",
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// Before reports whether s precedes other in the lifecycle order.
func (s Status) Before(other Status) bool {
	return s < other
}

// ParseStatus maps a status name back to its value.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown battle status %q", name)
}
