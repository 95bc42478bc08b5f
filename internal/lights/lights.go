// Package lights controls the infrared illumination board. The board exposes
// individually switchable LED channels; callers address them as a bitmask so
// a whole bank can be toggled in one call.
package lights

// Group is a bitmask of LED channels.
type Group uint8

// The IR bank. The board has four infrared LEDs.
const (
	IR1 Group = 1 << iota
	IR2
	IR3
	IR4

	IRAll = IR1 | IR2 | IR3 | IR4
)

// Controller switches LED channels on and off. Implementations never assume
// a transition succeeded; State reads the actual pin levels back so callers
// can log confirmed state.
type Controller interface {
	// Reset switches every channel off.
	Reset() error
	// SetOn switches the channels in g on.
	SetOn(g Group) error
	// SetOff switches the channels in g off.
	SetOff(g Group) error
	// State returns the subset of g currently on.
	State(g Group) (Group, error)
}

// Disabled is a Controller for runs without illumination hardware.
type Disabled struct{}

func (Disabled) Reset() error               { return nil }
func (Disabled) SetOn(Group) error          { return nil }
func (Disabled) SetOff(Group) error         { return nil }
func (Disabled) State(Group) (Group, error) { return 0, nil }
