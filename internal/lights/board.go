package lights

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Board drives LED channels through GPIO pins. Pin order maps to channel
// bits, lowest bit first.
type Board struct {
	pins []gpio.PinIO
}

// NewBoard initialises the host GPIO drivers and resolves the named pins.
func NewBoard(pinNames []string) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init gpio host: %w", err)
	}

	pins := make([]gpio.PinIO, 0, len(pinNames))
	for _, name := range pinNames {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("unable to load gpio pin %q", name)
		}
		pins = append(pins, pin)
	}

	return &Board{pins: pins}, nil
}

// Reset switches every channel off.
func (b *Board) Reset() error {
	for i, pin := range b.pins {
		if err := pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to reset pin %d (%s): %w", i, pin.Name(), err)
		}
	}
	return nil
}

// SetOn drives the channels in g high.
func (b *Board) SetOn(g Group) error {
	return b.set(g, gpio.High)
}

// SetOff drives the channels in g low.
func (b *Board) SetOff(g Group) error {
	return b.set(g, gpio.Low)
}

func (b *Board) set(g Group, level gpio.Level) error {
	for i, pin := range b.pins {
		if g&(1<<uint(i)) == 0 {
			continue
		}
		if err := pin.Out(level); err != nil {
			return fmt.Errorf("failed to set pin %d (%s): %w", i, pin.Name(), err)
		}
	}
	return nil
}

// State reads the pin levels for the channels in g.
func (b *Board) State(g Group) (Group, error) {
	var on Group
	for i, pin := range b.pins {
		bit := Group(1) << uint(i)
		if g&bit == 0 {
			continue
		}
		if pin.Read() == gpio.High {
			on |= bit
		}
	}
	return on, nil
}
