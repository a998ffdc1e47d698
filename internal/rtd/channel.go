// Package rtd reads and classifies RTD channels sharing one arbitrated bus.
package rtd

import (
	"fmt"

	"github.com/mikesmitty/poolrtd/max31865"
)

type Role string

const (
	RoleOne Role = "ONE"
	RoleTwo Role = "TWO"
	RoleThr Role = "THR"
)

// Adapter is one RTD-to-digital converter. Each call except Temperature is a
// bus transaction and must run while the channel owns the bus.
type Adapter interface {
	Begin(w max31865.WireCount) error
	ReadRawCode() (uint16, error)
	ReadFaultRegister() (uint8, error)
	ClearFault() error
	Temperature(rNominal, rRef float64) float64
}

// Selector grants a channel exclusive use of the bus for one operation.
type Selector interface {
	WithChannelSelected(name string, op func() error) error
}

// Channel is one sensor position. It is built once at startup and never
// changes afterwards.
type Channel struct {
	Role     Role
	Label    string
	Wiring   max31865.WireCount
	RNominal float64
	RRef     float64

	dev Adapter
}

func NewChannel(role Role, label string, dev Adapter, wiring max31865.WireCount, rNominal, rRef float64) *Channel {
	return &Channel{
		Role:     role,
		Label:    label,
		Wiring:   wiring,
		RNominal: rNominal,
		RRef:     rRef,
		dev:      dev,
	}
}

// Select is the name of the channel's select line on the bus.
func (c *Channel) Select() string {
	return string(c.Role)
}

func (c *Channel) String() string {
	if c.Label == "" {
		return string(c.Role)
	}
	return fmt.Sprintf("%s (%s)", c.Role, c.Label)
}

// Begin runs the converter's one-time setup.
func (c *Channel) Begin(sel Selector) error {
	err := sel.WithChannelSelected(c.Select(), func() error {
		return c.dev.Begin(c.Wiring)
	})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", c.Role, err)
	}
	return nil
}
