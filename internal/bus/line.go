package bus

import (
	"fmt"
	"io"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Select line backends.
const (
	DriverPeriph   = "periph"
	DriverGpiocdev = "gpiocdev"
)

// LineSpec identifies a select line on one of the backends.
type LineSpec struct {
	Driver string
	// Pin is the periph pin name, e.g. "GPIO26".
	Pin string
	// Chip and Offset address a character device line, e.g. "gpiochip0", 26.
	Chip   string
	Offset int
}

func (s LineSpec) String() string {
	if s.Driver == DriverGpiocdev {
		return fmt.Sprintf("%s:%s/%d", s.Driver, s.Chip, s.Offset)
	}
	return fmt.Sprintf("%s:%s", s.Driver, s.Pin)
}

// Open requests the line described by s, released. The returned closer
// frees the line.
func Open(s LineSpec, consumer string) (Line, io.Closer, error) {
	switch s.Driver {
	case DriverPeriph, "":
		p := gpioreg.ByName(s.Pin)
		if p == nil {
			return nil, nil, fmt.Errorf("bus: no such pin %q", s.Pin)
		}
		if err := p.Out(Released); err != nil {
			return nil, nil, fmt.Errorf("bus: configure %s: %w", p, err)
		}
		return p, nopCloser{}, nil
	case DriverGpiocdev:
		l, err := OpenCdev(s.Chip, s.Offset, consumer)
		if err != nil {
			return nil, nil, err
		}
		return l, l, nil
	}
	return nil, nil, fmt.Errorf("bus: unknown line driver %q", s.Driver)
}

// CdevLine is a select line requested through the GPIO character device.
type CdevLine struct {
	l    *gpiocdev.Line
	name string
}

func OpenCdev(chip string, offset int, consumer string) (*CdevLine, error) {
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(levelValue(Released)),
		gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("bus: request %s line %d: %w", chip, offset, err)
	}
	return &CdevLine{l: l, name: fmt.Sprintf("%s/%d", chip, offset)}, nil
}

func (c *CdevLine) Out(l gpio.Level) error {
	return c.l.SetValue(levelValue(l))
}

func (c *CdevLine) String() string {
	return c.name
}

func (c *CdevLine) Close() error {
	return c.l.Close()
}

func levelValue(l gpio.Level) int {
	if l == gpio.High {
		return 1
	}
	return 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
