// Package bus arbitrates a shared SPI bus between converters that each own a
// chip-select line. At most one line is asserted at any time.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Select lines are active low.
const (
	Asserted = gpio.Low
	Released = gpio.High
)

// DefaultSettle is the wait between asserting a select line and the first
// transfer.
const DefaultSettle = 50 * time.Millisecond

var (
	ErrUnknownChannel   = errors.New("bus: unknown channel")
	ErrDuplicateChannel = errors.New("bus: channel already registered")
	ErrNotSelected      = errors.New("bus: channel does not own the bus")
)

// Line drives one chip-select output.
type Line interface {
	Out(l gpio.Level) error
	String() string
}

type Arbiter struct {
	settle time.Duration
	sleep  func(time.Duration)

	txn sync.Mutex

	mu     sync.Mutex
	names  []string
	lines  map[string]Line
	owner  string
	framed bool
}

func New(settle time.Duration) *Arbiter {
	return &Arbiter{
		settle: settle,
		sleep:  time.Sleep,
		lines:  make(map[string]Line),
	}
}

// Register adds a channel and drives its line to released.
func (a *Arbiter) Register(name string, l Line) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.lines[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}
	if err := l.Out(Released); err != nil {
		return fmt.Errorf("bus: release %s (%s): %w", name, l, err)
	}
	a.names = append(a.names, name)
	a.lines[name] = l
	return nil
}

// Channels returns the registered channel names in registration order.
func (a *Arbiter) Channels() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.names...)
}

// Settle returns the configured settle delay.
func (a *Arbiter) Settle() time.Duration {
	return a.settle
}

// WithChannelSelected gives name exclusive ownership of the bus for the
// duration of op. Every other line is released first, and name's line is
// released again on every exit path of op.
func (a *Arbiter) WithChannelSelected(name string, op func() error) (err error) {
	a.txn.Lock()
	defer a.txn.Unlock()

	a.mu.Lock()
	line, ok := a.lines[name]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	for _, n := range a.names {
		if err := a.lines[n].Out(Released); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("bus: release %s: %w", n, err)
		}
	}
	if err := line.Out(Asserted); err != nil {
		a.mu.Unlock()
		// Leave the line in a known state; the assert may have half-applied.
		return errors.Join(fmt.Errorf("bus: select %s: %w", name, err), line.Out(Released))
	}
	a.owner = name
	a.framed = false
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.owner = ""
		a.framed = false
		rerr := line.Out(Released)
		a.mu.Unlock()
		if rerr != nil {
			err = errors.Join(err, fmt.Errorf("bus: release %s: %w", name, rerr))
		}
	}()

	a.sleep(a.settle)
	return op()
}

// Conn returns the view of the shared connection c used by channel name.
// Transfers fail unless name currently owns the bus.
func (a *Arbiter) Conn(name string, c conn.Conn) conn.Conn {
	return &framedConn{a: a, name: name, c: c}
}

// framedConn pulses the owner's select line between consecutive transfers
// so the converter sees one CS frame per register access.
type framedConn struct {
	a    *Arbiter
	name string
	c    conn.Conn
}

func (f *framedConn) String() string {
	return fmt.Sprintf("%s@%s", f.name, f.c)
}

func (f *framedConn) Duplex() conn.Duplex {
	return f.c.Duplex()
}

func (f *framedConn) Tx(w, r []byte) error {
	a := f.a
	a.mu.Lock()
	if a.owner != f.name {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSelected, f.name)
	}
	if a.framed {
		line := a.lines[f.name]
		if err := line.Out(Released); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("bus: frame %s: %w", f.name, err)
		}
		if err := line.Out(Asserted); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("bus: frame %s: %w", f.name, err)
		}
	}
	a.framed = true
	a.mu.Unlock()
	return f.c.Tx(w, r)
}
