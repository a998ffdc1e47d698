// Package monitor runs the read and fault-check cycle over every channel.
package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mikesmitty/poolrtd/internal/logger"
	"github.com/mikesmitty/poolrtd/internal/rtd"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Report is everything learned about one channel in one cycle.
type Report struct {
	Cycle   uint64
	Role    rtd.Role
	Label   string
	Reading rtd.Reading
	ReadErr error
	Fault   rtd.FaultStatus
	// FaultErr is set when the fault register could not be read or cleared.
	FaultErr error
	// Implausible is set when a plausibility window is configured and the
	// temperature falls outside it. The reading is still reported.
	Implausible bool
}

// Sink receives reports as they are produced.
type Sink interface {
	Record(r Report)
	CycleDone(cycle uint64)
}

type Options struct {
	// Interval between cycle starts. Zero runs cycles back to back.
	Interval time.Duration
	Bounds   *rtd.Bounds
}

type Monitor struct {
	sel      rtd.Selector
	channels []*rtd.Channel
	sink     Sink
	opts     Options
	log      *logger.Logger

	state atomic.Int32
	cycle uint64
}

// New builds a monitor over channels, processed in the given order.
func New(sel rtd.Selector, channels []*rtd.Channel, sink Sink, opts Options, log *logger.Logger) *Monitor {
	return &Monitor{
		sel:      sel,
		channels: channels,
		sink:     sink,
		opts:     opts,
		log:      log.WithTag("monitor"),
	}
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Begin runs each converter's one-time setup. A channel that fails to begin
// is still sampled; its readings will show the problem.
func (m *Monitor) Begin() error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Begin(m.sel); err != nil {
			m.log.Errorf("%v", err)
			errs = append(errs, err)
			continue
		}
		m.log.Debugf("%s configured %s", ch, ch.Wiring)
	}
	return errors.Join(errs...)
}

// RunCycle reads and fault-checks every channel exactly once.
func (m *Monitor) RunCycle() []Report {
	m.state.Store(int32(StateRunning))
	defer m.state.Store(int32(StateIdle))

	m.cycle++
	reports := make([]Report, 0, len(m.channels))
	for _, ch := range m.channels {
		r := Report{
			Cycle: m.cycle,
			Role:  ch.Role,
			Label: ch.Label,
		}

		r.Reading, r.ReadErr = rtd.ReadChannel(m.sel, ch)
		if r.ReadErr == nil {
			r.Implausible = !m.opts.Bounds.Contains(r.Reading.Temperature)
		}
		r.Fault, r.FaultErr = rtd.CheckFault(m.sel, ch)

		m.sink.Record(r)
		reports = append(reports, r)
	}
	m.sink.CycleDone(m.cycle)
	return reports
}

// Run repeats cycles until ctx is done. ctx is only checked between cycles;
// a started cycle always completes.
func (m *Monitor) Run(ctx context.Context) {
	var tick <-chan time.Time
	if m.opts.Interval > 0 {
		t := time.NewTicker(m.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		m.RunCycle()

		if tick == nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-tick:
		}
	}
}
