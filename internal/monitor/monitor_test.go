package monitor

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mikesmitty/poolrtd/internal/bus"
	"github.com/mikesmitty/poolrtd/internal/logger"
	"github.com/mikesmitty/poolrtd/internal/rtd"
	"github.com/mikesmitty/poolrtd/max31865"
)

// Mock converter
type mockAdapter struct {
	code     uint16
	fault    uint8
	readErr  error
	clears   int
	reads    int
	faultChk int
	begun    int
}

func (m *mockAdapter) Begin(max31865.WireCount) error    { m.begun++; return nil }
func (m *mockAdapter) ReadRawCode() (uint16, error)      { m.reads++; return m.code, m.readErr }
func (m *mockAdapter) ReadFaultRegister() (uint8, error) { m.faultChk++; return m.fault, nil }
func (m *mockAdapter) ClearFault() error                 { m.clears++; return nil }
func (m *mockAdapter) Temperature(rNominal, rRef float64) float64 {
	return max31865.ConvertTemperature(m.code, rNominal, rRef)
}

// selectTrace records every edge on every select line.
type selectTrace struct {
	t      *testing.T
	levels map[string]gpio.Level
	pairs  []string
	open   string
}

type traceLine struct {
	tr   *selectTrace
	name string
}

func (l *traceLine) String() string { return l.name }

func (l *traceLine) Out(v gpio.Level) error {
	tr := l.tr
	prev, seen := tr.levels[l.name]
	tr.levels[l.name] = v
	if v == bus.Asserted {
		for n, lv := range tr.levels {
			if n != l.name && lv == bus.Asserted {
				tr.t.Errorf("%s asserted while %s is asserted", l.name, n)
			}
		}
		if tr.open != "" {
			tr.t.Errorf("%s asserted before %s was released", l.name, tr.open)
		}
		tr.open = l.name
	} else if seen && prev == bus.Asserted {
		tr.pairs = append(tr.pairs, l.name)
		tr.open = ""
	}
	return nil
}

type recordingSink struct {
	reports []Report
	done    []uint64
	onDone  func(uint64)
}

func (s *recordingSink) Record(r Report) { s.reports = append(s.reports, r) }
func (s *recordingSink) CycleDone(c uint64) {
	s.done = append(s.done, c)
	if s.onDone != nil {
		s.onDone(c)
	}
}

type fixture struct {
	mon      *Monitor
	sink     *recordingSink
	trace    *selectTrace
	adapters map[rtd.Role]*mockAdapter
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, adapters map[rtd.Role]*mockAdapter, opts Options) *fixture {
	t.Helper()
	tr := &selectTrace{t: t, levels: make(map[string]gpio.Level)}
	arb := bus.New(0)

	var channels []*rtd.Channel
	for _, role := range []rtd.Role{rtd.RoleOne, rtd.RoleTwo, rtd.RoleThr} {
		if err := arb.Register(string(role), &traceLine{tr: tr, name: string(role)}); err != nil {
			t.Fatalf("Register err=%v", err)
		}
		channels = append(channels, rtd.NewChannel(role, "", adapters[role], max31865.WireCount2, 100.0, 430.0))
	}

	var buf bytes.Buffer
	l := logger.NewLogger(log.New(&buf, "", 0), logger.LogLevelDebug)
	sink := &recordingSink{}
	return &fixture{
		mon:      New(arb, channels, sink, opts, l),
		sink:     sink,
		trace:    tr,
		adapters: adapters,
		logs:     &buf,
	}
}

func TestRunCycle_ThreeChannelScenario(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {code: 16384},
		rtd.RoleTwo: {code: 8192, fault: max31865.FaultLowThresh},
		rtd.RoleThr: {code: 24576},
	}
	f := newFixture(t, adapters, Options{})

	reports := f.mon.RunCycle()

	if len(reports) != 3 {
		t.Fatalf("reports=%d want 3", len(reports))
	}
	want := []struct {
		role       rtd.Role
		ratio, ohm float64
		faulted    bool
		clears     int
	}{
		{rtd.RoleOne, 0.5, 215.0, false, 0},
		{rtd.RoleTwo, 0.25, 107.5, true, 1},
		{rtd.RoleThr, 0.75, 322.5, false, 0},
	}
	for i, w := range want {
		r := reports[i]
		if r.Role != w.role {
			t.Fatalf("report %d role=%s want %s", i, r.Role, w.role)
		}
		if r.ReadErr != nil || r.FaultErr != nil {
			t.Fatalf("%s: errors read=%v fault=%v", r.Role, r.ReadErr, r.FaultErr)
		}
		if r.Reading.Ratio != w.ratio || r.Reading.Resistance != w.ohm {
			t.Fatalf("%s: reading=%+v", r.Role, r.Reading)
		}
		if r.Fault.Faulted() != w.faulted {
			t.Fatalf("%s: faulted=%v", r.Role, r.Fault.Faulted())
		}
		if got := adapters[w.role].clears; got != w.clears {
			t.Fatalf("%s: clears=%d want %d", r.Role, got, w.clears)
		}
	}
	if c := reports[1].Fault.Conditions; len(c) != 1 || c[0] != rtd.FaultLowThreshold {
		t.Fatalf("TWO conditions=%v", c)
	}

	// One read and one fault check per channel, never overlapping.
	wantPairs := "[ONE ONE TWO TWO THR THR]"
	if got := fmtPairs(f.trace.pairs); got != wantPairs {
		t.Fatalf("select pairs=%s want %s", got, wantPairs)
	}
	for n, lv := range f.trace.levels {
		if lv != bus.Released {
			t.Fatalf("%s left asserted after cycle", n)
		}
	}
	if f.mon.State() != StateIdle {
		t.Fatalf("state=%s after cycle", f.mon.State())
	}
}

func fmtPairs(p []string) string {
	return "[" + strings.Join(p, " ") + "]"
}

func TestRunCycle_EveryChannelDespiteErrors(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {readErr: errors.New("no response"), fault: 0xFC},
		rtd.RoleTwo: {code: 100, fault: max31865.FaultHighThresh | max31865.FaultOvUv},
		rtd.RoleThr: {code: 200},
	}
	f := newFixture(t, adapters, Options{})

	reports := f.mon.RunCycle()

	if len(reports) != 3 {
		t.Fatalf("reports=%d want 3", len(reports))
	}
	for role, a := range adapters {
		if a.reads != 1 || a.faultChk != 1 {
			t.Fatalf("%s: reads=%d fault checks=%d", role, a.reads, a.faultChk)
		}
	}
	if reports[0].ReadErr == nil {
		t.Fatalf("ONE read error not reported")
	}
	if len(reports[0].Fault.Conditions) != 6 {
		t.Fatalf("ONE conditions=%v", reports[0].Fault.Conditions)
	}
	two := reports[1].Fault
	if len(two.Conditions) != 2 || !two.Has(rtd.FaultHighThreshold) || !two.Has(rtd.FaultOverUnderVoltage) {
		t.Fatalf("TWO conditions=%v", two.Conditions)
	}
}

func TestRunCycle_Plausibility(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {code: 7620},   // ~0°C
		rtd.RoleTwo: {code: 0},      // shorted, far below range
		rtd.RoleThr: {code: 0x7FFF}, // open, far above range
	}
	f := newFixture(t, adapters, Options{Bounds: &rtd.Bounds{MinC: -30, MaxC: 150}})

	reports := f.mon.RunCycle()

	if reports[0].Implausible || !reports[1].Implausible || !reports[2].Implausible {
		t.Fatalf("implausible flags: %v %v %v",
			reports[0].Implausible, reports[1].Implausible, reports[2].Implausible)
	}
	if reports[1].Fault.Faulted() {
		t.Fatalf("implausible reading must not be turned into a fault")
	}
}

func TestBegin(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {}, rtd.RoleTwo: {}, rtd.RoleThr: {},
	}
	f := newFixture(t, adapters, Options{})

	if err := f.mon.Begin(); err != nil {
		t.Fatalf("Begin err=%v", err)
	}
	for role, a := range adapters {
		if a.begun != 1 {
			t.Fatalf("%s begun %d times", role, a.begun)
		}
	}
}

func TestRun_StopsBetweenCycles(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {}, rtd.RoleTwo: {}, rtd.RoleThr: {},
	}
	f := newFixture(t, adapters, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	f.sink.onDone = func(c uint64) {
		if c == 3 {
			cancel()
		}
	}

	f.mon.Run(ctx)

	if len(f.sink.done) != 3 {
		t.Fatalf("cycles=%v want 3", f.sink.done)
	}
	if len(f.sink.reports) != 9 {
		t.Fatalf("reports=%d want 9", len(f.sink.reports))
	}
}

func TestRun_Paced(t *testing.T) {
	adapters := map[rtd.Role]*mockAdapter{
		rtd.RoleOne: {}, rtd.RoleTwo: {}, rtd.RoleThr: {},
	}
	f := newFixture(t, adapters, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	f.sink.onDone = func(c uint64) {
		if c == 2 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		f.mon.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if len(f.sink.done) != 2 {
		t.Fatalf("cycles=%v want 2", f.sink.done)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.NewLogger(log.New(&buf, "", 0), logger.LogLevelInfo))

	s.Record(Report{
		Role:    rtd.RoleTwo,
		Label:   "Pump inlet",
		Reading: rtd.Reading{Raw: 8192, Ratio: 0.25, Resistance: 107.5},
		Fault: rtd.FaultStatus{
			Register:   0x44,
			Conditions: rtd.Decode(0x44),
			Cleared:    true,
		},
	})

	out := buf.String()
	for _, want := range []string{
		"[TWO] Pump inlet: raw=8192 ratio=0.25000000 resistance=107.50000000 ohms",
		"[TWO] WARN: Fault 0x44",
		"[TWO] WARN: RTD Low Threshold",
		"[TWO] WARN: Under/Over voltage",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
