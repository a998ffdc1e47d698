package rtd

import (
	"fmt"
	"strings"

	"github.com/mikesmitty/poolrtd/max31865"
)

type FaultCondition int

const (
	FaultHighThreshold FaultCondition = iota
	FaultLowThreshold
	FaultRefInLow
	FaultRefInHigh
	FaultRTDInLow
	FaultOverUnderVoltage
)

var faultTable = []struct {
	mask uint8
	cond FaultCondition
	desc string
}{
	{max31865.FaultHighThresh, FaultHighThreshold, "RTD High Threshold"},
	{max31865.FaultLowThresh, FaultLowThreshold, "RTD Low Threshold"},
	{max31865.FaultRefInLow, FaultRefInLow, "REFIN- > 0.85 x Bias"},
	{max31865.FaultRefInHigh, FaultRefInHigh, "REFIN- < 0.85 x Bias - FORCE- open"},
	{max31865.FaultRtdInLow, FaultRTDInLow, "RTDIN- < 0.85 x Bias - FORCE- open"},
	{max31865.FaultOvUv, FaultOverUnderVoltage, "Under/Over voltage"},
}

func (c FaultCondition) String() string {
	for _, f := range faultTable {
		if f.cond == c {
			return f.desc
		}
	}
	return fmt.Sprintf("FaultCondition(%d)", int(c))
}

// Decode returns every condition flagged in reg. Bits are independent, so
// several conditions can be reported at once.
func Decode(reg uint8) []FaultCondition {
	var out []FaultCondition
	for _, f := range faultTable {
		if reg&f.mask != 0 {
			out = append(out, f.cond)
		}
	}
	return out
}

type FaultStatus struct {
	Register   uint8
	Conditions []FaultCondition
	Cleared    bool
}

func (s FaultStatus) Faulted() bool {
	return s.Register != 0
}

func (s FaultStatus) Has(c FaultCondition) bool {
	for _, got := range s.Conditions {
		if got == c {
			return true
		}
	}
	return false
}

func (s FaultStatus) String() string {
	if !s.Faulted() {
		return "no fault"
	}
	names := make([]string, len(s.Conditions))
	for i, c := range s.Conditions {
		names[i] = c.String()
	}
	return fmt.Sprintf("fault 0x%02X: %s", s.Register, strings.Join(names, ", "))
}

// CheckFault reads ch's fault register and, when anything is latched,
// clears it before giving up the bus.
func CheckFault(sel Selector, ch *Channel) (FaultStatus, error) {
	var st FaultStatus
	err := sel.WithChannelSelected(ch.Select(), func() error {
		reg, err := ch.dev.ReadFaultRegister()
		if err != nil {
			return err
		}
		st.Register = reg
		if reg == 0 {
			return nil
		}
		st.Conditions = Decode(reg)
		if err := ch.dev.ClearFault(); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		st.Cleared = true
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("%s: fault check: %w", ch.Role, err)
	}
	return st, nil
}
