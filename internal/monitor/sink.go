package monitor

import (
	"github.com/mikesmitty/poolrtd/internal/logger"
)

// LogSink writes reports to the log, one line per value group.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(r Report) {
	l := s.log.WithTag(string(r.Role))

	if r.ReadErr != nil {
		l.Errorf("%v", r.ReadErr)
	} else {
		l.Infof("%s: raw=%d ratio=%.8f resistance=%.8f ohms temperature=%.2f deg C",
			r.Label, r.Reading.Raw, r.Reading.Ratio, r.Reading.Resistance, r.Reading.Temperature)
		if r.Implausible {
			l.Warnf("temperature %.2f deg C outside plausible range", r.Reading.Temperature)
		}
	}

	if r.Fault.Faulted() {
		l.Warnf("Fault 0x%02X", r.Fault.Register)
		for _, c := range r.Fault.Conditions {
			l.Warnf("%s", c)
		}
	}
	if r.FaultErr != nil {
		l.Errorf("%v", r.FaultErr)
	}
}

func (s *LogSink) CycleDone(cycle uint64) {
	s.log.Debugf("... end temperature readout (cycle %d)", cycle)
}
