// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/mikesmitty/poolrtd/internal/bus"
	"github.com/mikesmitty/poolrtd/internal/logger"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	// ------------------------------------------------------------
	// BUS / SENSOR / CYCLE
	// ------------------------------------------------------------

	if cfg.Bus.SettleMs < 0 {
		return fmt.Errorf("bus.settle_ms must be >= 0, got %d", cfg.Bus.SettleMs)
	}

	if _, err := cfg.Sensor.RTDType(); err != nil {
		return fmt.Errorf("sensor.type: %w", err)
	}
	if cfg.Sensor.Wiring != "" {
		if _, err := cfg.Sensor.WireCount(); err != nil {
			return fmt.Errorf("sensor.wiring: %w", err)
		}
	}
	if cfg.Sensor.RRef < 0 || cfg.Sensor.RNominal < 0 {
		return errors.New("sensor.r_ref and sensor.r_nominal must be >= 0")
	}

	if cfg.Cycle.IntervalMs < 0 {
		return fmt.Errorf("cycle.interval_ms must be >= 0, got %d", cfg.Cycle.IntervalMs)
	}

	if p := cfg.Plausible; p != nil && p.MinC >= p.MaxC {
		return fmt.Errorf("plausible: min_c (%g) must be < max_c (%g)", p.MinC, p.MaxC)
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 {
		return errors.New("log.max_size_mb and log.max_backups must be >= 0")
	}

	// ------------------------------------------------------------
	// CHANNELS
	// ------------------------------------------------------------

	if len(cfg.Channels) == 0 {
		return errors.New("at least one channel is required")
	}

	roles := make(map[string]struct{})
	// key = driver | pin or chip/line
	lines := make(map[string]string)

	for i, ch := range cfg.Channels {
		if ch.Role == "" {
			return fmt.Errorf("channel %d: role is required", i)
		}
		if _, dup := roles[ch.Role]; dup {
			return fmt.Errorf("channel %q: duplicate role", ch.Role)
		}
		roles[ch.Role] = struct{}{}

		s := ch.Select
		switch s.Driver {
		case bus.DriverPeriph, "":
			if s.Pin == "" {
				return fmt.Errorf("channel %q: select.pin is required for the periph driver", ch.Role)
			}
		case bus.DriverGpiocdev:
			if s.Chip == "" {
				return fmt.Errorf("channel %q: select.chip is required for the gpiocdev driver", ch.Role)
			}
			if s.Line < 0 {
				return fmt.Errorf("channel %q: select.line must be >= 0", ch.Role)
			}
		default:
			return fmt.Errorf("channel %q: unknown select.driver %q", ch.Role, s.Driver)
		}

		key := s.Spec().String()
		if s.Driver == "" {
			key = bus.LineSpec{Driver: bus.DriverPeriph, Pin: s.Pin}.String()
		}
		if prev, used := lines[key]; used {
			return fmt.Errorf("select line collision: %s used by channels %q and %q", key, prev, ch.Role)
		}
		lines[key] = ch.Role
	}

	return nil
}
