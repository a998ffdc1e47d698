// internal/config/normalize.go
package config

import (
	"github.com/mikesmitty/poolrtd/internal/bus"
	"github.com/mikesmitty/poolrtd/max31865"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Bus.SettleMs == 0 {
		cfg.Bus.SettleMs = int(bus.DefaultSettle.Milliseconds())
	}

	if cfg.Sensor.Wiring == "" {
		cfg.Sensor.Wiring = "2wire"
	}

	// Reference and nominal resistance default to the Adafruit board values
	// for the configured RTD type.
	t, _ := cfg.Sensor.RTDType()
	if cfg.Sensor.RRef == 0 {
		preset := max31865.AdafruitPT100()
		if t == max31865.RTDPT1000 {
			preset = max31865.AdafruitPT1000()
		}
		cfg.Sensor.RRef = preset.RefResistor
	}
	if cfg.Sensor.RNominal == 0 {
		cfg.Sensor.RNominal, _ = max31865.NominalResistance(t)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	for i := range cfg.Channels {
		if cfg.Channels[i].Select.Driver == "" {
			cfg.Channels[i].Select.Driver = bus.DriverPeriph
		}
	}
}
