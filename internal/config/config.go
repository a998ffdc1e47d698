// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mikesmitty/poolrtd/internal/bus"
	"github.com/mikesmitty/poolrtd/max31865"
)

type Config struct {
	Bus       BusConfig        `yaml:"bus"`
	Sensor    SensorConfig     `yaml:"sensor"`
	Cycle     CycleConfig      `yaml:"cycle"`
	Plausible *PlausibleConfig `yaml:"plausible"`
	Log       LogConfig        `yaml:"log"`
	Channels  []ChannelConfig  `yaml:"channels"`
}

// ---- BUS ----

type BusConfig struct {
	SPI      string `yaml:"spi"`       // periph port name, empty = first available
	SettleMs int    `yaml:"settle_ms"` // 0 => bus.DefaultSettle
}

func (b BusConfig) Settle() time.Duration {
	return time.Duration(b.SettleMs) * time.Millisecond
}

// ---- SENSOR ----

// SensorConfig is shared by every channel; all three boards are populated
// with the same RTD type and reference resistor.
type SensorConfig struct {
	Type       string  `yaml:"type"`      // pt100 | pt1000
	RRef       float64 `yaml:"r_ref"`     // 0 => from type
	RNominal   float64 `yaml:"r_nominal"` // 0 => from type
	Wiring     string  `yaml:"wiring"`    // 2wire | 3wire | 4wire
	Filter50Hz bool    `yaml:"filter_50hz"`
	Continuous bool    `yaml:"continuous"`
}

func (s SensorConfig) RTDType() (max31865.RTDType, error) {
	switch s.Type {
	case "pt100":
		return max31865.RTDPT100, nil
	case "pt1000":
		return max31865.RTDPT1000, nil
	}
	return 0, fmt.Errorf("unknown sensor type %q", s.Type)
}

func (s SensorConfig) WireCount() (max31865.WireCount, error) {
	switch s.Wiring {
	case "2wire":
		return max31865.WireCount2, nil
	case "3wire":
		return max31865.WireCount3, nil
	case "4wire":
		return max31865.WireCount4, nil
	}
	return 0, fmt.Errorf("unknown wiring %q", s.Wiring)
}

// Opts builds the driver options. Only valid after Validate and Normalize.
func (s SensorConfig) Opts() *max31865.Opts {
	t, _ := s.RTDType()
	return &max31865.Opts{
		ContinuousMode: s.Continuous,
		Filter50Hz:     s.Filter50Hz,
		RefResistor:    s.RRef,
		RTDType:        t,
	}
}

// ---- CYCLE ----

type CycleConfig struct {
	IntervalMs int `yaml:"interval_ms"` // 0 => back-to-back cycles
}

func (c CycleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ---- PLAUSIBILITY (optional, opt-in) ----

type PlausibleConfig struct {
	MinC float64 `yaml:"min_c"`
	MaxC float64 `yaml:"max_c"`
}

// ---- LOG ----

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ---- CHANNEL ----

type ChannelConfig struct {
	Role   string       `yaml:"role"`
	Label  string       `yaml:"label"`
	Select SelectConfig `yaml:"select"`
}

type SelectConfig struct {
	Driver string `yaml:"driver"` // periph | gpiocdev
	Pin    string `yaml:"pin"`    // periph
	Chip   string `yaml:"chip"`   // gpiocdev
	Line   int    `yaml:"line"`   // gpiocdev
}

func (s SelectConfig) Spec() bus.LineSpec {
	return bus.LineSpec{
		Driver: s.Driver,
		Pin:    s.Pin,
		Chip:   s.Chip,
		Offset: s.Line,
	}
}
