package max31865

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Opts holds various configuration options for the sensor
type Opts struct {
	// ContinuousMode removes delays by leaving the bias voltage enabled between
	// readings. This slightly increases power consumption and self-heating, but
	// is useful when taking measurements as quickly as possible (< 55/66ms)
	ContinuousMode bool
	// 60Hz noise is filtered by default, enable to filter 50Hz noise instead.
	Filter50Hz  bool
	RefResistor float64
	RTDType     RTDType
}

func DefaultOptions() *Opts {
	return AdafruitPT100()
}

func AdafruitPT100() *Opts {
	return &Opts{
		RefResistor: 430.0,
		RTDType:     RTDPT100,
	}
}

func AdafruitPT1000() *Opts {
	return &Opts{
		RefResistor: 4300.0,
		RTDType:     RTDPT1000,
	}
}

// NominalResistance returns the 0°C resistance of the given RTD type.
func NominalResistance(t RTDType) (float64, error) {
	switch t {
	case RTDPT100:
		return 100.0, nil
	case RTDPT1000:
		return 1000.0, nil
	}
	return 0, fmt.Errorf("max31865: invalid RTD type: %v", int(t))
}

// Connect opens the shared bus connection. Chip select is left to the caller
// since several converters hang off the same port.
func Connect(p spi.Port) (spi.Conn, error) {
	c, err := p.Connect(5*physic.MegaHertz, spi.Mode3|spi.NoCS, 8)
	if err != nil {
		return nil, fmt.Errorf("max31865: %v", err)
	}
	return c, nil
}

// New wraps one converter reachable through c. No bus traffic happens until
// Begin is called.
func New(c conn.Conn, name string, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	nominal, err := NominalResistance(opts.RTDType)
	if err != nil {
		return nil, err
	}

	d := &Dev{
		d:          c,
		opts:       *opts,
		name:       name,
		rtdNominal: nominal,
		sleep:      time.Sleep,
	}

	switch {
	case opts.Filter50Hz && opts.ContinuousMode:
		d.measDelay = 21 * time.Millisecond
	case opts.ContinuousMode:
		d.measDelay = 18 * time.Millisecond
	case opts.Filter50Hz:
		d.measDelay = 66 * time.Millisecond
	default:
		d.measDelay = 55 * time.Millisecond
	}

	return d, nil
}

type Dev struct {
	d          conn.Conn
	opts       Opts
	measDelay  time.Duration
	name       string
	rtdNominal float64
	sleep      func(time.Duration)

	mu   sync.Mutex
	last uint16
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, d.d)
}

// Begin performs the one-time register setup for the given wiring.
func (d *Dev) Begin(w WireCount) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Clear any existing fault flags
	if err := d.clearFault(); err != nil {
		return err
	}

	// Disable bias voltage when not in use to slightly reduce self-heating
	if err := d.setConfigFlag(configBias, d.opts.ContinuousMode); err != nil {
		return err
	}

	// Enable/disable hardware continuous mode
	if err := d.setConfigFlag(configModeAuto, d.opts.ContinuousMode); err != nil {
		return err
	}

	// Filter 50Hz/60Hz noise (defaults to 60Hz)
	if err := d.setConfigFlag(configFilt50Hz, d.opts.Filter50Hz); err != nil {
		return err
	}

	// Set wire count (either 3 or 2/4)
	if err := d.setConfigFlag(config3Wire, w == WireCount3); err != nil {
		return err
	}

	// Set resistance error thresholds
	return d.SetThreshold(0x0000, 0xFFFF)
}

// ReadRawCode triggers a conversion (unless running continuously) and
// returns the 15-bit RTD code with the fault bit stripped.
func (d *Dev) ReadRawCode() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.clearFault(); err != nil {
		return 0, err
	}

	if !d.opts.ContinuousMode {
		// Enable bias voltage and wait 10ms to stabilize
		if err := d.setConfigFlag(configBias, true); err != nil {
			return 0, err
		}
		d.sleep(10 * time.Millisecond)

		// Trigger one-shot reading
		if err := d.setConfigFlag(config1Shot, true); err != nil {
			return 0, err
		}

		d.sleep(d.measDelay)
	}

	var result [2]byte
	if err := d.readReg(rtdMsbReg, result[:]); err != nil {
		return 0, err
	}

	if !d.opts.ContinuousMode {
		// Disable bias current again to reduce self-heating.
		if err := d.setConfigFlag(configBias, false); err != nil {
			return 0, err
		}
	}

	rtd := (uint16(result[0]) << 8) | uint16(result[1])

	// Clear fault flag
	rtd >>= 1

	d.last = rtd
	return rtd, nil
}

// ReadFaultRegister returns the raw fault status register.
func (d *Dev) ReadFaultRegister() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b [1]byte
	if err := d.readReg(faultStatReg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) ClearFault() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearFault()
}

// Temperature converts the code of the last ReadRawCode to °C.
func (d *Dev) Temperature(rNominal, rRef float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ConvertTemperature(d.last, rNominal, rRef)
}

// ConvertTemperature turns an RTD code into °C for the given nominal and
// reference resistances.
func ConvertTemperature(code uint16, rNominal, rRef float64) float64 {
	// Convert to resistance
	Rt := float64(code) * rRef / CodeFullScale

	Z1 := -rtdA
	Z2 := rtdA*rtdA - (4 * rtdB)
	Z3 := (4 * rtdB) / rNominal
	Z4 := 2 * rtdB

	temp := Z2 + (Z3 * Rt)
	temp = (math.Sqrt(temp) + Z1) / Z4

	if temp >= 0 {
		return temp
	}

	// Normalize to 100 ohm
	Rt = Rt * 100 / rNominal

	rpoly := Rt

	temp = -242.02
	temp = temp + (2.2228 * rpoly)
	rpoly = rpoly * Rt // Resistance squared
	temp = temp + (2.5859e-3 * rpoly)
	rpoly = rpoly * Rt // ^3
	temp = temp - (4.8260e-6 * rpoly)
	rpoly = rpoly * Rt // ^4
	temp = temp - (2.8183e-8 * rpoly)
	rpoly = rpoly * Rt // ^5
	temp = temp + (1.5243e-10 * rpoly)

	return temp
}

func (d *Dev) clearFault() error {
	var b [1]byte
	if err := d.readReg(configReg, b[:]); err != nil {
		return err
	}

	// Clear bits 5, 3, 2 (one-shot plus fault cycle bits) and set bit 1 to clear fault
	config := b[0] &^ configClearMask
	config |= configFaultStat

	return d.writeCommands([]byte{configReg, config})
}

func (d *Dev) readReg(reg uint8, b []byte) error {
	read := make([]byte, len(b)+1)
	write := make([]byte, len(read))

	write[0] = reg & 0x7F
	if err := d.d.Tx(write, read); err != nil {
		return d.wrap(err)
	}
	copy(b, read[1:])

	return nil
}

func (d *Dev) SetThreshold(lower, upper uint16) error {
	if err := d.writeCommands([]byte{lFaultLsbReg, byte(lower & 0xFF)}); err != nil {
		return err
	}
	if err := d.writeCommands([]byte{lFaultMsbReg, byte(lower >> 8)}); err != nil {
		return err
	}
	if err := d.writeCommands([]byte{hFaultLsbReg, byte(upper & 0xFF)}); err != nil {
		return err
	}
	return d.writeCommands([]byte{hFaultMsbReg, byte(upper >> 8)})
}

// Sets a config flag to on or off.
func (d *Dev) setConfigFlag(flag uint8, on bool) error {
	var result [1]byte
	if err := d.readReg(configReg, result[:]); err != nil {
		return err
	}

	newConfig := result[0]
	if on {
		newConfig |= flag
	} else {
		newConfig &^= flag
	}
	return d.writeCommands([]byte{configReg, newConfig})
}

// writeCommands writes a command to the device.
//
// Warning: b may be modified!
func (d *Dev) writeCommands(b []byte) error {
	for i := 0; i < len(b); i += 2 {
		b[i] |= 0x80
	}

	if err := d.d.Tx(b, nil); err != nil {
		return d.wrap(err)
	}

	return nil
}

func (d *Dev) wrap(err error) error {
	return fmt.Errorf("%s: %w", strings.ToLower(d.name), err)
}
