package max31865

type RTDType int

const (
	RTDPT100 RTDType = iota
	RTDPT1000
)

func (t RTDType) String() string {
	switch t {
	case RTDPT100:
		return "PT100"
	case RTDPT1000:
		return "PT1000"
	}
	return "unknown"
}

type WireCount int

const (
	WireCount2 WireCount = iota
	WireCount3
	WireCount4
)

func (w WireCount) String() string {
	switch w {
	case WireCount2:
		return "2-wire"
	case WireCount3:
		return "3-wire"
	case WireCount4:
		return "4-wire"
	}
	return "unknown"
}

// Callendar-Van Dusen coefficients
const (
	rtdA float64 = 3.9083e-3
	rtdB float64 = -5.775e-7
)

// CodeFullScale is the divisor turning a 15-bit RTD code into a ratio of the
// reference resistance.
const CodeFullScale = 32768

const (
	configReg uint8 = iota
	rtdMsbReg
	rtdLsbReg
	hFaultMsbReg
	hFaultLsbReg
	lFaultMsbReg
	lFaultLsbReg
	faultStatReg
)

// Fault status register bits.
const (
	FaultHighThresh uint8 = 0x80
	FaultLowThresh  uint8 = 0x40
	FaultRefInLow   uint8 = 0x20
	FaultRefInHigh  uint8 = 0x10
	FaultRtdInLow   uint8 = 0x08
	FaultOvUv       uint8 = 0x04
)

const (
	configBias      uint8 = 0x80
	configModeAuto  uint8 = 0x40
	config1Shot     uint8 = 0x20
	config3Wire     uint8 = 0x10
	configFaultStat uint8 = 0x02
	configFilt50Hz  uint8 = 0x01

	// One-shot and fault detection cycle bits are self-clearing and must be
	// written as zero when clearing the fault status.
	configClearMask uint8 = 0x2C
)
