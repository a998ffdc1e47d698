package rtd

import "fmt"

// RatioFullScale maps a raw code onto the reference resistance.
const RatioFullScale = 32768.0

type Reading struct {
	Raw         uint16
	Ratio       float64
	Resistance  float64 // ohms
	Temperature float64 // °C
}

func Ratio(code uint16) float64 {
	return float64(code) / RatioFullScale
}

func Resistance(ratio, rRef float64) float64 {
	return rRef * ratio
}

// ReadChannel takes one reading from ch. Nothing is retried and the values
// are not range checked.
func ReadChannel(sel Selector, ch *Channel) (Reading, error) {
	var r Reading
	err := sel.WithChannelSelected(ch.Select(), func() error {
		code, err := ch.dev.ReadRawCode()
		if err != nil {
			return err
		}
		r.Raw = code
		r.Ratio = Ratio(code)
		r.Resistance = Resistance(r.Ratio, ch.RRef)
		r.Temperature = ch.dev.Temperature(ch.RNominal, ch.RRef)
		return nil
	})
	if err != nil {
		return Reading{}, fmt.Errorf("%s: read: %w", ch.Role, err)
	}
	return r, nil
}

// Bounds is an optional plausibility window for temperatures.
type Bounds struct {
	MinC float64
	MaxC float64
}

func (b *Bounds) Contains(tempC float64) bool {
	if b == nil {
		return true
	}
	return tempC >= b.MinC && tempC <= b.MaxC
}
