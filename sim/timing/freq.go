package timing

import (
	"fmt"
	"strconv"
	"strings"
)

// Freq defines the type of frequency.
type Freq float64

// Defines the unit of frequency.
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Seconds converts a number of cycles at frequency f into seconds.
func (f Freq) Seconds(c VTimeInCycle) float64 {
	if f == 0 {
		panic("frequency cannot be 0")
	}

	return float64(c) / float64(f)
}

// String formats the frequency with the largest unit that keeps the value at
// or above one.
func (f Freq) String() string {
	switch {
	case f >= GHz:
		return strconv.FormatFloat(float64(f/GHz), 'g', -1, 64) + "GHz"
	case f >= MHz:
		return strconv.FormatFloat(float64(f/MHz), 'g', -1, 64) + "MHz"
	case f >= KHz:
		return strconv.FormatFloat(float64(f/KHz), 'g', -1, 64) + "KHz"
	default:
		return strconv.FormatFloat(float64(f), 'g', -1, 64) + "Hz"
	}
}

// ParseFreq parses strings such as "2MHz", "500 KHz" or "1e6".
func ParseFreq(s string) (Freq, error) {
	str := strings.TrimSpace(s)
	unit := Hz

	units := []struct {
		suffix string
		unit   Freq
	}{
		{"GHz", GHz}, {"MHz", MHz}, {"KHz", KHz}, {"kHz", KHz}, {"Hz", Hz},
	}

	for _, u := range units {
		if strings.HasSuffix(str, u.suffix) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u.suffix))
			unit = u.unit

			break
		}
	}

	v, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}

	if v <= 0 {
		return 0, fmt.Errorf("invalid frequency %q: must be positive", s)
	}

	return Freq(v) * unit, nil
}
