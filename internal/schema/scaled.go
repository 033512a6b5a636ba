package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Price is a scaled integer. The scale is defined per instrument.
type Price int64

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

// Notional is a scaled integer in price units (price x whole quantity).
type Notional int64

// Fee is a scaled integer in price units.
type Fee int64

// AppendString renders the price as a decimal string.
func (p Price) AppendString(scale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(p), scale)
}

// Format renders the price with the given scale.
func (p Price) Format(scale int) string {
	return string(p.AppendString(scale, nil))
}

// AppendString renders the quantity as a decimal string.
func (q Quantity) AppendString(scale int, buf []byte) []byte {
	return appendScaledInt(buf, int64(q), scale)
}

// Format renders the quantity with the given scale.
func (q Quantity) Format(scale int) string {
	return string(q.AppendString(scale, nil))
}

// Format renders the notional with the given scale.
func (n Notional) Format(scale int) string {
	return string(appendScaledInt(nil, int64(n), scale))
}

func appendScaledInt(buf []byte, value int64, scale int) []byte {
	if scale <= 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(^value) + 1
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}

// ParseScaled converts a decimal string into a scaled integer, truncating
// fractional digits beyond the scale.
func ParseScaled(s string, scale int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal string")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("invalid decimal string: %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > scale {
		fracPart = fracPart[:scale]
	}
	for len(fracPart) < scale {
		fracPart += "0"
	}
	value, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal string: %q", s)
	}
	if neg {
		value = -value
	}
	return value, nil
}

const maxInt64 = int64(^uint64(0) >> 1)

// MulNotional multiplies a price by a whole-unit quantity with an
// overflow check. The second return is true on overflow.
func MulNotional(price Price, qty int64) (Notional, bool) {
	p := int64(price)
	if p == 0 || qty == 0 {
		return 0, false
	}
	ap, aq := p, qty
	if ap < 0 {
		ap = -ap
	}
	if aq < 0 {
		aq = -aq
	}
	if ap > maxInt64/aq {
		return 0, true
	}
	return Notional(p * qty), false
}
