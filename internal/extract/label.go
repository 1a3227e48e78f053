package extract

import (
	"math"
	"strconv"
	"strings"
)

// ParseLabel converts a button label such as "❤️ 1.2k" into a count. The
// second return value is false when the label does not hold a number.
func ParseLabel(label string) (int64, bool) {
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == 'k', r == 'K', r == 'm', r == 'M':
			b.WriteRune(r)
		}
	}
	cleaned := strings.ToLower(strings.TrimSpace(b.String()))
	if cleaned == "" {
		return 0, false
	}
	switch {
	case strings.HasSuffix(cleaned, "k"):
		return scaled(strings.TrimSuffix(cleaned, "k"), 1_000)
	case strings.HasSuffix(cleaned, "m"):
		return scaled(strings.TrimSuffix(cleaned, "m"), 1_000_000)
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func scaled(prefix string, mult float64) (int64, bool) {
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	v := math.Round(f * mult)
	if v < 0 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}
