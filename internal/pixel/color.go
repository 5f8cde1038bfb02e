package pixel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadColor is returned for input that cannot be read as a color.
var ErrBadColor = errors.New("invalid color")

// RGB is a color triple; channels outside [0,255] are clamped.
type RGB struct {
	R, G, B float64
}

// Normalize accepts either a hex string or an RGB triple and produces the
// canonical uppercase 6-hex form.
func Normalize(v any) (string, error) {
	switch c := v.(type) {
	case string:
		return NormalizeHex(c)
	case RGB:
		return NormalizeRGB(c), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrBadColor, v)
}

// NormalizeHex validates a hex color string, with or without a leading
// '#', in any case, and returns the uppercase 6-hex form. 3-digit
// shorthand is expanded by doubling each nibble.
func NormalizeHex(s string) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch {
	case len(h) == 6 && isHex(h):
		return strings.ToUpper(h), nil
	case len(h) == 3 && isHex(h):
		return strings.ToUpper(expandShorthand(h)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadColor, s)
}

func expandShorthand(h string) string {
	var b strings.Builder
	for _, r := range h {
		b.WriteRune(r)
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeRGB clamps each channel to [0,255], rounds, and formats hex.
func NormalizeRGB(c RGB) string {
	return fmt.Sprintf("%02X%02X%02X", clampChan(c.R), clampChan(c.G), clampChan(c.B))
}

// NormalizeLoose is the forgiving variant used inside the sync path. It
// additionally accepts 3-hex shorthand and rgb()/rgba() strings, and never
// fails: unrecognized input passes through uppercased so a malformed color
// from a producer cannot break the flush cycle.
func NormalizeLoose(s string) string {
	in := strings.TrimSpace(s)
	if hex, err := NormalizeHex(in); err == nil {
		return hex
	}
	low := strings.ToLower(in)
	if strings.HasPrefix(low, "rgb(") || strings.HasPrefix(low, "rgba(") {
		if hex, ok := parseRGBFunc(low); ok {
			return hex
		}
	}
	return strings.ToUpper(in)
}

func parseRGBFunc(s string) (string, bool) {
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end <= open {
		return "", false
	}
	parts := strings.Split(s[open+1:end], ",")
	if len(parts) < 3 {
		return "", false
	}
	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return "", false
		}
		ch[i] = v
	}
	// Alpha, if present, is ignored.
	return NormalizeRGB(RGB{R: ch[0], G: ch[1], B: ch[2]}), true
}

func clampChan(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return int(math.Round(v))
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
