package colorx

import (
	"fmt"
	"math"
	"strings"
)

// HexToHSL parses a "#rrggbb" (or "#rgb") color into h, s, l components, each
// in [0, 1].
func HexToHSL(hex string) (h, s, l float64, err error) {
	r, g, b, err := parseHex(hex)
	if err != nil {
		return 0, 0, 0, err
	}

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	l = (max + min) / 2

	if max == min {
		return 0, 0, l, nil
	}

	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}

	switch max {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h /= 6

	return h, s, l, nil
}

// HSLToHex converts h, s, l components in [0, 1] back to "#rrggbb" form.
func HSLToHex(h, s, l float64) string {
	var r, g, b float64
	if s == 0 {
		r, g, b = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		r = hueToRGB(p, q, h+1.0/3.0)
		g = hueToRGB(p, q, h)
		b = hueToRGB(p, q, h-1.0/3.0)
	}
	return fmt.Sprintf("#%02x%02x%02x", channel(r), channel(g), channel(b))
}

// ClampLuminance returns hex unchanged when its lightness already meets min,
// otherwise the same hue/saturation lifted to the minimum lightness. Colors
// that fail to parse are reported so the caller can substitute a default.
func ClampLuminance(hex string, min float64) (string, error) {
	h, s, l, err := HexToHSL(hex)
	if err != nil {
		return "", err
	}
	if l >= min {
		return hex, nil
	}
	return HSLToHex(h, s, min), nil
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

func channel(v float64) int {
	n := int(math.Round(v * 255))
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	return n
}

func parseHex(hex string) (r, g, b float64, err error) {
	raw := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	switch len(raw) {
	case 3:
		raw = string([]byte{raw[0], raw[0], raw[1], raw[1], raw[2], raw[2]})
	case 6:
	default:
		return 0, 0, 0, fmt.Errorf("colorx: malformed hex color %q", hex)
	}

	var ri, gi, bi int
	if _, err := fmt.Sscanf(strings.ToLower(raw), "%02x%02x%02x", &ri, &gi, &bi); err != nil {
		return 0, 0, 0, fmt.Errorf("colorx: malformed hex color %q", hex)
	}
	return float64(ri) / 255, float64(gi) / 255, float64(bi) / 255, nil
}
