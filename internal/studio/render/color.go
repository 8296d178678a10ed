package render

import (
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa, rgb()/rgba() and
// CSS color names. ok is false for empty, "none" and "transparent".
func ParseColor(s string) (color.Color, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "none", "transparent":
		return nil, false
	}

	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if strings.HasPrefix(s, "rgb") {
		return parseFunctional(s)
	}
	if c, ok := colornames.Map[s]; ok {
		return c, true
	}
	return nil, false
}

func parseHex(h string) (color.Color, bool) {
	expand := func(c byte) string { return string([]byte{c, c}) }
	switch len(h) {
	case 3:
		h = expand(h[0]) + expand(h[1]) + expand(h[2]) + "ff"
	case 4:
		h = expand(h[0]) + expand(h[1]) + expand(h[2]) + expand(h[3])
	case 6:
		h += "ff"
	case 8:
	default:
		return nil, false
	}

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return nil, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}

func parseFunctional(s string) (color.Color, bool) {
	open, close := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return nil, false
	}
	parts := strings.Split(s[open+1:close], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, false
	}

	var rgb [3]uint8
	for i := range 3 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil, false
		}
		rgb[i] = uint8(clamp(v, 0, 255))
	}
	alpha := 1.0
	if len(parts) == 4 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return nil, false
		}
		alpha = clamp(v, 0, 1)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: uint8(alpha*255 + 0.5)}, true
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
