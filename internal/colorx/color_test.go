package colorx

import (
	"math"
	"testing"
)

func TestHexToHSLKnownColors(t *testing.T) {
	cases := []struct {
		hex     string
		h, s, l float64
	}{
		{"#ffffff", 0, 0, 1},
		{"#000000", 0, 0, 0},
		{"#ff0000", 0, 1, 0.5},
		{"#00ff00", 1.0 / 3.0, 1, 0.5},
		{"#0000ff", 2.0 / 3.0, 1, 0.5},
		{"#808080", 0, 0, 0.502},
	}
	for _, tc := range cases {
		h, s, l, err := HexToHSL(tc.hex)
		if err != nil {
			t.Fatalf("%s: %v", tc.hex, err)
		}
		if math.Abs(h-tc.h) > 0.01 || math.Abs(s-tc.s) > 0.01 || math.Abs(l-tc.l) > 0.01 {
			t.Fatalf("%s: got (%f,%f,%f), want (%f,%f,%f)", tc.hex, h, s, l, tc.h, tc.s, tc.l)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, hex := range []string{"#ffffff", "#000000", "#ff0000", "#1e90ff", "#daa520", "#9146ff", "#abcdef"} {
		h, s, l, err := HexToHSL(hex)
		if err != nil {
			t.Fatalf("%s: %v", hex, err)
		}
		back := HSLToHex(h, s, l)
		if back != hex {
			t.Fatalf("round trip %s -> (%f,%f,%f) -> %s", hex, h, s, l, back)
		}
	}
}

func TestRoundTripHSLLaw(t *testing.T) {
	// hexToHsl(hslToHex(h,s,l)) stays within rounding tolerance of the input.
	for _, tc := range [][3]float64{{0.1, 0.5, 0.5}, {0.6, 0.9, 0.2}, {0.95, 0.3, 0.8}, {0, 0, 0.5}} {
		hex := HSLToHex(tc[0], tc[1], tc[2])
		h, s, l, err := HexToHSL(hex)
		if err != nil {
			t.Fatalf("%v: %v", tc, err)
		}
		if math.Abs(h-tc[0]) > 0.01 || math.Abs(s-tc[1]) > 0.01 || math.Abs(l-tc[2]) > 0.01 {
			t.Fatalf("hsl(%v) -> %s -> (%f,%f,%f)", tc, hex, h, s, l)
		}
	}
}

func TestClampLuminance(t *testing.T) {
	cases := []struct {
		hex  string
		min  float64
		want string
	}{
		// Already bright enough: unchanged.
		{"#ffffff", 0.3, "#ffffff"},
		// Black gets lifted to the minimum.
		{"#000000", 0.3, HSLToHex(0, 0, 0.3)},
		// Dark red keeps its hue.
		{"#400000", 0.5, ""},
	}
	for _, tc := range cases {
		got, err := ClampLuminance(tc.hex, tc.min)
		if err != nil {
			t.Fatalf("%s: %v", tc.hex, err)
		}
		if tc.want != "" && got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.hex, got, tc.want)
		}
		_, _, l, err := HexToHSL(got)
		if err != nil {
			t.Fatalf("%s result %s: %v", tc.hex, got, err)
		}
		if l < tc.min-0.01 {
			t.Fatalf("%s: lightness %f below minimum %f", tc.hex, l, tc.min)
		}
	}
}

func TestClampLuminanceRejectsGarbage(t *testing.T) {
	for _, hex := range []string{"", "red", "#12345", "#gggggg"} {
		if _, err := ClampLuminance(hex, 0.3); err == nil {
			t.Fatalf("expected error for %q", hex)
		}
	}
}

func TestShortHexForm(t *testing.T) {
	h1, s1, l1, err := HexToHSL("#fff")
	if err != nil {
		t.Fatal(err)
	}
	h2, s2, l2, _ := HexToHSL("#ffffff")
	if h1 != h2 || s1 != s2 || l1 != l2 {
		t.Fatalf("short form mismatch: (%f,%f,%f) vs (%f,%f,%f)", h1, s1, l1, h2, s2, l2)
	}
}
