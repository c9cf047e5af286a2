package mount

import (
	"math"
	"testing"
)

func TestIsValidMoveCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		// Valid commands
		{"simple move", "MV 1.5 -2.25", true},
		{"zero move", "MV 0.000 0.000", true},
		{"integer angles", "MV -15 15", true},
		{"extra spacing", "MV 1.5  -2.25", true},
		{"at bound", "MV 15.0 -15.0", true},

		// Invalid commands
		{"bare prefix", "MV", false},
		{"one angle", "MV 1", false},
		{"three angles", "MV 1 2 3", false},
		{"not numbers", "MV a b", false},
		{"pan over bound", "MV 16 0", false},
		{"tilt under bound", "MV 0 -15.001", false},
		{"nan angle", "MV NaN 0", false},
		{"wrong verb", "XX 1 2", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidMoveCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsValidMoveCommand(%q) = %v, expected %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestIsAllowedCommand(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		expected bool
	}{
		// Static commands
		{"trigger", "TR", true},
		{"home", "HM", true},
		{"stop", "ST", true},
		{"query position", "?P", true},
		{"query version", "?V", true},
		{"query status", "?S", true},

		// Dynamic move commands
		{"valid move", "MV 1.25 -0.5", true},
		{"oversized move", "MV 99 0", false},

		// Everything else
		{"unknown verb", "ZZ", false},
		{"lower case", "tr", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowedCommand(tt.cmd); got != tt.expected {
				t.Errorf("IsAllowedCommand(%q) = %v, expected %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestFormatMove(t *testing.T) {
	tests := []struct {
		name     string
		pan      float64
		tilt     float64
		expected string
	}{
		{"plain", 1.23456, -2.5, "MV 1.235 -2.500"},
		{"zero", 0, 0, "MV 0.000 0.000"},
		{"negative zero folds", math.Copysign(0, -1), math.Copysign(0, -1), "MV 0.000 0.000"},
		{"clamps to step bound", 40, -40, "MV 15.000 -15.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMove(tt.pan, tt.tilt); got != tt.expected {
				t.Errorf("FormatMove(%v, %v) = %q, expected %q", tt.pan, tt.tilt, got, tt.expected)
			}
		})
	}
}

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		line     string
		expected string
	}{
		{"P 1.000 2.000", EventPosition},
		{"V fw-2.1.0", EventVersion},
		{"OK MV", EventAck},
		{"OK", EventAck},
		{"ERR 3 limit reached", EventFault},
		{"something else", EventUnknown},
		{"", EventUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyEvent(tt.line); got != tt.expected {
			t.Errorf("ClassifyEvent(%q) = %q, expected %q", tt.line, got, tt.expected)
		}
	}
}

func TestParsePosition(t *testing.T) {
	pan, tilt, ok := ParsePosition("P -12.5 3.25")
	if !ok || pan != -12.5 || tilt != 3.25 {
		t.Errorf("ParsePosition valid line = (%v, %v, %v), expected (-12.5, 3.25, true)", pan, tilt, ok)
	}

	for _, line := range []string{"P x y", "P 1.0", "P 1 2 3", "V 1.0 2.0", ""} {
		if _, _, ok := ParsePosition(line); ok {
			t.Errorf("ParsePosition(%q) succeeded, expected failure", line)
		}
	}
}
