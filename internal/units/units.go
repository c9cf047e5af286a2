// Package units provides the display-unit conversions reports print:
// target speeds in the operator's preferred unit and screen distances
// as the pan angle they subtend.
package units

import "math"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Track snapshots store speeds in m/s (meters per second).
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694 // m/s to mph
	case KMPH, KPH:
		return speedMPS * 3.6 // m/s to km/h
	case MPS:
		return speedMPS // no conversion needed
	default:
		return speedMPS // default to m/s if unknown unit
	}
}

// PxToDeg converts a screen distance in pixels to the angle it
// subtends at the given focal length, in degrees. Non-positive focal
// lengths return 0.
func PxToDeg(px, focalPx float64) float64 {
	if focalPx <= 0 {
		return 0
	}
	return math.Atan(px/focalPx) * 180 / math.Pi
}

// DegToPx is the inverse of PxToDeg: the screen distance a pan of
// deg degrees moves the frame centre at the given focal length.
func DegToPx(deg, focalPx float64) float64 {
	if focalPx <= 0 {
		return 0
	}
	return math.Tan(deg*math.Pi/180) * focalPx
}
