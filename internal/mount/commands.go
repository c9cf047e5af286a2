// Package mount drives a serial pan-tilt head. A Mux owns the port and
// multiplexes its line events to subscribers; Drive adapts the command
// surface to the slew and trigger calls the tracking engine emits.
//
// The wire protocol is two-letter ASCII commands, CRLF framed. The only
// command with arguments is the relative move.
package mount

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxStepDeg bounds a single relative move. The engine's pixel step cap
// works out to under ten degrees at the widest supported field of view,
// so anything larger is a malformed or hostile command.
const maxStepDeg = 15.0

// Allow list of argument-free commands accepted by Send.
var allowedCommands = []string{
	"TR", // Release the shutter
	"HM", // Slew to the home position and re-zero reported angles
	"ST", // Stop all motion immediately
	"?P", // Query current pan/tilt position
	"?V", // Query firmware version
	"?S", // Query drive status flags
}

// IsValidMoveCommand reports whether cmd is a well-formed relative
// move: "MV <pan> <tilt>" with both angles in degrees, parseable, and
// within ±maxStepDeg.
func IsValidMoveCommand(cmd string) bool {
	if !strings.HasPrefix(cmd, "MV ") {
		return false
	}
	fields := strings.Fields(strings.TrimPrefix(cmd, "MV "))
	if len(fields) != 2 {
		return false
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) {
			return false
		}
		if math.Abs(v) > maxStepDeg {
			return false
		}
	}
	return true
}

// IsAllowedCommand reports whether cmd may be written to the drive.
func IsAllowedCommand(cmd string) bool {
	if IsValidMoveCommand(cmd) {
		return true
	}
	for _, allowed := range allowedCommands {
		if cmd == allowed {
			return true
		}
	}
	return false
}

// FormatMove renders a relative move command. Angles beyond the
// per-step bound are clamped, keeping sign.
func FormatMove(panDeg, tiltDeg float64) string {
	panDeg = clampStep(panDeg)
	tiltDeg = clampStep(tiltDeg)
	// Fold negative zero so formatted commands stay stable.
	if panDeg == 0 {
		panDeg = 0
	}
	if tiltDeg == 0 {
		tiltDeg = 0
	}
	return fmt.Sprintf("MV %.3f %.3f", panDeg, tiltDeg)
}

func clampStep(deg float64) float64 {
	if deg > maxStepDeg {
		return maxStepDeg
	}
	if deg < -maxStepDeg {
		return -maxStepDeg
	}
	return deg
}

// Event type tokens for lines read from the drive.
const (
	EventPosition = "position"
	EventVersion  = "version"
	EventAck      = "ack"
	EventFault    = "fault"
	EventUnknown  = "unknown"
)

// ClassifyEvent inspects a line from the drive and returns its event
// type token. Unrecognised lines classify as unknown rather than
// erroring; firmware chatter varies between revisions.
func ClassifyEvent(line string) string {
	switch {
	case strings.HasPrefix(line, "P "):
		return EventPosition
	case strings.HasPrefix(line, "V "):
		return EventVersion
	case strings.HasPrefix(line, "OK"):
		return EventAck
	case strings.HasPrefix(line, "ERR"):
		return EventFault
	default:
		return EventUnknown
	}
}

// ParsePosition extracts pan and tilt degrees from a position report
// of the form "P <pan> <tilt>".
func ParsePosition(line string) (panDeg, tiltDeg float64, ok bool) {
	if ClassifyEvent(line) != EventPosition {
		return 0, 0, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, "P "))
	if len(fields) != 2 {
		return 0, 0, false
	}
	panDeg, errPan := strconv.ParseFloat(fields[0], 64)
	tiltDeg, errTilt := strconv.ParseFloat(fields[1], 64)
	if errPan != nil || errTilt != nil {
		return 0, 0, false
	}
	return panDeg, tiltDeg, true
}
