package mount

import (
	"math"
	"sync"

	"github.com/kestrel-optics/pursuit.camera/internal/monitoring"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// Sender is the command surface Drive needs from a mux.
type Sender interface {
	Send(command string) error
}

// Drive adapts a command Sender to the engine's drive sink. Slews
// arrive in screen pixels; Drive converts them to pan and tilt degrees
// through the camera's focal length and formats the move command.
//
// The sink contract is fire-and-forget, so send failures are counted
// and logged rather than returned.
type Drive struct {
	sender Sender
	fovDeg float64
	frameH int

	mu     sync.Mutex
	sent   uint64
	failed uint64
}

// NewDrive builds a Drive for a camera with the given vertical field
// of view and frame height in pixels.
func NewDrive(sender Sender, fovDeg float64, frameH int) *Drive {
	return &Drive{sender: sender, fovDeg: fovDeg, frameH: frameH}
}

// MoveBy implements pursuit.DriveSink. Screen right is pan right,
// screen down is tilt down.
func (d *Drive) MoveBy(dx, dy float64) {
	f := geom.FocalPx(d.fovDeg, d.frameH)
	if f <= 0 {
		return
	}
	pan := geom.RadToDeg(math.Atan2(dx, f))
	tilt := -geom.RadToDeg(math.Atan2(dy, f))
	d.dispatch(FormatMove(pan, tilt))
}

// Trigger implements pursuit.DriveSink.
func (d *Drive) Trigger() {
	d.dispatch("TR")
}

func (d *Drive) dispatch(command string) {
	err := d.sender.Send(command)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent++
	if err != nil {
		d.failed++
		monitoring.Logf("mount: drive command %q failed: %v", command, err)
	}
}

// Stats reports how many commands were dispatched and how many failed.
func (d *Drive) Stats() (sent, failed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.failed
}
