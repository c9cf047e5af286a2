// Package p1feed receives detector sightings and serves them to the
// engine as a Feed. The wire format is one JSON datagram per detector
// frame; the listener keeps only the freshest batch so a slow engine
// tick never queues stale detections. Scenario files hold the same
// datagrams as JSON lines for replay and offline sweeps.
package p1feed

import (
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// Datagram is one detector frame on the wire: the capture timestamp in
// unix nanoseconds and every sighting in that frame.
type Datagram struct {
	T         int64          `json:"t"`
	Sightings []WireSighting `json:"sightings"`
}

// WireSighting is the compact wire form of a sighting. Vectors are
// [x,y,z] arrays; a missing velocity reads as zero and a missing
// valid flag reads as true, so minimal detectors need only "p".
type WireSighting struct {
	P     [3]float64 `json:"p"`
	V     [3]float64 `json:"v"`
	Valid *bool      `json:"valid,omitempty"`
	Class string     `json:"class,omitempty"`
	Vis   *bool      `json:"vis,omitempty"`
}

// Sighting converts the wire form to the engine's sighting type.
func (w WireSighting) Sighting() pursuit.Sighting {
	valid := true
	if w.Valid != nil {
		valid = *w.Valid
	}
	return pursuit.Sighting{
		Pos:   geom.Vec3{X: w.P[0], Y: w.P[1], Z: w.P[2]},
		Vel:   geom.Vec3{X: w.V[0], Y: w.V[1], Z: w.V[2]},
		Valid: valid,
		Class: w.Class,
		Vis:   w.Vis,
	}
}

// WireFrom converts an engine sighting to its wire form.
func WireFrom(s pursuit.Sighting) WireSighting {
	valid := s.Valid
	return WireSighting{
		P:     [3]float64{s.Pos.X, s.Pos.Y, s.Pos.Z},
		V:     [3]float64{s.Vel.X, s.Vel.Y, s.Vel.Z},
		Valid: &valid,
		Class: s.Class,
		Vis:   s.Vis,
	}
}

// Convert maps a whole datagram to engine sightings.
func (d Datagram) Convert() []pursuit.Sighting {
	if len(d.Sightings) == 0 {
		return nil
	}
	sightings := make([]pursuit.Sighting, len(d.Sightings))
	for i, w := range d.Sightings {
		sightings[i] = w.Sighting()
	}
	return sightings
}

// DatagramFrom builds a wire datagram from engine sightings.
func DatagramFrom(tNs int64, sightings []pursuit.Sighting) Datagram {
	d := Datagram{T: tNs}
	if len(sightings) > 0 {
		d.Sightings = make([]WireSighting, len(sightings))
		for i, s := range sightings {
			d.Sightings[i] = WireFrom(s)
		}
	}
	return d
}
