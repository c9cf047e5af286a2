package p1feed

import (
	"encoding/json"
	"testing"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

func TestDatagramUnmarshalFull(t *testing.T) {
	payload := `{"t":1700000000000000000,"sightings":[` +
		`{"p":[10,20,5],"v":[1.5,0,-0.5],"valid":true,"class":"drone","vis":true}]}`

	var d Datagram
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		t.Fatalf("Failed to unmarshal datagram: %v", err)
	}

	if d.T != 1700000000000000000 {
		t.Errorf("Expected timestamp 1700000000000000000, got %d", d.T)
	}
	if len(d.Sightings) != 1 {
		t.Fatalf("Expected 1 sighting, got %d", len(d.Sightings))
	}

	s := d.Sightings[0].Sighting()
	if s.Pos != (geom.Vec3{X: 10, Y: 20, Z: 5}) {
		t.Errorf("Unexpected position: %+v", s.Pos)
	}
	if s.Vel != (geom.Vec3{X: 1.5, Y: 0, Z: -0.5}) {
		t.Errorf("Unexpected velocity: %+v", s.Vel)
	}
	if !s.Valid {
		t.Error("Expected valid sighting")
	}
	if s.Class != "drone" {
		t.Errorf("Expected class drone, got %q", s.Class)
	}
	if s.Vis == nil || !*s.Vis {
		t.Error("Expected visibility hint true")
	}
}

// TestDatagramUnmarshalMinimal verifies a bare-bones sender needs only
// positions: velocity reads zero, valid defaults true, vis stays nil
func TestDatagramUnmarshalMinimal(t *testing.T) {
	payload := `{"t":1,"sightings":[{"p":[5,6,7]}]}`

	var d Datagram
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		t.Fatalf("Failed to unmarshal datagram: %v", err)
	}

	s := d.Sightings[0].Sighting()
	if s.Pos != (geom.Vec3{X: 5, Y: 6, Z: 7}) {
		t.Errorf("Unexpected position: %+v", s.Pos)
	}
	if s.Vel != (geom.Vec3{}) {
		t.Errorf("Expected zero velocity, got %+v", s.Vel)
	}
	if !s.Valid {
		t.Error("Expected omitted valid flag to read as true")
	}
	if s.Vis != nil {
		t.Error("Expected no visibility hint")
	}
}

func TestWireSightingValidFlag(t *testing.T) {
	payload := `{"t":1,"sightings":[{"p":[1,1,1],"valid":false}]}`

	var d Datagram
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		t.Fatalf("Failed to unmarshal datagram: %v", err)
	}
	if d.Sightings[0].Sighting().Valid {
		t.Error("Expected explicit valid:false to be honoured")
	}
}

func TestWireRoundTrip(t *testing.T) {
	vis := false
	in := pursuit.Sighting{
		Pos:   geom.Vec3{X: 1, Y: 2, Z: 3},
		Vel:   geom.Vec3{X: -1, Y: 0, Z: 4},
		Valid: true,
		Class: "rotor",
		Vis:   &vis,
	}

	out := WireFrom(in).Sighting()
	if out.Pos != in.Pos || out.Vel != in.Vel {
		t.Errorf("Vectors did not round-trip: %+v", out)
	}
	if out.Valid != in.Valid || out.Class != in.Class {
		t.Errorf("Flags did not round-trip: %+v", out)
	}
	if out.Vis == nil || *out.Vis != false {
		t.Error("Visibility hint did not round-trip")
	}
}

func TestDatagramConvert(t *testing.T) {
	d := DatagramFrom(42, []pursuit.Sighting{
		{Pos: geom.Vec3{X: 1}, Valid: true},
		{Pos: geom.Vec3{X: 2}, Valid: false},
	})
	if d.T != 42 {
		t.Errorf("Expected timestamp 42, got %d", d.T)
	}

	sightings := d.Convert()
	if len(sightings) != 2 {
		t.Fatalf("Expected 2 sightings, got %d", len(sightings))
	}
	if sightings[1].Valid {
		t.Error("Expected second sighting to stay invalid")
	}

	if got := (Datagram{T: 9}).Convert(); got != nil {
		t.Errorf("Expected nil for empty datagram, got %v", got)
	}
}
