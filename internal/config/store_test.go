package config

import (
	"sync"
	"testing"
)

func TestStoreSeedsAndNormalizes(t *testing.T) {
	s := NewStore(&Tuning{Sensitivity: ptrFloat64(5)})
	snap := s.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot returned nil")
	}
	if got := snap.GetSensitivity(); got != 1 {
		t.Errorf("seed not normalized: sensitivity = %v, want 1", got)
	}

	// Nil seed is usable too.
	s = NewStore(nil)
	if s.Snapshot() == nil {
		t.Fatal("Snapshot after nil seed returned nil")
	}
}

func TestStoreReplaceDoesNotAliasCaller(t *testing.T) {
	in := &Tuning{Sensitivity: ptrFloat64(0.5)}
	s := NewStore(nil)
	s.Replace(in)

	*in.Sensitivity = 0.1
	if got := s.Snapshot().GetSensitivity(); got != 0.5 {
		t.Errorf("store aliased caller memory: sensitivity = %v, want 0.5", got)
	}
}

func TestStoreApplyOverlays(t *testing.T) {
	s := NewStore(&Tuning{
		Strategy:    ptrString(StrategyClosest),
		Sensitivity: ptrFloat64(0.4),
	})
	out := s.Apply(&Tuning{Sensitivity: ptrFloat64(0.9)})

	if got := out.GetSensitivity(); got != 0.9 {
		t.Errorf("Apply result sensitivity = %v, want 0.9", got)
	}
	if got := out.GetStrategy(); got != StrategyClosest {
		t.Errorf("Apply result strategy = %q, want untouched %q", got, StrategyClosest)
	}
	if s.Snapshot() != out {
		t.Error("Apply should publish the returned snapshot")
	}
}

// TestStoreSnapshotNeverPartial swaps paired frequency bounds under
// concurrency and checks that no reader ever observes a half-applied
// pair. Bounds are published min=max per swap, so min != max in a
// snapshot would mean torn visibility.
func TestStoreSnapshotNeverPartial(t *testing.T) {
	s := NewStore(&Tuning{MinUpdateHz: ptrFloat64(30), MaxUpdateHz: ptrFloat64(30)})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vals := []float64{30, 60, 90, 120}
		for i := 0; i < 2000; i++ {
			v := vals[i%len(vals)]
			s.Replace(&Tuning{MinUpdateHz: ptrFloat64(v), MaxUpdateHz: ptrFloat64(v)})
		}
		close(done)
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := s.Snapshot()
			if snap.GetMinUpdateHz() != snap.GetMaxUpdateHz() {
				t.Errorf("torn snapshot: min=%v max=%v", snap.GetMinUpdateHz(), snap.GetMaxUpdateHz())
				return
			}
		}
	}()

	wg.Wait()
}
