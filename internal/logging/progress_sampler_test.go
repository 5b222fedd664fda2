package logging

import (
	"math"
	"testing"
)

func TestProgressSamplerSteps(t *testing.T) {
	s := NewProgressSampler(10)
	var logged []float64
	for _, p := range []float64{0, 3, 9.9, 10, 14, 25, 25, 99, 100, 100} {
		if s.ShouldLog(p) {
			logged = append(logged, p)
		}
	}
	want := []float64{0, 10, 25, 99, 100}
	if len(logged) != len(want) {
		t.Fatalf("logged %v, want %v", logged, want)
	}
	for i := range want {
		if logged[i] != want[i] {
			t.Fatalf("logged %v, want %v", logged, want)
		}
	}
}

func TestProgressSamplerIgnoresInvalid(t *testing.T) {
	s := NewProgressSampler(5)
	if s.ShouldLog(-1) || s.ShouldLog(math.NaN()) {
		t.Fatal("invalid percent should not be logged")
	}
	if !s.ShouldLog(0) {
		t.Fatal("first valid percent should be logged")
	}
}

func TestProgressSamplerClampsOverflow(t *testing.T) {
	s := NewProgressSampler(50)
	if !s.ShouldLog(150) {
		t.Fatal("expected first value logged")
	}
	if s.ShouldLog(100) {
		t.Fatal("100 falls in the same step as a clamped 150")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(0)
	if !s.ShouldLog(42) || s.ShouldLog(43) {
		t.Fatal("unexpected sampling before reset")
	}
	s.Reset()
	if !s.ShouldLog(43) {
		t.Fatal("expected log after reset")
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1) {
		t.Fatal("nil sampler logs everything")
	}
	s.Reset()
}
