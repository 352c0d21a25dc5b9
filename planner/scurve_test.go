package planner

import (
	"errors"
	"math"
	"testing"
)

func nearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func testLimits() Limits {
	ax := AxisLimits{MaxVelocity: 50, MaxAccel: 500, MaxJerk: 5000, StepsPerMM: 400, Microsteps: 16}
	return Limits{
		Axes:             [3]AxisLimits{ax, ax, ax},
		CornerDeviation:  0.01,
		MinJunctionSpeed: 0.5,
		LookAheadSize:    20,
	}
}

func TestProfileDistanceConservation(t *testing.T) {
	cases := []struct {
		name                             string
		distance, start, end, target     float64
		maxAccel, maxJerk                float64
	}{
		{"long cruise", 100, 0, 0, 50, 500, 5000},
		{"short triangular", 1, 0, 0, 1000, 500, 50000},
		{"asymmetric endpoints", 10, 5, 2, 20, 300, 3000},
		{"tiny move", 0.5, 0, 0, 8, 100, 1000},
		{"pure cruise", 25, 10, 10, 10, 200, 2000},
		{"decelerating", 30, 0, 4, 12, 400, 4000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prof, err := GenerateProfile(tc.distance, tc.start, tc.end, tc.target, tc.maxAccel, tc.maxJerk)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := prof.TotalDistance()
			if math.Abs(got-tc.distance)/tc.distance > 1e-6 {
				t.Fatalf("distance not conserved: want %g, got %.12f", tc.distance, got)
			}
			for i := 0; i+1 < len(prof.Phases); i++ {
				cur := &prof.Phases[i]
				vEnd := cur.VelocityAt(cur.Duration)
				vNext := prof.Phases[i+1].StartVelocity
				if !nearlyEqual(vEnd, vNext, 1e-6) {
					t.Fatalf("velocity jump at phase %d->%d: %.9f vs %.9f", i, i+1, vEnd, vNext)
				}
			}
		})
	}
}

func TestSevenPhaseScenario(t *testing.T) {
	prof, err := GenerateProfile(100, 0, 0, 50, 500, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prof.Phases) > 7 {
		t.Fatalf("expected at most seven phases, got %d", len(prof.Phases))
	}
	if !nearlyEqual(prof.TotalDistance(), 100, 1e-4) {
		t.Fatalf("phases sum to %.6f, want 100", prof.TotalDistance())
	}
	if !nearlyEqual(prof.PeakVelocity, 50, 1e-9) {
		t.Fatalf("peak velocity %.6f, want 50", prof.PeakVelocity)
	}
	hasCruise := false
	for _, ph := range prof.Phases {
		if ph.Kind == PhaseCruise {
			hasCruise = true
			if ph.Duration <= 0 {
				t.Fatalf("cruise phase with non-positive duration %g", ph.Duration)
			}
		}
	}
	if !hasCruise {
		t.Fatalf("expected a cruise phase for a 100mm move at 50mm/s")
	}
	if prof.Phases[0].Kind != PhaseJerkUp {
		t.Fatalf("profile starts with %v, want jerk-up", prof.Phases[0].Kind)
	}
	last := prof.Phases[len(prof.Phases)-1]
	if last.Kind != PhaseJerkUpFinal {
		t.Fatalf("profile ends with %v, want jerk-up-final", last.Kind)
	}
	if !nearlyEqual(last.VelocityAt(last.Duration), 0, 1e-9) {
		t.Fatalf("profile does not end at rest: %.9f", last.VelocityAt(last.Duration))
	}
}

func TestTriangularProfile(t *testing.T) {
	prof, err := GenerateProfile(1.0, 0, 0, 1000, 500, 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ph := range prof.Phases {
		if ph.Kind == PhaseCruise {
			t.Fatalf("triangular profile must not contain a cruise phase (duration %g)", ph.Duration)
		}
		if ph.Duration <= 0 {
			t.Fatalf("phase %v with non-positive duration %g", ph.Kind, ph.Duration)
		}
	}
	if prof.PeakVelocity >= 1000 {
		t.Fatalf("peak velocity %.3f should be strictly below the 1000 target", prof.PeakVelocity)
	}
	if !nearlyEqual(prof.PeakVelocity, 20, 1e-6) {
		t.Fatalf("peak velocity %.9f, want 20 from the closed-form solution", prof.PeakVelocity)
	}
	if math.Abs(prof.TotalDistance()-1.0) > 1e-6 {
		t.Fatalf("distance not conserved: %.12f", prof.TotalDistance())
	}
}

func TestProfileSampledBounds(t *testing.T) {
	cases := []struct {
		distance, start, end, target float64
		maxAccel, maxJerk            float64
	}{
		{100, 0, 0, 50, 500, 5000},
		{1, 0, 0, 1000, 500, 50000},
		{10, 5, 2, 20, 300, 3000},
	}
	for _, tc := range cases {
		prof, err := GenerateProfile(tc.distance, tc.start, tc.end, tc.target, tc.maxAccel, tc.maxJerk)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for pi := range prof.Phases {
			ph := &prof.Phases[pi]
			if math.Abs(ph.Jerk) > tc.maxJerk+1e-9 {
				t.Fatalf("phase %d jerk %.3f exceeds limit %.3f", pi, ph.Jerk, tc.maxJerk)
			}
			for i := 0; i <= 100; i++ {
				tt := ph.Duration * float64(i) / 100.
				v := ph.VelocityAt(tt)
				a := ph.AccelAt(tt)
				if v < -1e-9 || v > tc.target+1e-9 {
					t.Fatalf("phase %d velocity %.6f out of [0, %g]", pi, v, tc.target)
				}
				if math.Abs(a) > tc.maxAccel+1e-9 {
					t.Fatalf("phase %d acceleration %.6f exceeds limit %g", pi, a, tc.maxAccel)
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("phase %d emitted non-finite velocity", pi)
				}
			}
		}
	}
}

func TestProfileConfigErrors(t *testing.T) {
	cases := []struct {
		name              string
		maxAccel, maxJerk float64
		target            float64
	}{
		{"zero accel", 0, 5000, 50},
		{"negative accel", -10, 5000, 50},
		{"zero jerk", 500, 0, 50},
		{"negative jerk", 500, -1, 50},
		{"zero target", 500, 5000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GenerateProfile(10, 0, 0, tc.target, tc.maxAccel, tc.maxJerk)
			if err == nil {
				t.Fatalf("expected a configuration error")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestShortMoveRespectsJerkLimit(t *testing.T) {
	// A 1mm move asked to end at 31mm/s under a low jerk limit cannot get
	// there; the profile must give up end velocity, never raise the jerk.
	prof, err := GenerateProfile(1.0, 0, 31, 31, 500, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !nearlyEqual(prof.TotalDistance(), 1.0, 1e-6) {
		t.Fatalf("distance not conserved: %.12f", prof.TotalDistance())
	}
	for i := range prof.Phases {
		if math.Abs(prof.Phases[i].Jerk) > 1000+1e-9 {
			t.Fatalf("phase %d jerk %.3f exceeds the 1000 limit", i, prof.Phases[i].Jerk)
		}
	}
	end := prof.EndVelocity(0)
	if end <= 0 || end > 31+1e-9 {
		t.Fatalf("end velocity %.4f outside (0, 31]", end)
	}
}

func TestOverconstrainedDecelConservesDistance(t *testing.T) {
	// 0.1mm is far too short to brake from 30mm/s to rest. Distance must
	// still be conserved with the configured limits intact; the end
	// velocity degrades instead.
	prof, err := GenerateProfile(0.1, 30, 0, 30, 500, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(prof.TotalDistance()-0.1) > 1e-6 {
		t.Fatalf("distance not conserved: %.12f", prof.TotalDistance())
	}
	for i := range prof.Phases {
		ph := &prof.Phases[i]
		if math.Abs(ph.Jerk) > 5000+1e-9 {
			t.Fatalf("phase %d jerk %.3f exceeds the 5000 limit", i, ph.Jerk)
		}
		if math.Abs(ph.AccelAt(ph.Duration)) > 500+1e-9 {
			t.Fatalf("phase %d acceleration exceeds the 500 limit", i)
		}
	}
	end := prof.EndVelocity(30)
	if end < 0 || end > 30+1e-9 {
		t.Fatalf("end velocity %.4f outside [0, 30]", end)
	}
	for i := 0; i+1 < len(prof.Phases); i++ {
		cur := &prof.Phases[i]
		if !nearlyEqual(cur.VelocityAt(cur.Duration), prof.Phases[i+1].StartVelocity, 1e-6) {
			t.Fatalf("velocity jump at phase %d", i)
		}
	}
}

func TestZeroDistanceProfileIsEmpty(t *testing.T) {
	prof, err := GenerateProfile(0, 0, 0, 50, 500, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prof.Phases) != 0 {
		t.Fatalf("expected no phases for a zero-length move, got %d", len(prof.Phases))
	}
}
