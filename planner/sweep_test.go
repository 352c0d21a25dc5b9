package planner

import (
	"context"
	"testing"
	"time"
)

func testSweepConfig() SweepConfig {
	return SweepConfig{
		Axis:       AxisX,
		StartFeed:  100,
		EndFeed:    500,
		StepFeed:   100,
		SmoothingK: 1, // raw samples, no smoothing, so loads are predictable
	}
}

func sample(v float64) *float64 { return &v }

func TestSweepConfigValidation(t *testing.T) {
	f, _ := testFilter()
	cases := []struct {
		name string
		cfg  SweepConfig
	}{
		{"zero step", SweepConfig{Axis: AxisX, StartFeed: 100, EndFeed: 500}},
		{"end before start", SweepConfig{Axis: AxisX, StartFeed: 500, EndFeed: 100, StepFeed: 50}},
		{"zero start", SweepConfig{Axis: AxisX, StartFeed: 0, EndFeed: 100, StepFeed: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCalibrationSweep(tc.cfg, f); err == nil {
				t.Fatalf("expected a config error")
			}
		})
	}
}

func TestSweepFindsLoadPeak(t *testing.T) {
	f, _ := testFilter()
	s, err := NewCalibrationSweep(testSweepConfig(), f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	if s.State() != SweepIdle {
		t.Fatalf("fresh sweep in state %v, want idle", s.State())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != SweepSweeping {
		t.Fatalf("started sweep in state %v, want sweeping", s.State())
	}

	var progress int
	s.OnProgress = func(step, total int) {
		progress = step
		if total != 5 {
			t.Fatalf("progress total %d, want 5 steps", total)
		}
	}
	var completed []ResonanceZone
	s.OnComplete = func(zs []ResonanceZone) { completed = zs }

	loads := []float64{1, 1, 9, 1, 1}
	for i, l := range loads {
		done := s.Tick(0, sample(l))
		if done != (i == len(loads)-1) {
			t.Fatalf("step %d reported done=%v", i, done)
		}
	}
	if s.State() != SweepDone {
		t.Fatalf("sweep ended in state %v, want done", s.State())
	}
	if progress != 5 {
		t.Fatalf("progress callback saw %d steps, want 5", progress)
	}

	zones := s.Zones()
	if len(zones) != 1 {
		t.Fatalf("expected one zone from the 9x load spike, got %d", len(zones))
	}
	wantFreq := f.FeedToStepFrequency(300, AxisX)
	if !nearlyEqual(zones[0].FrequencyHz, wantFreq, 1e-9) {
		t.Fatalf("zone at %.1fHz, want %.1fHz (feed 300)", zones[0].FrequencyHz, wantFreq)
	}
	if !nearlyEqual(zones[0].Severity, 1, 1e-9) {
		t.Fatalf("the tallest peak must have severity 1, got %.3f", zones[0].Severity)
	}
	if len(completed) != 1 {
		t.Fatalf("completion callback saw %d zones", len(completed))
	}
}

func TestSweepFlatLoadsYieldNoZones(t *testing.T) {
	f, _ := testFilter()
	s, err := NewCalibrationSweep(testSweepConfig(), f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		s.Tick(0, sample(2))
	}
	if s.State() != SweepDone {
		t.Fatalf("sweep ended in state %v", s.State())
	}
	if len(s.Zones()) != 0 {
		t.Fatalf("flat load curve produced %d zones", len(s.Zones()))
	}
}

func TestSweepSampleTimeoutRecordsNull(t *testing.T) {
	f, _ := testFilter()
	cfg := testSweepConfig()
	cfg.SampleTimeout = 500 * time.Millisecond
	s, err := NewCalibrationSweep(cfg, f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if s.Tick(200*time.Millisecond, nil); s.CurrentFeed() != 100 {
		t.Fatalf("sweep advanced before the timeout, feed %.0f", s.CurrentFeed())
	}
	if s.Tick(300*time.Millisecond, nil); s.CurrentFeed() != 200 {
		t.Fatalf("sweep did not advance past a timed-out step, feed %.0f", s.CurrentFeed())
	}

	// Remaining steps get real samples; the null point must not break
	// analysis (it is simply excluded).
	for _, l := range []float64{1, 8, 1, 1} {
		s.Tick(0, sample(l))
	}
	if s.State() != SweepDone {
		t.Fatalf("sweep ended in state %v", s.State())
	}
	if len(s.Zones()) != 1 {
		t.Fatalf("expected the spike at feed 300 to survive a null neighbour, got %d zones", len(s.Zones()))
	}
}

func TestSweepAbortDiscardsPartialData(t *testing.T) {
	f, _ := testFilter()
	s, err := NewCalibrationSweep(testSweepConfig(), f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Tick(0, sample(1))
	s.Tick(0, sample(9))

	s.Abort()
	if s.State() != SweepAborted {
		t.Fatalf("state %v after abort", s.State())
	}
	if s.Zones() != nil {
		t.Fatalf("abort must discard zones")
	}
	if !s.Tick(0, sample(5)) {
		t.Fatalf("ticking an aborted sweep must report terminal")
	}

	// A sweep can be re-armed after abort.
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.State() != SweepSweeping || s.CurrentFeed() != 100 {
		t.Fatalf("restart did not reset: state %v feed %.0f", s.State(), s.CurrentFeed())
	}
}

func TestSweepDoubleStartFails(t *testing.T) {
	f, _ := testFilter()
	s, err := NewCalibrationSweep(testSweepConfig(), f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatalf("starting a running sweep must fail")
	}
}

type fakeIssuer struct {
	moves []float64 // signed stroke distances in order
	feeds []float64
	idles int
	fail  error
}

func (f *fakeIssuer) SendMove(axis Axis, distance, feed float64) error {
	if f.fail != nil {
		return f.fail
	}
	f.moves = append(f.moves, distance)
	f.feeds = append(f.feeds, feed)
	return nil
}

func (f *fakeIssuer) WaitForIdle() error {
	f.idles++
	return nil
}

func TestSweepRunDrivesIssuer(t *testing.T) {
	f, _ := testFilter()
	cfg := testSweepConfig()
	cfg.EndFeed = 300 // three steps
	s, err := NewCalibrationSweep(cfg, f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}

	samples := make(chan float64, 3)
	for i := 0; i < 3; i++ {
		samples <- 1
	}
	issuer := &fakeIssuer{}

	zones, err := s.Run(context.Background(), issuer, samples)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.State() != SweepDone {
		t.Fatalf("run finished in state %v", s.State())
	}
	if len(zones) != 0 {
		t.Fatalf("flat loads must yield no zones, got %d", len(zones))
	}
	if len(issuer.moves) != 6 {
		t.Fatalf("expected 2 strokes per step (6 moves), got %d", len(issuer.moves))
	}
	if issuer.idles != 3 {
		t.Fatalf("expected one idle wait per step, got %d", issuer.idles)
	}
	for i := 0; i+1 < len(issuer.moves); i += 2 {
		if issuer.moves[i] != -issuer.moves[i+1] {
			t.Fatalf("stroke %d did not return to start: %+v", i/2, issuer.moves)
		}
	}
	if issuer.feeds[0] != 100 || issuer.feeds[4] != 300 {
		t.Fatalf("stroke feeds did not follow the sweep steps: %v", issuer.feeds)
	}
}

func TestSweepRunCancelledContextAborts(t *testing.T) {
	f, _ := testFilter()
	s, err := NewCalibrationSweep(testSweepConfig(), f)
	if err != nil {
		t.Fatalf("new sweep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	issuer := &fakeIssuer{}
	zones, err := s.Run(ctx, issuer, make(chan float64))
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if zones != nil {
		t.Fatalf("cancelled run must discard zones")
	}
	if s.State() != SweepAborted {
		t.Fatalf("cancelled run left state %v", s.State())
	}
	if len(issuer.moves) != 0 {
		t.Fatalf("cancelled run must not move the machine")
	}
}
