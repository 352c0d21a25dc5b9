package planner

import (
	"context"
	"fmt"
	"math"
	"time"

	"gplan/common/logger"
	"gplan/common/utils/maths"

	uuid "github.com/satori/go.uuid"
)

// SweepState is the calibration sweep lifecycle.
type SweepState int

const (
	SweepIdle SweepState = iota
	SweepSweeping
	SweepAnalyzing
	SweepDone
	SweepAborted
)

func (s SweepState) String() string {
	switch s {
	case SweepIdle:
		return "idle"
	case SweepSweeping:
		return "sweeping"
	case SweepAnalyzing:
		return "analyzing"
	case SweepDone:
		return "done"
	case SweepAborted:
		return "aborted"
	}
	return "unknown"
}

// MotionIssuer is the physical machine interface the sweep drives: a short
// move at a given feed, and a wait until motion settles. Implementations
// live outside the planner core (e.g. a serial G-code device).
type MotionIssuer interface {
	SendMove(axis Axis, distance, feed float64) error
	WaitForIdle() error
}

// SweepConfig parameterizes one calibration sweep over a feed-rate range.
type SweepConfig struct {
	Axis           Axis
	StartFeed      float64 // mm/min
	EndFeed        float64 // mm/min
	StepFeed       float64 // mm/min per step
	StrokeDistance float64 // mm moved back and forth per step
	SampleTimeout  time.Duration
	PeakRatio      float64 // local maxima above PeakRatio*mean become zones
	SmoothingK     float64 // exponential smoothing factor for load samples
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.StrokeDistance <= 0 {
		c.StrokeDistance = 5.
	}
	if c.SampleTimeout <= 0 {
		c.SampleTimeout = 500 * time.Millisecond
	}
	if c.PeakRatio <= 0 {
		c.PeakRatio = 1.5
	}
	if c.SmoothingK <= 0 || c.SmoothingK > 1 {
		c.SmoothingK = 0.35
	}
	return c
}

func (c SweepConfig) validate() error {
	if c.StepFeed <= 0 {
		return fmt.Errorf("sweep: step feed must be > 0, got %g", c.StepFeed)
	}
	if c.EndFeed <= c.StartFeed {
		return fmt.Errorf("sweep: end feed %g must exceed start feed %g", c.EndFeed, c.StartFeed)
	}
	if c.StartFeed <= 0 {
		return fmt.Errorf("sweep: start feed must be > 0, got %g", c.StartFeed)
	}
	return nil
}

func (c SweepConfig) steps() int {
	return int(math.Floor((c.EndFeed-c.StartFeed)/c.StepFeed)) + 1
}

type loadPoint struct {
	feed  float64
	load  float64
	valid bool
}

// CalibrationSweep steps through a feed range, records one load sample per
// step and turns load peaks into resonance zones. All suspension lives in
// the caller: Tick is a pure state transition fed with elapsed time and an
// optional sample, so timeouts are testable without wall-clock waits.
type CalibrationSweep struct {
	ID     string
	cfg    SweepConfig
	filter *ResonanceFilter

	state    SweepState
	points   []loadPoint
	feed     float64
	waited   time.Duration
	smoothed float64
	hasPrev  bool
	zones    []ResonanceZone

	OnProgress func(step, total int)
	OnComplete func([]ResonanceZone)
}

// NewCalibrationSweep builds a sweep in the idle state. The filter supplies
// the feed-to-frequency mapping for the swept axis.
func NewCalibrationSweep(cfg SweepConfig, filter *ResonanceFilter) (*CalibrationSweep, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &CalibrationSweep{
		ID:     uuid.NewV4().String(),
		cfg:    cfg,
		filter: filter,
		state:  SweepIdle,
	}, nil
}

// State reports the current lifecycle state.
func (s *CalibrationSweep) State() SweepState { return s.state }

// Zones returns the zones found by the last completed sweep.
func (s *CalibrationSweep) Zones() []ResonanceZone { return s.zones }

// CurrentFeed is the feed rate of the step the sweep is waiting on.
func (s *CalibrationSweep) CurrentFeed() float64 { return s.feed }

// Start arms the sweep. Restarting from done/aborted discards old results.
func (s *CalibrationSweep) Start() error {
	if s.state == SweepSweeping || s.state == SweepAnalyzing {
		return fmt.Errorf("sweep %s: already running", s.ID)
	}
	s.points = s.points[:0]
	s.zones = nil
	s.feed = s.cfg.StartFeed
	s.waited = 0
	s.hasPrev = false
	s.state = SweepSweeping
	logger.Infof("sweep %s: starting on %s, %.0f..%.0f mm/min step %.0f",
		s.ID, s.cfg.Axis, s.cfg.StartFeed, s.cfg.EndFeed, s.cfg.StepFeed)
	return nil
}

// Abort discards everything gathered so far. It is a normal terminal
// transition, not an error.
func (s *CalibrationSweep) Abort() {
	if s.state != SweepSweeping && s.state != SweepAnalyzing {
		return
	}
	s.points = nil
	s.zones = nil
	s.state = SweepAborted
	logger.Infof("sweep %s: aborted, partial data discarded", s.ID)
}

// Tick advances the sweep by one observation: either a load sample arrived
// for the current step, or elapsed wall time passed without one. A step
// whose sample never arrives within the configured timeout is recorded as a
// null reading and the sweep moves on. Returns true once the sweep reached
// a terminal state.
func (s *CalibrationSweep) Tick(elapsed time.Duration, sample *float64) bool {
	if s.state != SweepSweeping {
		return s.state == SweepDone || s.state == SweepAborted
	}

	if sample != nil {
		load := *sample
		if s.hasPrev {
			load = s.smoothed + (load-s.smoothed)*s.cfg.SmoothingK
		}
		s.smoothed = load
		s.hasPrev = true
		s.points = append(s.points, loadPoint{feed: s.feed, load: load, valid: true})
		s.advance()
		return s.state == SweepDone
	}

	s.waited += elapsed
	if s.waited >= s.cfg.SampleTimeout {
		logger.Warnf("sweep %s: no load sample at feed %.0f, recording null", s.ID, s.feed)
		s.points = append(s.points, loadPoint{feed: s.feed})
		s.advance()
	}
	return s.state == SweepDone
}

func (s *CalibrationSweep) advance() {
	s.waited = 0
	s.feed += s.cfg.StepFeed
	if s.OnProgress != nil {
		s.OnProgress(len(s.points), s.cfg.steps())
	}
	if s.feed > s.cfg.EndFeed+1e-9 {
		s.state = SweepAnalyzing
		s.analyze()
		s.state = SweepDone
		logger.Infof("sweep %s: done, %d zones found", s.ID, len(s.zones))
		if s.OnComplete != nil {
			s.OnComplete(s.zones)
		}
	}
}

// analyze turns load peaks into resonance zones: local maxima exceeding
// PeakRatio times the mean load, with severity proportional to how far the
// peak stands above the rest.
func (s *CalibrationSweep) analyze() {
	var loads []float64
	var valid []loadPoint
	for _, p := range s.points {
		if p.valid {
			loads = append(loads, p.load)
			valid = append(valid, p)
		}
	}
	if len(valid) < 3 {
		return
	}
	mean := maths.Mean(loads)
	if mean <= 0 {
		return
	}
	var maxLoad float64
	for _, l := range loads {
		maxLoad = math.Max(maxLoad, l)
	}
	threshold := s.cfg.PeakRatio * mean
	for i := 1; i < len(valid)-1; i++ {
		p := valid[i]
		if p.load <= threshold {
			continue
		}
		if p.load < valid[i-1].load || p.load < valid[i+1].load {
			continue
		}
		s.zones = append(s.zones, ResonanceZone{
			FrequencyHz: s.filter.FeedToStepFrequency(p.feed, s.cfg.Axis),
			Severity:    maths.Clamp(p.load/maxLoad, 0, 1),
		})
	}
}

// Run drives a full sweep against real hardware: one short back-and-forth
// stroke per step, then a bounded wait for a load sample. Cancelling ctx
// between steps aborts the sweep and discards partial data; per the sweep
// contract that is a normal outcome, not an error.
func (s *CalibrationSweep) Run(ctx context.Context, issuer MotionIssuer, samples <-chan float64) ([]ResonanceZone, error) {
	if err := s.Start(); err != nil {
		return nil, err
	}
	for s.state == SweepSweeping {
		select {
		case <-ctx.Done():
			s.Abort()
			return nil, nil
		default:
		}

		feed := s.feed
		if err := s.stroke(issuer, feed); err != nil {
			s.Abort()
			return nil, err
		}

		timer := time.NewTimer(s.cfg.SampleTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.Abort()
			return nil, nil
		case v := <-samples:
			timer.Stop()
			s.Tick(0, &v)
		case <-timer.C:
			s.Tick(s.cfg.SampleTimeout, nil)
		}
	}
	if s.state != SweepDone {
		return nil, nil
	}
	return s.zones, nil
}

func (s *CalibrationSweep) stroke(issuer MotionIssuer, feed float64) error {
	if err := issuer.SendMove(s.cfg.Axis, s.cfg.StrokeDistance, feed); err != nil {
		return err
	}
	if err := issuer.SendMove(s.cfg.Axis, -s.cfg.StrokeDistance, feed); err != nil {
		return err
	}
	return issuer.WaitForIdle()
}
