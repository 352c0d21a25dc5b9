package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"gplan/planner"
)

// AxisSection is one [x]/[y]/[z] table in a machine profile.
type AxisSection struct {
	MaxVelocity float64 `toml:"max_velocity"`
	MaxAccel    float64 `toml:"max_accel"`
	MaxJerk     float64 `toml:"max_jerk"`
	StepsPerMM  float64 `toml:"steps_per_mm"`
	Microsteps  float64 `toml:"microsteps"`
}

// MachineProfile mirrors the persisted TOML machine description. Values the
// profile omits fall back to planner defaults.
type MachineProfile struct {
	CornerDeviation  float64 `toml:"corner_deviation"`
	MinJunctionSpeed float64 `toml:"min_junction_speed"`
	LookAheadSize    int     `toml:"look_ahead_size"`
	ResonanceWidthHz float64 `toml:"resonance_width_hz"`
	AvoidanceMargin  float64 `toml:"avoidance_margin"`

	X AxisSection `toml:"x"`
	Y AxisSection `toml:"y"`
	Z AxisSection `toml:"z"`
}

// LoadMachineProfile reads and decodes a TOML machine profile.
func LoadMachineProfile(path string) (*MachineProfile, error) {
	var p MachineProfile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, errors.Wrapf(err, "load machine profile %s", path)
	}
	return &p, nil
}

func axisLimits(s AxisSection) planner.AxisLimits {
	return planner.AxisLimits{
		MaxVelocity: s.MaxVelocity,
		MaxAccel:    s.MaxAccel,
		MaxJerk:     s.MaxJerk,
		StepsPerMM:  s.StepsPerMM,
		Microsteps:  s.Microsteps,
	}
}

// Limits converts the profile into validated planner limits.
func (p *MachineProfile) Limits() (planner.Limits, error) {
	lim := planner.Limits{
		Axes: [3]planner.AxisLimits{
			axisLimits(p.X),
			axisLimits(p.Y),
			axisLimits(p.Z),
		},
		CornerDeviation:  p.CornerDeviation,
		MinJunctionSpeed: p.MinJunctionSpeed,
		LookAheadSize:    p.LookAheadSize,
	}
	if lim.CornerDeviation == 0 {
		lim.CornerDeviation = planner.DefaultCornerDeviation
	}
	if lim.MinJunctionSpeed == 0 {
		lim.MinJunctionSpeed = planner.DefaultMinJunctionSpeed
	}
	if err := lim.Validate(); err != nil {
		return planner.Limits{}, errors.Wrap(err, "machine profile")
	}
	return lim, nil
}

// ApplyFilterSettings copies the profile's resonance tuning onto a filter,
// keeping defaults where the profile is silent.
func (p *MachineProfile) ApplyFilterSettings(f *planner.ResonanceFilter) {
	if p.ResonanceWidthHz > 0 {
		f.WidthHz = p.ResonanceWidthHz
	}
	if p.AvoidanceMargin > 0 {
		f.Margin = p.AvoidanceMargin
	}
}
