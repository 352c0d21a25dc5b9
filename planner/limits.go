package planner

import "fmt"

// Axis identifies one of the three linear axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis maps "x"/"y"/"z" to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// AxisLimits holds the hardware limits of a single axis. Velocities are in
// mm/s, acceleration in mm/s^2, jerk in mm/s^3.
type AxisLimits struct {
	MaxVelocity float64
	MaxAccel    float64
	MaxJerk     float64
	StepsPerMM  float64
	Microsteps  float64
}

const (
	DefaultCornerDeviation  = 0.01
	DefaultMinJunctionSpeed = 0.5
	DefaultLookAheadSize    = 20
)

// Limits is the full machine envelope the planner works against. It is pure
// data; the planner never mutates it.
type Limits struct {
	Axes             [3]AxisLimits
	CornerDeviation  float64
	MinJunctionSpeed float64
	LookAheadSize    int
}

// Validate fails fast on limits that would make the profile math divide by
// zero or emit unbounded phases.
func (l *Limits) Validate() error {
	for i, ax := range l.Axes {
		name := Axis(i).String()
		if ax.MaxVelocity <= 0 {
			return configErrorf(name+".max_velocity", ax.MaxVelocity)
		}
		if ax.MaxAccel <= 0 {
			return configErrorf(name+".max_accel", ax.MaxAccel)
		}
		if ax.MaxJerk <= 0 {
			return configErrorf(name+".max_jerk", ax.MaxJerk)
		}
		if ax.StepsPerMM <= 0 {
			return configErrorf(name+".steps_per_mm", ax.StepsPerMM)
		}
		if ax.Microsteps <= 0 {
			return configErrorf(name+".microsteps", ax.Microsteps)
		}
	}
	if l.CornerDeviation <= 0 {
		return configErrorf("corner_deviation", l.CornerDeviation)
	}
	if l.MinJunctionSpeed <= 0 {
		return configErrorf("min_junction_speed", l.MinJunctionSpeed)
	}
	return nil
}

func (l *Limits) lookAheadSize() int {
	if l.LookAheadSize > 0 {
		return l.LookAheadSize
	}
	return DefaultLookAheadSize
}

// directionalLimit returns the largest scalar value along a unit direction
// that keeps every per-axis component within its axis limit. pick selects
// which limit of the axis applies.
func (l *Limits) directionalLimit(ratio [3]float64, pick func(AxisLimits) float64) float64 {
	limit := 0.
	first := true
	for i, r := range ratio {
		if r == 0 {
			continue
		}
		axMax := pick(l.Axes[i])
		allowed := axMax / abs(r)
		if first || allowed < limit {
			limit = allowed
			first = false
		}
	}
	if first {
		// Zero direction vector, nothing constrains it.
		return 0
	}
	return limit
}

// MaxVelocityAlong returns the velocity cap along a unit direction vector.
func (l *Limits) MaxVelocityAlong(ratio [3]float64) float64 {
	return l.directionalLimit(ratio, func(a AxisLimits) float64 { return a.MaxVelocity })
}

// MaxAccelAlong returns the acceleration cap along a unit direction vector.
func (l *Limits) MaxAccelAlong(ratio [3]float64) float64 {
	return l.directionalLimit(ratio, func(a AxisLimits) float64 { return a.MaxAccel })
}

// MaxJerkAlong returns the jerk cap along a unit direction vector.
func (l *Limits) MaxJerkAlong(ratio [3]float64) float64 {
	return l.directionalLimit(ratio, func(a AxisLimits) float64 { return a.MaxJerk })
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
