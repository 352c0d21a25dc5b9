package planner

import "math"

// Distances below this are treated as zero-length geometry.
const minMoveDistance = 1e-9

// Move is one point-to-point motion request. Geometry is fixed at
// construction; EntryVelocity and ExitVelocity are filled in exactly once by
// the look-ahead backward pass before the move is released downstream.
//
// Common suffixes follow the usual planner conventions: distances in mm,
// velocities in mm/s, acceleration in mm/s^2, jerk in mm/s^3.
type Move struct {
	Start [3]float64
	End   [3]float64

	AxesDelta [3]float64
	AxesRatio [3]float64
	Distance  float64

	// Speed is the requested velocity after per-axis clamping; it is the
	// target (cruise) velocity handed to the profile generator.
	Speed float64
	Accel float64
	Jerk  float64

	EntryVelocity float64
	ExitVelocity  float64
}

// NewMove derives the geometry of a move and clamps the requested speed,
// acceleration and jerk so that no individual axis component exceeds its
// limit. speed is in mm/s. A zero-length move is returned with Distance 0
// and must be skipped by the caller.
func NewMove(start, end [3]float64, speed float64, lim *Limits) *Move {
	m := &Move{Start: start, End: end}
	var d2 float64
	for i := range start {
		m.AxesDelta[i] = end[i] - start[i]
		d2 += m.AxesDelta[i] * m.AxesDelta[i]
	}
	m.Distance = math.Sqrt(d2)
	if m.Distance < minMoveDistance {
		m.Distance = 0
		return m
	}
	invD := 1. / m.Distance
	for i := range m.AxesDelta {
		m.AxesRatio[i] = m.AxesDelta[i] * invD
	}
	m.Speed = math.Min(speed, lim.MaxVelocityAlong(m.AxesRatio))
	m.Accel = lim.MaxAccelAlong(m.AxesRatio)
	m.Jerk = lim.MaxJerkAlong(m.AxesRatio)
	return m
}

// DominantAxis is the axis carrying the largest share of the move, used to
// pick which axis resonance table applies.
func (m *Move) DominantAxis() Axis {
	best := AxisX
	bestR := abs(m.AxesRatio[0])
	for i := 1; i < 3; i++ {
		if r := abs(m.AxesRatio[i]); r > bestR {
			bestR = r
			best = Axis(i)
		}
	}
	return best
}

// maxEntryVelocity is the fastest the move may start while still being able
// to slow to exitVel within its length under both the acceleration and the
// jerk limit. Ramp distance is symmetric in its endpoints, so the same bound
// caps the exit velocity reachable from a given entry.
func (m *Move) maxEntryVelocity(exitVel float64) float64 {
	return maxRampTarget(exitVel, m.Distance, m.Accel, m.Jerk)
}
