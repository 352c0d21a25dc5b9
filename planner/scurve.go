package planner

import (
	"math"

	"gplan/common/logger"
	"gplan/common/utils/maths"
)

// PhaseKind names the seven possible S-curve phases in profile order.
type PhaseKind int

const (
	PhaseJerkUp PhaseKind = iota
	PhaseConstAccel
	PhaseJerkDown
	PhaseCruise
	PhaseJerkDownDecel
	PhaseConstDecel
	PhaseJerkUpFinal
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseJerkUp:
		return "jerk-up"
	case PhaseConstAccel:
		return "const-accel"
	case PhaseJerkDown:
		return "jerk-down"
	case PhaseCruise:
		return "cruise"
	case PhaseJerkDownDecel:
		return "jerk-down-decel"
	case PhaseConstDecel:
		return "const-decel"
	case PhaseJerkUpFinal:
		return "jerk-up-final"
	}
	return "unknown"
}

// Phase is one span of constant jerk (or constant acceleration, or cruise).
// Velocity and position inside the phase follow the closed forms
//
//	v(t) = v0 + a0*t + j*t^2/2
//	x(t) = v0*t + a0*t^2/2 + j*t^3/6
//
// with v0 = StartVelocity and a0 = StartAccel.
type Phase struct {
	Kind          PhaseKind
	Duration      float64
	StartVelocity float64
	StartAccel    float64
	Jerk          float64
	Distance      float64
}

// VelocityAt returns the velocity t seconds into the phase.
func (p *Phase) VelocityAt(t float64) float64 {
	return p.StartVelocity + p.StartAccel*t + 0.5*p.Jerk*t*t
}

// AccelAt returns the acceleration t seconds into the phase.
func (p *Phase) AccelAt(t float64) float64 {
	return p.StartAccel + p.Jerk*t
}

// DistanceAt returns the distance covered t seconds into the phase.
func (p *Phase) DistanceAt(t float64) float64 {
	return p.StartVelocity*t + 0.5*p.StartAccel*t*t + p.Jerk*t*t*t/6.
}

// Profile is the ordered phase sequence for a single move. Phase distances
// sum to the move distance within floating-point epsilon and velocity is
// continuous across phase boundaries.
type Profile struct {
	Phases       []Phase
	Duration     float64
	PeakVelocity float64
}

// TotalDistance sums the distance of every phase.
func (p *Profile) TotalDistance() float64 {
	var d float64
	for i := range p.Phases {
		d += p.Phases[i].Distance
	}
	return d
}

// EndVelocity is the velocity at the end of the last phase, or the start
// velocity for an empty profile.
func (p *Profile) EndVelocity(fallback float64) float64 {
	if len(p.Phases) == 0 {
		return fallback
	}
	last := &p.Phases[len(p.Phases)-1]
	return last.VelocityAt(last.Duration)
}

// rampTimes splits a velocity change dv across jerk and constant-accel time.
// When dv is too small to reach maxAccel the jerk time shrinks so the ramp
// peaks exactly at dv.
func rampTimes(dv, maxAccel, maxJerk float64) (tj, ta, aPeak float64) {
	tj = maxAccel / maxJerk
	if maxJerk*tj*tj > dv {
		tj = math.Sqrt(dv / maxJerk)
		return tj, 0, maxJerk * tj
	}
	ta = (dv - maxJerk*tj*tj) / maxAccel
	return tj, ta, maxAccel
}

// rampDistance is the distance covered by a full S-ramp between v0 and v1.
// The jerk profile is symmetric, so the average velocity over the ramp is
// the midpoint velocity.
func rampDistance(v0, v1, maxAccel, maxJerk float64) float64 {
	dv := abs(v1 - v0)
	if dv == 0 {
		return 0
	}
	tj, ta, _ := rampTimes(dv, maxAccel, maxJerk)
	return 0.5 * (v0 + v1) * (2.*tj + ta)
}

// maxRampTarget is the highest velocity a full jerk-limited S-ramp from v0
// can reach within distance. Ramp distance grows monotonically with the
// target velocity, so bisection between v0 and the acceleration-only bound
// converges.
func maxRampTarget(v0, distance, maxAccel, maxJerk float64) float64 {
	hi := math.Sqrt(v0*v0 + 2.*maxAccel*distance)
	if rampDistance(v0, hi, maxAccel, maxJerk) <= distance {
		return hi
	}
	lo := v0
	for i := 0; i < 64; i++ {
		mid := 0.5 * (lo + hi)
		if rampDistance(v0, mid, maxAccel, maxJerk) <= distance {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// nearestReachableEnd clamps a requested end velocity to the closest value a
// jerk-limited ramp from v0 can reach within distance. v0 itself is always
// reachable (a zero-length ramp), so bisecting between the endpoints
// converges on the feasible boundary.
func nearestReachableEnd(v0, endVel, distance, maxAccel, maxJerk float64) float64 {
	if rampDistance(v0, endVel, maxAccel, maxJerk) <= distance {
		return endVel
	}
	lo, hi := endVel, v0
	for i := 0; i < 64; i++ {
		mid := 0.5 * (lo + hi)
		if rampDistance(v0, mid, maxAccel, maxJerk) <= distance {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// rampPhases emits the (up to) three phases taking velocity from v0 to v1.
// decelHalf selects the mirror phase kinds used in the second half of a
// profile.
func rampPhases(v0, v1, maxAccel, maxJerk float64, decelHalf bool) []Phase {
	dv := abs(v1 - v0)
	if dv < 1e-12 {
		return nil
	}
	tj, ta, aPeak := rampTimes(dv, maxAccel, maxJerk)

	sign := 1.
	kinds := [3]PhaseKind{PhaseJerkUp, PhaseConstAccel, PhaseJerkDown}
	if v1 < v0 {
		sign = -1.
	}
	if decelHalf {
		kinds = [3]PhaseKind{PhaseJerkDownDecel, PhaseConstDecel, PhaseJerkUpFinal}
	}

	va := v0 + sign*0.5*maxJerk*tj*tj
	vb := va + sign*aPeak*ta

	phases := make([]Phase, 0, 3)
	first := Phase{
		Kind:          kinds[0],
		Duration:      tj,
		StartVelocity: v0,
		StartAccel:    0,
		Jerk:          sign * maxJerk,
	}
	first.Distance = first.DistanceAt(tj)
	phases = append(phases, first)

	if ta > 1e-12 {
		mid := Phase{
			Kind:          kinds[1],
			Duration:      ta,
			StartVelocity: va,
			StartAccel:    sign * aPeak,
			Jerk:          0,
		}
		mid.Distance = mid.DistanceAt(ta)
		phases = append(phases, mid)
	}

	last := Phase{
		Kind:          kinds[2],
		Duration:      tj,
		StartVelocity: vb,
		StartAccel:    sign * aPeak,
		Jerk:          -sign * maxJerk,
	}
	last.Distance = last.DistanceAt(tj)
	phases = append(phases, last)
	return phases
}

// GenerateProfile builds the jerk-limited phase sequence for one move.
// distance must be >= 0; startVel, endVel and targetVel are >= 0 with
// startVel and endVel clamped to targetVel. maxAccel and maxJerk must be
// strictly positive or a ConfigError is returned.
func GenerateProfile(distance, startVel, endVel, targetVel, maxAccel, maxJerk float64) (*Profile, error) {
	if maxAccel <= 0 {
		return nil, configErrorf("max_accel", maxAccel)
	}
	if maxJerk <= 0 {
		return nil, configErrorf("max_jerk", maxJerk)
	}
	if targetVel <= 0 {
		return nil, configErrorf("target_velocity", targetVel)
	}

	prof := &Profile{}
	if distance < minMoveDistance {
		// Zero-length move: no phases, nothing to do.
		return prof, nil
	}

	startVel = maths.Clamp(startVel, 0, targetVel)
	endVel = maths.Clamp(endVel, 0, targetVel)

	cruiseVel := targetVel
	accelDist := rampDistance(startVel, cruiseVel, maxAccel, maxJerk)
	decelDist := rampDistance(cruiseVel, endVel, maxAccel, maxJerk)

	if accelDist+decelDist > distance {
		// Move too short to reach the target: solve for the peak velocity
		// of a triangular profile instead of emitting a negative cruise.
		cruiseVel = solveTriangularPeak(distance, startVel, endVel, targetVel, maxAccel, maxJerk)
		if cruiseVel < 0 {
			// Even a direct ramp between the endpoint velocities does not
			// fit; shorten the jerk time until it does.
			return tightRampProfile(distance, startVel, endVel, maxAccel, maxJerk)
		}
		accelDist = rampDistance(startVel, cruiseVel, maxAccel, maxJerk)
		decelDist = rampDistance(cruiseVel, endVel, maxAccel, maxJerk)
	}

	prof.Phases = append(prof.Phases, rampPhases(startVel, cruiseVel, maxAccel, maxJerk, false)...)

	cruiseDist := distance - accelDist - decelDist
	if cruiseDist > 1e-9 && cruiseVel > 0 {
		cruise := Phase{
			Kind:          PhaseCruise,
			Duration:      cruiseDist / cruiseVel,
			StartVelocity: cruiseVel,
			Distance:      cruiseDist,
		}
		prof.Phases = append(prof.Phases, cruise)
	}

	prof.Phases = append(prof.Phases, rampPhases(cruiseVel, endVel, maxAccel, maxJerk, true)...)

	for i := range prof.Phases {
		prof.Duration += prof.Phases[i].Duration
	}
	prof.PeakVelocity = cruiseVel
	return prof, nil
}

// solveTriangularPeak finds the peak velocity vc in [max(startVel, endVel),
// targetVel] at which accel and decel ramps exactly consume distance. The
// ramp distance grows monotonically with vc, so plain bisection converges.
// Returns -1 when even the lowest admissible peak overshoots distance.
func solveTriangularPeak(distance, startVel, endVel, targetVel, maxAccel, maxJerk float64) float64 {
	lo := math.Max(startVel, endVel)
	hi := targetVel
	if rampDistance(startVel, lo, maxAccel, maxJerk)+rampDistance(lo, endVel, maxAccel, maxJerk) > distance {
		return -1
	}
	for i := 0; i < 64; i++ {
		mid := 0.5 * (lo + hi)
		d := rampDistance(startVel, mid, maxAccel, maxJerk) +
			rampDistance(mid, endVel, maxAccel, maxJerk)
		if d > distance {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// tightRampProfile handles the rare case where the jerk-limited ramp between
// startVel and endVel is itself longer than the move. The end velocity is
// clamped to the nearest value a legal ramp can reach within the distance,
// so the limits are never exceeded and phase distances still sum to the
// move distance; the shortfall shows up as a degraded end velocity. The
// look-ahead release clamp prevents this in normal operation.
func tightRampProfile(distance, startVel, endVel, maxAccel, maxJerk float64) (*Profile, error) {
	fitted := nearestReachableEnd(startVel, endVel, distance, maxAccel, maxJerk)
	if fitted != endVel {
		logger.Warnf("profile: end velocity %.3f unreachable over %.6fmm from %.3f, clamping to %.3f",
			endVel, distance, startVel, fitted)
		endVel = fitted
	}

	ramp := rampPhases(startVel, endVel, maxAccel, maxJerk, endVel < startVel)
	covered := 0.
	for i := range ramp {
		covered += ramp[i].Distance
	}
	rest := distance - covered

	// The clamp leaves a sliver of distance over; cover it with a cruise at
	// whichever end is faster so the phase order stays canonical.
	prof := &Profile{}
	if rest > 1e-12 && endVel < startVel && startVel > 0 {
		prof.Phases = append(prof.Phases, Phase{
			Kind:          PhaseCruise,
			Duration:      rest / startVel,
			StartVelocity: startVel,
			Distance:      rest,
		})
		rest = 0
	}
	prof.Phases = append(prof.Phases, ramp...)
	if rest > 1e-12 && endVel > 0 {
		prof.Phases = append(prof.Phases, Phase{
			Kind:          PhaseCruise,
			Duration:      rest / endVel,
			StartVelocity: endVel,
			Distance:      rest,
		})
	}

	for i := range prof.Phases {
		prof.Duration += prof.Phases[i].Duration
	}
	prof.PeakVelocity = math.Max(startVel, endVel)
	return prof, nil
}
