package planner

import "math"

// Angles below this are treated as collinear; the guard also covers the
// 1-cos(theta/2) denominator before it can blow up.
const collinearAngle = 1e-3

// JunctionVelocity computes the fastest speed the machine may carry through
// the corner between prev and next without deviating from the programmed
// path by more than the configured corner deviation.
//
// The result is a pure function of the two unit direction vectors and the
// limits: no state is read or written.
func JunctionVelocity(prev, next *Move, lim *Limits) float64 {
	vmax := math.Min(lim.MaxVelocityAlong(prev.AxesRatio), lim.MaxVelocityAlong(next.AxesRatio))

	cosTheta := prev.AxesRatio[0]*next.AxesRatio[0] +
		prev.AxesRatio[1]*next.AxesRatio[1] +
		prev.AxesRatio[2]*next.AxesRatio[2]
	// Floating point can push the dot product just past +/-1; clamp before
	// acos or the angle comes out NaN.
	cosTheta = math.Max(-1., math.Min(1., cosTheta))
	theta := math.Acos(cosTheta)

	if theta < collinearAngle {
		// Straight line, no slowdown.
		return vmax
	}
	if theta > math.Pi-collinearAngle {
		// Full reversal: hold the floor velocity instead of stopping dead.
		return lim.MinJunctionSpeed
	}

	denom := 1. - math.Cos(theta*0.5)
	if denom < 1e-9 || math.Sin(theta*0.5) < 1e-9 {
		// Same degenerate regime as collinear.
		return vmax
	}

	radius := lim.CornerDeviation / denom
	accel := math.Min(prev.Accel, next.Accel)
	v := math.Sqrt(accel * radius)

	// Near-reversal corners land at the floor velocity, never zero, so the
	// queue cannot deadlock on a full stop.
	return math.Max(lim.MinJunctionSpeed, math.Min(v, vmax))
}
