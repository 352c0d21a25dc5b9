package planner

import "time"

const (
	// DefaultEmitInterval is the sampling step for profile emission.
	DefaultEmitInterval = 10 * time.Millisecond
	// DefaultEmitResolution is the minimum spacing between emitted
	// waypoints, keeping output density bounded on slow moves.
	DefaultEmitResolution = 0.01
)

// Waypoint is one time-stamped position along a move, for firmware that has
// no native S-curve support and consumes discrete positions instead.
type Waypoint struct {
	Time     float64
	Position [3]float64
	Velocity float64
}

// EmitWaypoints time-steps a profile with the default interval and
// resolution.
func EmitWaypoints(m *Move, p *Profile) []Waypoint {
	return EmitWaypointsAt(m, p, DefaultEmitInterval, DefaultEmitResolution)
}

// EmitWaypointsAt walks the profile at a fixed interval, evaluating the
// closed-form position within each phase and advancing along the move's
// unit direction. A waypoint is emitted only once the position has advanced
// by at least resolution since the last one; the final endpoint is always
// emitted. Pure given the move and profile: the only state is the
// last-emitted accumulator local to this call.
func EmitWaypointsAt(m *Move, p *Profile, interval time.Duration, resolution float64) []Waypoint {
	if len(p.Phases) == 0 || m.Distance == 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultEmitInterval
	}
	if resolution <= 0 {
		resolution = DefaultEmitResolution
	}

	dt := interval.Seconds()
	var out []Waypoint
	lastEmitted := 0.

	emit := func(t, dist, vel float64) {
		wp := Waypoint{Time: t, Velocity: vel}
		for i := range wp.Position {
			wp.Position[i] = m.Start[i] + m.AxesRatio[i]*dist
		}
		out = append(out, wp)
		lastEmitted = dist
	}

	phaseStartTime := 0.
	phaseStartDist := 0.
	phase := 0
	for t := dt; t < p.Duration; t += dt {
		for phase < len(p.Phases) && t > phaseStartTime+p.Phases[phase].Duration {
			phaseStartTime += p.Phases[phase].Duration
			phaseStartDist += p.Phases[phase].Distance
			phase++
		}
		if phase >= len(p.Phases) {
			break
		}
		ph := &p.Phases[phase]
		local := t - phaseStartTime
		dist := phaseStartDist + ph.DistanceAt(local)
		if dist-lastEmitted >= resolution {
			emit(t, dist, ph.VelocityAt(local))
		}
	}

	// Always land exactly on the move endpoint.
	last := &p.Phases[len(p.Phases)-1]
	emit(p.Duration, m.Distance, last.VelocityAt(last.Duration))
	return out
}
