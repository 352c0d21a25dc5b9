package planner

import (
	"go.uber.org/multierr"

	"gplan/common/logger"
)

// Planner is the top-level facade: it owns the look-ahead buffer, the
// resonance filter and the commanded position, and converts feed rates from
// G-code units (mm/min) to planner units (mm/s).
//
// A Planner is single-threaded by contract: one producer feeds MoveTo, one
// consumer takes the returned segments. Independent Planner instances share
// nothing.
type Planner struct {
	lim     Limits
	buf     *LookAheadBuffer
	filter  *ResonanceFilter
	handler func(*Segment)
	pos     [3]float64
}

// NewPlanner validates the limits and builds an empty planner positioned at
// the origin.
func NewPlanner(lim Limits) (*Planner, error) {
	if lim.CornerDeviation == 0 {
		lim.CornerDeviation = DefaultCornerDeviation
	}
	if lim.MinJunctionSpeed == 0 {
		lim.MinJunctionSpeed = DefaultMinJunctionSpeed
	}
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	p := &Planner{lim: lim}
	p.buf = NewLookAheadBuffer(&p.lim, 0)
	p.filter = NewResonanceFilter(&p.lim)
	return p, nil
}

// Filter exposes the planner-owned resonance filter.
func (p *Planner) Filter() *ResonanceFilter { return p.filter }

// Limits returns the active machine limits.
func (p *Planner) Limits() Limits { return p.lim }

// SetLimits swaps the machine envelope at runtime after revalidating it.
// Buffered moves keep the limits they were created under.
func (p *Planner) SetLimits(lim Limits) error {
	if err := lim.Validate(); err != nil {
		return err
	}
	p.lim = lim
	logger.Infof("planner: limits updated (corner deviation %.4fmm, junction floor %.2fmm/s)",
		lim.CornerDeviation, lim.MinJunctionSpeed)
	return nil
}

// SetSegmentHandler registers an optional push-style consumer invoked for
// every released segment, for callers that prefer notification over
// collecting return values.
func (p *Planner) SetSegmentHandler(fn func(*Segment)) { p.handler = fn }

// Position returns the commanded (not executed) position.
func (p *Planner) Position() [3]float64 { return p.pos }

// SetPosition teleports the commanded position, e.g. after homing. Pending
// moves are flushed first so geometry stays consistent.
func (p *Planner) SetPosition(pos [3]float64) ([]*Segment, error) {
	segs, err := p.Flush()
	p.pos = pos
	return segs, err
}

// Pending reports how many moves wait in the look-ahead window.
func (p *Planner) Pending() int { return p.buf.Len() }

func (p *Planner) emit(seg *Segment) {
	if p.handler != nil {
		p.handler(seg)
	}
}

// MoveTo enqueues a straight move from the commanded position to end at the
// requested feed (mm/min). The feed is first steered out of any resonance
// band on the move's dominant axis. If the look-ahead window was full, the
// released segment is returned; otherwise nil.
func (p *Planner) MoveTo(end [3]float64, feed float64) (*Segment, error) {
	if feed <= 0 {
		return nil, configErrorf("feed_rate", feed)
	}
	m := NewMove(p.pos, end, feed/60., &p.lim)
	if m.Distance == 0 {
		// Degenerate geometry: skip, but still track the position.
		p.pos = end
		return nil, nil
	}
	if adj := p.filter.AdjustFeedRate(feed, m.DominantAxis()); adj != feed {
		m = NewMove(p.pos, end, adj/60., &p.lim)
	}
	p.pos = end
	seg, err := p.buf.Add(m)
	if err != nil {
		return nil, err
	}
	if seg != nil {
		p.emit(seg)
	}
	return seg, nil
}

// Flush drains the look-ahead window; the last move ends at a full stop.
// Failures on individual segments are aggregated so one bad move does not
// hide the rest of the drain.
func (p *Planner) Flush() ([]*Segment, error) {
	var segs []*Segment
	var errs error
	for p.buf.Len() > 0 {
		seg, err := p.buf.Process()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seg != nil {
			segs = append(segs, seg)
			p.emit(seg)
		}
	}
	return segs, errs
}
