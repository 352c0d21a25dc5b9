package planner

import (
	"math"

	"gplan/common/logger"
)

// Segment is a fully resolved move together with its velocity profile. Once
// returned, ownership passes to the caller; the buffer keeps no reference.
type Segment struct {
	Move    *Move
	Profile *Profile
}

// LookAheadBuffer holds pending moves in a fixed-capacity ring indexed by
// head/count. Adding the capacity-th move triggers a Process automatically,
// so in steady state the ring never reallocates; if the upstream outruns
// that, the ring grows instead of dropping or blocking.
type LookAheadBuffer struct {
	lim      *Limits
	ring     []*Move
	head     int
	count    int
	capacity int

	// Exit velocity of the most recently released move; the next released
	// move starts no faster than this, keeping velocity continuous across
	// segment boundaries. Starts at 0: the first move begins at rest.
	lastExit float64
}

// NewLookAheadBuffer creates an empty buffer. capacity <= 0 selects the
// limits' configured size (default 20).
func NewLookAheadBuffer(lim *Limits, capacity int) *LookAheadBuffer {
	if capacity <= 0 {
		capacity = lim.lookAheadSize()
	}
	return &LookAheadBuffer{
		lim:      lim,
		ring:     make([]*Move, capacity),
		capacity: capacity,
	}
}

// Len reports the number of buffered moves.
func (q *LookAheadBuffer) Len() int { return q.count }

func (q *LookAheadBuffer) at(i int) *Move {
	return q.ring[(q.head+i)%len(q.ring)]
}

func (q *LookAheadBuffer) push(m *Move) {
	if q.count == len(q.ring) {
		grown := make([]*Move, 2*len(q.ring))
		for i := 0; i < q.count; i++ {
			grown[i] = q.at(i)
		}
		q.ring = grown
		q.head = 0
	}
	q.ring[(q.head+q.count)%len(q.ring)] = m
	q.count++
}

func (q *LookAheadBuffer) pop() *Move {
	m := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return m
}

// Add appends a move. When the buffered window reaches capacity, one
// Process runs and its released segment is returned; otherwise the segment
// is nil. Zero-length moves are skipped outright.
func (q *LookAheadBuffer) Add(m *Move) (*Segment, error) {
	if m.Distance == 0 {
		logger.Debugf("lookahead: skipping zero-length move at %v", m.Start)
		return nil, nil
	}
	q.push(m)
	if q.count >= q.capacity {
		return q.Process()
	}
	return nil, nil
}

// Process runs one backward pass over the buffered window, fixing entry and
// exit velocities, then releases the oldest move with its profile. With an
// empty buffer it returns nil. A lone move is resolved as isolated: it both
// starts and ends at rest.
func (q *LookAheadBuffer) Process() (*Segment, error) {
	if q.count == 0 {
		return nil, nil
	}

	if q.count == 1 {
		q.at(0).ExitVelocity = 0
	} else {
		// Walk from the second-to-last move down to the first. The newest
		// move's entry velocity still holds its value from the previous
		// pass (zero for a fresh move), which is the conservative bound
		// for a window that may end in a stop.
		for i := q.count - 2; i >= 0; i-- {
			cur := q.at(i)
			next := q.at(i + 1)
			jv := JunctionVelocity(cur, next, q.lim)
			cur.ExitVelocity = math.Min(cur.Speed, math.Min(jv, next.EntryVelocity))
			cur.EntryVelocity = math.Min(cur.Speed, cur.maxEntryVelocity(cur.ExitVelocity))
		}
	}

	m := q.pop()
	m.EntryVelocity = math.Min(m.EntryVelocity, q.lastExit)
	// The exit must also be reachable by a jerk-limited ramp from the entry
	// over the move's length, or the profile cannot conserve distance.
	m.ExitVelocity = math.Min(m.ExitVelocity, m.maxEntryVelocity(m.EntryVelocity))
	q.lastExit = m.ExitVelocity

	prof, err := GenerateProfile(m.Distance, m.EntryVelocity, m.ExitVelocity, m.Speed, m.Accel, m.Jerk)
	if err != nil {
		return nil, err
	}
	return &Segment{Move: m, Profile: prof}, nil
}

// Flush drains the buffer completely, used at end-of-program or abort. The
// final move always comes to a full stop since it has no successor.
func (q *LookAheadBuffer) Flush() ([]*Segment, error) {
	var segs []*Segment
	for q.count > 0 {
		seg, err := q.Process()
		if err != nil {
			return segs, err
		}
		if seg != nil {
			segs = append(segs, seg)
		}
	}
	return segs, nil
}
