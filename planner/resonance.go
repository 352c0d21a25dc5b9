package planner

import (
	"math"
	"sort"

	"gplan/common/logger"
	"gplan/common/utils/maths"
)

const (
	// DefaultResonanceWidthHz is the half-width of the danger band around a
	// registered resonance frequency.
	DefaultResonanceWidthHz = 50.
	// DefaultAvoidanceMargin is how far (in mm/min of feed) past a band
	// boundary an adjusted feed is pushed, so rounding cannot drop it back in.
	DefaultAvoidanceMargin = 10.
)

// ResonanceZone is one registered danger frequency for an axis. Severity is
// 0..1 and widens the snap margin for zones that shook the machine harder.
type ResonanceZone struct {
	FrequencyHz float64
	Severity    float64
}

// ResonanceCheck is the answer to "may I run at this feed rate".
// SafeFeedLower and SafeFeedHigher are the nearest feeds just outside the
// violated band; both are zero when IsResonance is false.
type ResonanceCheck struct {
	IsResonance    bool
	SafeFeedLower  float64
	SafeFeedHigher float64
}

// ResonanceFilter keeps the per-axis zone registry and maps feed rates in
// and out of step-frequency space. Each planner owns its own filter; there
// is no shared registry, so concurrent planner instances never interfere.
type ResonanceFilter struct {
	lim     *Limits
	zones   [3][]ResonanceZone
	WidthHz float64
	Margin  float64
}

// NewResonanceFilter creates an empty filter over the given limits.
func NewResonanceFilter(lim *Limits) *ResonanceFilter {
	return &ResonanceFilter{
		lim:     lim,
		WidthHz: DefaultResonanceWidthHz,
		Margin:  DefaultAvoidanceMargin,
	}
}

// RegisterZone adds a danger band for an axis, keeping the list sorted by
// frequency.
func (f *ResonanceFilter) RegisterZone(axis Axis, z ResonanceZone) {
	zs := append(f.zones[axis], z)
	sort.Slice(zs, func(i, j int) bool { return zs[i].FrequencyHz < zs[j].FrequencyHz })
	f.zones[axis] = zs
	logger.Infof("resonance: registered %s zone at %.0fHz (severity %.2f)", axis, z.FrequencyHz, z.Severity)
}

// ReplaceZones swaps the whole zone list of an axis, e.g. after a
// calibration sweep.
func (f *ResonanceFilter) ReplaceZones(axis Axis, zs []ResonanceZone) {
	sorted := append([]ResonanceZone(nil), zs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FrequencyHz < sorted[j].FrequencyHz })
	f.zones[axis] = sorted
}

// Zones returns the registered zones of an axis (callers must not mutate).
func (f *ResonanceFilter) Zones(axis Axis) []ResonanceZone {
	return f.zones[axis]
}

// FeedToStepFrequency converts a feed rate in mm/min to the electrical step
// frequency it produces on the axis drive.
func (f *ResonanceFilter) FeedToStepFrequency(feed float64, axis Axis) float64 {
	ax := f.lim.Axes[axis]
	return feed / 60. * ax.StepsPerMM * ax.Microsteps
}

// FrequencyToFeed is the inverse mapping of FeedToStepFrequency.
func (f *ResonanceFilter) FrequencyToFeed(freq float64, axis Axis) float64 {
	ax := f.lim.Axes[axis]
	return freq * 60. / (ax.StepsPerMM * ax.Microsteps)
}

// CheckFeed reports whether the feed's step frequency falls inside any
// registered danger band on the axis.
func (f *ResonanceFilter) CheckFeed(feed float64, axis Axis) ResonanceCheck {
	freq := f.FeedToStepFrequency(feed, axis)
	for _, z := range f.zones[axis] {
		if math.Abs(freq-z.FrequencyHz) < f.WidthHz {
			return ResonanceCheck{
				IsResonance:    true,
				SafeFeedLower:  f.FrequencyToFeed(z.FrequencyHz-f.WidthHz, axis),
				SafeFeedHigher: f.FrequencyToFeed(z.FrequencyHz+f.WidthHz, axis),
			}
		}
	}
	return ResonanceCheck{}
}

// AdjustFeedRate nudges a requested feed out of any danger band it falls
// into, snapping to whichever boundary is closer plus a margin scaled by
// zone severity. Bands can abut, so the adjustment repeats until the feed
// is clean (bounded, so pathological registries cannot loop forever).
func (f *ResonanceFilter) AdjustFeedRate(feed float64, axis Axis) float64 {
	adjusted := feed
	for i := 0; i < 8; i++ {
		check := f.CheckFeed(adjusted, axis)
		if !check.IsResonance {
			if adjusted != feed {
				logger.Debugf("resonance: feed %.1f -> %.1f on %s", feed, adjusted, axis)
			}
			return adjusted
		}
		margin := f.Margin * (1. + f.severityAt(adjusted, axis))
		if adjusted-check.SafeFeedLower <= check.SafeFeedHigher-adjusted && check.SafeFeedLower-margin > 0 {
			adjusted = check.SafeFeedLower - margin
		} else {
			adjusted = check.SafeFeedHigher + margin
		}
	}
	logger.Warnf("resonance: could not clear feed %.1f on %s after 8 passes", feed, axis)
	return adjusted
}

func (f *ResonanceFilter) severityAt(feed float64, axis Axis) float64 {
	freq := f.FeedToStepFrequency(feed, axis)
	for _, z := range f.zones[axis] {
		if math.Abs(freq-z.FrequencyHz) < f.WidthHz {
			return maths.Clamp(z.Severity, 0, 1)
		}
	}
	return 0
}
