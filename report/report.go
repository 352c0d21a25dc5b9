// Package report renders calibration sweep results into human-readable
// text for operators deciding which feed bands to avoid.
package report

import (
	"github.com/flosch/pongo2/v5"
	"github.com/pkg/errors"

	"gplan/planner"
)

const sweepTemplate = `Resonance calibration report
============================
Sweep:    {{ id }}
Axis:     {{ axis }}
Zones:    {{ zones|length }}
{% for z in zones %}
Zone {{ forloop.Counter }}
  frequency:       {{ z.FrequencyHz|floatformat:0 }} Hz
  severity:        {{ z.Severity|floatformat:2 }}
  avoid feeds:     {{ z.FeedLow|floatformat:1 }} - {{ z.FeedHigh|floatformat:1 }} mm/min
  suggested cut:   {{ z.SuggestedCut|floatformat:0 }}%
{% endfor %}
{% if zones|length == 0 %}
No resonance zones detected in the swept range.
{% endif %}
`

type zoneView struct {
	FrequencyHz  float64
	Severity     float64
	FeedLow      float64
	FeedHigh     float64
	SuggestedCut float64
}

// RenderSweep formats the zones found by a sweep, including the feed band
// each zone blocks and a suggested feed reduction scaled by severity.
func RenderSweep(id string, axis planner.Axis, zones []planner.ResonanceZone, filter *planner.ResonanceFilter) (string, error) {
	tpl, err := pongo2.FromString(sweepTemplate)
	if err != nil {
		return "", errors.Wrap(err, "parse sweep report template")
	}

	views := make([]zoneView, 0, len(zones))
	for _, z := range zones {
		views = append(views, zoneView{
			FrequencyHz:  z.FrequencyHz,
			Severity:     z.Severity,
			FeedLow:      filter.FrequencyToFeed(z.FrequencyHz-filter.WidthHz, axis),
			FeedHigh:     filter.FrequencyToFeed(z.FrequencyHz+filter.WidthHz, axis),
			SuggestedCut: 10. + 40.*z.Severity,
		})
	}

	out, err := tpl.Execute(pongo2.Context{
		"id":    id,
		"axis":  axis.String(),
		"zones": views,
	})
	if err != nil {
		return "", errors.Wrap(err, "render sweep report")
	}
	return out, nil
}
