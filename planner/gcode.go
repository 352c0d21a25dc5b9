package planner

import (
	"fmt"
	"strconv"
	"strings"

	"gplan/common/logger"
)

type moveCommand struct {
	X, Y, Z, F float64
	HasX       bool
	HasY       bool
	HasZ       bool
	HasF       bool
}

func parseLinearMove(tokens []string) (moveCommand, error) {
	var mv moveCommand
	for _, token := range tokens[1:] {
		if len(token) < 2 {
			continue
		}
		word := strings.ToUpper(token[:1])
		val, err := strconv.ParseFloat(token[1:], 64)
		if err != nil {
			return moveCommand{}, err
		}
		switch word {
		case "X":
			mv.X = val
			mv.HasX = true
		case "Y":
			mv.Y = val
			mv.HasY = true
		case "Z":
			mv.Z = val
			mv.HasZ = true
		case "F":
			mv.F = val
			mv.HasF = true
		}
	}
	return mv, nil
}

func formatMoveLine(cmd string, mv moveCommand, feed float64) string {
	var b strings.Builder
	b.WriteString(cmd)
	if mv.HasX {
		fmt.Fprintf(&b, " X%s", trimFloat(mv.X))
	}
	if mv.HasY {
		fmt.Fprintf(&b, " Y%s", trimFloat(mv.Y))
	}
	if mv.HasZ {
		fmt.Fprintf(&b, " Z%s", trimFloat(mv.Z))
	}
	fmt.Fprintf(&b, " F%s", trimFloat(feed))
	return b.String()
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OptimizeGCode re-plans a whole command stream at once and re-emits it
// with revised feed rates: resonance bands avoided, corners slowed per the
// junction solver, short moves capped at their reachable peak velocity.
// Lines that are not linear moves pass through untouched. Useful when the
// downstream executor runs plain trapezoids and has no S-curve support.
func (p *Planner) OptimizeGCode(lines []string) ([]string, error) {
	type pendingLine struct {
		index int    // position in out
		cmd   string // G0 or G1
		mv    moveCommand
	}

	out := make([]string, 0, len(lines))
	var pending []pendingLine
	lastFeed := 0.

	rewrite := func(segs []*Segment) {
		for _, seg := range segs {
			if len(pending) == 0 {
				logger.Warnf("gcode: released segment with no pending line, dropping rewrite")
				return
			}
			pl := pending[0]
			pending = pending[1:]
			// The revised feed is the profile's achievable peak, in mm/min.
			feed := seg.Profile.PeakVelocity * 60.
			out[pl.index] = formatMoveLine(pl.cmd, pl.mv, feed)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i := strings.Index(trimmed, ";"); i >= 0 {
			trimmed = strings.TrimSpace(trimmed[:i])
		}
		tokens := strings.Fields(trimmed)
		if len(tokens) == 0 {
			out = append(out, line)
			continue
		}
		cmd := strings.ToUpper(tokens[0])
		if cmd != "G0" && cmd != "G1" {
			out = append(out, line)
			continue
		}

		mv, err := parseLinearMove(tokens)
		if err != nil {
			return nil, fmt.Errorf("gcode: bad move %q: %w", line, err)
		}
		if mv.HasF {
			lastFeed = mv.F
		}
		if !(mv.HasX || mv.HasY || mv.HasZ) {
			// Feed-only line; keep it, feed state already updated.
			out = append(out, line)
			continue
		}
		if lastFeed <= 0 {
			return nil, fmt.Errorf("gcode: move %q before any feed rate", line)
		}

		end := p.pos
		if mv.HasX {
			end[0] = mv.X
		}
		if mv.HasY {
			end[1] = mv.Y
		}
		if mv.HasZ {
			end[2] = mv.Z
		}

		out = append(out, line) // placeholder, rewritten on release
		pending = append(pending, pendingLine{index: len(out) - 1, cmd: cmd, mv: mv})

		before := p.Pending()
		seg, err := p.MoveTo(end, lastFeed)
		if err != nil {
			return nil, err
		}
		if seg != nil {
			rewrite([]*Segment{seg})
		} else if p.Pending() == before {
			// Zero-length move was skipped: it will never be released, so
			// emit the line unchanged.
			pending = pending[:len(pending)-1]
		}
	}

	segs, err := p.Flush()
	if err != nil {
		return nil, err
	}
	rewrite(segs)
	return out, nil
}
