// Package movement infers underway periods from a vessel's position history.
package movement

import (
	"math"
	"sort"
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

const (
	// Lookback is the history span considered by Analyze
	Lookback = 24 * time.Hour
	// MinWindowHours and MaxWindowHours bound the gap between two checks
	// for the pair to form a window. Both ends are inclusive.
	MinWindowHours = 1.0
	MaxWindowHours = 3.0
	// DisplacementThreshold is the per-axis change in degrees a window must
	// exceed to count as underway. It is not normalized by latitude.
	DisplacementThreshold = 0.1
)

// Window is a pair of consecutive checks that showed movement
type Window struct {
	From         types.PositionCheck `json:"from"`
	To           types.PositionCheck `json:"to"`
	Hours        float64             `json:"hours"`
	Displacement float64             `json:"displacement_degrees"`
}

// Analysis is the result of scanning a vessel's recent checks
type Analysis struct {
	AsOf             time.Time            `json:"as_of"`
	Windows          []Window             `json:"windows"`
	TotalHours       float64              `json:"total_underway_hours"`
	Start            *types.PositionCheck `json:"start,omitempty"`
	End              *types.PositionCheck `json:"end,omitempty"`
	ChecksConsidered int                  `json:"checks_considered"`
}

// Underway reports whether any window showed movement
func (a *Analysis) Underway() bool {
	return len(a.Windows) > 0
}

// Analyze scans checks within Lookback of asOf and sums the hours of every
// consecutive pair that moved more than DisplacementThreshold.
func Analyze(checks []types.PositionCheck, asOf time.Time) Analysis {
	recent := inLookback(checks, asOf)
	analysis := Analysis{
		AsOf:             asOf,
		Windows:          []Window{},
		ChecksConsidered: len(recent),
	}
	if len(recent) < 2 {
		return analysis
	}

	for i := 0; i+1 < len(recent); i++ {
		from, to := recent[i], recent[i+1]
		if !hasFix(from) || !hasFix(to) {
			continue
		}

		hours := to.CheckTime.Sub(from.CheckTime).Hours()
		if hours < MinWindowHours || hours > MaxWindowHours {
			continue
		}

		displacement := math.Max(
			math.Abs(*to.Latitude-*from.Latitude),
			math.Abs(*to.Longitude-*from.Longitude),
		)
		if displacement <= DisplacementThreshold {
			continue
		}

		analysis.Windows = append(analysis.Windows, Window{
			From:         from,
			To:           to,
			Hours:        hours,
			Displacement: displacement,
		})
		analysis.TotalHours += hours
	}

	if n := len(analysis.Windows); n > 0 {
		start := analysis.Windows[0].From
		end := analysis.Windows[n-1].To
		analysis.Start = &start
		analysis.End = &end
	}
	return analysis
}

// hasFix reports whether c carries finite coordinates
func hasFix(c types.PositionCheck) bool {
	if !c.HasPosition() {
		return false
	}
	for _, v := range []float64{*c.Latitude, *c.Longitude} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// inLookback returns the checks in [asOf-Lookback, asOf] sorted by time.
// The input slice is not modified.
func inLookback(checks []types.PositionCheck, asOf time.Time) []types.PositionCheck {
	since := asOf.Add(-Lookback)
	recent := make([]types.PositionCheck, 0, len(checks))
	for _, c := range checks {
		if c.CheckTime.Before(since) || c.CheckTime.After(asOf) {
			continue
		}
		recent = append(recent, c)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CheckTime.Before(recent[j].CheckTime)
	})
	return recent
}
