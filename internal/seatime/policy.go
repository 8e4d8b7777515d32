// Package seatime turns movement analysis and manual checks into sea-time
// entries. The scheduled policy only ever inserts; the manual policy opens
// and closes entries. The two are kept separate.
package seatime

import (
	"time"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// Outcome names what a policy decided for one vessel
type Outcome string

const (
	OutcomeCreated           Outcome = "created"
	OutcomeInsufficientHours Outcome = "insufficient_hours"
	OutcomeStationary        Outcome = "stationary"
	OutcomeDuplicateDay      Outcome = "duplicate_day"
	OutcomeOpened            Outcome = "opened"
	OutcomeClosed            Outcome = "closed"
	OutcomeUnchanged         Outcome = "unchanged"
)

// Decision is a policy result. Entry is set when an entry was written.
type Decision struct {
	Outcome  Outcome             `json:"outcome"`
	Entry    *types.SeaTimeEntry `json:"entry,omitempty"`
	Existing *types.SeaTimeEntry `json:"existing,omitempty"`
}

// Wrote reports whether the decision persisted an entry
func (d Decision) Wrote() bool {
	return d.Outcome == OutcomeCreated || d.Outcome == OutcomeOpened || d.Outcome == OutcomeClosed
}

// sameDay reports whether a and b fall on the same calendar date in loc
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func coord(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
