// Package window classifies a subject's time-to-start into a countdown tier.
//
// Classification is a pure function over the signed duration until start.
// Tiers are ordered data, tightest first, so overlapping bounds resolve
// deterministically: a subject 50 minutes out matches "1h", never "1d".
package window

import (
	"fmt"
	"time"

	"matchwatch/internal/subject"
)

// Tag identifies one countdown tier. The set is closed per subject kind.
type Tag string

const (
	TagTenMinutes    Tag = "within-10-minutes"
	TagThirtyMinutes Tag = "within-30-minutes"
	TagOneHour       Tag = "within-1-hour"
	TagFiveHours     Tag = "within-5-hours"
	TagOneDay        Tag = "within-1-day"
	TagThreeDays     Tag = "within-3-days"

	// TagMidWindow is the one-shot catch-up tier for subjects whose very
	// first scheduler observation lands between the narrow 5h spike and
	// the 1d tier. It only fires when the subject has no prior records.
	TagMidWindow Tag = "discovered-mid-window"
)

// tier is one half-open interval lower < t <= upper of time-to-start.
type tier struct {
	lower   time.Duration // exclusive
	upper   time.Duration // inclusive
	tag     Tag
	catchUp bool // only matches subjects with no prior notification
}

// Event tiers. The 5h entry is intentionally a narrow spike around the
// five-hour mark, not a range down to 1h; the mid-window tier below it
// catches subjects created inside the broad silent band.
var eventTiers = []tier{
	{lower: 0, upper: time.Hour, tag: TagOneHour},
	{lower: 4*time.Hour + 50*time.Minute, upper: 5*time.Hour + 10*time.Minute, tag: TagFiveHours},
	{lower: 23 * time.Hour, upper: 24 * time.Hour, tag: TagOneDay},
	{lower: 71 * time.Hour, upper: 72 * time.Hour, tag: TagThreeDays},
	{lower: 5*time.Hour + 10*time.Minute, upper: 23 * time.Hour, tag: TagMidWindow, catchUp: true},
}

// Scrims are planned on short notice, so there is no catch-up tier and the
// horizon stops at 30 minutes.
var scrimTiers = []tier{
	{lower: 0, upper: 10 * time.Minute, tag: TagTenMinutes},
	{lower: 11 * time.Minute, upper: 30 * time.Minute, tag: TagThirtyMinutes},
}

// Tournaments share the scrim tiers plus a day-ahead tier.
var tournamentTiers = []tier{
	{lower: 0, upper: 10 * time.Minute, tag: TagTenMinutes},
	{lower: 11 * time.Minute, upper: 30 * time.Minute, tag: TagThirtyMinutes},
	{lower: 23 * time.Hour, upper: 24 * time.Hour, tag: TagOneDay},
}

func tiersFor(kind subject.Kind) []tier {
	switch kind {
	case subject.KindEvent:
		return eventTiers
	case subject.KindScrim:
		return scrimTiers
	case subject.KindTournament:
		return tournamentTiers
	default:
		return nil
	}
}

// Classify maps a signed time-to-start to a window tag for the given kind.
// hasPrior reports whether the subject already has any ledger record; it
// gates catch-up tiers only. The second return is false when no tier
// matches (already started, between tiers, or beyond the horizon).
func Classify(kind subject.Kind, untilStart time.Duration, hasPrior bool) (Tag, bool) {
	if untilStart <= 0 {
		return "", false
	}
	for _, w := range tiersFor(kind) {
		if w.catchUp && hasPrior {
			continue
		}
		if untilStart > w.lower && untilStart <= w.upper {
			return w.tag, true
		}
	}
	return "", false
}

// completedAfter is how long past start an event is considered over.
const completedAfter = 7 * time.Hour

// NextEventStatus reports the status an event should transition to given
// its current status and time-to-start. ok is false when no transition
// applies. Scrim/tournament completion is driven by result entry elsewhere,
// never by elapsed time.
func NextEventStatus(status subject.EventStatus, untilStart time.Duration) (subject.EventStatus, bool) {
	if untilStart <= -completedAfter && status != subject.EventCompleted {
		return subject.EventCompleted, true
	}
	if untilStart <= 0 && status == subject.EventUpcoming {
		return subject.EventOngoing, true
	}
	return "", false
}

// Countdown renders the human countdown text for a tag. The one-hour tier
// carries the exact remaining minutes recomputed at send time rather than
// a fixed "60 Minutes" string.
func Countdown(tag Tag, untilStart time.Duration) string {
	switch tag {
	case TagTenMinutes:
		return "10 Minutes"
	case TagThirtyMinutes:
		return "30 Minutes"
	case TagOneHour:
		mins := int((untilStart + time.Minute - time.Nanosecond) / time.Minute)
		if mins < 1 {
			mins = 1
		}
		if mins == 1 {
			return "1 Minute"
		}
		return fmt.Sprintf("%d Minutes", mins)
	case TagFiveHours:
		return "5 Hours"
	case TagOneDay:
		return "1 Day"
	case TagThreeDays:
		return "3 Days"
	case TagMidWindow:
		hrs := int((untilStart + time.Hour - time.Nanosecond) / time.Hour)
		if hrs <= 1 {
			return "1 Hour"
		}
		return fmt.Sprintf("%d Hours", hrs)
	default:
		return ""
	}
}
