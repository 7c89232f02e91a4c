package scheduler

import (
	"time"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
)

// decide is the pure half of the tick evaluator: given a subject's kind,
// current event status, signed time-to-start and whether any prior ledger
// record exists, it returns the candidate actions for this tick.
//
// A send decision here is necessary but not sufficient — a subject can sit
// in the same window across many ticks, so the caller still gates the send
// on the per-window ledger check.
func decide(kind subject.Kind, status subject.EventStatus, untilStart time.Duration, hasPrior bool) []Action {
	var out []Action
	if tag, ok := window.Classify(kind, untilStart, hasPrior); ok {
		out = append(out, Action{Kind: ActionSend, Tag: tag})
	}
	if kind == subject.KindEvent {
		if next, ok := window.NextEventStatus(status, untilStart); ok {
			out = append(out, Action{Kind: ActionTransition, NewStatus: next})
		}
	}
	return out
}
