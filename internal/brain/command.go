// Package brain holds the decision engines that turn observed market state
// into order-ladder mutations.
package brain

import "time"

// Command is the pending-reconciliation state of one ladder side.
type Command int

const (
	None Command = iota
	PriorityUpdate
	DelayedUpdate
)

func (c Command) String() string {
	switch c {
	case PriorityUpdate:
		return "priority"
	case DelayedUpdate:
		return "delayed"
	default:
		return "none"
	}
}

// Schedule pairs a Command with the time a DelayedUpdate should run.
type Schedule struct {
	Cmd Command
	At  time.Time
}

// SetTime merges a new trigger into the pending schedule. A candidate at or
// before now becomes an immediate PriorityUpdate. A future candidate becomes
// a DelayedUpdate that can only push the scheduled time later, never pull it
// earlier, so a flurry of minor triggers collapses into a single future run.
// An already-pending PriorityUpdate is never downgraded.
func (s Schedule) SetTime(now, candidate time.Time) Schedule {
	if !candidate.After(now) {
		return Schedule{Cmd: PriorityUpdate, At: candidate}
	}
	if s.Cmd == PriorityUpdate {
		return s
	}
	at := candidate
	if s.Cmd == DelayedUpdate && s.At.After(at) {
		at = s.At
	}
	return Schedule{Cmd: DelayedUpdate, At: at}
}

// Due reports whether the schedule calls for a reconciliation at now.
func (s Schedule) Due(now time.Time) bool {
	switch s.Cmd {
	case PriorityUpdate:
		return true
	case DelayedUpdate:
		return !s.At.After(now)
	default:
		return false
	}
}
