// Package clock owns per-player time accounting: absolute main time with
// byo-yomi periods, or a per-move blitz budget. All mutation happens at move
// commit; tick-driven display values are pure projections.
package clock

import "time"

// TimeControl is the game-level clock configuration.
type TimeControl struct {
	TimeControl    int `json:"timeControl"`    // main time in minutes
	ByoYomiPeriods int `json:"byoYomiPeriods"` // overtime period count
	ByoYomiTime    int `json:"byoYomiTime"`    // seconds per period
	TimePerMove    int `json:"timePerMove"`    // blitz budget per move, seconds
	FischerTime    int `json:"fischerTime"`    // post-move increment, seconds
}

// MainSeconds returns the configured main time in seconds.
func (tc TimeControl) MainSeconds() float64 {
	return float64(tc.TimeControl) * 60
}

// PlayerClock is the per-player clock state stored on the Player record.
type PlayerClock struct {
	TimeRemaining      float64 `json:"timeRemaining"` // main time left, seconds
	ByoYomiPeriodsLeft int     `json:"byoYomiPeriodsLeft"`
	ByoYomiTimeLeft    float64 `json:"byoYomiTimeLeft"` // seconds
	IsInByoYomi        bool    `json:"isInByoYomi"`
}

// NewPlayerClock returns the starting clock for tc.
func NewPlayerClock(tc TimeControl) PlayerClock {
	pc := PlayerClock{
		TimeRemaining:      tc.MainSeconds(),
		ByoYomiPeriodsLeft: tc.ByoYomiPeriods,
		ByoYomiTimeLeft:    float64(tc.ByoYomiTime),
	}
	// A main time of zero starts the game directly in byo-yomi.
	if pc.TimeRemaining == 0 && pc.ByoYomiPeriodsLeft > 0 {
		pc.IsInByoYomi = true
	}
	return pc
}

// Event classifies what a committed move did to the mover's clock. The
// session engine turns these into wire events; ByoYomiReset in particular
// must reach the group before the turn toggles.
type Event int

const (
	EventNone Event = iota
	EventEnteredByoYomi
	EventByoYomiReset
	EventPeriodUsed
	EventTimeout
)

// Blitz reports whether the game runs on a per-move budget.
func Blitz(gameType string, tc TimeControl) bool {
	return gameType == "blitz" && tc.TimePerMove > 0
}

// StartBlitzTurn installs the per-move budget on the player about to move.
// Blitz clocks carry no balance between turns.
func StartBlitzTurn(pc *PlayerClock, tc TimeControl) {
	pc.TimeRemaining = float64(tc.TimePerMove)
}

// ApplyMove charges elapsed think time against the mover's clock at move
// commit. Returns the clock event to emit. On EventTimeout the clock state
// is left zeroed and the caller must finish the game.
//
// At most one byo-yomi period is consumed per move regardless of how far
// elapsed overruns the period.
func ApplyMove(pc *PlayerClock, tc TimeControl, gameType string, elapsed time.Duration) Event {
	delta := elapsed.Seconds()
	if delta < 0 {
		delta = 0
	}

	if Blitz(gameType, tc) {
		if delta > float64(tc.TimePerMove) {
			pc.TimeRemaining = 0
			return EventTimeout
		}
		// The budget renews every move.
		pc.TimeRemaining = float64(tc.TimePerMove)
		return EventNone
	}

	if !pc.IsInByoYomi {
		pc.TimeRemaining -= delta
		if pc.TimeRemaining > 0 {
			if tc.FischerTime > 0 {
				pc.TimeRemaining += float64(tc.FischerTime)
			}
			return EventNone
		}
		pc.TimeRemaining = 0
		if pc.ByoYomiPeriodsLeft > 0 {
			pc.IsInByoYomi = true
			pc.ByoYomiTimeLeft = float64(tc.ByoYomiTime)
			return EventEnteredByoYomi
		}
		return EventTimeout
	}

	if delta <= pc.ByoYomiTimeLeft {
		// Moved inside the period: the period resets in full.
		pc.ByoYomiTimeLeft = float64(tc.ByoYomiTime)
		return EventByoYomiReset
	}

	pc.ByoYomiPeriodsLeft--
	if pc.ByoYomiPeriodsLeft > 0 {
		pc.ByoYomiTimeLeft = float64(tc.ByoYomiTime)
		return EventPeriodUsed
	}
	pc.ByoYomiPeriodsLeft = 0
	pc.ByoYomiTimeLeft = 0
	return EventTimeout
}

// Project returns the display clock for the player whose turn it is, given
// the time elapsed since their turn started. It never mutates pc. timedOut
// is true when the whole budget is exhausted, main time plus every
// remaining period.
func Project(pc PlayerClock, tc TimeControl, gameType string, elapsed time.Duration) (PlayerClock, bool) {
	delta := elapsed.Seconds()
	if delta < 0 {
		delta = 0
	}

	if Blitz(gameType, tc) {
		pc.TimeRemaining -= delta
		if pc.TimeRemaining <= 0 {
			pc.TimeRemaining = 0
			return pc, true
		}
		return pc, false
	}

	if !pc.IsInByoYomi {
		if delta <= pc.TimeRemaining {
			pc.TimeRemaining -= delta
			return pc, false
		}
		delta -= pc.TimeRemaining
		pc.TimeRemaining = 0
		if pc.ByoYomiPeriodsLeft == 0 {
			return pc, true
		}
		pc.IsInByoYomi = true
		pc.ByoYomiTimeLeft = float64(tc.ByoYomiTime)
	}

	// Walk the remaining periods; the current one drains first.
	for delta > 0 {
		if delta <= pc.ByoYomiTimeLeft {
			pc.ByoYomiTimeLeft -= delta
			return pc, false
		}
		delta -= pc.ByoYomiTimeLeft
		pc.ByoYomiPeriodsLeft--
		if pc.ByoYomiPeriodsLeft <= 0 {
			pc.ByoYomiPeriodsLeft = 0
			pc.ByoYomiTimeLeft = 0
			return pc, true
		}
		pc.ByoYomiTimeLeft = float64(tc.ByoYomiTime)
	}
	return pc, false
}
