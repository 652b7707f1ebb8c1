// Package scoring implements the point rule for a single prediction.
//
// The rules are checked in order and the first one that matches wins; points
// never accumulate across rules:
//
//	exact score             10
//	same outcome             5  (home win, away win, or draw)
//	same goal difference     3
//	one side exact           1
//	anything else            0
//
// Because equal goal differences imply equal outcomes, the goal difference
// rule only fires when the outcome rule has already failed. It is kept so the
// table above stays the single source of truth.
package scoring

import "github.com/sakif/matchday/internal/model"

const (
	ExactScore     = 10
	CorrectOutcome = 5
	GoalDifference = 3
	OneSideExact   = 1
	NoPoints       = 0
)

// Outcome is the result category of a score.
type Outcome int

const (
	Draw Outcome = iota
	HomeWin
	AwayWin
)

func (o Outcome) String() string {
	switch o {
	case HomeWin:
		return "home win"
	case AwayWin:
		return "away win"
	}
	return "draw"
}

// OutcomeOf classifies a score.
func OutcomeOf(s model.Score) Outcome {
	switch {
	case s.Home > s.Away:
		return HomeWin
	case s.Home < s.Away:
		return AwayWin
	}
	return Draw
}

// Points returns the points a prediction earns against the actual result.
func Points(predicted, actual model.Score) int {
	if predicted == actual {
		return ExactScore
	}
	if OutcomeOf(predicted) == OutcomeOf(actual) {
		return CorrectOutcome
	}
	if predicted.Home-predicted.Away == actual.Home-actual.Away {
		return GoalDifference
	}
	if predicted.Home == actual.Home || predicted.Away == actual.Away {
		return OneSideExact
	}
	return NoPoints
}
