// Package goal maps a streak length onto the gamified goal ladder.
package goal

import (
	"fmt"
	"math"
)

// DaysPerYear is the length of the repeating cycle once the ladder is exhausted.
const DaysPerYear = 365

// Ladder holds the fixed streak targets, in days.
var Ladder = []int{30, 60, 90, 180, 365}

// tierNames is indexed by tiers achieved and clamped to its bounds.
var tierNames = []string{
	"Seedling",
	"Sprout",
	"Sapling",
	"Blossom",
	"Lotus",
	"Sage",
	"Luminary",
	"Enlightened",
}

// Tier is derived from the current streak and never stored.
type Tier struct {
	Target                 int    `json:"target"`
	ProgressPercent        int    `json:"progress_percent"`
	Name                   string `json:"tier_name"`
	TiersAchieved          int    `json:"tiers_achieved"`
	UltimateGoalsCompleted int    `json:"ultimate_goals_completed"`
	Achieved               bool   `json:"achieved"`
	Headline               string `json:"headline"`
	Detail                 string `json:"detail"`
}

// ForStreak builds the tier for a current streak length.
func ForStreak(current int) Tier {
	if current < 0 {
		current = 0
	}

	years := current / DaysPerYear
	achieved := 0
	for _, threshold := range Ladder {
		if current >= threshold {
			achieved++
		}
	}
	if years > 1 {
		achieved += years - 1
	}

	target := targetFor(current)
	progress := int(math.Round(100 * float64(current) / float64(target)))
	if progress > 100 {
		progress = 100
	}

	tier := Tier{
		Target:                 target,
		ProgressPercent:        progress,
		Name:                   nameFor(achieved),
		TiersAchieved:          achieved,
		UltimateGoalsCompleted: years,
		Achieved:               current > 0 && current == target,
	}
	tier.Headline, tier.Detail = describe(current, target, tier.Achieved)
	return tier
}

func targetFor(current int) int {
	for _, threshold := range Ladder {
		if current <= threshold {
			return threshold
		}
	}
	cycles := (current + DaysPerYear - 1) / DaysPerYear
	return cycles * DaysPerYear
}

func nameFor(achieved int) string {
	if achieved < 0 {
		achieved = 0
	}
	if achieved >= len(tierNames) {
		achieved = len(tierNames) - 1
	}
	return tierNames[achieved]
}

func describe(current, target int, achieved bool) (string, string) {
	if !achieved {
		remaining := target - current
		return fmt.Sprintf("Practice %d More %s", remaining, plural(remaining, "Day", "Days")),
			fmt.Sprintf("%d of %d days toward your next goal", current, target)
	}

	switch {
	case target < DaysPerYear:
		return "Goal Achieved!", fmt.Sprintf("You practiced %d days in a row", current)
	case target == DaysPerYear:
		return "Ultimate Goal Achieved!", "A full year of daily practice"
	default:
		year := target / DaysPerYear
		return fmt.Sprintf("Year %d Complete!", year),
			fmt.Sprintf("%d consecutive years of daily practice", year)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
