package goal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOneDayShortUsesSingular(t *testing.T) {
	tier := ForStreak(29)

	require.Equal(t, "Practice 1 More Day", tier.Headline)
	require.Equal(t, 30, tier.Target)
	require.Equal(t, 97, tier.ProgressPercent)
	require.False(t, tier.Achieved)
	require.Equal(t, 0, tier.TiersAchieved)
	require.Equal(t, "Seedling", tier.Name)
}

func TestReachingThresholdIsAchieved(t *testing.T) {
	tier := ForStreak(30)

	require.Equal(t, "Goal Achieved!", tier.Headline)
	require.Equal(t, 100, tier.ProgressPercent)
	require.Equal(t, 30, tier.Target)
	require.True(t, tier.Achieved)
	require.Equal(t, 1, tier.TiersAchieved)
	require.Equal(t, "Sprout", tier.Name)
}

func TestBetweenThresholdsTargetsNextRung(t *testing.T) {
	tier := ForStreak(31)
	require.Equal(t, 60, tier.Target)
	require.Equal(t, "Practice 29 More Days", tier.Headline)
	require.Equal(t, 52, tier.ProgressPercent)

	tier = ForStreak(0)
	require.Equal(t, 30, tier.Target)
	require.Equal(t, 0, tier.ProgressPercent)
	require.Equal(t, "Practice 30 More Days", tier.Headline)
}

func TestFirstYearIsUltimate(t *testing.T) {
	tier := ForStreak(365)

	require.Equal(t, "Ultimate Goal Achieved!", tier.Headline)
	require.Equal(t, 5, tier.TiersAchieved)
	require.Equal(t, 1, tier.UltimateGoalsCompleted)
	require.Equal(t, "Sage", tier.Name)
}

func TestYearlyCycleBeyondLadder(t *testing.T) {
	tier := ForStreak(400)
	require.Equal(t, 730, tier.Target)
	require.Equal(t, 55, tier.ProgressPercent)
	require.Equal(t, 5, tier.TiersAchieved)
	require.Equal(t, "Practice 330 More Days", tier.Headline)

	tier = ForStreak(730)
	require.Equal(t, "Year 2 Complete!", tier.Headline)
	require.Equal(t, 6, tier.TiersAchieved)
	require.Equal(t, 2, tier.UltimateGoalsCompleted)

	// Names clamp at the end of the list.
	tier = ForStreak(365 * 10)
	require.Equal(t, "Enlightened", tier.Name)
	require.Equal(t, 14, tier.TiersAchieved)
}

func TestProgressNeverExceedsHundred(t *testing.T) {
	for streak := 0; streak <= 1200; streak++ {
		tier := ForStreak(streak)
		require.GreaterOrEqual(t, tier.ProgressPercent, 0)
		require.LessOrEqual(t, tier.ProgressPercent, 100)
		require.GreaterOrEqual(t, tier.Target, streak)
	}
}
