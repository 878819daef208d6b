package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePoints(t *testing.T) {
	tests := []struct {
		name           string
		base           int
		responseTimeMs int64
		timeLimitMs    int64
		rules          Rules
		want           int
	}{
		{"no speed bonus", 10, 1000, 10000, Rules{PointsForSpeed: false}, 10},
		{"instant answer gets full bonus", 10, 0, 10000, Rules{PointsForSpeed: true}, 15},
		{"answer at deadline gets no bonus", 10, 10000, 10000, Rules{PointsForSpeed: true}, 10},
		{"half elapsed gets half bonus", 20, 5000, 10000, Rules{PointsForSpeed: true}, 25},
		{"zero time limit never divides by zero", 10, 0, 0, Rules{PointsForSpeed: true}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePoints(tt.base, tt.responseTimeMs, tt.timeLimitMs, tt.rules)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeDelta(t *testing.T) {
	rules := Rules{StreakBonus: true, StreakThreshold: 3, StreakMultiplier: 1.5}

	assert.Equal(t, -1.0, ComputeDelta(SideLeft, 10, 1, rules))
	assert.Equal(t, 1.0, ComputeDelta(SideRight, 10, 1, rules))
	assert.Equal(t, 1.5, ComputeDelta(SideRight, 10, 3, rules))
	assert.Equal(t, -1.5, ComputeDelta(SideLeft, 10, 5, rules))

	noStreakRules := Rules{StreakBonus: false, StreakThreshold: 3, StreakMultiplier: 1.5}
	assert.Equal(t, 1.0, ComputeDelta(SideRight, 10, 5, noStreakRules))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-5))
	assert.Equal(t, 100.0, Clamp(150))
	assert.Equal(t, 42.5, Clamp(42.5))
}

func TestApplyCorrectStreak(t *testing.T) {
	streaks := map[string]*StreakState{
		"left":  {Current: 2, Max: 2},
		"right": {Current: 1, Max: 3},
	}
	ApplyCorrectStreak(streaks, "left")
	assert.Equal(t, 3, streaks["left"].Current)
	assert.Equal(t, 3, streaks["left"].Max)
	assert.Equal(t, 0, streaks["right"].Current)
	assert.Equal(t, 3, streaks["right"].Max, "max streak is preserved across a reset")
}

func TestApplyIncorrectStreak(t *testing.T) {
	streaks := map[string]*StreakState{
		"left":  {Current: 4, Max: 4},
		"right": {Current: 1, Max: 1},
	}
	ApplyIncorrectStreak(streaks, "left")
	assert.Equal(t, 0, streaks["left"].Current)
	assert.Equal(t, 4, streaks["left"].Max)
	assert.Equal(t, 1, streaks["right"].Current, "an incorrect answer never touches another team's streak")
}

func TestManualAdjustTeam(t *testing.T) {
	assert.Equal(t, SideLeft, ManualAdjustTeam(-5))
	assert.Equal(t, SideRight, ManualAdjustTeam(5))
	assert.Equal(t, SideRight, ManualAdjustTeam(0), "zero delta favors the right side")
}
