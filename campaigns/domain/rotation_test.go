package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect_RoundRobinCyclesInIDOrder(t *testing.T) {
	cands := []Candidate{{ID: "B"}, {ID: "A"}}
	index := 0
	var picked []string
	for i := 0; i < 3; i++ {
		c, next, ok := Select(RotationRoundRobin, cands, index, 0)
		assert.True(t, ok)
		picked = append(picked, c.ID)
		index = next
	}
	assert.Equal(t, []string{"A", "B", "A"}, picked)
	assert.Equal(t, 1, index)
}

func TestSelect_RoundRobinSurvivesShrinkingPool(t *testing.T) {
	c, next, ok := Select(RotationRoundRobin, []Candidate{{ID: "A"}}, 5, 0)
	assert.True(t, ok)
	assert.Equal(t, "A", c.ID)
	assert.Equal(t, 0, next)
}

func TestSelect_Balanced(t *testing.T) {
	cands := []Candidate{{ID: "C", SentToday: 3}, {ID: "B", SentToday: 1}, {ID: "A", SentToday: 1}}
	c, _, _ := Select(RotationBalanced, cands, 0, 10)
	assert.Equal(t, "A", c.ID, "ties go to the smallest id")
}

func TestSelect_Intelligent(t *testing.T) {
	// A: 0.7*100 + 0.3*10 = 73 ; B: 0.7*80 + 0.3*100 = 86
	cands := []Candidate{{ID: "A", SentToday: 9, HealthScore: 100}, {ID: "B", SentToday: 0, HealthScore: 80}}
	c, _, _ := Select(RotationIntelligent, cands, 0, 10)
	assert.Equal(t, "B", c.ID)

	tie := []Candidate{{ID: "Z", HealthScore: 90}, {ID: "Y", HealthScore: 90}}
	c, _, _ = Select(RotationIntelligent, tie, 0, 0)
	assert.Equal(t, "Y", c.ID)
}

func TestSelect_Empty(t *testing.T) {
	_, _, ok := Select(RotationBalanced, nil, 0, 0)
	assert.False(t, ok)
}

func TestContactStatus_Below(t *testing.T) {
	assert.Equal(t, []ContactStatus{ContactPending, ContactSending, ContactSent}, ContactDelivered.Below())
	assert.Empty(t, ContactFailed.Below())
}
