package domain

import "sort"

// Candidate is an instance that passed the connection and daily limit filters.
type Candidate struct {
	ID          string
	SentToday   int
	HealthScore int
}

// CapacityPct is the share of the daily limit still free, 100 when unlimited.
func (c Candidate) CapacityPct(dailyLimit int) float64 {
	if dailyLimit <= 0 {
		return 100
	}
	left := dailyLimit - c.SentToday
	if left < 0 {
		left = 0
	}
	return float64(left) * 100 / float64(dailyLimit)
}

// Select applies the rotation mode to candidates. It returns the chosen candidate
// and, for round robin, the index to persist for the next pick.
func Select(mode RotationMode, candidates []Candidate, index, dailyLimit int) (Candidate, int, bool) {
	if len(candidates) == 0 {
		return Candidate{}, index, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	switch mode {
	case RotationBalanced:
		best := sorted[0]
		for _, c := range sorted[1:] {
			if c.SentToday < best.SentToday {
				best = c
			}
		}
		return best, index, true
	case RotationIntelligent:
		score := func(c Candidate) float64 {
			return 0.7*float64(c.HealthScore) + 0.3*c.CapacityPct(dailyLimit)
		}
		best := sorted[0]
		for _, c := range sorted[1:] {
			if score(c) > score(best) {
				best = c
			}
		}
		return best, index, true
	default:
		if index < 0 {
			index = 0
		}
		i := index % len(sorted)
		return sorted[i], (i + 1) % len(sorted), true
	}
}
