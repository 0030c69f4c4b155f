// Package progress aggregates task completion into a project's overall progress.
package progress

import (
	"math"

	"portfolio/internal/domain"
)

// DefaultExpectedWeight is the conventional total of task weights.
const DefaultExpectedWeight = 100

// Compute returns the weighted completion of tasks, rounded half up.
// When no task carries weight every task counts equally.
func Compute(tasks []domain.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	total := TotalWeight(tasks)
	var sum float64
	for _, t := range tasks {
		factor := 1 / float64(len(tasks))
		if total > 0 {
			factor = weight(t) / total
		}
		sum += float64(clampProgress(t.Progress)) * factor
	}
	return roundHalfUp(sum)
}

// TotalWeight sums task weights, ignoring negative and non-finite values.
func TotalWeight(tasks []domain.Task) float64 {
	var total float64
	for _, t := range tasks {
		total += weight(t)
	}
	return total
}

// WeightAdvisory describes how a task list's weights compare to the expected total.
type WeightAdvisory struct {
	Total    float64 `json:"total"`
	Expected float64 `json:"expected"`
	Balanced bool    `json:"balanced"`
}

// CheckWeights reports whether weights sum to expected. A zero total counts as
// balanced since Compute then falls back to equal shares.
func CheckWeights(tasks []domain.Task, expected float64) WeightAdvisory {
	total := TotalWeight(tasks)
	return WeightAdvisory{
		Total:    total,
		Expected: expected,
		Balanced: total == 0 || math.Abs(total-expected) < 1e-9,
	}
}

func weight(t domain.Task) float64 {
	if math.IsNaN(t.Weight) || math.IsInf(t.Weight, 0) || t.Weight < 0 {
		return 0
	}
	return t.Weight
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// roundHalfUp rounds x to the nearest integer with .5 going toward +inf.
// The epsilon absorbs float error from the weight division (e.g. 49.999999).
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5 + 1e-9))
}
