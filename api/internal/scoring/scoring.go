package scoring

import (
	"math"
	"sort"

	"cityfix/api/internal/models"
)

const baselineRating = 5.0

// NextRating folds a new rating into a worker's running mean. A worker with no
// ratings carries the baseline average, which the first real rating replaces
// because the running count is zero. Results are rounded to two decimals.
func NextRating(avg float64, count int, rating int) (float64, int) {
	if count <= 0 {
		count = 0
		avg = baselineRating
	}
	next := ((avg * float64(count)) + float64(rating)) / float64(count+1)
	return math.Round(next*100) / 100, count + 1
}

// EffectiveRating maps a stored rating average to the one callers display and
// rank by. A worker nobody has rated yet stands at the baseline, not at zero.
func EffectiveRating(avg float64, count int) float64 {
	if count <= 0 {
		return baselineRating
	}
	return avg
}

// ApplyPenalty deducts penalty points without letting the balance go negative.
func ApplyPenalty(points int, penalty int) int {
	next := points - penalty
	if next < 0 {
		return 0
	}
	return next
}

// ValidRating reports whether a confirmation rating is an integer in [1, 5].
func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

// ValidPenalty reports whether a rejection penalty is an integer in [0, 100].
func ValidPenalty(penalty int) bool {
	return penalty >= 0 && penalty <= 100
}

// DenseRankByPoints assigns dense ranks to a points slice already sorted in
// descending order. Equal points share a rank and the next distinct value
// takes rank+1.
func DenseRankByPoints(points []int) []int {
	ranks := make([]int, len(points))
	rank := 0
	prev := math.MinInt
	for i, p := range points {
		if i == 0 || p != prev {
			rank++
		}
		ranks[i] = rank
		prev = p
	}
	return ranks
}

// DenseRankByRating is DenseRankByPoints for worker rating averages, which
// are already sorted descending by the caller.
func DenseRankByRating(ratings []float64) []int {
	ranks := make([]int, len(ratings))
	rank := 0
	prev := math.Inf(-1)
	for i, r := range ratings {
		if i == 0 || r != prev {
			rank++
		}
		ranks[i] = rank
		prev = r
	}
	return ranks
}

// RankWorkers orders workers by effective rating descending, breaking ties
// with the larger rating count.
func RankWorkers(workers []models.User) []models.User {
	out := make([]models.User, len(workers))
	copy(out, workers)
	sort.SliceStable(out, func(i, j int) bool {
		ri := EffectiveRating(out[i].RatingAvg, out[i].RatingCount)
		rj := EffectiveRating(out[j].RatingAvg, out[j].RatingCount)
		if ri != rj {
			return ri > rj
		}
		return out[i].RatingCount > out[j].RatingCount
	})
	return out
}
