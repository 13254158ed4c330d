package scoring

import (
	"testing"

	"cityfix/api/internal/models"
)

func TestNextRatingFirstRatingReplacesBaseline(t *testing.T) {
	avg, count := NextRating(5.0, 0, 1)
	if avg != 1.0 {
		t.Fatalf("expected first rating to replace baseline, got %v", avg)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestNextRatingRunningMean(t *testing.T) {
	avg, count := NextRating(4.0, 2, 5)
	if avg != 4.33 {
		t.Fatalf("expected 4.33, got %v", avg)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestNextRatingRounding(t *testing.T) {
	avg, _ := NextRating(3.0, 2, 4)
	if avg != 3.33 {
		t.Fatalf("expected two-decimal rounding, got %v", avg)
	}
}

func TestApplyPenaltyClampsAtZero(t *testing.T) {
	if got := ApplyPenalty(30, 100); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
	if got := ApplyPenalty(50, 20); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
}

func TestValidRating(t *testing.T) {
	for _, r := range []int{1, 3, 5} {
		if !ValidRating(r) {
			t.Fatalf("expected %d to be valid", r)
		}
	}
	for _, r := range []int{0, 6, -1} {
		if ValidRating(r) {
			t.Fatalf("expected %d to be invalid", r)
		}
	}
}

func TestValidPenalty(t *testing.T) {
	if !ValidPenalty(0) || !ValidPenalty(100) {
		t.Fatalf("expected bounds to be valid")
	}
	if ValidPenalty(-1) || ValidPenalty(101) {
		t.Fatalf("expected out-of-range penalty to be invalid")
	}
}

func TestDenseRankByPoints(t *testing.T) {
	ranks := DenseRankByPoints([]int{50, 50, 30, 10, 10, 5})
	want := []int{1, 1, 2, 3, 3, 4}
	for i := range want {
		if ranks[i] != want[i] {
			t.Fatalf("rank %d: expected %d, got %d", i, want[i], ranks[i])
		}
	}
}

func TestRankWorkers(t *testing.T) {
	workers := []models.User{
		{DisplayName: "a", RatingAvg: 4.5, RatingCount: 2},
		{DisplayName: "b", RatingAvg: 4.8, RatingCount: 1},
		{DisplayName: "c", RatingAvg: 4.5, RatingCount: 9},
	}
	ranked := RankWorkers(workers)
	if ranked[0].DisplayName != "b" {
		t.Fatalf("expected b first, got %s", ranked[0].DisplayName)
	}
	if ranked[1].DisplayName != "c" {
		t.Fatalf("expected c to win the tie on count, got %s", ranked[1].DisplayName)
	}
}

func TestRankWorkersUnratedStandsAtBaseline(t *testing.T) {
	workers := []models.User{
		{DisplayName: "rated-low", RatingAvg: 1.0, RatingCount: 1},
		{DisplayName: "unrated", RatingAvg: 0, RatingCount: 0},
		{DisplayName: "rated-high", RatingAvg: 4.9, RatingCount: 3},
	}
	ranked := RankWorkers(workers)
	if ranked[0].DisplayName != "unrated" {
		t.Fatalf("expected the unrated worker at the 5.0 baseline first, got %s", ranked[0].DisplayName)
	}
	if ranked[2].DisplayName != "rated-low" {
		t.Fatalf("expected the 1-star worker last, got %s", ranked[2].DisplayName)
	}
}

func TestEffectiveRating(t *testing.T) {
	if got := EffectiveRating(0, 0); got != 5.0 {
		t.Fatalf("expected baseline 5.0 for an unrated worker, got %v", got)
	}
	if got := EffectiveRating(3.2, 4); got != 3.2 {
		t.Fatalf("expected stored average for a rated worker, got %v", got)
	}
}

func TestDenseRankByRating(t *testing.T) {
	ranks := DenseRankByRating([]float64{4.8, 4.8, 4.5, 3.0})
	want := []int{1, 1, 2, 3}
	for i := range want {
		if ranks[i] != want[i] {
			t.Fatalf("rank %d: expected %d, got %d", i, want[i], ranks[i])
		}
	}
}
