package priority

import (
	"math"
	"time"

	"sourcefetch/features/source"
)

type Weights struct {
	Recency           float64
	Follower          float64
	Yield             float64
	ErrorDampening    float64
	RecencySaturation time.Duration
}

type Intervals struct {
	Base time.Duration
	Min  time.Duration
	Max  time.Duration
}

// Score ranks a source for fetching. Higher is more urgent.
//
//	recency  = 1 - e^(-minutesSinceLastFetch / saturation); 1 when never fetched
//	score    = (wR·recency + wF·ln(1+followers) + wY·ln(1+lastPostCount)) / (1 + wE·errorStreak)
//
// The score is monotone non-decreasing in time since the last fetch and never negative.
func Score(src source.Source, w Weights, now time.Time) float64 {
	recency := 1.0
	if src.LastFetchedAt != nil {
		minutes := now.Sub(*src.LastFetchedAt).Minutes()
		if minutes < 0 {
			minutes = 0
		}
		tau := w.RecencySaturation.Minutes()
		if tau <= 0 {
			tau = 60
		}
		recency = 1 - math.Exp(-minutes/tau)
	}

	followers := math.Log1p(math.Max(0, float64(src.ActiveFollowers)))
	yield := math.Log1p(math.Max(0, float64(src.LastPostCount)))

	raw := w.Recency*recency + w.Follower*followers + w.Yield*yield
	damp := 1 + w.ErrorDampening*math.Max(0, float64(src.ErrorStreak))
	return math.Max(0, raw/damp)
}

// RepeatInterval converts a score into how long to wait before the next
// fetch: base/score, clamped to [Min, Max]. A zero score yields Max.
func RepeatInterval(score float64, iv Intervals) time.Duration {
	if score <= 0 || math.IsNaN(score) {
		return iv.Max
	}
	d := time.Duration(float64(iv.Base) / score)
	if d < iv.Min {
		return iv.Min
	}
	if d > iv.Max {
		return iv.Max
	}
	return d
}

// Due reports whether a source has waited at least interval since its last fetch.
func Due(src source.Source, interval time.Duration, now time.Time) bool {
	if src.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*src.LastFetchedAt) >= interval
}
