package gem

import (
	"math"
	"strings"

	"github.com/elonfeng/gemradar/internal/store"
)

const (
	// LocalWindowDays is the trailing window for local/tourist counts.
	LocalWindowDays = 7
	// AuthenticityWindowDays is the trailing window for the local bonus.
	AuthenticityWindowDays = 30

	freshnessDays  = 30
	freshnessBonus = 20

	premiumPenalty      = 20
	landmarkPenalty     = 30
	localBonus          = 20
	localBonusThreshold = 10
)

// HiddenGemScore rates how much a place is favored by locals over tourists,
// in [0, 100]. Inputs from ingestion are not trusted: negative counts and
// ages are treated as zero.
func HiddenGemScore(localMentions, touristMentions int, sentiment float64, daysSinceDiscovery int) float64 {
	local := max(0, localMentions)
	tourist := max(0, touristMentions)
	days := max(0, daysSinceDiscovery)
	if math.IsNaN(sentiment) {
		sentiment = 0
	}

	touristRatio := 0.0
	if tourist > 0 {
		touristRatio = float64(tourist) / float64(local+tourist)
	}

	base := (1 - touristRatio) * 100
	multiplier := clamp(sentiment+1, 0.5, 1.5)
	bonus := float64(max(0, freshnessDays-days)) / freshnessDays * freshnessBonus

	return clamp(base*multiplier+bonus, 0, 100)
}

// AuthenticityScore penalizes tourist magnets and rewards recent local
// attention, in [0, 100]. A place without an address skips the landmark check.
func AuthenticityScore(place store.Place, recentLocalMentions int, landmarks []string) float64 {
	score := 100.0

	if place.MichelinStars > 0 {
		score -= premiumPenalty
	}
	if place.Address != nil && nearLandmark(*place.Address, landmarks) {
		score -= landmarkPenalty
	}
	if recentLocalMentions > localBonusThreshold {
		score += localBonus
	}

	return clamp(score, 0, 100)
}

// TourismSaturation is the share of non-local mentions, in [0, 1].
func TourismSaturation(localMentions, touristMentions int) float64 {
	local := max(0, localMentions)
	tourist := max(0, touristMentions)
	return float64(tourist) / float64(max(1, local+tourist))
}

// TrendingScore compares this week's mention count with the previous week's.
// 50 means flat, 100 means doubled or more, 0 means mentions stopped.
func TrendingScore(current, previous int) float64 {
	current = max(0, current)
	previous = max(0, previous)
	if current == 0 && previous == 0 {
		return 50
	}
	if previous == 0 {
		return 100
	}
	growth := float64(current-previous) / float64(previous)
	return clamp(50+growth*50, 0, 100)
}

func nearLandmark(address string, landmarks []string) bool {
	lower := strings.ToLower(address)
	for _, lm := range landmarks {
		lm = strings.ToLower(strings.TrimSpace(lm))
		if lm != "" && strings.Contains(lower, lm) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
