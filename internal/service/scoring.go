package service

import (
	"math"
	"time"

	"github.com/prajwalbharadwajbm/adserve/internal/models"
)

// ScoringWeights parameterize the rotation weight of a creative.
type ScoringWeights struct {
	// PerformanceMultiplier scales CTR (as a fraction) once a creative has impressions.
	PerformanceMultiplier float64
	// PositionBoost applies when the campaign prefers the requested placement.
	PositionBoost float64
	// RecencyWindow is the age at which the recency factor reaches its floor.
	RecencyWindow time.Duration
	RecencyFloor  float64
}

var DefaultScoringWeights = ScoringWeights{
	PerformanceMultiplier: 2,
	PositionBoost:         1.5,
	RecencyWindow:         30 * 24 * time.Hour,
	RecencyFloor:          0.1,
}

// Score computes the rotation weight of one (campaign, creative) pair:
//
//	remaining/total * performance * position * recency
//
// A creative without impressions has performance 1 so new creatives get served.
func Score(c *models.Campaign, cr *models.Creative, placement string, now time.Time, w ScoringWeights) float64 {
	budgetFactor := c.Budget.RemainingRatio()

	performance := 1.0
	if cr.Impressions > 0 {
		performance = cr.CTR / 100 * w.PerformanceMultiplier
	}

	position := 1.0
	if c.Targeting.HasAffinity(placement) {
		position = w.PositionBoost
	}

	return budgetFactor * performance * position * recencyFactor(cr.CreatedAt, now, w)
}

func recencyFactor(created, now time.Time, w ScoringWeights) float64 {
	if w.RecencyWindow <= 0 {
		return 1
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	return math.Max(w.RecencyFloor, 1-age.Hours()/w.RecencyWindow.Hours())
}
