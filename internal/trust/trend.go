package trust

import (
	"context"
	"fmt"

	"github.com/harvestnet/trust-engine/internal/registry"
)

// trendWindow is the maximum number of history entries fed into the
// regression.
const trendWindow = 90

// minTrendPoints is the history size below which no regression is attempted.
const minTrendPoints = 5

// PredictTrustTrend fits an ordinary least-squares line over up to the last
// 90 history entries (x = sequence index, y = score) and extrapolates 30 and
// 90 steps ahead. With fewer than 5 points the prediction degrades to a
// stable trend at the current score with low confidence.
func (e *Engine) PredictTrustTrend(ctx context.Context, orgID string) (*TrendPrediction, error) {
	org := e.registry.GetOrganization(orgID)
	if org == nil {
		return nil, fmt.Errorf("predict trend for %q: %w", orgID, registry.ErrOrganizationNotFound)
	}

	entries := e.GetHistory(orgID, trendWindow)
	current := float64(org.TrustScore)
	if len(entries) > 0 {
		current = entries[len(entries)-1].Score
	}

	if len(entries) < minTrendPoints {
		return &TrendPrediction{
			Current:     current,
			Predicted30: current,
			Predicted90: current,
			Trend:       TrendStable,
			Confidence:  0.3,
		}, nil
	}

	scores := make([]float64, len(entries))
	for i, entry := range entries {
		scores[i] = entry.Score
	}
	slope, intercept, r2 := leastSquares(scores)

	last := float64(len(scores) - 1)
	prediction := &TrendPrediction{
		Current:     current,
		Predicted30: clamp(intercept+slope*(last+30), 0, 100),
		Predicted90: clamp(intercept+slope*(last+90), 0, 100),
		Trend:       classifyTrend(slope),
		Confidence:  clamp(r2, 0, 1),
	}
	return prediction, nil
}

func classifyTrend(slope float64) Trend {
	switch {
	case slope > 0.1:
		return TrendIncreasing
	case slope < -0.1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// leastSquares fits y = intercept + slope*x over x = 0..n-1 and reports the
// coefficient of determination. A flat series fits exactly, so its R-squared
// is reported as 1.
func leastSquares(y []float64) (slope, intercept, r2 float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denominator := n*sumXX - sumX*sumX
	if denominator == 0 {
		return 0, sumY / n, 1
	}
	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n

	mean := sumY / n
	var ssTot, ssRes float64
	for i, v := range y {
		fit := intercept + slope*float64(i)
		ssTot += (v - mean) * (v - mean)
		ssRes += (v - fit) * (v - fit)
	}
	if ssTot == 0 {
		return slope, intercept, 1
	}
	return slope, intercept, 1 - ssRes/ssTot
}
