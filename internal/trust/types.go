package trust

import "time"

// Composite score component weights; they sum to 1.0.
const (
	weightHistorical   = 0.25
	weightReputation   = 0.20
	weightNetwork      = 0.15
	weightCompliance   = 0.20
	weightSecurity     = 0.10
	weightContribution = 0.10
)

// Components holds the six normalized sub-scores (0-100 each) and the
// fixed-weight overall combination.
type Components struct {
	Historical   float64 `json:"historical"`
	Reputation   float64 `json:"reputation"`
	Network      float64 `json:"network"`
	Compliance   float64 `json:"compliance"`
	Security     float64 `json:"security"`
	Contribution float64 `json:"contribution"`
	Overall      float64 `json:"overall"`
}

// HistoryEntry is one immutable record of a computed score.
type HistoryEntry struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
	Reason     string     `json:"reason"`
}

// Trend classifies the direction of a score trajectory.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// TrendPrediction is the linear-regression forecast over score history.
type TrendPrediction struct {
	Current     float64 `json:"current"`
	Predicted30 float64 `json:"predicted_30"`
	Predicted90 float64 `json:"predicted_90"`
	Trend       Trend   `json:"trend"`
	Confidence  float64 `json:"confidence"`
}

// PeerComparison benchmarks an organization against same-type peers.
type PeerComparison struct {
	OrganizationID string     `json:"organization_id"`
	Components     Components `json:"components"`
	PeerAverage    Components `json:"peer_average"`
	PeerCount      int        `json:"peer_count"`
	Percentile     float64    `json:"percentile"`
}

// BatchResult summarizes a full-federation recalculation run.
type BatchResult struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}
