// Package trust computes, stores, and forecasts per-organization composite
// trust scores from registry reputation data and graph network position.
package trust

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestnet/trust-engine/internal/audit"
	"github.com/harvestnet/trust-engine/internal/graph"
	"github.com/harvestnet/trust-engine/internal/metrics"
	"github.com/harvestnet/trust-engine/internal/registry"
)

const (
	// maxHistoryEntries caps per-organization score history; the oldest
	// entries are evicted first.
	maxHistoryEntries = 100

	// decayWindowDays controls the exponential recency decay applied to
	// relationship history: exp(-ageDays / 90).
	decayWindowDays = 90.0

	// influenceRankingSize is the ranking depth consulted for the network
	// factor.
	influenceRankingSize = 100

	reasonPeriodic = "periodic-calculation"
)

// Engine computes composite trust scores.
type Engine struct {
	registry *registry.Registry
	graph    *graph.TrustGraph
	logger   *slog.Logger
	metrics  *metrics.Collector
	audit    audit.Sink
	now      func() time.Time

	mu      sync.Mutex
	history map[string][]*HistoryEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source used for recency decay and history
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a trust score engine over the given registry and graph.
func NewEngine(reg *registry.Registry, g *graph.TrustGraph, collector *metrics.Collector, logger *slog.Logger, sink audit.Sink, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		graph:    g,
		logger:   logger,
		metrics:  collector,
		audit:    sink,
		now:      time.Now,
		history:  make(map[string][]*HistoryEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CalculateTrustScore computes the six components, combines them with the
// fixed weights, appends a history entry, and writes the rounded overall
// score back to the registry. Returns ErrOrganizationNotFound if the subject
// does not exist.
func (e *Engine) CalculateTrustScore(ctx context.Context, orgID string) (*Components, error) {
	start := e.now()

	org := e.registry.GetOrganization(orgID)
	if org == nil {
		e.metrics.ScoreCalculated("not_found", 0)
		return nil, fmt.Errorf("calculate trust score for %q: %w", orgID, registry.ErrOrganizationNotFound)
	}

	components := e.computeComponents(org)

	e.appendHistory(orgID, &HistoryEntry{
		ID:         uuid.New().String(),
		Timestamp:  e.now(),
		Score:      components.Overall,
		Components: components,
		Reason:     reasonPeriodic,
	})
	e.registry.SetTrustScore(orgID, int(math.Round(components.Overall)))

	e.metrics.ScoreCalculated("success", components.Overall)
	e.audit.Record(audit.NewEvent("score.calculated", orgID, e.now(), map[string]any{
		"overall": components.Overall,
	}))
	e.logger.Info("trust score calculated",
		"org_id", orgID,
		"overall", components.Overall,
		"duration", time.Since(start))

	return &components, nil
}

// computeComponents derives the six sub-scores without side effects.
func (e *Engine) computeComponents(org *registry.Organization) Components {
	c := Components{
		Historical:   e.historicalScore(org.ID),
		Reputation:   org.Reputation.OverallScore,
		Network:      e.networkScore(org.ID),
		Compliance:   complianceScore(org),
		Security:     securityScore(org),
		Contribution: org.Reputation.ContributionScore,
	}
	c.Overall = c.Historical*weightHistorical +
		c.Reputation*weightReputation +
		c.Network*weightNetwork +
		c.Compliance*weightCompliance +
		c.Security*weightSecurity +
		c.Contribution*weightContribution
	return c
}

// historicalScore weighs relationship interactions against incidents with an
// exponential recency decay, normalized by the total decayed interaction
// weight. Defaults to a neutral 50 when the organization has no relationship
// history to judge by.
func (e *Engine) historicalScore(orgID string) float64 {
	relationships := e.registry.GetRelationshipsFrom(orgID)
	if len(relationships) == 0 {
		return 50
	}

	now := e.now()
	var net, totalWeight float64
	for _, rel := range relationships {
		ageDays := now.Sub(rel.LastUpdated).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		decay := math.Exp(-ageDays / decayWindowDays)
		positive := float64(rel.Interactions) * rel.TrustLevel * decay
		negative := float64(rel.Incidents) * 10 * decay
		net += positive - negative
		totalWeight += float64(rel.Interactions) * decay
	}
	if totalWeight == 0 {
		return 50
	}
	return clamp(net/totalWeight*100, 0, 100)
}

// networkScore is rank-based: the organization's position in the influence
// ranking determines the score. Absence from the ranking penalizes poor
// connectivity (30); an empty ranking means the graph has not been built and
// degrades to neutral (50).
func (e *Engine) networkScore(orgID string) float64 {
	if e.graph == nil {
		return 50
	}
	rankings := e.graph.FindInfluentialOrganizations(influenceRankingSize)
	if len(rankings) == 0 {
		return 50
	}
	for i, ranking := range rankings {
		if ranking.OrganizationID == orgID {
			return (1 - float64(i)/float64(len(rankings))) * 100
		}
	}
	return 30
}

// complianceScore rewards verification status and level, plus a share of the
// reputation compliance sub-score.
func complianceScore(org *registry.Organization) float64 {
	var score float64
	if org.VerificationStatus == registry.VerificationVerified {
		score += 40
	}
	switch org.VerificationLevel {
	case registry.LevelStandard:
		score += 10
	case registry.LevelPremium:
		score += 20
	case registry.LevelCertified:
		score += 30
	}
	score += org.Reputation.ComplianceScore * 0.3
	return math.Min(score, 100)
}

// securityScore starts from a neutral base and rewards verification, level,
// and declared certifications (5 points each, capped at 10).
func securityScore(org *registry.Organization) float64 {
	score := 50.0
	if org.VerificationStatus == registry.VerificationVerified {
		score += 20
	}
	if org.VerificationLevel == registry.LevelPremium || org.VerificationLevel == registry.LevelCertified {
		score += 20
	}
	score += math.Min(float64(len(org.Metadata.Certifications))*5, 10)
	return math.Min(score, 100)
}

// CalculateBilateralTrust blends direct bidirectional trust with both
// organizations' composite scores: 0.6 x direct + 0.4 x ((a+b)/200).
func (e *Engine) CalculateBilateralTrust(ctx context.Context, orgA, orgB string) (float64, error) {
	a := e.registry.GetOrganization(orgA)
	if a == nil {
		return 0, fmt.Errorf("bilateral trust for %q: %w", orgA, registry.ErrOrganizationNotFound)
	}
	b := e.registry.GetOrganization(orgB)
	if b == nil {
		return 0, fmt.Errorf("bilateral trust for %q: %w", orgB, registry.ErrOrganizationNotFound)
	}

	direct := e.registry.GetBidirectionalTrust(orgA, orgB)
	combined := (float64(a.TrustScore) + float64(b.TrustScore)) / 200
	return 0.6*direct + 0.4*combined, nil
}

// CompareToPeers benchmarks the organization against verified same-type
// peers. With no peers, the organization's own components double as the peer
// average and the percentile is 50.
func (e *Engine) CompareToPeers(ctx context.Context, orgID string) (*PeerComparison, error) {
	org := e.registry.GetOrganization(orgID)
	if org == nil {
		return nil, fmt.Errorf("compare to peers for %q: %w", orgID, registry.ErrOrganizationNotFound)
	}

	components := e.computeComponents(org)
	peers := make([]*registry.Organization, 0)
	for _, peer := range e.registry.ListVerifiedOrganizations(registry.OrganizationFilter{Type: org.Type}) {
		if peer.ID != orgID {
			peers = append(peers, peer)
		}
	}

	if len(peers) == 0 {
		return &PeerComparison{
			OrganizationID: orgID,
			Components:     components,
			PeerAverage:    components,
			Percentile:     50,
		}, nil
	}

	var avg Components
	var below int
	for _, peer := range peers {
		pc := e.computeComponents(peer)
		avg.Historical += pc.Historical
		avg.Reputation += pc.Reputation
		avg.Network += pc.Network
		avg.Compliance += pc.Compliance
		avg.Security += pc.Security
		avg.Contribution += pc.Contribution
		avg.Overall += pc.Overall
		if pc.Overall < components.Overall {
			below++
		}
	}
	n := float64(len(peers))
	avg.Historical /= n
	avg.Reputation /= n
	avg.Network /= n
	avg.Compliance /= n
	avg.Security /= n
	avg.Contribution /= n
	avg.Overall /= n

	return &PeerComparison{
		OrganizationID: orgID,
		Components:     components,
		PeerAverage:    avg,
		PeerCount:      len(peers),
		Percentile:     float64(below) / n * 100,
	}, nil
}

// RecalculateAllScores recomputes the score of every verified organization.
// Per-organization failures are logged and skipped so the batch completes for
// all other organizations; cancellation stops the batch between items.
func (e *Engine) RecalculateAllScores(ctx context.Context) (*BatchResult, error) {
	start := e.now()
	orgs := e.registry.ListVerifiedOrganizations(registry.OrganizationFilter{})
	result := &BatchResult{Total: len(orgs)}

	e.logger.Info("starting score recalculation", "organizations", len(orgs))
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if _, err := e.CalculateTrustScore(ctx, org.ID); err != nil {
			e.logger.Error("failed to recalculate score",
				"org_id", org.ID,
				"error", err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	result.Duration = time.Since(start)

	e.metrics.BatchRecalculated(result.Succeeded, result.Failed)
	e.logger.Info("score recalculation completed",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}

// GetHistory returns up to limit most recent history entries for the
// organization, oldest first. A limit of 0 returns all retained entries.
func (e *Engine) GetHistory(orgID string, limit int) []*HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.history[orgID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		clone := *entry
		out = append(out, &clone)
	}
	return out
}

func (e *Engine) appendHistory(orgID string, entry *HistoryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := append(e.history[orgID], entry)
	if len(entries) > maxHistoryEntries {
		entries = entries[len(entries)-maxHistoryEntries:]
	}
	e.history[orgID] = entries
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
