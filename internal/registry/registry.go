// Package registry is the single source of truth for organizations, trust
// relationships, and federation nodes.
package registry

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestnet/trust-engine/internal/audit"
)

// DefaultTrustLevel is the neutral level assigned when trust is established
// without an explicit initial level.
const DefaultTrustLevel = 0.5

// Sentinel errors for operations that require an existing subject.
var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrRelationshipNotFound = errors.New("trust relationship not found")
	ErrNodeNotFound         = errors.New("federation node not found")
)

// Reputation sub-score weights; they sum to 1.0.
const (
	reputationWeightContribution = 0.30
	reputationWeightUsage        = 0.20
	reputationWeightCompliance   = 0.25
	reputationWeightCommunity    = 0.15
	reputationWeightRecency      = 0.10
)

// Registry owns organization records, directed trust relationships, and
// federation node registrations. All methods are safe for concurrent use;
// read-modify-write sequences are serialized behind a single lock so
// concurrent trust updates against the same relationship never lose writes.
type Registry struct {
	logger *slog.Logger
	audit  audit.Sink
	now    func() time.Time

	mu            sync.RWMutex
	organizations map[string]*Organization
	orgOrder      []string
	relationships map[string][]*TrustRelationship
	nodes         map[string]*FederationNode
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects the time source used for timestamps. Defaults to
// time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, sink audit.Sink, opts ...Option) *Registry {
	r := &Registry{
		logger:        logger,
		audit:         sink,
		now:           time.Now,
		organizations: make(map[string]*Organization),
		relationships: make(map[string][]*TrustRelationship),
		nodes:         make(map[string]*FederationNode),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterOrganization creates a new organization with a neutral trust score
// and pending verification. Always succeeds for well-formed input.
func (r *Registry) RegisterOrganization(input RegisterOrganizationInput) *Organization {
	r.mu.Lock()
	defer r.mu.Unlock()

	org := &Organization{
		ID:                 uuid.New().String(),
		Name:               input.Name,
		Type:               input.Type,
		Country:            input.Country,
		Region:             input.Region,
		VerificationStatus: VerificationPending,
		VerificationLevel:  LevelBasic,
		JoinedAt:           r.now(),
		TrustScore:         50,
		Reputation: ReputationMetrics{
			ComplianceScore: 100,
			OverallScore:    50,
		},
		Metadata: input.Metadata,
	}

	r.organizations[org.ID] = org
	r.orgOrder = append(r.orgOrder, org.ID)

	r.logger.Info("organization registered",
		"org_id", org.ID,
		"name", org.Name,
		"type", org.Type)
	r.audit.Record(audit.NewEvent("organization.registered", org.ID, r.now(), map[string]any{
		"name": org.Name,
		"type": string(org.Type),
	}))

	return cloneOrganization(org)
}

// GetOrganization returns the organization with the given id, or nil if it is
// unknown. Lookups never fail.
func (r *Registry) GetOrganization(id string) *Organization {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneOrganization(r.organizations[id])
}

// UpdateOrganization merges the non-nil fields of update into the
// organization. Returns nil if the id is unknown; callers must check.
func (r *Registry) UpdateOrganization(id string, update OrganizationUpdate) *Organization {
	r.mu.Lock()
	defer r.mu.Unlock()

	org, ok := r.organizations[id]
	if !ok {
		return nil
	}

	if update.Name != nil {
		org.Name = *update.Name
	}
	if update.Type != nil {
		org.Type = *update.Type
	}
	if update.Country != nil {
		org.Country = *update.Country
	}
	if update.Region != nil {
		org.Region = *update.Region
	}
	if update.VerificationStatus != nil {
		org.VerificationStatus = *update.VerificationStatus
	}
	if update.VerificationLevel != nil {
		org.VerificationLevel = *update.VerificationLevel
	}
	if update.Metadata != nil {
		org.Metadata = *update.Metadata
	}

	r.audit.Record(audit.NewEvent("organization.updated", id, r.now(), nil))
	return cloneOrganization(org)
}

// SetTrustScore writes a computed composite score (clamped to 0-100) back to
// the organization. Returns nil if the id is unknown.
func (r *Registry) SetTrustScore(id string, score int) *Organization {
	r.mu.Lock()
	defer r.mu.Unlock()

	org, ok := r.organizations[id]
	if !ok {
		return nil
	}
	org.TrustScore = clampInt(score, 0, 100)
	return cloneOrganization(org)
}

// ListOrganizations returns all organizations in registration order.
func (r *Registry) ListOrganizations() []*Organization {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Organization, 0, len(r.orgOrder))
	for _, id := range r.orgOrder {
		out = append(out, cloneOrganization(r.organizations[id]))
	}
	return out
}

// RegisterNode upserts the federation node for an organization. A node that
// re-registers overwrites its previous declaration and is considered online.
func (r *Registry) RegisterNode(node FederationNode) *FederationNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	node.Status = NodeOnline
	node.LastHeartbeat = r.now()
	stored := node
	r.nodes[node.OrganizationID] = &stored

	r.logger.Info("federation node registered",
		"org_id", node.OrganizationID,
		"endpoint", node.Endpoint,
		"capabilities", node.Capabilities)
	r.audit.Record(audit.NewEvent("node.registered", node.OrganizationID, r.now(), map[string]any{
		"endpoint": node.Endpoint,
	}))

	return cloneNode(&stored)
}

// UpdateNodeHeartbeat marks the node online and refreshes its heartbeat
// timestamp. Returns nil if no node is registered for the organization.
func (r *Registry) UpdateNodeHeartbeat(organizationID string) *FederationNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[organizationID]
	if !ok {
		return nil
	}
	node.Status = NodeOnline
	node.LastHeartbeat = r.now()
	return cloneNode(node)
}

// FindNodesByCapability returns online nodes declaring the capability.
// Linear scan over all nodes; O(n) is acceptable at federation scale.
func (r *Registry) FindNodesByCapability(capability FederationCapability) []*FederationNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*FederationNode, 0)
	for _, node := range r.nodes {
		if node.Status != NodeOnline {
			continue
		}
		for _, c := range node.Capabilities {
			if c == capability {
				out = append(out, cloneNode(node))
				break
			}
		}
	}
	sortNodes(out)
	return out
}

// FindNodesByRegion returns online nodes serving the region. O(n).
func (r *Registry) FindNodesByRegion(region string) []*FederationNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*FederationNode, 0)
	for _, node := range r.nodes {
		if node.Status != NodeOnline {
			continue
		}
		for _, reg := range node.Regions {
			if reg == region {
				out = append(out, cloneNode(node))
				break
			}
		}
	}
	sortNodes(out)
	return out
}

// EstablishTrust creates a directed trust relationship with zeroed counters.
// The initial level is clamped to [0,1]. If a relationship already exists for
// the ordered pair it is returned unchanged, preserving the at-most-one
// invariant per (from, to).
func (r *Registry) EstablishTrust(fromOrgID, toOrgID string, initialLevel float64) *TrustRelationship {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findRelationship(fromOrgID, toOrgID); existing != nil {
		return cloneRelationship(existing)
	}

	level := clampFloat(initialLevel, 0, 1)
	rel := &TrustRelationship{
		FromOrgID:        fromOrgID,
		ToOrgID:          toOrgID,
		TrustLevel:       level,
		RelationshipType: relationshipTypeFor(level),
		EstablishedAt:    r.now(),
		LastUpdated:      r.now(),
	}
	r.relationships[fromOrgID] = append(r.relationships[fromOrgID], rel)

	r.logger.Info("trust established",
		"from", fromOrgID,
		"to", toOrgID,
		"level", level)
	r.audit.Record(audit.NewEvent("trust.established", fromOrgID, r.now(), map[string]any{
		"to":    toOrgID,
		"level": level,
	}))

	return cloneRelationship(rel)
}

// UpdateTrustLevel applies a delta to the relationship's trust level,
// clamping the result to [0,1], increments the interaction counter, and
// re-derives the relationship type. Returns ErrRelationshipNotFound if the
// relationship has not been established.
func (r *Registry) UpdateTrustLevel(fromOrgID, toOrgID string, delta float64, reason string) (*TrustRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel := r.findRelationship(fromOrgID, toOrgID)
	if rel == nil {
		return nil, ErrRelationshipNotFound
	}

	rel.TrustLevel = clampFloat(rel.TrustLevel+delta, 0, 1)
	rel.Interactions++
	rel.RelationshipType = relationshipTypeFor(rel.TrustLevel)
	rel.LastUpdated = r.now()

	r.audit.Record(audit.NewEvent("trust.updated", fromOrgID, r.now(), map[string]any{
		"to":     toOrgID,
		"delta":  delta,
		"level":  rel.TrustLevel,
		"reason": reason,
	}))

	return cloneRelationship(rel), nil
}

// RecordIncident increments the incident counter and lowers the trust level
// by 0.1 per unit of severity. Returns ErrRelationshipNotFound if the
// relationship has not been established.
func (r *Registry) RecordIncident(fromOrgID, toOrgID string, severity float64) (*TrustRelationship, error) {
	r.mu.Lock()
	rel := r.findRelationship(fromOrgID, toOrgID)
	if rel == nil {
		r.mu.Unlock()
		return nil, ErrRelationshipNotFound
	}
	rel.Incidents++
	r.mu.Unlock()

	return r.UpdateTrustLevel(fromOrgID, toOrgID, -0.1*severity, "incident recorded")
}

// GetRelationship returns the relationship for the ordered pair, or nil.
func (r *Registry) GetRelationship(fromOrgID, toOrgID string) *TrustRelationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRelationship(r.findRelationship(fromOrgID, toOrgID))
}

// GetRelationshipsFrom returns all relationships originating at the
// organization, in establishment order.
func (r *Registry) GetRelationshipsFrom(orgID string) []*TrustRelationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rels := r.relationships[orgID]
	out := make([]*TrustRelationship, 0, len(rels))
	for _, rel := range rels {
		out = append(out, cloneRelationship(rel))
	}
	return out
}

// GetRelationshipsTo returns all relationships targeting the organization.
// Linear scan over all source organizations; O(n).
func (r *Registry) GetRelationshipsTo(orgID string) []*TrustRelationship {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TrustRelationship, 0)
	for _, sourceID := range r.orgOrder {
		for _, rel := range r.relationships[sourceID] {
			if rel.ToOrgID == orgID {
				out = append(out, cloneRelationship(rel))
			}
		}
	}
	return out
}

// GetBidirectionalTrust returns min(trust(a->b), trust(b->a)), substituting a
// neutral 0.5 for any missing direction. The conservative combinator never
// overstates trust when data is one-sided.
func (r *Registry) GetBidirectionalTrust(orgA, orgB string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	forward := DefaultTrustLevel
	if rel := r.findRelationship(orgA, orgB); rel != nil {
		forward = rel.TrustLevel
	}
	backward := DefaultTrustLevel
	if rel := r.findRelationship(orgB, orgA); rel != nil {
		backward = rel.TrustLevel
	}
	return math.Min(forward, backward)
}

// UpdateReputationMetrics merges the non-nil sub-scores (each clamped to
// 0-100), recomputes the weighted overall score, and re-derives the
// organization's trust score from the overall score and the average incoming
// trust level. Returns nil if the id is unknown.
func (r *Registry) UpdateReputationMetrics(id string, update ReputationUpdate) *Organization {
	r.mu.Lock()
	defer r.mu.Unlock()

	org, ok := r.organizations[id]
	if !ok {
		return nil
	}

	if update.ContributionScore != nil {
		org.Reputation.ContributionScore = clampFloat(*update.ContributionScore, 0, 100)
	}
	if update.UsageScore != nil {
		org.Reputation.UsageScore = clampFloat(*update.UsageScore, 0, 100)
	}
	if update.ComplianceScore != nil {
		org.Reputation.ComplianceScore = clampFloat(*update.ComplianceScore, 0, 100)
	}
	if update.CommunityScore != nil {
		org.Reputation.CommunityScore = clampFloat(*update.CommunityScore, 0, 100)
	}
	if update.RecencyScore != nil {
		org.Reputation.RecencyScore = clampFloat(*update.RecencyScore, 0, 100)
	}

	org.Reputation.OverallScore = org.Reputation.ContributionScore*reputationWeightContribution +
		org.Reputation.UsageScore*reputationWeightUsage +
		org.Reputation.ComplianceScore*reputationWeightCompliance +
		org.Reputation.CommunityScore*reputationWeightCommunity +
		org.Reputation.RecencyScore*reputationWeightRecency

	incoming := r.averageIncomingTrust(id)
	org.TrustScore = clampInt(int(math.Round(org.Reputation.OverallScore*0.6+incoming*100*0.4)), 0, 100)

	r.audit.Record(audit.NewEvent("reputation.updated", id, r.now(), map[string]any{
		"overall_score": org.Reputation.OverallScore,
		"trust_score":   org.TrustScore,
	}))

	return cloneOrganization(org)
}

// ListVerifiedOrganizations returns verified organizations matching the
// filter, in registration order.
func (r *Registry) ListVerifiedOrganizations(filter OrganizationFilter) []*Organization {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Organization, 0)
	for _, id := range r.orgOrder {
		org := r.organizations[id]
		if org.VerificationStatus != VerificationVerified {
			continue
		}
		if filter.Type != "" && org.Type != filter.Type {
			continue
		}
		if filter.Country != "" && org.Country != filter.Country {
			continue
		}
		if filter.Region != "" && org.Region != filter.Region {
			continue
		}
		out = append(out, cloneOrganization(org))
	}
	return out
}

// SearchOrganizations returns up to limit organizations whose name, country,
// or region contains the query, case-insensitively.
func (r *Registry) SearchOrganizations(query string, limit int) []*Organization {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]*Organization, 0)
	for _, id := range r.orgOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		org := r.organizations[id]
		if strings.Contains(strings.ToLower(org.Name), q) ||
			strings.Contains(strings.ToLower(org.Country), q) ||
			strings.Contains(strings.ToLower(org.Region), q) {
			out = append(out, cloneOrganization(org))
		}
	}
	return out
}

// GetStatistics returns aggregate counters over the current state.
func (r *Registry) GetStatistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		TotalOrganizations: len(r.organizations),
		ByType:             make(map[OrganizationType]int),
		ByStatus:           make(map[VerificationStatus]int),
		ByCountry:          make(map[string]int),
		NodesByStatus:      make(map[NodeStatus]int),
		TotalNodes:         len(r.nodes),
	}

	var scoreSum float64
	for _, org := range r.organizations {
		stats.ByType[org.Type]++
		stats.ByStatus[org.VerificationStatus]++
		stats.ByCountry[org.Country]++
		scoreSum += float64(org.TrustScore)
	}
	if len(r.organizations) > 0 {
		stats.AverageTrustScore = scoreSum / float64(len(r.organizations))
	}

	var levelSum float64
	for _, rels := range r.relationships {
		for _, rel := range rels {
			stats.TotalRelationships++
			levelSum += rel.TrustLevel
		}
	}
	if stats.TotalRelationships > 0 {
		stats.AverageTrustLevel = levelSum / float64(stats.TotalRelationships)
	}

	for _, node := range r.nodes {
		stats.NodesByStatus[node.Status]++
	}

	return stats
}

// findRelationship must be called with the lock held.
func (r *Registry) findRelationship(fromOrgID, toOrgID string) *TrustRelationship {
	for _, rel := range r.relationships[fromOrgID] {
		if rel.ToOrgID == toOrgID {
			return rel
		}
	}
	return nil
}

// averageIncomingTrust must be called with the lock held. Returns 0 when the
// organization has no incoming relationships.
func (r *Registry) averageIncomingTrust(orgID string) float64 {
	var sum float64
	var count int
	for _, rels := range r.relationships {
		for _, rel := range rels {
			if rel.ToOrgID == orgID {
				sum += rel.TrustLevel
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func cloneOrganization(org *Organization) *Organization {
	if org == nil {
		return nil
	}
	out := *org
	out.Metadata.Certifications = append([]string(nil), org.Metadata.Certifications...)
	return &out
}

func cloneRelationship(rel *TrustRelationship) *TrustRelationship {
	if rel == nil {
		return nil
	}
	out := *rel
	return &out
}

func cloneNode(node *FederationNode) *FederationNode {
	if node == nil {
		return nil
	}
	out := *node
	out.Capabilities = append([]FederationCapability(nil), node.Capabilities...)
	out.Regions = append([]string(nil), node.Regions...)
	return &out
}

func sortNodes(nodes []*FederationNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].OrganizationID < nodes[j].OrganizationID
	})
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
