package registry

import "time"

// OrganizationType classifies a federated organization.
type OrganizationType string

const (
	OrgTypeGrower      OrganizationType = "grower"
	OrgTypeResearch    OrganizationType = "research"
	OrgTypeSupplier    OrganizationType = "supplier"
	OrgTypeGovernment  OrganizationType = "government"
	OrgTypeCooperative OrganizationType = "cooperative"
)

// VerificationStatus tracks where an organization stands in the external
// verification workflow.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerified  VerificationStatus = "verified"
	VerificationSuspended VerificationStatus = "suspended"
	VerificationRevoked   VerificationStatus = "revoked"
)

// VerificationLevel is the tier granted by the verification workflow.
type VerificationLevel string

const (
	LevelBasic     VerificationLevel = "basic"
	LevelStandard  VerificationLevel = "standard"
	LevelPremium   VerificationLevel = "premium"
	LevelCertified VerificationLevel = "certified"
)

// FederationCapability is a service an organization's node can provide.
type FederationCapability string

const (
	CapabilityDataSharing       FederationCapability = "data-sharing"
	CapabilityModelHosting      FederationCapability = "model-hosting"
	CapabilityInsightPublishing FederationCapability = "insight-publishing"
	CapabilityMarketplaceHosting FederationCapability = "marketplace-hosting"
	CapabilityComputeProvider   FederationCapability = "compute-provider"
	CapabilityStorageProvider   FederationCapability = "storage-provider"
)

// NodeStatus reflects the last known health of a federation node.
type NodeStatus string

const (
	NodeOnline   NodeStatus = "online"
	NodeOffline  NodeStatus = "offline"
	NodeDegraded NodeStatus = "degraded"
)

// RelationshipType is derived from the trust level of a relationship.
type RelationshipType string

const (
	RelationshipPartner    RelationshipType = "partner"
	RelationshipVerified   RelationshipType = "verified"
	RelationshipPeer       RelationshipType = "peer"
	RelationshipSuspicious RelationshipType = "suspicious"
)

// relationshipTypeFor maps a trust level to its categorical label.
// Brackets: >=0.8 partner, >=0.6 verified, <0.3 suspicious, otherwise peer.
func relationshipTypeFor(level float64) RelationshipType {
	switch {
	case level >= 0.8:
		return RelationshipPartner
	case level >= 0.6:
		return RelationshipVerified
	case level < 0.3:
		return RelationshipSuspicious
	default:
		return RelationshipPeer
	}
}

// OrganizationMetadata holds registration payload extras.
type OrganizationMetadata struct {
	ContactEmail   string   `json:"contact_email"`
	Description    string   `json:"description"`
	Size           string   `json:"size"`
	Certifications []string `json:"certifications"`
}

// ReputationMetrics holds the five reputation sub-scores (0-100 each) and the
// weighted overall score derived from them.
type ReputationMetrics struct {
	ContributionScore float64 `json:"contribution_score"`
	UsageScore        float64 `json:"usage_score"`
	ComplianceScore   float64 `json:"compliance_score"`
	CommunityScore    float64 `json:"community_score"`
	RecencyScore      float64 `json:"recency_score"`
	OverallScore      float64 `json:"overall_score"`
}

// Organization is a member of the federation. Owned exclusively by the
// Registry and mutated only through Registry operations.
type Organization struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Type               OrganizationType     `json:"type"`
	Country            string               `json:"country"`
	Region             string               `json:"region"`
	VerificationStatus VerificationStatus   `json:"verification_status"`
	VerificationLevel  VerificationLevel    `json:"verification_level"`
	JoinedAt           time.Time            `json:"joined_at"`
	TrustScore         int                  `json:"trust_score"`
	Reputation         ReputationMetrics    `json:"reputation"`
	Metadata           OrganizationMetadata `json:"metadata"`
}

// TrustRelationship is a directed trust edge between two organizations.
// At most one relationship exists per ordered (from, to) pair, and
// relationships are never deleted once established.
type TrustRelationship struct {
	FromOrgID        string           `json:"from_org_id"`
	ToOrgID          string           `json:"to_org_id"`
	TrustLevel       float64          `json:"trust_level"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Interactions     int              `json:"interactions"`
	Incidents        int              `json:"incidents"`
	EstablishedAt    time.Time        `json:"established_at"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// FederationNode is the network-reachable endpoint and capability declaration
// for an organization. One node per organization id.
type FederationNode struct {
	OrganizationID string                 `json:"organization_id"`
	Endpoint       string                 `json:"endpoint"`
	Capabilities   []FederationCapability `json:"capabilities"`
	Status         NodeStatus             `json:"status"`
	LastHeartbeat  time.Time              `json:"last_heartbeat"`
	Regions        []string               `json:"regions"`
	Version        string                 `json:"version"`
}

// RegisterOrganizationInput is the registration payload consumed from the
// onboarding workflow.
type RegisterOrganizationInput struct {
	Name     string               `json:"name"`
	Type     OrganizationType     `json:"type"`
	Country  string               `json:"country"`
	Region   string               `json:"region"`
	Metadata OrganizationMetadata `json:"metadata"`
}

// OrganizationUpdate carries a partial update; nil fields are left unchanged.
type OrganizationUpdate struct {
	Name               *string               `json:"name,omitempty"`
	Type               *OrganizationType     `json:"type,omitempty"`
	Country            *string               `json:"country,omitempty"`
	Region             *string               `json:"region,omitempty"`
	VerificationStatus *VerificationStatus   `json:"verification_status,omitempty"`
	VerificationLevel  *VerificationLevel    `json:"verification_level,omitempty"`
	Metadata           *OrganizationMetadata `json:"metadata,omitempty"`
}

// ReputationUpdate carries a partial update of the reputation sub-scores.
type ReputationUpdate struct {
	ContributionScore *float64 `json:"contribution_score,omitempty"`
	UsageScore        *float64 `json:"usage_score,omitempty"`
	ComplianceScore   *float64 `json:"compliance_score,omitempty"`
	CommunityScore    *float64 `json:"community_score,omitempty"`
	RecencyScore      *float64 `json:"recency_score,omitempty"`
}

// OrganizationFilter narrows the verified-organization listing.
type OrganizationFilter struct {
	Type    OrganizationType `json:"type,omitempty"`
	Country string           `json:"country,omitempty"`
	Region  string           `json:"region,omitempty"`
}

// Statistics is a read-only aggregate over current registry state.
type Statistics struct {
	TotalOrganizations  int                        `json:"total_organizations"`
	ByType              map[OrganizationType]int   `json:"by_type"`
	ByStatus            map[VerificationStatus]int `json:"by_status"`
	ByCountry           map[string]int             `json:"by_country"`
	TotalRelationships  int                        `json:"total_relationships"`
	AverageTrustScore   float64                    `json:"average_trust_score"`
	AverageTrustLevel   float64                    `json:"average_trust_level"`
	TotalNodes          int                        `json:"total_nodes"`
	NodesByStatus       map[NodeStatus]int         `json:"nodes_by_status"`
}
