package handlers

import (
	"github.com/harvestnet/trust-engine/internal/graph"
	"github.com/harvestnet/trust-engine/internal/registry"
)

// EstablishTrustRequest creates a directed trust relationship.
type EstablishTrustRequest struct {
	FromOrgID    string   `json:"from_org_id"`
	ToOrgID      string   `json:"to_org_id"`
	InitialLevel *float64 `json:"initial_level,omitempty"`
}

// UpdateTrustRequest applies a trust level delta.
type UpdateTrustRequest struct {
	FromOrgID string  `json:"from_org_id"`
	ToOrgID   string  `json:"to_org_id"`
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason"`
}

// RecordIncidentRequest records an incident against a relationship.
type RecordIncidentRequest struct {
	FromOrgID string  `json:"from_org_id"`
	ToOrgID   string  `json:"to_org_id"`
	Severity  float64 `json:"severity"`
}

// RegisterNodeRequest declares a federation node.
type RegisterNodeRequest struct {
	OrganizationID string   `json:"organization_id"`
	Endpoint       string   `json:"endpoint"`
	Capabilities   []string `json:"capabilities"`
	Regions        []string `json:"regions"`
	Version        string   `json:"version"`
}

// BilateralTrustResponse reports the blended trust between two organizations.
type BilateralTrustResponse struct {
	OrgA  string  `json:"org_a"`
	OrgB  string  `json:"org_b"`
	Trust float64 `json:"trust"`
}

// RebuildResponse reports the result of a full graph rebuild.
type RebuildResponse struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// PathsResponse wraps hop-bounded path enumeration results.
type PathsResponse struct {
	Paths []*graph.Path `json:"paths"`
	Count int           `json:"count"`
}

// toFederationNode converts the request payload to a registry node.
func (r RegisterNodeRequest) toFederationNode() registry.FederationNode {
	capabilities := make([]registry.FederationCapability, 0, len(r.Capabilities))
	for _, capability := range r.Capabilities {
		capabilities = append(capabilities, registry.FederationCapability(capability))
	}
	return registry.FederationNode{
		OrganizationID: r.OrganizationID,
		Endpoint:       r.Endpoint,
		Capabilities:   capabilities,
		Regions:        r.Regions,
		Version:        r.Version,
	}
}
