package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestnet/trust-engine/internal/audit"
	"github.com/harvestnet/trust-engine/internal/config"
	"github.com/harvestnet/trust-engine/internal/graph"
	"github.com/harvestnet/trust-engine/internal/metrics"
	"github.com/harvestnet/trust-engine/internal/registry"
	"github.com/harvestnet/trust-engine/internal/trust"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	reg := registry.NewRegistry(logger, audit.NopSink{}, registry.WithClock(clock))
	g := graph.NewTrustGraph(reg, logger, graph.WithClock(clock))
	collector := metrics.NewCollector(prometheus.NewRegistry())
	engine := trust.NewEngine(reg, g, collector, logger, audit.NopSink{}, trust.WithClock(clock))

	cfg := config.Config{}
	cfg.Engine.MaxPathHops = 4
	cfg.Engine.InfluenceLimit = 100

	router := mux.NewRouter()
	NewHTTPHandlers(reg, g, engine, collector, cfg, logger).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, reg
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestOrganizationEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	var created registry.Organization
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/organizations", map[string]any{
		"name":    "Polder Growers",
		"type":    "grower",
		"country": "NL",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 50, created.TrustScore)

	t.Run("get by id", func(t *testing.T) {
		var fetched registry.Organization
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/organizations/"+created.ID, nil, &fetched)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, created.ID, fetched.ID)
	})

	t.Run("get unknown id", func(t *testing.T) {
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/organizations/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("register requires name and type", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/organizations", map[string]any{"type": "grower"}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		status = doJSON(t, http.MethodPost, server.URL+"/api/v1/organizations", map[string]any{"name": "X"}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("patch verification status", func(t *testing.T) {
		var updated registry.Organization
		status := doJSON(t, http.MethodPatch, server.URL+"/api/v1/organizations/"+created.ID, map[string]any{
			"verification_status": "verified",
		}, &updated)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, registry.VerificationVerified, updated.VerificationStatus)
	})

	t.Run("search", func(t *testing.T) {
		var results []registry.Organization
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/organizations?query=polder", nil, &results)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, results, 1)
	})

	t.Run("update reputation", func(t *testing.T) {
		var updated registry.Organization
		status := doJSON(t, http.MethodPut, server.URL+"/api/v1/organizations/"+created.ID+"/reputation", map[string]any{
			"contribution_score": 80.0,
		}, &updated)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 80.0, updated.Reputation.ContributionScore)
	})
}

func TestTrustEndpoints(t *testing.T) {
	server, reg := newTestServer(t)
	a := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "A", Type: registry.OrgTypeGrower})
	b := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "B", Type: registry.OrgTypeGrower})

	var rel registry.TrustRelationship
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/trust", map[string]any{
		"from_org_id":   a.ID,
		"to_org_id":     b.ID,
		"initial_level": 0.5,
	}, &rel)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, registry.RelationshipPeer, rel.RelationshipType)

	t.Run("establish without level uses default", func(t *testing.T) {
		var reverse registry.TrustRelationship
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/trust", map[string]any{
			"from_org_id": b.ID,
			"to_org_id":   a.ID,
		}, &reverse)
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, registry.DefaultTrustLevel, reverse.TrustLevel)
	})

	t.Run("record incident", func(t *testing.T) {
		var updated registry.TrustRelationship
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/trust/incidents", map[string]any{
			"from_org_id": a.ID,
			"to_org_id":   b.ID,
			"severity":    3.0,
		}, &updated)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 1, updated.Incidents)
		assert.InDelta(t, 0.2, updated.TrustLevel, 1e-9)
		assert.Equal(t, registry.RelationshipSuspicious, updated.RelationshipType)
	})

	t.Run("incident on unknown relationship is 404", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/trust/incidents", map[string]any{
			"from_org_id": a.ID,
			"to_org_id":   "missing",
			"severity":    1.0,
		}, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("bidirectional trust", func(t *testing.T) {
		var resp BilateralTrustResponse
		url := fmt.Sprintf("%s/api/v1/trust/bidirectional?org_a=%s&org_b=%s", server.URL, a.ID, b.ID)
		status := doJSON(t, http.MethodGet, url, nil, &resp)
		assert.Equal(t, http.StatusOK, status)
		assert.InDelta(t, 0.2, resp.Trust, 1e-9)
	})

	t.Run("update trust level", func(t *testing.T) {
		var updated registry.TrustRelationship
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/trust/update", map[string]any{
			"from_org_id": a.ID,
			"to_org_id":   b.ID,
			"delta":       0.3,
			"reason":      "remediation completed",
		}, &updated)
		assert.Equal(t, http.StatusOK, status)
		assert.InDelta(t, 0.5, updated.TrustLevel, 1e-9)
	})
}

func TestNodeEndpoints(t *testing.T) {
	server, reg := newTestServer(t)
	org := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "A", Type: registry.OrgTypeGrower})

	var node registry.FederationNode
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/nodes", map[string]any{
		"organization_id": org.ID,
		"endpoint":        "https://a.example.com",
		"capabilities":    []string{"data-sharing"},
		"regions":         []string{"europe-west"},
	}, &node)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, registry.NodeOnline, node.Status)

	t.Run("find by capability", func(t *testing.T) {
		var nodes []registry.FederationNode
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/nodes?capability=data-sharing", nil, &nodes)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, nodes, 1)
	})

	t.Run("find without selector is 400", func(t *testing.T) {
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/nodes", nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("heartbeat", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/nodes/"+org.ID+"/heartbeat", nil, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("heartbeat for unknown node is 404", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/nodes/missing/heartbeat", nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestGraphEndpoints(t *testing.T) {
	server, reg := newTestServer(t)
	a := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "A", Type: registry.OrgTypeGrower})
	b := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "B", Type: registry.OrgTypeGrower})
	c := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "C", Type: registry.OrgTypeGrower})
	reg.EstablishTrust(a.ID, b.ID, 0.9)
	reg.EstablishTrust(b.ID, c.ID, 0.7)

	var rebuilt RebuildResponse
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/graph/rebuild", nil, &rebuilt)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, rebuilt.Nodes)
	assert.Equal(t, 2, rebuilt.Edges)

	t.Run("find path", func(t *testing.T) {
		var path graph.Path
		url := fmt.Sprintf("%s/api/v1/graph/path?from=%s&to=%s", server.URL, a.ID, c.ID)
		status := doJSON(t, http.MethodGet, url, nil, &path)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2, path.Hops)
		assert.InDelta(t, 0.8, path.AverageWeight, 1e-9)
	})

	t.Run("no path is 404", func(t *testing.T) {
		url := fmt.Sprintf("%s/api/v1/graph/path?from=%s&to=%s", server.URL, c.ID, a.ID)
		status := doJSON(t, http.MethodGet, url, nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("paths within hops", func(t *testing.T) {
		var resp PathsResponse
		url := fmt.Sprintf("%s/api/v1/graph/paths?from=%s&max_hops=2", server.URL, a.ID)
		status := doJSON(t, http.MethodGet, url, nil, &resp)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("query", func(t *testing.T) {
		var result graph.QueryResult
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/graph/query", map[string]any{
			"node_types": []string{"organization"},
			"limit":      2,
		}, &result)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, result.Nodes, 2)
	})

	t.Run("influential", func(t *testing.T) {
		var rankings []graph.InfluenceRanking
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/graph/influential?limit=2", nil, &rankings)
		assert.Equal(t, http.StatusOK, status)
		require.Len(t, rankings, 2)
		assert.Equal(t, b.ID, rankings[0].OrganizationID)
	})

	t.Run("communities", func(t *testing.T) {
		var communities []graph.Community
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/graph/communities", nil, &communities)
		assert.Equal(t, http.StatusOK, status)
		require.Len(t, communities, 1)
		assert.Equal(t, 3, communities[0].Size)
	})

	t.Run("visualization", func(t *testing.T) {
		var viz graph.Visualization
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/graph/visualization", nil, &viz)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, viz.Nodes, 3)
		assert.Len(t, viz.Edges, 2)
	})
}

func TestScoreEndpoints(t *testing.T) {
	server, reg := newTestServer(t)
	org := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "A", Type: registry.OrgTypeGrower})

	var components trust.Components
	status := doJSON(t, http.MethodPost, server.URL+"/api/v1/scores/"+org.ID+"/calculate", nil, &components)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 41, components.Overall, 1e-9)

	t.Run("calculate for unknown org is 404", func(t *testing.T) {
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/scores/missing/calculate", nil, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("history", func(t *testing.T) {
		var history []trust.HistoryEntry
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/scores/"+org.ID+"/history", nil, &history)
		assert.Equal(t, http.StatusOK, status)
		require.Len(t, history, 1)
		assert.InDelta(t, 41, history[0].Score, 1e-9)
	})

	t.Run("trend", func(t *testing.T) {
		var prediction trust.TrendPrediction
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/scores/"+org.ID+"/trend", nil, &prediction)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, trust.TrendStable, prediction.Trend)
	})

	t.Run("peers", func(t *testing.T) {
		var comparison trust.PeerComparison
		status := doJSON(t, http.MethodGet, server.URL+"/api/v1/scores/"+org.ID+"/peers", nil, &comparison)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 50.0, comparison.Percentile)
	})

	t.Run("bilateral", func(t *testing.T) {
		other := reg.RegisterOrganization(registry.RegisterOrganizationInput{Name: "B", Type: registry.OrgTypeGrower})
		var resp BilateralTrustResponse
		url := fmt.Sprintf("%s/api/v1/scores/bilateral?org_a=%s&org_b=%s", server.URL, org.ID, other.ID)
		status := doJSON(t, http.MethodGet, url, nil, &resp)
		assert.Equal(t, http.StatusOK, status)
		assert.Greater(t, resp.Trust, 0.0)
	})

	t.Run("recalculate all", func(t *testing.T) {
		var result trust.BatchResult
		status := doJSON(t, http.MethodPost, server.URL+"/api/v1/scores/recalculate", nil, &result)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, result.Total, result.Succeeded)
	})
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	for _, route := range []string{"/health", "/ready"} {
		var body map[string]string
		status := doJSON(t, http.MethodGet, server.URL+route, nil, &body)
		assert.Equal(t, http.StatusOK, status, route)
		assert.NotEmpty(t, body["status"])
	}
}
