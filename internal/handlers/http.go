// Package handlers exposes the trust engine over HTTP for dashboards,
// marketplace ranking, and export tooling. The layer is a thin JSON boundary;
// all semantics live in the registry, graph, and trust packages.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/harvestnet/trust-engine/internal/config"
	"github.com/harvestnet/trust-engine/internal/graph"
	"github.com/harvestnet/trust-engine/internal/metrics"
	"github.com/harvestnet/trust-engine/internal/registry"
	"github.com/harvestnet/trust-engine/internal/trust"
)

// HTTPHandlers contains HTTP request handlers.
type HTTPHandlers struct {
	registry *registry.Registry
	graph    *graph.TrustGraph
	engine   *trust.Engine
	metrics  *metrics.Collector
	config   config.Config
	logger   *slog.Logger
}

// NewHTTPHandlers creates new HTTP handlers.
func NewHTTPHandlers(
	reg *registry.Registry,
	g *graph.TrustGraph,
	engine *trust.Engine,
	collector *metrics.Collector,
	cfg config.Config,
	logger *slog.Logger,
) *HTTPHandlers {
	return &HTTPHandlers{
		registry: reg,
		graph:    g,
		engine:   engine,
		metrics:  collector,
		config:   cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers HTTP routes.
func (h *HTTPHandlers) RegisterRoutes(router *mux.Router) {
	// Organization endpoints
	router.HandleFunc("/api/v1/organizations", h.registerOrganization).Methods("POST")
	router.HandleFunc("/api/v1/organizations", h.searchOrganizations).Methods("GET")
	router.HandleFunc("/api/v1/organizations/verified", h.listVerifiedOrganizations).Methods("GET")
	router.HandleFunc("/api/v1/organizations/{id}", h.getOrganization).Methods("GET")
	router.HandleFunc("/api/v1/organizations/{id}", h.updateOrganization).Methods("PATCH")
	router.HandleFunc("/api/v1/organizations/{id}/reputation", h.updateReputation).Methods("PUT")

	// Trust relationship endpoints
	router.HandleFunc("/api/v1/trust", h.establishTrust).Methods("POST")
	router.HandleFunc("/api/v1/trust/update", h.updateTrustLevel).Methods("POST")
	router.HandleFunc("/api/v1/trust/incidents", h.recordIncident).Methods("POST")
	router.HandleFunc("/api/v1/trust/bidirectional", h.getBidirectionalTrust).Methods("GET")

	// Federation node endpoints
	router.HandleFunc("/api/v1/nodes", h.registerNode).Methods("POST")
	router.HandleFunc("/api/v1/nodes", h.findNodes).Methods("GET")
	router.HandleFunc("/api/v1/nodes/{orgId}/heartbeat", h.nodeHeartbeat).Methods("POST")

	// Graph endpoints
	router.HandleFunc("/api/v1/graph/rebuild", h.rebuildGraph).Methods("POST")
	router.HandleFunc("/api/v1/graph/query", h.queryGraph).Methods("POST")
	router.HandleFunc("/api/v1/graph/path", h.findPath).Methods("GET")
	router.HandleFunc("/api/v1/graph/paths", h.findPathsWithinHops).Methods("GET")
	router.HandleFunc("/api/v1/graph/influential", h.findInfluential).Methods("GET")
	router.HandleFunc("/api/v1/graph/communities", h.detectCommunities).Methods("GET")
	router.HandleFunc("/api/v1/graph/statistics", h.graphStatistics).Methods("GET")
	router.HandleFunc("/api/v1/graph/visualization", h.exportVisualization).Methods("GET")

	// Score endpoints
	router.HandleFunc("/api/v1/scores/recalculate", h.recalculateAllScores).Methods("POST")
	router.HandleFunc("/api/v1/scores/bilateral", h.bilateralTrust).Methods("GET")
	router.HandleFunc("/api/v1/scores/{orgId}/calculate", h.calculateScore).Methods("POST")
	router.HandleFunc("/api/v1/scores/{orgId}/trend", h.predictTrend).Methods("GET")
	router.HandleFunc("/api/v1/scores/{orgId}/peers", h.compareToPeers).Methods("GET")
	router.HandleFunc("/api/v1/scores/{orgId}/history", h.scoreHistory).Methods("GET")

	// Registry statistics
	router.HandleFunc("/api/v1/statistics", h.registryStatistics).Methods("GET")

	// Health checks
	router.HandleFunc("/health", h.healthCheck).Methods("GET")
	router.HandleFunc("/ready", h.readinessCheck).Methods("GET")
}

func (h *HTTPHandlers) registerOrganization(w http.ResponseWriter, r *http.Request) {
	var input registry.RegisterOrganizationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if input.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if input.Type == "" {
		h.writeError(w, http.StatusBadRequest, "type is required", nil)
		return
	}

	org := h.registry.RegisterOrganization(input)
	h.metrics.RegistryOperation("register_organization")
	h.writeJSON(w, http.StatusCreated, org)
}

func (h *HTTPHandlers) getOrganization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	org := h.registry.GetOrganization(id)
	if org == nil {
		h.writeError(w, http.StatusNotFound, "organization not found", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, org)
}

func (h *HTTPHandlers) updateOrganization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var update registry.OrganizationUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	org := h.registry.UpdateOrganization(id, update)
	if org == nil {
		h.writeError(w, http.StatusNotFound, "organization not found", nil)
		return
	}
	h.metrics.RegistryOperation("update_organization")
	h.writeJSON(w, http.StatusOK, org)
}

func (h *HTTPHandlers) updateReputation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var update registry.ReputationUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	org := h.registry.UpdateReputationMetrics(id, update)
	if org == nil {
		h.writeError(w, http.StatusNotFound, "organization not found", nil)
		return
	}
	h.metrics.RegistryOperation("update_reputation")
	h.writeJSON(w, http.StatusOK, org)
}

func (h *HTTPHandlers) searchOrganizations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", 50)
	h.writeJSON(w, http.StatusOK, h.registry.SearchOrganizations(query, limit))
}

func (h *HTTPHandlers) listVerifiedOrganizations(w http.ResponseWriter, r *http.Request) {
	filter := registry.OrganizationFilter{
		Type:    registry.OrganizationType(r.URL.Query().Get("type")),
		Country: r.URL.Query().Get("country"),
		Region:  r.URL.Query().Get("region"),
	}
	h.writeJSON(w, http.StatusOK, h.registry.ListVerifiedOrganizations(filter))
}

func (h *HTTPHandlers) establishTrust(w http.ResponseWriter, r *http.Request) {
	var req EstablishTrustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.FromOrgID == "" || req.ToOrgID == "" {
		h.writeError(w, http.StatusBadRequest, "from_org_id and to_org_id are required", nil)
		return
	}

	level := registry.DefaultTrustLevel
	if req.InitialLevel != nil {
		level = *req.InitialLevel
	}
	rel := h.registry.EstablishTrust(req.FromOrgID, req.ToOrgID, level)
	h.metrics.RegistryOperation("establish_trust")
	h.writeJSON(w, http.StatusCreated, rel)
}

func (h *HTTPHandlers) updateTrustLevel(w http.ResponseWriter, r *http.Request) {
	var req UpdateTrustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rel, err := h.registry.UpdateTrustLevel(req.FromOrgID, req.ToOrgID, req.Delta, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.metrics.RegistryOperation("update_trust_level")
	h.writeJSON(w, http.StatusOK, rel)
}

func (h *HTTPHandlers) recordIncident(w http.ResponseWriter, r *http.Request) {
	var req RecordIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rel, err := h.registry.RecordIncident(req.FromOrgID, req.ToOrgID, req.Severity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.metrics.RegistryOperation("record_incident")
	h.writeJSON(w, http.StatusOK, rel)
}

func (h *HTTPHandlers) getBidirectionalTrust(w http.ResponseWriter, r *http.Request) {
	orgA := r.URL.Query().Get("org_a")
	orgB := r.URL.Query().Get("org_b")
	if orgA == "" || orgB == "" {
		h.writeError(w, http.StatusBadRequest, "org_a and org_b are required", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, BilateralTrustResponse{
		OrgA:  orgA,
		OrgB:  orgB,
		Trust: h.registry.GetBidirectionalTrust(orgA, orgB),
	})
}

func (h *HTTPHandlers) registerNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.OrganizationID == "" {
		h.writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}

	node := h.registry.RegisterNode(req.toFederationNode())
	h.metrics.RegistryOperation("register_node")
	h.writeJSON(w, http.StatusCreated, node)
}

func (h *HTTPHandlers) nodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	node := h.registry.UpdateNodeHeartbeat(orgID)
	if node == nil {
		h.writeError(w, http.StatusNotFound, "federation node not found", nil)
		return
	}
	h.metrics.RegistryOperation("node_heartbeat")
	h.writeJSON(w, http.StatusOK, node)
}

func (h *HTTPHandlers) findNodes(w http.ResponseWriter, r *http.Request) {
	if capability := r.URL.Query().Get("capability"); capability != "" {
		nodes := h.registry.FindNodesByCapability(registry.FederationCapability(capability))
		h.writeJSON(w, http.StatusOK, nodes)
		return
	}
	if region := r.URL.Query().Get("region"); region != "" {
		h.writeJSON(w, http.StatusOK, h.registry.FindNodesByRegion(region))
		return
	}
	h.writeError(w, http.StatusBadRequest, "capability or region is required", nil)
}

func (h *HTTPHandlers) rebuildGraph(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.graph.InitializeGraph(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to rebuild graph", err)
		return
	}
	stats := h.graph.GetStatistics()
	h.metrics.GraphRebuilt(time.Since(start), stats.NodeCount, stats.EdgeCount)
	h.writeJSON(w, http.StatusOK, RebuildResponse{Nodes: stats.NodeCount, Edges: stats.EdgeCount})
}

func (h *HTTPHandlers) queryGraph(w http.ResponseWriter, r *http.Request) {
	var query graph.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	start := time.Now()
	result := h.graph.Query(query)
	h.metrics.GraphQuery("query", time.Since(start))
	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandlers) findPath(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}

	start := time.Now()
	path := h.graph.FindPath(from, to)
	h.metrics.GraphQuery("find_path", time.Since(start))
	if path == nil {
		h.writeError(w, http.StatusNotFound, "no path exists", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, path)
}

func (h *HTTPHandlers) findPathsWithinHops(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		h.writeError(w, http.StatusBadRequest, "from is required", nil)
		return
	}
	maxHops := queryInt(r, "max_hops", 3)
	if maxHops > h.config.Engine.MaxPathHops {
		maxHops = h.config.Engine.MaxPathHops
	}

	start := time.Now()
	paths := h.graph.FindPathsWithinHops(from, maxHops)
	h.metrics.GraphQuery("paths_within_hops", time.Since(start))
	h.writeJSON(w, http.StatusOK, PathsResponse{Paths: paths, Count: len(paths)})
}

func (h *HTTPHandlers) findInfluential(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", h.config.Engine.InfluenceLimit)

	start := time.Now()
	rankings := h.graph.FindInfluentialOrganizations(limit)
	h.metrics.GraphQuery("influential", time.Since(start))
	h.writeJSON(w, http.StatusOK, rankings)
}

func (h *HTTPHandlers) detectCommunities(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	communities := h.graph.DetectCommunities()
	h.metrics.GraphQuery("communities", time.Since(start))
	h.writeJSON(w, http.StatusOK, communities)
}

func (h *HTTPHandlers) graphStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.graph.GetStatistics())
}

func (h *HTTPHandlers) exportVisualization(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.graph.ExportForVisualization())
}

func (h *HTTPHandlers) calculateScore(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	components, err := h.engine.CalculateTrustScore(r.Context(), orgID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, components)
}

func (h *HTTPHandlers) predictTrend(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	prediction, err := h.engine.PredictTrustTrend(r.Context(), orgID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prediction)
}

func (h *HTTPHandlers) compareToPeers(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	comparison, err := h.engine.CompareToPeers(r.Context(), orgID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, comparison)
}

func (h *HTTPHandlers) scoreHistory(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgId"]
	limit := queryInt(r, "limit", 0)
	h.writeJSON(w, http.StatusOK, h.engine.GetHistory(orgID, limit))
}

func (h *HTTPHandlers) bilateralTrust(w http.ResponseWriter, r *http.Request) {
	orgA := r.URL.Query().Get("org_a")
	orgB := r.URL.Query().Get("org_b")
	if orgA == "" || orgB == "" {
		h.writeError(w, http.StatusBadRequest, "org_a and org_b are required", nil)
		return
	}

	value, err := h.engine.CalculateBilateralTrust(r.Context(), orgA, orgB)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BilateralTrustResponse{OrgA: orgA, OrgB: orgB, Trust: value})
}

func (h *HTTPHandlers) recalculateAllScores(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.RecalculateAllScores(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "recalculation interrupted", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandlers) registryStatistics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.registry.GetStatistics())
}

func (h *HTTPHandlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HTTPHandlers) readinessCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func (h *HTTPHandlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrOrganizationNotFound),
		errors.Is(err, registry.ErrRelationshipNotFound),
		errors.Is(err, registry.ErrNodeNotFound),
		errors.Is(err, graph.ErrNodeNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		h.writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *HTTPHandlers) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil && h.config.Server.Debug {
		response["details"] = err.Error()
	}
	h.writeJSON(w, status, response)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
