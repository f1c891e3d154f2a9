// Package graph builds a typed property graph over federation entities and
// answers structural queries: path finding, influence ranking, and community
// detection. The graph is a derived, rebuildable projection of the registry
// and holds no independent source of truth.
package graph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harvestnet/trust-engine/internal/registry"
)

// ErrNodeNotFound is returned when an edge references an unknown endpoint.
var ErrNodeNotFound = errors.New("graph node not found")

// TrustGraph is the in-memory projection. Reads may run concurrently;
// InitializeGraph builds a fresh node/edge/adjacency set and swaps it in one
// step so concurrent readers never observe a partially populated graph.
type TrustGraph struct {
	registry *registry.Registry
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	state *graphState
}

// graphState bundles the node set, edge set, and adjacency indexes that must
// stay mutually consistent. Every edge insertion updates exactly one
// adjacency entry for its source.
type graphState struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[edgeKey]*Edge
	edgeOrder []edgeKey
	adjacency map[string][]string
	incoming  map[string][]string
	pairs     map[pairKey][]*Edge
}

func newGraphState() *graphState {
	return &graphState{
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		adjacency: make(map[string][]string),
		incoming:  make(map[string][]string),
		pairs:     make(map[pairKey][]*Edge),
	}
}

// Option configures a TrustGraph.
type Option func(*TrustGraph)

// WithClock injects the time source used for node and edge timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *TrustGraph) { g.now = now }
}

// NewTrustGraph creates an empty graph backed by the given registry.
func NewTrustGraph(reg *registry.Registry, logger *slog.Logger, opts ...Option) *TrustGraph {
	g := &TrustGraph{
		registry: reg,
		logger:   logger,
		now:      time.Now,
		state:    newGraphState(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InitializeGraph fully rebuilds the graph from the current registry
// snapshot: every organization becomes a node and every trust relationship a
// trusts edge. The new state is swapped in atomically.
func (g *TrustGraph) InitializeGraph(ctx context.Context) error {
	start := g.now()
	g.logger.Info("starting graph rebuild")

	next := newGraphState()
	orgs := g.registry.ListOrganizations()
	for _, org := range orgs {
		g.insertOrganizationNode(next, org)
	}
	for _, org := range orgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, rel := range g.registry.GetRelationshipsFrom(org.ID) {
			if _, ok := next.nodes[rel.ToOrgID]; !ok {
				continue
			}
			g.insertEdge(next, rel.FromOrgID, rel.ToOrgID, EdgeTrusts, rel.TrustLevel, map[string]any{
				"relationship_type": string(rel.RelationshipType),
				"interactions":      rel.Interactions,
				"incidents":         rel.Incidents,
			})
		}
	}

	g.mu.Lock()
	g.state = next
	g.mu.Unlock()

	g.logger.Info("graph rebuild completed",
		"nodes", len(next.nodes),
		"edges", len(next.edges),
		"duration", time.Since(start))
	return nil
}

// AddNode upserts a node. An existing node keeps its position and creation
// time; label and properties are replaced.
func (g *TrustGraph) AddNode(id string, typ NodeType, label string, properties map[string]any) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneGraphNode(g.insertNode(g.state, id, typ, label, properties))
}

// AddOrganizationNode projects a registry organization into the graph.
func (g *TrustGraph) AddOrganizationNode(org *registry.Organization) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneGraphNode(g.insertOrganizationNode(g.state, org))
}

// AddModelNode adds a shared-model node.
func (g *TrustGraph) AddModelNode(id, label string, properties map[string]any) *Node {
	return g.AddNode(id, NodeModel, label, properties)
}

// AddEdge upserts a typed, weighted edge. The weight is clamped to [0,1].
// Both endpoints must already exist in the graph. The edge map and the
// adjacency index are updated in the same operation.
func (g *TrustGraph) AddEdge(source, target string, typ EdgeType, weight float64, properties map[string]any) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.state.nodes[source]; !ok {
		return nil, ErrNodeNotFound
	}
	if _, ok := g.state.nodes[target]; !ok {
		return nil, ErrNodeNotFound
	}
	return cloneGraphEdge(g.insertEdge(g.state, source, target, typ, weight, properties)), nil
}

// AddTrustEdge records a trust relationship between two organization nodes.
func (g *TrustGraph) AddTrustEdge(fromOrgID, toOrgID string, level float64) (*Edge, error) {
	return g.AddEdge(fromOrgID, toOrgID, EdgeTrusts, level, nil)
}

// AddUsageEdge records that an organization uses a shared model.
func (g *TrustGraph) AddUsageEdge(orgID, modelID string, weight float64) (*Edge, error) {
	return g.AddEdge(orgID, modelID, EdgeUses, weight, nil)
}

// insertNode must run with the write lock held (or on a detached state).
func (g *TrustGraph) insertNode(s *graphState, id string, typ NodeType, label string, properties map[string]any) *Node {
	if properties == nil {
		properties = make(map[string]any)
	}
	if existing, ok := s.nodes[id]; ok {
		existing.Label = label
		existing.Properties = properties
		existing.UpdatedAt = g.now()
		return existing
	}
	node := &Node{
		ID:         id,
		Type:       typ,
		Label:      label,
		Properties: properties,
		CreatedAt:  g.now(),
		UpdatedAt:  g.now(),
	}
	s.nodes[id] = node
	s.nodeOrder = append(s.nodeOrder, id)
	return node
}

func (g *TrustGraph) insertOrganizationNode(s *graphState, org *registry.Organization) *Node {
	return g.insertNode(s, org.ID, NodeOrganization, org.Name, map[string]any{
		"org_type":            string(org.Type),
		"country":             org.Country,
		"region":              org.Region,
		"trust_score":         float64(org.TrustScore),
		"verification_status": string(org.VerificationStatus),
	})
}

// insertEdge must run with the write lock held (or on a detached state).
// Re-inserting an existing triple updates weight and properties without
// touching the adjacency index, so adjacency entries stay one-per-edge.
func (g *TrustGraph) insertEdge(s *graphState, source, target string, typ EdgeType, weight float64, properties map[string]any) *Edge {
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	if properties == nil {
		properties = make(map[string]any)
	}

	key := edgeKey{source: source, typ: typ, target: target}
	if existing, ok := s.edges[key]; ok {
		existing.Weight = weight
		existing.Properties = properties
		existing.UpdatedAt = g.now()
		return existing
	}

	edge := &Edge{
		ID:         EdgeID(source, typ, target),
		Source:     source,
		Target:     target,
		Type:       typ,
		Weight:     weight,
		Properties: properties,
		CreatedAt:  g.now(),
		UpdatedAt:  g.now(),
	}
	s.edges[key] = edge
	s.edgeOrder = append(s.edgeOrder, key)
	s.adjacency[source] = append(s.adjacency[source], target)
	s.incoming[target] = append(s.incoming[target], source)
	pk := pairKey{source: source, target: target}
	s.pairs[pk] = append(s.pairs[pk], edge)
	return edge
}

// edgeWeightBetween resolves the weight of the earliest-established edge for
// the ordered pair, across all edge types. Returns false when no edge exists.
func (s *graphState) edgeWeightBetween(source, target string) (float64, bool) {
	edges := s.pairs[pairKey{source: source, target: target}]
	if len(edges) == 0 {
		return 0, false
	}
	return edges[0].Weight, true
}

// hasEdgeEitherDirection reports whether any edge of any type connects the
// unordered pair.
func (s *graphState) hasEdgeEitherDirection(a, b string) bool {
	if len(s.pairs[pairKey{source: a, target: b}]) > 0 {
		return true
	}
	return len(s.pairs[pairKey{source: b, target: a}]) > 0
}

func cloneGraphNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Properties = make(map[string]any, len(n.Properties))
	for k, v := range n.Properties {
		out.Properties[k] = v
	}
	return &out
}

func cloneGraphEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	out := *e
	out.Properties = make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		out.Properties[k] = v
	}
	return &out
}
