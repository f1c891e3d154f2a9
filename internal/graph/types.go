package graph

import (
	"fmt"
	"time"
)

// NodeType classifies a graph node.
type NodeType string

const (
	NodeOrganization NodeType = "organization"
	NodeModel        NodeType = "model"
	NodeInsight      NodeType = "insight"
	NodeExtension    NodeType = "extension"
	NodePolicy       NodeType = "policy"
)

// EdgeType classifies a graph edge.
type EdgeType string

const (
	EdgeTrusts       EdgeType = "trusts"
	EdgeCollaborates EdgeType = "collaborates"
	EdgeUses         EdgeType = "uses"
	EdgePublishes    EdgeType = "publishes"
	EdgeInstalls     EdgeType = "installs"
	EdgeEnforces     EdgeType = "enforces"
)

// Node is a typed graph node with free-form properties.
type Node struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Edge is a directed, weighted, typed graph edge. Its id is derived from the
// (source, type, target) triple and is unique per that triple.
type Edge struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       EdgeType       `json:"type"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// edgeKey identifies an edge by its full triple so lookups stay type-aware.
type edgeKey struct {
	source string
	typ    EdgeType
	target string
}

// pairKey identifies the ordered endpoint pair regardless of edge type.
// Weight lookups along traversed paths resolve through this index, so paths
// discovered over non-trust edges still find their weights.
type pairKey struct {
	source string
	target string
}

// EdgeID derives the stable edge identifier for a triple.
func EdgeID(source string, typ EdgeType, target string) string {
	return fmt.Sprintf("%s:%s:%s", source, typ, target)
}

// FilterOp is a property predicate operator.
type FilterOp string

const (
	FilterEq       FilterOp = "eq"
	FilterGt       FilterOp = "gt"
	FilterLt       FilterOp = "lt"
	FilterContains FilterOp = "contains"
)

// PropertyFilter is a predicate over node properties.
type PropertyFilter struct {
	Key   string   `json:"key"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// Query selects a subgraph. Filters apply in order: node types, edge types,
// property predicates, then the node limit; edges not connecting retained
// nodes are pruned from the result.
type Query struct {
	NodeTypes []NodeType       `json:"node_types,omitempty"`
	EdgeTypes []EdgeType       `json:"edge_types,omitempty"`
	Filters   []PropertyFilter `json:"filters,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

// QueryResult is the retained subgraph.
type QueryResult struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Path is a node sequence discovered by traversal, with the arithmetic mean
// of the edge weights along it.
type Path struct {
	Nodes         []string `json:"nodes"`
	Hops          int      `json:"hops"`
	AverageWeight float64  `json:"average_weight"`
}

// InfluenceRanking is one entry of the weighted-degree centrality ranking.
type InfluenceRanking struct {
	OrganizationID string  `json:"organization_id"`
	Label          string  `json:"label"`
	Connections    int     `json:"connections"`
	AverageWeight  float64 `json:"average_weight"`
	Influence      float64 `json:"influence"`
	Rank           int     `json:"rank"`
}

// Community is a connected component of organization nodes. Density measures
// how completely interconnected its members are over unordered pairs.
type Community struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	Size    int      `json:"size"`
	Density float64  `json:"density"`
}

// Statistics is a read-only aggregate over the graph.
type Statistics struct {
	NodeCount     int              `json:"node_count"`
	EdgeCount     int              `json:"edge_count"`
	NodesByType   map[NodeType]int `json:"nodes_by_type"`
	EdgesByType   map[EdgeType]int `json:"edges_by_type"`
	AverageDegree float64          `json:"average_degree"`
	Density       float64          `json:"density"`
}

// VisualizationNode is the node shape consumed by dashboard renderers.
type VisualizationNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeType `json:"type"`
	Size  float64  `json:"size"`
}

// VisualizationEdge is the edge shape consumed by dashboard renderers.
type VisualizationEdge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight float64  `json:"weight"`
}

// Visualization is the export payload for rendering tools.
type Visualization struct {
	Nodes []VisualizationNode `json:"nodes"`
	Edges []VisualizationEdge `json:"edges"`
}
