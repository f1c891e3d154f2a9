package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Query filters the graph down to a subgraph. Filter order is significant:
// node-type filter, then edge-type filter, then property predicates (which
// only run on the node-type-filtered set), then the node limit. Edges whose
// endpoints are not both retained are pruned from the result.
func (g *TrustGraph) Query(q Query) *QueryResult {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	nodes := make([]*Node, 0)
	for _, id := range s.nodeOrder {
		node := s.nodes[id]
		if len(q.NodeTypes) > 0 && !containsNodeType(q.NodeTypes, node.Type) {
			continue
		}
		nodes = append(nodes, node)
	}

	edges := make([]*Edge, 0)
	for _, key := range s.edgeOrder {
		edge := s.edges[key]
		if len(q.EdgeTypes) > 0 && !containsEdgeType(q.EdgeTypes, edge.Type) {
			continue
		}
		edges = append(edges, edge)
	}

	for _, filter := range q.Filters {
		filtered := nodes[:0:0]
		for _, node := range nodes {
			if matchesFilter(node, filter) {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}

	if q.Limit > 0 && len(nodes) > q.Limit {
		nodes = nodes[:q.Limit]
	}

	retained := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		retained[node.ID] = struct{}{}
	}

	result := &QueryResult{
		Nodes: make([]*Node, 0, len(nodes)),
		Edges: make([]*Edge, 0, len(edges)),
	}
	for _, node := range nodes {
		result.Nodes = append(result.Nodes, cloneGraphNode(node))
	}
	for _, edge := range edges {
		if _, ok := retained[edge.Source]; !ok {
			continue
		}
		if _, ok := retained[edge.Target]; !ok {
			continue
		}
		result.Edges = append(result.Edges, cloneGraphEdge(edge))
	}
	return result
}

// FindPath runs a breadth-first search over the adjacency index and returns
// the first shortest path by edge count, or nil if no path exists. Ties break
// FIFO by neighbor insertion order, so results are deterministic for a given
// adjacency order.
func (g *TrustGraph) FindPath(fromID, toID string) *Path {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	if _, ok := s.nodes[fromID]; !ok {
		return nil
	}
	if _, ok := s.nodes[toID]; !ok {
		return nil
	}
	if fromID == toID {
		return &Path{Nodes: []string{fromID}}
	}

	parent := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range s.adjacency[current] {
			if _, seen := parent[neighbor]; seen {
				continue
			}
			parent[neighbor] = current
			if neighbor == toID {
				return s.buildPath(parent, fromID, toID)
			}
			queue = append(queue, neighbor)
		}
	}
	return nil
}

func (s *graphState) buildPath(parent map[string]string, fromID, toID string) *Path {
	reversed := []string{toID}
	for current := toID; current != fromID; {
		current = parent[current]
		reversed = append(reversed, current)
	}
	nodes := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		nodes = append(nodes, reversed[i])
	}
	return &Path{
		Nodes:         nodes,
		Hops:          len(nodes) - 1,
		AverageWeight: s.averagePathWeight(nodes),
	}
}

// averagePathWeight resolves edge weights along the node sequence through the
// type-aware pair index, so paths traversed over any edge type find their
// weights. Returns 0 if no edges resolve.
func (s *graphState) averagePathWeight(nodes []string) float64 {
	var sum float64
	var count int
	for i := 0; i+1 < len(nodes); i++ {
		if weight, ok := s.edgeWeightBetween(nodes[i], nodes[i+1]); ok {
			sum += weight
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// FindPathsWithinHops enumerates all distinct simple paths of at most maxHops
// edges starting at fromID, deduplicated by the full path signature. The
// enumeration can grow exponentially in dense graphs; keep maxHops small
// (3-4) in practice.
func (g *TrustGraph) FindPathsWithinHops(fromID string, maxHops int) []*Path {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	paths := make([]*Path, 0)
	if maxHops <= 0 {
		return paths
	}
	if _, ok := s.nodes[fromID]; !ok {
		return paths
	}

	seen := make(map[string]struct{})
	queue := [][]string{{fromID}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if len(current)-1 >= maxHops {
			continue
		}
		last := current[len(current)-1]
		for _, neighbor := range s.adjacency[last] {
			if containsString(current, neighbor) {
				continue
			}
			next := make([]string, len(current), len(current)+1)
			copy(next, current)
			next = append(next, neighbor)

			signature := strings.Join(next, "->")
			if _, dup := seen[signature]; dup {
				continue
			}
			seen[signature] = struct{}{}

			paths = append(paths, &Path{
				Nodes:         next,
				Hops:          len(next) - 1,
				AverageWeight: s.averagePathWeight(next),
			})
			queue = append(queue, next)
		}
	}
	return paths
}

// FindInfluentialOrganizations ranks organization nodes by weighted-degree
// centrality: (outgoing + incoming edge count) x average incident edge
// weight. Ties break by node insertion order. This is an intentional
// simplification over eigenvector or PageRank centrality.
func (g *TrustGraph) FindInfluentialOrganizations(limit int) []InfluenceRanking {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	type nodeStats struct {
		connections int
		weightSum   float64
		edgeCount   int
	}
	stats := make(map[string]*nodeStats)
	ensure := func(id string) *nodeStats {
		ns, ok := stats[id]
		if !ok {
			ns = &nodeStats{}
			stats[id] = ns
		}
		return ns
	}
	for _, key := range s.edgeOrder {
		edge := s.edges[key]
		source := ensure(edge.Source)
		source.connections++
		source.weightSum += edge.Weight
		source.edgeCount++
		target := ensure(edge.Target)
		target.connections++
		target.weightSum += edge.Weight
		target.edgeCount++
	}

	rankings := make([]InfluenceRanking, 0)
	for _, id := range s.nodeOrder {
		node := s.nodes[id]
		if node.Type != NodeOrganization {
			continue
		}
		ns := stats[id]
		if ns == nil {
			rankings = append(rankings, InfluenceRanking{OrganizationID: id, Label: node.Label})
			continue
		}
		avgWeight := ns.weightSum / float64(ns.edgeCount)
		rankings = append(rankings, InfluenceRanking{
			OrganizationID: id,
			Label:          node.Label,
			Connections:    ns.connections,
			AverageWeight:  avgWeight,
			Influence:      float64(ns.connections) * avgWeight,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].Influence > rankings[j].Influence
	})
	if limit > 0 && len(rankings) > limit {
		rankings = rankings[:limit]
	}
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
	return rankings
}

// DetectCommunities partitions organization nodes into disjoint connected
// components via depth-first traversal following both outgoing and incoming
// edges. Only components with more than one member are returned, each
// annotated with density = actual edges / possible unordered pairs, where the
// adjacency test accepts either edge direction.
func (g *TrustGraph) DetectCommunities() []Community {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	isOrg := func(id string) bool {
		node, ok := s.nodes[id]
		return ok && node.Type == NodeOrganization
	}

	visited := make(map[string]struct{})
	communities := make([]Community, 0)
	for _, rootID := range s.nodeOrder {
		if !isOrg(rootID) {
			continue
		}
		if _, done := visited[rootID]; done {
			continue
		}

		members := make([]string, 0)
		stack := []string{rootID}
		visited[rootID] = struct{}{}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			members = append(members, current)

			neighbors := make([]string, 0, len(s.adjacency[current])+len(s.incoming[current]))
			neighbors = append(neighbors, s.adjacency[current]...)
			neighbors = append(neighbors, s.incoming[current]...)
			for _, neighbor := range neighbors {
				if !isOrg(neighbor) {
					continue
				}
				if _, done := visited[neighbor]; done {
					continue
				}
				visited[neighbor] = struct{}{}
				stack = append(stack, neighbor)
			}
		}

		if len(members) <= 1 {
			continue
		}
		communities = append(communities, Community{
			ID:      fmt.Sprintf("community_%d", len(communities)),
			Members: members,
			Size:    len(members),
			Density: s.communityDensity(members),
		})
	}
	return communities
}

// communityDensity counts connected unordered pairs within the member set,
// accepting an edge of any type in either direction.
func (s *graphState) communityDensity(members []string) float64 {
	if len(members) <= 1 {
		return 0
	}
	var actual int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if s.hasEdgeEitherDirection(members[i], members[j]) {
				actual++
			}
		}
	}
	possible := len(members) * (len(members) - 1) / 2
	return float64(actual) / float64(possible)
}

// GetStatistics returns aggregate counters over the graph.
func (g *TrustGraph) GetStatistics() Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	stats := Statistics{
		NodeCount:   len(s.nodes),
		EdgeCount:   len(s.edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, node := range s.nodes {
		stats.NodesByType[node.Type]++
	}
	for _, edge := range s.edges {
		stats.EdgesByType[edge.Type]++
	}
	if stats.NodeCount > 0 {
		stats.AverageDegree = float64(stats.EdgeCount) / float64(stats.NodeCount)
	}
	if stats.NodeCount > 1 {
		stats.Density = float64(stats.EdgeCount) / float64(stats.NodeCount*(stats.NodeCount-1))
	}
	return stats
}

// ExportForVisualization flattens the graph into the shape dashboard
// renderers consume. Node size defaults to the organization's trust score, or
// 50 when the property is absent.
func (g *TrustGraph) ExportForVisualization() *Visualization {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.state

	viz := &Visualization{
		Nodes: make([]VisualizationNode, 0, len(s.nodes)),
		Edges: make([]VisualizationEdge, 0, len(s.edges)),
	}
	for _, id := range s.nodeOrder {
		node := s.nodes[id]
		size := 50.0
		if v, ok := toFloat(node.Properties["trust_score"]); ok {
			size = v
		}
		viz.Nodes = append(viz.Nodes, VisualizationNode{
			ID:    node.ID,
			Label: node.Label,
			Type:  node.Type,
			Size:  size,
		})
	}
	for _, key := range s.edgeOrder {
		edge := s.edges[key]
		viz.Edges = append(viz.Edges, VisualizationEdge{
			Source: edge.Source,
			Target: edge.Target,
			Type:   edge.Type,
			Weight: edge.Weight,
		})
	}
	return viz
}

// matchesFilter evaluates a property predicate against a node.
func matchesFilter(node *Node, filter PropertyFilter) bool {
	value, ok := node.Properties[filter.Key]
	if !ok {
		return false
	}
	switch filter.Op {
	case FilterEq:
		if a, okA := toFloat(value); okA {
			if b, okB := toFloat(filter.Value); okB {
				return a == b
			}
		}
		return fmt.Sprint(value) == fmt.Sprint(filter.Value)
	case FilterGt:
		a, okA := toFloat(value)
		b, okB := toFloat(filter.Value)
		return okA && okB && a > b
	case FilterLt:
		a, okA := toFloat(value)
		b, okB := toFloat(filter.Value)
		return okA && okB && a < b
	case FilterContains:
		switch v := value.(type) {
		case []string:
			target := fmt.Sprint(filter.Value)
			for _, item := range v {
				if item == target {
					return true
				}
			}
			return false
		default:
			return strings.Contains(fmt.Sprint(value), fmt.Sprint(filter.Value))
		}
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func containsNodeType(types []NodeType, t NodeType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsEdgeType(types []EdgeType, t EdgeType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, candidate := range values {
		if candidate == s {
			return true
		}
	}
	return false
}
