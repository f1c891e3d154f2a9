package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFilterOrder(t *testing.T) {
	g, _ := newTestGraph()
	g.AddNode("a", NodeOrganization, "A", map[string]any{"trust_score": 90.0, "country": "NL"})
	g.AddNode("b", NodeOrganization, "B", map[string]any{"trust_score": 40.0, "country": "NL"})
	g.AddNode("c", NodeOrganization, "C", map[string]any{"trust_score": 70.0, "country": "DE"})
	g.AddNode("m", NodeModel, "M", nil)

	_, err := g.AddEdge("a", "b", EdgeTrusts, 0.8, nil)
	require.NoError(t, err)
	_, err = g.AddEdge("a", "c", EdgeTrusts, 0.7, nil)
	require.NoError(t, err)
	_, err = g.AddEdge("a", "m", EdgeUses, 0.5, nil)
	require.NoError(t, err)

	t.Run("node type filter", func(t *testing.T) {
		result := g.Query(Query{NodeTypes: []NodeType{NodeModel}})
		require.Len(t, result.Nodes, 1)
		assert.Equal(t, "m", result.Nodes[0].ID)
		assert.Empty(t, result.Edges, "edges with a filtered-out endpoint are pruned")
	})

	t.Run("edge type filter", func(t *testing.T) {
		result := g.Query(Query{EdgeTypes: []EdgeType{EdgeTrusts}})
		assert.Len(t, result.Nodes, 4)
		assert.Len(t, result.Edges, 2)
	})

	t.Run("property filters run after type filters", func(t *testing.T) {
		result := g.Query(Query{
			NodeTypes: []NodeType{NodeOrganization},
			Filters: []PropertyFilter{
				{Key: "trust_score", Op: FilterGt, Value: 50.0},
				{Key: "country", Op: FilterEq, Value: "NL"},
			},
		})
		require.Len(t, result.Nodes, 1)
		assert.Equal(t, "a", result.Nodes[0].ID)
	})

	t.Run("limit applies after filters and preserves insertion order", func(t *testing.T) {
		result := g.Query(Query{NodeTypes: []NodeType{NodeOrganization}, Limit: 2})
		require.Len(t, result.Nodes, 2)
		assert.Equal(t, "a", result.Nodes[0].ID)
		assert.Equal(t, "b", result.Nodes[1].ID)
		require.Len(t, result.Edges, 1, "only the a->b edge survives the limit")
	})

	t.Run("missing property never matches", func(t *testing.T) {
		result := g.Query(Query{Filters: []PropertyFilter{{Key: "nope", Op: FilterEq, Value: "x"}}})
		assert.Empty(t, result.Nodes)
	})

	t.Run("contains matches string slice membership", func(t *testing.T) {
		g.AddNode("n", NodeOrganization, "N", map[string]any{"tags": []string{"organic", "dairy"}})
		result := g.Query(Query{Filters: []PropertyFilter{{Key: "tags", Op: FilterContains, Value: "dairy"}}})
		require.Len(t, result.Nodes, 1)
		assert.Equal(t, "n", result.Nodes[0].ID)
	})
}

// bruteForceShortest enumerates every simple path with DFS and returns the
// minimum hop count, or -1 when unreachable. Only usable on tiny graphs.
func bruteForceShortest(edges map[string][]string, from, to string) int {
	if from == to {
		return 0
	}
	best := -1
	var walk func(current string, visited map[string]bool, hops int)
	walk = func(current string, visited map[string]bool, hops int) {
		for _, next := range edges[current] {
			if visited[next] {
				continue
			}
			if next == to {
				if best == -1 || hops+1 < best {
					best = hops + 1
				}
				continue
			}
			visited[next] = true
			walk(next, visited, hops+1)
			delete(visited, next)
		}
	}
	walk(from, map[string]bool{from: true}, 0)
	return best
}

func TestFindPathMatchesBruteForce(t *testing.T) {
	g, _ := newTestGraph()
	ids := addOrgNodes(g, 7)

	adjacency := map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d", "e"},
		"d": {"f"},
		"e": {"f"},
		"f": {"g"},
		"g": {"a"},
	}
	for source, targets := range adjacency {
		for _, target := range targets {
			_, err := g.AddTrustEdge(source, target, 0.5)
			require.NoError(t, err)
		}
	}

	for _, from := range ids {
		for _, to := range ids {
			want := bruteForceShortest(adjacency, from, to)
			path := g.FindPath(from, to)
			if want == -1 {
				assert.Nil(t, path, "%s -> %s should be unreachable", from, to)
				continue
			}
			require.NotNil(t, path, "%s -> %s", from, to)
			assert.Equal(t, want, path.Hops, "%s -> %s", from, to)
			assert.Equal(t, from, path.Nodes[0])
			assert.Equal(t, to, path.Nodes[len(path.Nodes)-1])
		}
	}
}

func TestFindPathEdgeCases(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 2)

	t.Run("same node is a zero-hop path", func(t *testing.T) {
		path := g.FindPath("a", "a")
		require.NotNil(t, path)
		assert.Equal(t, []string{"a"}, path.Nodes)
		assert.Equal(t, 0, path.Hops)
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		assert.Nil(t, g.FindPath("a", "missing"))
		assert.Nil(t, g.FindPath("missing", "a"))
	})

	t.Run("disconnected nodes", func(t *testing.T) {
		assert.Nil(t, g.FindPath("a", "b"))
	})
}

func TestFindPathIgnoresEdgeDirectionality(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 2)
	_, err := g.AddTrustEdge("b", "a", 0.6)
	require.NoError(t, err)

	// Edges are directed: b->a does not make a->b reachable.
	assert.Nil(t, g.FindPath("a", "b"))
	require.NotNil(t, g.FindPath("b", "a"))
}

func TestFindPathsWithinHops(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 4)
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"a", "c"}} {
		_, err := g.AddTrustEdge(pair[0], pair[1], 0.5)
		require.NoError(t, err)
	}

	paths := g.FindPathsWithinHops("a", 2)

	// a->b, a->c, a->b->c, a->c->d
	require.Len(t, paths, 4)
	signatures := make(map[string]int)
	for _, path := range paths {
		assert.LessOrEqual(t, path.Hops, 2)
		assert.Equal(t, "a", path.Nodes[0])
		sig := ""
		for _, node := range path.Nodes {
			sig += node + "->"
		}
		signatures[sig]++
	}
	for sig, count := range signatures {
		assert.Equal(t, 1, count, "duplicate path %s", sig)
	}

	t.Run("simple paths only", func(t *testing.T) {
		for _, path := range g.FindPathsWithinHops("a", 4) {
			seen := make(map[string]bool)
			for _, node := range path.Nodes {
				assert.False(t, seen[node], "node %s repeats in %v", node, path.Nodes)
				seen[node] = true
			}
		}
	})

	t.Run("zero hops yields nothing", func(t *testing.T) {
		assert.Empty(t, g.FindPathsWithinHops("a", 0))
	})

	t.Run("unknown start yields nothing", func(t *testing.T) {
		assert.Empty(t, g.FindPathsWithinHops("missing", 3))
	})
}

func TestFindInfluentialOrganizations(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 4)
	g.AddModelNode("m", "Model", nil)

	// a participates in three edges at weight 1.0, b in two, c in one, d in none.
	for _, edge := range []struct {
		from, to string
		weight   float64
	}{
		{"a", "b", 1.0},
		{"b", "a", 1.0},
		{"a", "c", 1.0},
	} {
		_, err := g.AddTrustEdge(edge.from, edge.to, edge.weight)
		require.NoError(t, err)
	}
	_, err := g.AddUsageEdge("a", "m", 1.0)
	require.NoError(t, err)

	rankings := g.FindInfluentialOrganizations(10)
	require.Len(t, rankings, 4, "model nodes are excluded from the ranking")

	assert.Equal(t, "a", rankings[0].OrganizationID)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, 4, rankings[0].Connections)
	assert.InDelta(t, 4.0, rankings[0].Influence, 1e-9)

	assert.Equal(t, "b", rankings[1].OrganizationID)
	assert.Equal(t, "c", rankings[2].OrganizationID)
	assert.Equal(t, "d", rankings[3].OrganizationID)
	assert.Equal(t, 0, rankings[3].Connections)

	t.Run("limit truncates after ranking", func(t *testing.T) {
		top := g.FindInfluentialOrganizations(2)
		require.Len(t, top, 2)
		assert.Equal(t, "a", top[0].OrganizationID)
		assert.Equal(t, 2, top[1].Rank)
	})
}

func TestDetectCommunities(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 6)
	g.AddModelNode("m", "Model", nil)

	// Component 1: a-b-c triangle-ish (a->b, b->c). Component 2: d->e.
	// f is isolated and must not appear.
	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"d", "e"}} {
		_, err := g.AddTrustEdge(pair[0], pair[1], 0.5)
		require.NoError(t, err)
	}
	_, err := g.AddUsageEdge("a", "m", 0.5)
	require.NoError(t, err)

	communities := g.DetectCommunities()
	require.Len(t, communities, 2)

	first, second := communities[0], communities[1]
	assert.ElementsMatch(t, []string{"a", "b", "c"}, first.Members)
	assert.Equal(t, 3, first.Size)
	// 2 connected pairs out of 3 possible.
	assert.InDelta(t, 2.0/3.0, first.Density, 1e-9)

	assert.ElementsMatch(t, []string{"d", "e"}, second.Members)
	assert.InDelta(t, 1.0, second.Density, 1e-9)

	t.Run("members are disjoint", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, community := range communities {
			for _, member := range community.Members {
				assert.False(t, seen[member], "member %s in two communities", member)
				seen[member] = true
			}
		}
	})

	t.Run("traversal follows incoming edges", func(t *testing.T) {
		// e has only an incoming edge, yet belongs to d's component.
		assert.Contains(t, second.Members, "e")
	})

	t.Run("density stays within bounds", func(t *testing.T) {
		for _, community := range communities {
			assert.GreaterOrEqual(t, community.Density, 0.0)
			assert.LessOrEqual(t, community.Density, 1.0)
		}
	})
}

func TestGetStatistics(t *testing.T) {
	g, _ := newTestGraph()
	addOrgNodes(g, 3)
	_, err := g.AddTrustEdge("a", "b", 0.5)
	require.NoError(t, err)
	_, err = g.AddTrustEdge("b", "c", 0.5)
	require.NoError(t, err)

	stats := g.GetStatistics()
	assert.Equal(t, 3, stats.NodeCount)
	assert.Equal(t, 2, stats.EdgeCount)
	assert.InDelta(t, 2.0/3.0, stats.AverageDegree, 1e-9)
	assert.InDelta(t, 2.0/6.0, stats.Density, 1e-9)
}
