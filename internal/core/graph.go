package core

import (
	"github.com/valter-silva-au/meridian/pkg/models"
)

// MergeGraph folds updates into base by identifier union. Nodes are keyed
// by ID and edges by GraphEdge.Key; the first occurrence keeps its position
// and a later occurrence with the same key replaces its attributes. base is
// not modified.
func MergeGraph(base models.KnowledgeGraph, updates ...models.KnowledgeGraphUpdate) models.KnowledgeGraph {
	out := models.KnowledgeGraph{
		Nodes: make([]models.GraphNode, 0, len(base.Nodes)),
		Edges: make([]models.GraphEdge, 0, len(base.Edges)),
	}
	nodeIdx := make(map[string]int, len(base.Nodes))
	edgeIdx := make(map[string]int, len(base.Edges))

	addNode := func(n models.GraphNode) {
		if i, ok := nodeIdx[n.ID]; ok {
			out.Nodes[i] = n
			return
		}
		nodeIdx[n.ID] = len(out.Nodes)
		out.Nodes = append(out.Nodes, n)
	}
	addEdge := func(e models.GraphEdge) {
		k := e.Key()
		if i, ok := edgeIdx[k]; ok {
			out.Edges[i] = e
			return
		}
		edgeIdx[k] = len(out.Edges)
		out.Edges = append(out.Edges, e)
	}

	for _, n := range base.Nodes {
		addNode(n)
	}
	for _, e := range base.Edges {
		addEdge(e)
	}
	for _, u := range updates {
		for _, n := range u.Nodes {
			addNode(n)
		}
		for _, e := range u.Edges {
			addEdge(e)
		}
	}
	return out
}

// DanglingEdges returns edges whose endpoints are missing from g.
func DanglingEdges(g models.KnowledgeGraph) []models.GraphEdge {
	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = true
	}
	var out []models.GraphEdge
	for _, e := range g.Edges {
		if !known[e.Source] || !known[e.Target] {
			out = append(out, e)
		}
	}
	return out
}
