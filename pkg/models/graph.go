package models

// GraphNode is an entity in the customer knowledge graph.
type GraphNode struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
}

// GraphEdge connects two nodes. Edges without an ID are identified by their
// endpoints and label.
type GraphEdge struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Key returns the identity used when merging edges.
func (e GraphEdge) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Source + "->" + e.Target + "#" + e.Label
}

// KnowledgeGraph is a full graph snapshot.
type KnowledgeGraph struct {
	Nodes []GraphNode `json:"nodes" yaml:"nodes"`
	Edges []GraphEdge `json:"edges" yaml:"edges"`
}

// KnowledgeGraphUpdate is an incremental delta revealed during a run.
type KnowledgeGraphUpdate struct {
	Nodes []GraphNode `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges []GraphEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
}
