package models

// Document categories returned by the intelligence service.
const (
	CategoryScript = "SCRIPT"
	CategoryKB     = "KB"
	CategoryTicket = "TICKET"
)

// ProvenanceItem links a result back to the evidence it was built from.
type ProvenanceItem struct {
	SourceType      string `json:"source_type" yaml:"source_type"`
	SourceID        string `json:"source_id" yaml:"source_id"`
	Relationship    string `json:"relationship" yaml:"relationship"`
	EvidenceSnippet string `json:"evidence_snippet" yaml:"evidence_snippet"`
}

// ResultItem is a single retrieved document. Metadata is passed through
// untouched except where the translator reads specific keys.
type ResultItem struct {
	DocID      string           `json:"doc_id" yaml:"doc_id"`
	DocType    string           `json:"doc_type" yaml:"doc_type"`
	Title      string           `json:"title" yaml:"title"`
	Body       string           `json:"body,omitempty" yaml:"body,omitempty"`
	Score      float64          `json:"score" yaml:"score"`
	Metadata   map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Provenance []ProvenanceItem `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	Rank       int              `json:"rank,omitempty" yaml:"rank,omitempty"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// QueryResponse is the classification and retrieval result for a query.
type QueryResponse struct {
	Query            string                  `json:"query" yaml:"query"`
	PredictedType    string                  `json:"predicted_type" yaml:"predicted_type"`
	ConfidenceScores map[string]float64      `json:"confidence_scores" yaml:"confidence_scores"`
	PrimaryResults   []ResultItem            `json:"primary_results" yaml:"primary_results"`
	SecondaryResults map[string][]ResultItem `json:"secondary_results" yaml:"secondary_results"`
}

// TicketRequest is the body of the gap-check and draft-generation calls.
type TicketRequest struct {
	TicketNumber string `json:"ticket_number"`
}

// GapCheckResponse reports whether a resolved ticket is covered by the KB.
type GapCheckResponse struct {
	TicketNumber         string  `json:"ticket_number" yaml:"ticket_number"`
	IsGap                bool    `json:"is_gap" yaml:"is_gap"`
	ResolutionSimilarity float64 `json:"resolution_similarity" yaml:"resolution_similarity"`
	BestMatchingKBID     string  `json:"best_matching_kb_id,omitempty" yaml:"best_matching_kb_id,omitempty"`
	Module               string  `json:"module" yaml:"module"`
	Category             string  `json:"category" yaml:"category"`
	DescriptionText      string  `json:"description_text,omitempty" yaml:"description_text,omitempty"`
}

// DraftResponse is a KB article draft generated from a ticket.
type DraftResponse struct {
	DraftID          string `json:"draft_id" yaml:"draft_id"`
	Title            string `json:"title" yaml:"title"`
	Body             string `json:"body" yaml:"body"`
	SourceTicket     string `json:"source_ticket" yaml:"source_ticket"`
	Module           string `json:"module" yaml:"module"`
	Category         string `json:"category" yaml:"category"`
	GeneratedAt      string `json:"generated_at,omitempty" yaml:"generated_at,omitempty"`
	GenerationMethod string `json:"generation_method,omitempty" yaml:"generation_method,omitempty"`
}

// DecisionResponse acknowledges a draft approval or rejection.
type DecisionResponse struct {
	Status string `json:"status"`
	DocID  string `json:"doc_id,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	EngineAvailable bool    `json:"engine_available"`
	Timestamp       float64 `json:"timestamp"`
}
