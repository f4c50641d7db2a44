package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/valter-silva-au/meridian/pkg/models"
)

// ErrNoScriptedResponse is returned by the scripted source when no scenario
// carries an answer for the request.
var ErrNoScriptedResponse = errors.New("no scripted response")

// IntelligenceService is the classification, retrieval and KB-learning
// backend the copilot talks to.
type IntelligenceService interface {
	Query(ctx context.Context, query string) (*models.QueryResponse, error)
	CheckGap(ctx context.Context, ticketNumber string) (*models.GapCheckResponse, error)
	GenerateDraft(ctx context.Context, ticketNumber string) (*models.DraftResponse, error)
	ApproveDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error)
	RejectDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error)
	Health(ctx context.Context) (*models.HealthResponse, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// httpIntelligenceClient implements IntelligenceService over JSON HTTP.
type httpIntelligenceClient struct {
	baseURL string
	topK    int
	client  *http.Client
}

// NewHTTPIntelligenceClient creates an IntelligenceService for the service
// at baseURL. A nil client means a default client without a timeout; calls
// are bounded by their context.
func NewHTTPIntelligenceClient(baseURL string, topK int, client *http.Client) IntelligenceService {
	if client == nil {
		client = &http.Client{}
	}
	return &httpIntelligenceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		topK:    topK,
		client:  client,
	}
}

func (c *httpIntelligenceClient) Query(ctx context.Context, query string) (*models.QueryResponse, error) {
	var resp models.QueryResponse
	req := models.QueryRequest{Query: query, TopK: c.topK}
	if err := c.do(ctx, http.MethodPost, "/api/query", req, &resp); err != nil {
		return nil, fmt.Errorf("querying intelligence service: %w", err)
	}
	return &resp, nil
}

func (c *httpIntelligenceClient) CheckGap(ctx context.Context, ticketNumber string) (*models.GapCheckResponse, error) {
	var resp models.GapCheckResponse
	req := models.TicketRequest{TicketNumber: ticketNumber}
	if err := c.do(ctx, http.MethodPost, "/api/gap/check", req, &resp); err != nil {
		return nil, fmt.Errorf("checking knowledge gap for %s: %w", ticketNumber, err)
	}
	return &resp, nil
}

func (c *httpIntelligenceClient) GenerateDraft(ctx context.Context, ticketNumber string) (*models.DraftResponse, error) {
	var resp models.DraftResponse
	req := models.TicketRequest{TicketNumber: ticketNumber}
	if err := c.do(ctx, http.MethodPost, "/api/kb/generate", req, &resp); err != nil {
		return nil, fmt.Errorf("generating KB draft for %s: %w", ticketNumber, err)
	}
	return &resp, nil
}

func (c *httpIntelligenceClient) ApproveDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error) {
	var resp models.DecisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/kb/approve/"+url.PathEscape(draftID), nil, &resp); err != nil {
		return nil, fmt.Errorf("approving draft %s: %w", draftID, err)
	}
	return &resp, nil
}

func (c *httpIntelligenceClient) RejectDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error) {
	var resp models.DecisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/kb/reject/"+url.PathEscape(draftID), nil, &resp); err != nil {
		return nil, fmt.Errorf("rejecting draft %s: %w", draftID, err)
	}
	return &resp, nil
}

func (c *httpIntelligenceClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	var resp models.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("checking service health: %w", err)
	}
	return &resp, nil
}

// do sends body as JSON (when non-nil) and decodes a 2xx reply into out.
func (c *httpIntelligenceClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// ScenarioCatalog lists the loaded scenarios. The scripted source reads it
// on every call so reloaded scenario files take effect immediately.
type ScenarioCatalog interface {
	All() []*models.Scenario
}

// scriptedIntelligence implements IntelligenceService by replaying the
// responses embedded in scenario files.
type scriptedIntelligence struct {
	catalog ScenarioCatalog
}

// NewScriptedIntelligence creates an offline IntelligenceService backed by
// the scripted responses of the scenarios in catalog.
func NewScriptedIntelligence(catalog ScenarioCatalog) IntelligenceService {
	return &scriptedIntelligence{catalog: catalog}
}

func (s *scriptedIntelligence) Query(ctx context.Context, query string) (*models.QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := normalizeQuery(query)
	for _, sc := range s.catalog.All() {
		if sc.Responses == nil || sc.Responses.Query == nil {
			continue
		}
		if normalizeQuery(scenarioQuery(sc)) != want {
			continue
		}
		resp := *sc.Responses.Query
		resp.Query = query
		return &resp, nil
	}
	return nil, fmt.Errorf("query %q: %w", query, ErrNoScriptedResponse)
}

func (s *scriptedIntelligence) CheckGap(ctx context.Context, ticketNumber string) (*models.GapCheckResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, sc := range s.catalog.All() {
		if sc.TicketNumber == ticketNumber && sc.Responses != nil && sc.Responses.Gap != nil {
			resp := *sc.Responses.Gap
			if resp.TicketNumber == "" {
				resp.TicketNumber = ticketNumber
			}
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("gap check for %s: %w", ticketNumber, ErrNoScriptedResponse)
}

func (s *scriptedIntelligence) GenerateDraft(ctx context.Context, ticketNumber string) (*models.DraftResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, sc := range s.catalog.All() {
		if sc.TicketNumber == ticketNumber && sc.Responses != nil && sc.Responses.Draft != nil {
			resp := *sc.Responses.Draft
			if resp.SourceTicket == "" {
				resp.SourceTicket = ticketNumber
			}
			return &resp, nil
		}
	}
	return nil, fmt.Errorf("draft for %s: %w", ticketNumber, ErrNoScriptedResponse)
}

// ApproveDraft acknowledges locally; the published article id is derived
// from the draft id.
func (s *scriptedIntelligence) ApproveDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.DecisionResponse{
		Status: "approved",
		DocID:  "KB-" + strings.TrimPrefix(strings.TrimPrefix(draftID, "KB-"), "DRAFT-"),
	}, nil
}

func (s *scriptedIntelligence) RejectDraft(ctx context.Context, draftID string) (*models.DecisionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.DecisionResponse{Status: "rejected"}, nil
}

func (s *scriptedIntelligence) Health(context.Context) (*models.HealthResponse, error) {
	return &models.HealthResponse{Status: "scripted", EngineAvailable: false}, nil
}

// NewIntelligenceService selects the event source for mode.
func NewIntelligenceService(cfg models.Config, catalog ScenarioCatalog) (IntelligenceService, error) {
	switch cfg.Mode {
	case models.SourceLive:
		return NewHTTPIntelligenceClient(cfg.Service.BaseURL, cfg.Service.TopK, nil), nil
	case models.SourceScripted, "":
		return NewScriptedIntelligence(catalog), nil
	default:
		return nil, fmt.Errorf("unknown intelligence mode %q", cfg.Mode)
	}
}

// scenarioQuery is the text the orchestrator sends for sc's query trigger.
func scenarioQuery(sc *models.Scenario) string {
	if strings.TrimSpace(sc.QueryText) != "" {
		return sc.QueryText
	}
	if sc.QueryTriggerIndex >= 0 && sc.QueryTriggerIndex < len(sc.Messages) {
		return sc.Messages[sc.QueryTriggerIndex].Text
	}
	return ""
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
