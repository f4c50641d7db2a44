// Package httpapi serves the timeline orchestrator over REST and streams
// snapshots to browser clients over a websocket.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/valter-silva-au/meridian/internal/core"
	"github.com/valter-silva-au/meridian/internal/storage"
	"github.com/valter-silva-au/meridian/pkg/models"
)

const (
	maxWSReadBytes  int64 = 4 << 10
	wsWriteTimeout        = 5 * time.Second
	defaultListSize       = 20
)

// HealthChecker reports whether the intelligence service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthResponse, error)
}

// TranscriptReader reads archived runs.
type TranscriptReader interface {
	Get(ctx context.Context, runID string) (*models.Transcript, error)
	List(ctx context.Context, limit int) ([]models.Transcript, error)
}

// DecisionReader reads the draft decision ledger.
type DecisionReader interface {
	List(ctx context.Context) ([]models.Decision, error)
	Stats(ctx context.Context) (models.DecisionStats, error)
}

// Deps wires the API. Timeline is required; the readers and Health may be
// nil, in which case their routes answer 501.
type Deps struct {
	Timeline    core.TimelineOrchestrator
	Health      HealthChecker
	Transcripts TranscriptReader
	Decisions   DecisionReader
	Logger      *zap.Logger
}

type server struct {
	timeline    core.TimelineOrchestrator
	health      HealthChecker
	transcripts TranscriptReader
	decisions   DecisionReader
	log         *zap.Logger
	upgrader    websocket.Upgrader
}

// NewServer returns an http.Server for addr serving NewRouter(deps).
func NewServer(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	s := &server{
		timeline:    deps.Timeline,
		health:      deps.Health,
		transcripts: deps.Transcripts,
		decisions:   deps.Decisions,
		log:         deps.Logger,
		upgrader:    websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed},
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	api.GET("/scenarios", s.handleListScenarios)
	act := api.Group("", s.requireOpen())
	act.POST("/scenarios/:id/start", s.handleStart)
	act.POST("/messages", s.handleSendMessage)
	act.POST("/resolve", s.handleResolve)
	act.POST("/drafts/:id/approve", s.handleDecision(s.timeline.ApproveDraft))
	act.POST("/drafts/:id/reject", s.handleDecision(s.timeline.RejectDraft))
	act.POST("/notes", s.handleAddNote)
	act.POST("/reset", s.handleReset)
	api.GET("/timeline", s.handleTimeline)
	api.GET("/graph", s.handleGraph)
	api.GET("/transcripts", s.handleListTranscripts)
	api.GET("/transcripts/:run_id", s.handleGetTranscript)
	api.GET("/decisions", s.handleDecisions)

	return r
}

// accessLog logs one line per request.
func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireOpen answers 503 once the orchestrator is closed, so actions are
// not mistaken for unknown ids or idle conflicts during shutdown.
func (s *server) requireOpen() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.timeline.Closed() {
			abort(c, http.StatusServiceUnavailable, core.ErrClosed.Error())
			return
		}
		c.Next()
	}
}

type textBody struct {
	Text string `json:"text"`
}

func (s *server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	resp, err := s.health.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "intelligence": resp})
}

func (s *server) handleListScenarios(c *gin.Context) {
	list := s.timeline.Scenarios()
	if list == nil {
		list = []models.ScenarioSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": list, "count": len(list)})
}

func (s *server) handleStart(c *gin.Context) {
	id := c.Param("id")
	if !s.timeline.StartScenario(id) {
		abort(c, http.StatusNotFound, "unknown scenario "+strconv.Quote(id))
		return
	}
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleSendMessage(c *gin.Context) {
	text, ok := bindText(c)
	if !ok {
		return
	}
	if !s.timeline.SendAgentMessage(text) {
		abort(c, http.StatusConflict, "no conversation is running")
		return
	}
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleResolve(c *gin.Context) {
	if !s.timeline.ResolveIssue() {
		abort(c, http.StatusConflict, "nothing to resolve")
		return
	}
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleDecision(decide func(string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := decide(c.Param("id")); err != nil {
			switch {
			case errors.Is(err, core.ErrDraftNotFound):
				abort(c, http.StatusNotFound, err.Error())
			case errors.Is(err, core.ErrClosed):
				abort(c, http.StatusServiceUnavailable, err.Error())
			default:
				abort(c, http.StatusInternalServerError, err.Error())
			}
			return
		}
		c.JSON(http.StatusOK, s.timeline.Snapshot())
	}
}

func (s *server) handleAddNote(c *gin.Context) {
	text, ok := bindText(c)
	if !ok {
		return
	}
	if !s.timeline.AddNote(text) {
		abort(c, http.StatusConflict, "no conversation is running")
		return
	}
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleReset(c *gin.Context) {
	s.timeline.Reset()
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleTimeline(c *gin.Context) {
	c.JSON(http.StatusOK, s.timeline.Snapshot())
}

func (s *server) handleGraph(c *gin.Context) {
	c.JSON(http.StatusOK, s.timeline.KnowledgeGraph())
}

func (s *server) handleListTranscripts(c *gin.Context) {
	if s.transcripts == nil {
		abort(c, http.StatusNotImplemented, "transcript archive not configured")
		return
	}
	limit := defaultListSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abort(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.transcripts.List(c.Request.Context(), limit)
	if err != nil {
		s.log.Warn("listing transcripts", zap.Error(err))
		abort(c, http.StatusInternalServerError, "listing transcripts failed")
		return
	}
	if list == nil {
		list = []models.Transcript{}
	}
	c.JSON(http.StatusOK, gin.H{"transcripts": list, "count": len(list)})
}

func (s *server) handleGetTranscript(c *gin.Context) {
	if s.transcripts == nil {
		abort(c, http.StatusNotImplemented, "transcript archive not configured")
		return
	}
	t, err := s.transcripts.Get(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		if errors.Is(err, storage.ErrTranscriptNotFound) {
			abort(c, http.StatusNotFound, err.Error())
			return
		}
		s.log.Warn("reading transcript", zap.String("run_id", c.Param("run_id")), zap.Error(err))
		abort(c, http.StatusInternalServerError, "reading transcript failed")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) handleDecisions(c *gin.Context) {
	if s.decisions == nil {
		abort(c, http.StatusNotImplemented, "decision ledger not configured")
		return
	}
	ctx := c.Request.Context()
	list, err := s.decisions.List(ctx)
	if err != nil {
		s.log.Warn("listing decisions", zap.Error(err))
		abort(c, http.StatusInternalServerError, "listing decisions failed")
		return
	}
	stats, err := s.decisions.Stats(ctx)
	if err != nil {
		s.log.Warn("decision stats", zap.Error(err))
		abort(c, http.StatusInternalServerError, "decision stats failed")
		return
	}
	if list == nil {
		list = []models.Decision{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": list, "stats": stats})
}

// handleWS streams every published snapshot as a JSON text frame until the
// client goes away or the orchestrator closes.
func (s *server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSReadBytes)

	snaps, unsubscribe := s.timeline.Subscribe(1)
	defer unsubscribe()

	// The read side only watches for the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "timeline closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				s.log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}
}

func bindText(c *gin.Context) (string, bool) {
	var body textBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return "", false
	}
	text := strings.TrimSpace(body.Text)
	if text == "" {
		abort(c, http.StatusBadRequest, "text is required")
		return "", false
	}
	return text, true
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}
