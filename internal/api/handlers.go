package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pixora/internal/catalog"
	"pixora/internal/job"
	"pixora/internal/session"
	"pixora/internal/usage"
)

type createSessionRequest struct {
	Account string `json:"account"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Account   string `json:"account"`
}

type loadImageRequest struct {
	BaseURL string `json:"base_url"`
}

type parameterRequest struct {
	Text string `json:"text"`
}

type setPlanRequest struct {
	Plan string `json:"plan"`
}

type toolResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	RequiresParameter bool   `json:"requires_parameter"`
}

type sessionResponse struct {
	ID        string       `json:"id"`
	Account   string       `json:"account"`
	CreatedAt string       `json:"created_at"`
	Editor    job.Snapshot `json:"editor"`
}

type toggleResponse struct {
	Result            job.ToggleResult `json:"result"`
	AwaitingParameter bool             `json:"awaiting_parameter,omitempty"`
	Editor            job.Snapshot     `json:"editor"`
}

type API struct {
	sessions *session.Manager
	gate     usage.Gate
}

// NewAPI builds handlers over sessions. gate serves the usage endpoints and
// should be the same gate the sessions consume from.
func NewAPI(sessions *session.Manager, gate usage.Gate) *API {
	if gate == nil {
		gate = usage.Unlimited{}
	}
	return &API{sessions: sessions, gate: gate}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/tools", a.ListTools)
		api.POST("/sessions", a.CreateSession)
		api.GET("/sessions/:id", a.GetSession)
		api.POST("/sessions/:id/image", a.LoadImage)
		api.POST("/sessions/:id/effects/:tool", a.ToggleEffect)
		api.POST("/sessions/:id/parameter", a.SubmitParameter)
		api.DELETE("/sessions/:id/parameter", a.CancelParameter)
		api.GET("/sessions/:id/history", a.GetHistory)
		api.GET("/usage", a.GetUsage)
		api.POST("/usage", a.ConsumeUsage)
		api.POST("/usage/plan", a.SetPlan)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": a.sessions.Len()})
	})
}

func (a *API) ListTools(c *gin.Context) {
	tools := a.sessions.Catalog().Tools()
	resp := make([]toolResponse, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, toToolResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"tools": resp})
}

// CreateSession opens an editing session. The body is optional.
func (a *API) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Warn().Err(err).Msg("invalid create session request")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	s := a.sessions.Create(req.Account)
	c.JSON(http.StatusCreated, createSessionResponse{SessionID: s.ID, Account: s.Account})
}

func (a *API) GetSession(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s))
}

// LoadImage sets a new base image, consuming one unit of the account's allowance.
func (a *API) LoadImage(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	var req loadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BaseURL) == "" {
		log.Warn().Str("session_id", s.ID).Msg("invalid load image request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_url is required"})
		return
	}
	rec, err := s.Editor.LoadImage(c.Request.Context(), req.BaseURL)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error(), "usage": rec})
			return
		}
		log.Error().Str("session_id", s.ID).Err(err).Msg("load image failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"editor": s.Editor.Snapshot(), "usage": rec})
}

// ToggleEffect applies the tool if inactive, removes it otherwise.
func (a *API) ToggleEffect(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	toolID := c.Param("tool")
	res, err := s.Editor.Toggle(toolID)
	if err != nil {
		writeEditorError(c, s.ID, err)
		return
	}
	a.writeToggle(c, s, res)
}

func (a *API) SubmitParameter(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	var req parameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := s.Editor.SubmitParameter(req.Text)
	if err != nil {
		writeEditorError(c, s.ID, err)
		return
	}
	a.writeToggle(c, s, res)
}

func (a *API) CancelParameter(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	if !s.Editor.CancelParameter() {
		c.JSON(http.StatusNotFound, gin.H{"error": job.ErrNoPendingParameter.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"editor": s.Editor.Snapshot()})
}

func (a *API) GetHistory(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": s.Editor.History()})
}

// GetUsage reports the account's counter without consuming it.
func (a *API) GetUsage(c *gin.Context) {
	account := c.Query("account")
	rec, err := a.gate.Check(c.Request.Context(), account)
	if err != nil {
		writeUsageError(c, account, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ConsumeUsage counts one upload. 403 means the allowance is spent; its body
// is the flat usage record plus the error, as usage.Client expects.
func (a *API) ConsumeUsage(c *gin.Context) {
	account := c.Query("account")
	rec, err := a.gate.Consume(c.Request.Context(), account)
	if err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":      err.Error(),
				"usageCount": rec.Count,
				"usageLimit": rec.Limit,
				"plan":       rec.Plan,
				"canUpload":  false,
			})
			return
		}
		writeUsageError(c, account, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SetPlan moves an account to another plan. Only gates that keep their own
// counters support it; a remote or disabled gate answers 501.
func (a *API) SetPlan(c *gin.Context) {
	setter, ok := a.gate.(usage.PlanSetter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "usage gate does not manage plans"})
		return
	}
	account := c.Query("account")
	var req setPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan is required"})
		return
	}
	rec, err := setter.SetPlan(c.Request.Context(), account, req.Plan)
	if err != nil {
		writeUsageError(c, account, err)
		return
	}
	log.Info().Str("account", account).Str("plan", rec.Plan).Int("usage_limit", rec.Limit).Msg("account plan changed")
	c.JSON(http.StatusOK, rec)
}

func writeUsageError(c *gin.Context, account string, err error) {
	if errors.Is(err, usage.ErrEmptyAccount) || errors.Is(err, usage.ErrUnknownPlan) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Error().Str("account", account).Err(err).Msg("usage request failed")
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func (a *API) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	s, err := a.sessions.Lookup(id)
	if err != nil {
		log.Warn().Str("session_id", id).Msg("session not found")
		c.JSON(http.StatusNotFound, gin.H{"error": session.ErrSessionNotFound.Error()})
		return nil, false
	}
	return s, true
}

func (a *API) writeToggle(c *gin.Context, s *session.Session, res job.ToggleResult) {
	resp := toggleResponse{Result: res, Editor: s.Editor.Snapshot()}
	switch res {
	case job.Started:
		c.JSON(http.StatusAccepted, resp)
	case job.AwaitingParameter:
		resp.AwaitingParameter = true
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func writeEditorError(c *gin.Context, sessionID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, job.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, job.ErrNoImage),
		errors.Is(err, job.ErrUnknownTool),
		errors.Is(err, job.ErrEmptyParameter):
		status = http.StatusBadRequest
	case errors.Is(err, job.ErrNoPendingParameter):
		status = http.StatusNotFound
	case errors.Is(err, job.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error().Str("session_id", sessionID).Err(err).Msg("editor operation failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toToolResponse(t catalog.Tool) toolResponse {
	return toolResponse{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		RequiresParameter: t.RequiresParameter,
	}
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Account:   s.Account,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		Editor:    s.Editor.Snapshot(),
	}
}
