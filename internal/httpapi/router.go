// Package httpapi is the thin HTTP adapter over the chat driver (spec §6):
// it does no business logic of its own beyond request validation and
// status-code mapping.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/apperr"
	"github.com/chatcore/chatcore/internal/chatdriver"
	"github.com/chatcore/chatcore/internal/notify"
)

type API struct {
	driver *chatdriver.Driver
	notify *notify.Handler
	log    *logrus.Logger
}

func New(driver *chatdriver.Driver, notifyHandler *notify.Handler, log *logrus.Logger) *API {
	return &API{driver: driver, notify: notifyHandler, log: log}
}

func (a *API) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/chat", a.postChat)
	v1.POST("/sessions", a.createSession)
	v1.GET("/sessions", a.listSessions)
	v1.GET("/sessions/:sid/messages", a.getMessages)
	v1.POST("/sessions/:sid/close", a.closeSession)
	v1.GET("/escalations", a.listEscalations)
	v1.POST("/escalations/:sid/claim", a.claimEscalation)
	v1.POST("/escalations/:sid/messages", a.postAgentMessage)
	v1.GET("/escalations/ws", a.escalationFeed)
}

func (a *API) writeErr(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		switch appErr.Kind {
		case apperr.KindInvalidInput:
			c.JSON(http.StatusBadRequest, gin.H{"error": appErr.Message})
		case apperr.KindUnauthorized:
			c.JSON(http.StatusForbidden, gin.H{"error": appErr.Message})
		case apperr.KindNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": appErr.Message})
		case apperr.KindConflict:
			c.JSON(http.StatusConflict, gin.H{"error": appErr.Message})
		case apperr.KindSessionStore:
			a.log.WithError(err).Error("session store failure")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	a.log.WithError(err).Error("unclassified error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (a *API) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and query are required"})
		return
	}

	result, err := a.driver.HandleTurn(c.Request.Context(), req.UserID, req.Query, req.SessionID)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":     result.SessionID,
		"answer":         result.Answer,
		"citations":      result.Citations,
		"should_escalate": result.ShouldEscalate,
		"trace_id":       result.TraceID,
		"cache_hit":      result.CacheHit,
		"session_status": result.SessionStatus,
	})
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	meta, err := a.driver.CreateSession(c.Request.Context(), req.UserID, req.SessionID)
	if err != nil {
		a.writeErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": meta.ID,
		"status":     meta.Status,
		"created_at": meta.CreatedAt,
		"user_id":    meta.UserID,
		"summary":    meta.Summary,
	})
}

func (a *API) listSessions(c *gin.Context) {
	userID := c.Query("user_id")
	limit, _ := strconv.Atoi(c.Query("limit"))
	includeClosed := c.Query("include_closed") == "true"
	q := c.Query("q")

	sessions, err := a.driver.ListSessions(c.Request.Context(), userID, limit, includeClosed, q)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *API) getMessages(c *gin.Context) {
	sid := c.Param("sid")
	userID := c.Query("user_id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	messages, err := a.driver.GetMessages(c.Request.Context(), userID, sid, limit)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type closeSessionRequest struct {
	Summary  string         `json:"summary"`
	Metadata map[string]any `json:"metadata"`
}

func (a *API) closeSession(c *gin.Context) {
	sid := c.Param("sid")
	userID := c.Query("user_id")

	var req closeSessionRequest
	_ = c.ShouldBindJSON(&req)

	if err := a.driver.CloseSession(c.Request.Context(), userID, sid, req.Summary); err != nil {
		a.writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listEscalations(c *gin.Context) {
	agentID := c.Query("agent_id")
	sessions, err := a.driver.ListEscalations(c.Request.Context(), agentID)
	if err != nil {
		a.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type claimRequest struct {
	AgentID  string `json:"agent_id"`
	Passcode string `json:"admin_passcode,omitempty"`
}

func (a *API) claimEscalation(c *gin.Context) {
	sid := c.Param("sid")
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.driver.ClaimEscalation(c.Request.Context(), sid, req.AgentID, req.Passcode); err != nil {
		a.writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type agentMessageRequest struct {
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

func (a *API) postAgentMessage(c *gin.Context) {
	sid := c.Param("sid")
	var req agentMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.driver.PostAgentMessage(c.Request.Context(), sid, req.AgentID, req.Content); err != nil {
		a.writeErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (a *API) escalationFeed(c *gin.Context) {
	agentID := c.Query("agent_id")
	a.notify.HandleWebSocket(c.Writer, c.Request, agentID)
}
