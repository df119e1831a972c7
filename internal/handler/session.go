package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HenryGreene10/propertyfish/internal/model"
	"github.com/HenryGreene10/propertyfish/internal/session"
)

// SessionHandler exposes the per-session search controller over HTTP.
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	id, controller := h.registry.Create()
	c.JSON(http.StatusCreated, gin.H{
		"session_id": id,
		"state":      controller.View(),
	})
}

// State handles GET /api/v1/sessions/:id
func (h *SessionHandler) State(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, controller.View())
}

// applyRequest is the body of a search apply. Filters arrive raw; all
// normalization happens in the controller.
type applyRequest struct {
	model.RawFilters
	PreserveResults bool `json:"preserve_results"`
}

// Apply handles POST /api/v1/sessions/:id/search
func (h *SessionHandler) Apply(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	view := controller.ApplyFilters(c.Request.Context(), req.RawFilters,
		session.ApplyOptions{PreserveResults: req.PreserveResults})
	c.JSON(http.StatusOK, view)
}

// LoadMore handles POST /api/v1/sessions/:id/search/more
func (h *SessionHandler) LoadMore(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, controller.LoadMore(c.Request.Context()))
}

// chatRequest is the body of a chat exchange.
type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/v1/sessions/:id/chat
func (h *SessionHandler) Chat(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, controller.SubmitChatMessage(c.Request.Context(), req.Message))
}

// Restore handles POST /api/v1/sessions/:id/restore
func (h *SessionHandler) Restore(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	var req model.RawFilters
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	view, restored := controller.RestoreFromCache(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{
		"restored": restored,
		"state":    view,
	})
}

// History handles GET /api/v1/sessions/:id/chat/history
func (h *SessionHandler) History(c *gin.Context) {
	controller, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": controller.Transcript()})
}

func (h *SessionHandler) controller(c *gin.Context) (*session.Controller, bool) {
	controller, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return controller, true
}
