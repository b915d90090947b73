package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"examprephub/internal/models"
)

// HandleAssistantStatus runs the gateway pre-flight and reports the chosen model.
func (h *Handler) HandleAssistantStatus(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	ready, err := ws.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ready)
}

// HandleListModels returns the available models, falling back to the default list.
func (h *Handler) HandleListModels(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	list, fallback := ws.Models(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"models": list, "fallback": fallback})
}

// HandleChat answers a question with the AI assistant.
func (h *Handler) HandleChat(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	text, err := ws.Chat(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TextResponse{Text: text})
}

// HandleEvaluateEssay returns feedback on an essay or an answer to a question.
func (h *Handler) HandleEvaluateEssay(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req models.EssayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	text, err := ws.EvaluateEssay(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TextResponse{Text: text})
}

func (h *Handler) HandleRecentQuestions(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": ws.RecentQuestions()})
}

func (h *Handler) HandleClearRecentQuestions(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.ClearRecentQuestions(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
