package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"examprephub/internal/revision"
)

// MoveTopicRequest is the target position of a topic.
type MoveTopicRequest struct {
	Index int `json:"index"`
}

// SubtopicRequest names a new subtopic.
type SubtopicRequest struct {
	Name string `json:"name"`
}

// maps resolves the caller's revision store.
func (h *Handler) maps(c *gin.Context) (*revision.Store, bool) {
	ws, ok := h.workspace(c)
	if !ok {
		return nil, false
	}
	return ws.Maps(), true
}

// bind decodes the JSON body into v, answering 400 on failure.
func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.badRequest(c, err)
		return false
	}
	return true
}

func (h *Handler) HandleListMaps(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, revision.Views(store.ListMaps()))
}

func (h *Handler) HandleCreateMap(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.MapInput
	if !h.bind(c, &in) {
		return
	}
	m, err := store.CreateMap(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, revision.View(m))
}

func (h *Handler) HandleGetMap(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	m, err := store.GetMap(c.Param("mapId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revision.View(m))
}

func (h *Handler) HandleUpdateMap(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.MapInput
	if !h.bind(c, &in) {
		return
	}
	m, err := store.UpdateMap(c.Request.Context(), c.Param("mapId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revision.View(m))
}

// HandleDeleteMap removes a map and everything in it.
func (h *Handler) HandleDeleteMap(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	if err := store.DeleteMap(c.Request.Context(), c.Param("mapId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleMapSummary returns progress statistics for one map.
func (h *Handler) HandleMapSummary(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	m, err := store.GetMap(c.Param("mapId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revision.Summarize(m, time.Now()))
}

// --- Topics ---

func (h *Handler) HandleAddTopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.TopicInput
	if !h.bind(c, &in) {
		return
	}
	t, err := store.AddTopic(c.Request.Context(), c.Param("mapId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) HandleUpdateTopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.TopicInput
	if !h.bind(c, &in) {
		return
	}
	t, err := store.UpdateTopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) HandleDeleteTopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	if err := store.DeleteTopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleToggleTopic flips the topic's completed flag.
func (h *Handler) HandleToggleTopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	t, err := store.ToggleTopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// HandleMoveTopic reorders a topic within its map.
func (h *Handler) HandleMoveTopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var req MoveTopicRequest
	if !h.bind(c, &req) {
		return
	}
	m, err := store.MoveTopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), req.Index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revision.View(m))
}

// --- Resources ---

func (h *Handler) HandleAddResource(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.ResourceInput
	if !h.bind(c, &in) {
		return
	}
	r, err := store.AddResource(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) HandleUpdateResource(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.ResourceInput
	if !h.bind(c, &in) {
		return
	}
	r, err := store.UpdateResource(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("resourceId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) HandleDeleteResource(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	if err := store.DeleteResource(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("resourceId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Subtopics ---

func (h *Handler) HandleAddSubtopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var req SubtopicRequest
	if !h.bind(c, &req) {
		return
	}
	s, err := store.AddSubtopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) HandleDeleteSubtopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	if err := store.DeleteSubtopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("subtopicId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) HandleToggleSubtopic(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	s, err := store.ToggleSubtopic(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("subtopicId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// --- Study sessions ---

func (h *Handler) HandleAddSession(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.SessionInput
	if !h.bind(c, &in) {
		return
	}
	s, err := store.AddSession(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) HandleUpdateSession(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	var in revision.SessionInput
	if !h.bind(c, &in) {
		return
	}
	s, err := store.UpdateSession(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("sessionId"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) HandleDeleteSession(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	if err := store.DeleteSession(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("sessionId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) HandleToggleSession(c *gin.Context) {
	store, ok := h.maps(c)
	if !ok {
		return
	}
	s, err := store.ToggleSession(c.Request.Context(), c.Param("mapId"), c.Param("topicId"), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
