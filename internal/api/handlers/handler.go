package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"examprephub/internal/gateway"
	"examprephub/internal/logger"
	"examprephub/internal/models"
	"examprephub/internal/quiz"
	"examprephub/internal/revision"
	"examprephub/internal/workspace"
)

// OwnerKey is the gin context key holding the learner id set by the session middleware.
const OwnerKey = "owner"

// Handler contains the API handlers dependencies
type Handler struct {
	Workspaces *workspace.Manager
	log        *logger.Logger
}

// NewHandler creates a new Handler
func NewHandler(workspaces *workspace.Manager, log *logger.Logger) *Handler {
	return &Handler{
		Workspaces: workspaces,
		log:        log.With("component", "Handler"),
	}
}

// HandleHealth is the liveness probe. It does not touch the gateway.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// workspace resolves the caller's workspace, aborting the request on failure.
func (h *Handler) workspace(c *gin.Context) (*workspace.Workspace, bool) {
	owner := c.GetString(OwnerKey)
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Session required", Kind: "session"})
		return nil, false
	}
	ws, err := h.Workspaces.Get(c.Request.Context(), owner)
	if err != nil {
		h.log.Error("Failed to load workspace", "owner", owner, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Could not load your saved data", Kind: string(gateway.KindServer)})
		return nil, false
	}
	return ws, true
}

// respondError maps err onto a status code and the {"error", "kind"} body.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, kind := classify(err)
	message := err.Error()
	if gateway.KindOf(err) != "" {
		message = gateway.MessageOf(err)
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "status", status, "kind", kind, "error", err)
		if gateway.KindOf(err) == "" {
			message = gateway.MsgGenericFailure
		}
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Kind: kind})
}

func classify(err error) (int, string) {
	switch gateway.KindOf(err) {
	case gateway.KindValidation:
		return http.StatusBadRequest, string(gateway.KindValidation)
	case gateway.KindConnectivity, gateway.KindUpstreamDown:
		return http.StatusServiceUnavailable, string(gateway.KindOf(err))
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout, string(gateway.KindTimeout)
	case gateway.KindMalformed, gateway.KindServer:
		return http.StatusBadGateway, string(gateway.KindOf(err))
	}

	switch {
	case errors.Is(err, revision.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, revision.ErrInvalid),
		errors.Is(err, quiz.ErrNoFile),
		errors.Is(err, quiz.ErrUnknownOption),
		errors.Is(err, quiz.ErrUnknownQuestion):
		return http.StatusBadRequest, string(gateway.KindValidation)
	case errors.Is(err, quiz.ErrWrongStage),
		errors.Is(err, quiz.ErrBusy),
		errors.Is(err, quiz.ErrCancelled),
		errors.Is(err, quiz.ErrStaleTicket),
		errors.Is(err, quiz.ErrUnanswered),
		errors.Is(err, quiz.ErrIncomplete),
		errors.Is(err, quiz.ErrQuizCompleted),
		errors.Is(err, quiz.ErrNotCompleted):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, string(gateway.KindServer)
}

// badRequest reports an unreadable request body.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.log.Debug("Invalid request body", "path", c.FullPath(), "error", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Kind: string(gateway.KindValidation)})
}
