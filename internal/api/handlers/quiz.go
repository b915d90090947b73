package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"examprephub/internal/gateway"
	"examprephub/internal/models"
	"examprephub/internal/quiz"
	"examprephub/internal/upload"
	"examprephub/internal/workspace"
)

// maxUploadBody leaves room for the multipart framing around a MaxFileSize file.
const maxUploadBody = upload.MaxFileSize + 1<<20

// QuizResponse is the quiz state plus values derived from it.
type QuizResponse struct {
	quiz.State
	Generating bool `json:"generating"`
	Percentage *int `json:"percentage,omitempty"`
}

func quizResponse(s quiz.State, generating bool) QuizResponse {
	resp := QuizResponse{State: s, Generating: generating}
	if s.Score != nil {
		p := quiz.Percentage(*s.Score, len(s.Questions))
		resp.Percentage = &p
	}
	return resp
}

// GenerateQuizRequest is the Configure step's choice.
type GenerateQuizRequest struct {
	NumQuestions *int   `json:"numQuestions"`
	Model        string `json:"model"`
}

// SelectAnswerRequest records one answer.
type SelectAnswerRequest struct {
	QuestionID int    `json:"questionId"`
	OptionID   string `json:"optionId"`
}

// HandleGetQuiz returns the quiz state.
func (h *Handler) HandleGetQuiz(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, quizResponse(ws.QuizState(), ws.Generating()))
}

// HandleSelectFile validates the uploaded PDF (multipart field "pdfFile").
func (h *Handler) HandleSelectFile(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBody)
	header, err := c.FormFile("pdfFile")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(c, gateway.Validation(upload.MsgTooLarge))
			return
		}
		h.respondError(c, gateway.Validation(upload.MsgEmptyFile))
		return
	}
	if header.Size > upload.MaxFileSize {
		h.respondError(c, gateway.Validation(upload.MsgTooLarge))
		return
	}

	src, err := header.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to open uploaded file: %w", err))
		return
	}
	defer src.Close()

	file, err := upload.Read(header.Filename, header.Header.Get("Content-Type"), header.Size, src)
	if err != nil {
		h.respondError(c, err)
		return
	}
	state, err := ws.SelectFile(c.Request.Context(), file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizResponse(state, false))
}

// HandleContinue moves from Upload to Configure.
func (h *Handler) HandleContinue(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Continue(ctx) })
}

// HandleGenerateQuiz asks the gateway for a quiz and blocks until it is ready,
// failed or was cancelled. Progress can be polled meanwhile.
func (h *Handler) HandleGenerateQuiz(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	var req GenerateQuizRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	count := upload.DefaultQuestionCount
	if req.NumQuestions != nil {
		count = upload.QuestionCount(*req.NumQuestions)
	}

	state, err := ws.GenerateQuiz(c.Request.Context(), count, req.Model)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizResponse(state, false))
}

// HandleQuizProgress returns the synthetic progress value. It is cosmetic.
func (h *Handler) HandleQuizProgress(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws.Progress())
}

// HandleCancelGeneration flags the running generation; its result is discarded.
func (h *Handler) HandleCancelGeneration(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	if err := ws.Cancel(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}

// HandleSelectAnswer records the learner's choice for a question.
func (h *Handler) HandleSelectAnswer(c *gin.Context) {
	var req SelectAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	option, err := models.ParseOptionID(req.OptionID)
	if err != nil {
		h.respondError(c, quiz.ErrUnknownOption)
		return
	}
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) {
		return ws.SelectAnswer(ctx, req.QuestionID, option)
	})
}

func (h *Handler) HandleNextQuestion(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Next(ctx) })
}

func (h *Handler) HandlePreviousQuestion(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Previous(ctx) })
}

// HandleFinishQuiz grades the quiz.
func (h *Handler) HandleFinishQuiz(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Finish(ctx) })
}

func (h *Handler) HandleBackToQuiz(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Back(ctx) })
}

// HandleResetQuiz starts over from Upload.
func (h *Handler) HandleResetQuiz(c *gin.Context) {
	h.transition(c, func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error) { return ws.Reset(ctx) })
}

// HandleReviewQuiz lists per-question results of a submitted quiz.
func (h *Handler) HandleReviewQuiz(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	results, err := ws.Review()
	if err != nil {
		h.respondError(c, err)
		return
	}
	state := ws.QuizState()
	score := 0
	if state.Score != nil {
		score = *state.Score
	}
	c.JSON(http.StatusOK, gin.H{
		"score":      score,
		"total":      len(state.Questions),
		"percentage": quiz.Percentage(score, len(state.Questions)),
		"results":    results,
	})
}

// transition applies one quiz step and returns the new state.
func (h *Handler) transition(c *gin.Context, step func(ctx context.Context, ws *workspace.Workspace) (quiz.State, error)) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	state, err := step(c.Request.Context(), ws)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizResponse(state, false))
}
