package gateway

import (
	"context"
	"strings"
	"time"

	"examprephub/internal/models"
)

// DefaultModels is used when the model list cannot be fetched.
var DefaultModels = []string{"llama3", "mistral"}

// Timeouts are the fixed ceilings of each call.
type Timeouts struct {
	Status time.Duration
	Models time.Duration
	Chat   time.Duration
	Essay  time.Duration
	Quiz   time.Duration
}

// DefaultTimeouts mirrors the ceilings the front-end used.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Status: 5 * time.Second,
		Models: 10 * time.Second,
		Chat:   120 * time.Second,
		Essay:  180 * time.Second,
		Quiz:   180 * time.Second,
	}
}

// Document is the source file of a quiz generation request.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// QuizRequest asks the gateway for NumQuestions questions about Document.
type QuizRequest struct {
	Document     Document
	NumQuestions int
	Model        string
}

// Gateway is the AI service that does all language and document work.
// Implementations must return *Error values so that callers can show the right message.
type Gateway interface {
	Status(ctx context.Context) (models.GatewayStatus, error)
	Models(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, req models.ChatRequest) (string, error)
	EvaluateEssay(ctx context.Context, req models.EssayRequest) (string, error)
	GenerateQuiz(ctx context.Context, req QuizRequest) (*models.GeneratedQuiz, error)
}

// Connected reports whether the gateway says its model runtime is reachable.
func Connected(s models.GatewayStatus) bool {
	switch strings.ToLower(strings.TrimSpace(s.Ollama)) {
	case "connected", "running", "ok", "true":
		return true
	}
	return false
}

// WithTimeout applies d to ctx; a non-positive d means no deadline.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
