package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"examprephub/internal/gateway"
	"examprephub/internal/logger"
	"examprephub/internal/models"
)

// MaxSourceChars bounds how much extracted PDF text goes into one prompt.
const MaxSourceChars = 24000

// Client talks to a local Ollama runtime through its OpenAI-compatible API.
type Client struct {
	client       *openai.Client
	defaultModel string
	timeouts     gateway.Timeouts
	log          *logger.Logger
}

// NewClient creates a client for baseURL, e.g. http://localhost:11434/v1.
func NewClient(baseURL, defaultModel string, timeouts gateway.Timeouts, log *logger.Logger) *Client {
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
		timeouts:     timeouts,
		log:          log.With("component", "OllamaClient"),
	}
}

// Status reports the runtime as connected when its model list answers.
func (c *Client) Status(ctx context.Context) (models.GatewayStatus, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	if _, err := c.client.ListModels(ctx); err != nil {
		c.log.Warn("Ollama status check failed", "error", err)
		return models.GatewayStatus{}, gateway.FromError(ctx, err, gateway.MsgConnectivity)
	}
	return models.GatewayStatus{Status: "running", Ollama: "connected"}, nil
}

// Models lists the locally pulled models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Models)
	defer cancel()

	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	out := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, m.ID)
	}
	return out, nil
}

// Chat answers a learner question.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Chat)
	defer cancel()

	creq := openai.ChatCompletionRequest{
		Model: c.model(req.Model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gateway.ChatPrompt(req.FastMode)},
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
	}
	if req.FastMode {
		creq.MaxTokens = 512
	}
	return c.complete(ctx, creq)
}

// EvaluateEssay grades an essay given as text or as an image (for vision models).
func (c *Client) EvaluateEssay(ctx context.Context, req models.EssayRequest) (string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Essay)
	defer cancel()

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.EssayText}
	if img := strings.TrimSpace(req.ImageData); img != "" {
		if !strings.HasPrefix(img, "data:") {
			img = "data:image/jpeg;base64," + img
		}
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Evaluate the handwritten or scanned answer in this image."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: img}},
			},
		}
	}
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model(req.Model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gateway.EssayPrompt(req.IsQuestion)},
			user,
		},
	})
}

// GenerateQuiz extracts the PDF text locally and asks the model for a JSON quiz.
// When the text is cut to MaxSourceChars the returned note says so.
func (c *Client) GenerateQuiz(ctx context.Context, req gateway.QuizRequest) (*models.GeneratedQuiz, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Quiz)
	defer cancel()

	text, err := ExtractText(req.Document.Data)
	if err != nil {
		c.log.Warn("PDF text extraction failed", "file", req.Document.Name, "error", err)
		return nil, gateway.Validation("Could not read text from the PDF. Scanned documents are not supported.")
	}
	source, truncated := truncate(text, MaxSourceChars)

	c.log.Info("Generating quiz", "file", req.Document.Name, "chars", len(source), "truncated", truncated, "num_questions", req.NumQuestions)
	out, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:          c.model(req.Model),
		Temperature:    0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gateway.QuizPrompt(req.NumQuestions)},
			{Role: openai.ChatMessageRoleUser, Content: "Study material:\n\n" + source},
		},
	})
	if err != nil {
		return nil, err
	}

	quiz, err := gateway.DecodeQuiz(gateway.LimitQuiz([]byte(gateway.ExtractJSON(out)), req.NumQuestions))
	if err != nil {
		c.log.Debug("Unusable quiz JSON from Ollama", "raw", out)
		return nil, err
	}
	if truncated && quiz.Note == nil {
		note := fmt.Sprintf("The document was long, so questions were generated from its first %d characters.", MaxSourceChars)
		quiz.Note = &note
	}
	return quiz, nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.log.Warn("Ollama request failed", "model", req.Model, "error", err)
		return "", c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidReply, fmt.Errorf("no content generated"))
	}
	return resp.Choices[0].Message.Content, nil
}

// classify surfaces Ollama's own error message for API errors (e.g. unknown model).
func (c *Client) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &gateway.Error{Kind: gateway.KindServer, Message: apiErr.Message, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 500 {
		return &gateway.Error{Kind: gateway.KindServer, Message: gateway.MsgNotResponding, Status: reqErr.HTTPStatusCode, Err: err}
	}
	return gateway.FromError(ctx, err, "")
}

func (c *Client) model(name string) string {
	if name != "" {
		return name
	}
	if c.defaultModel != "" {
		return c.defaultModel
	}
	return gateway.DefaultModels[0]
}

// truncate cuts s to at most n bytes on a word boundary.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := s[:n]
	if i := strings.LastIndexAny(cut, " \n\t"); i > n/2 {
		cut = cut[:i]
	}
	return strings.ToValidUTF8(cut, ""), true
}
