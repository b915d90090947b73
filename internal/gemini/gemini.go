package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"examprephub/internal/gateway"
	"examprephub/internal/logger"
	"examprephub/internal/models"
)

const (
	// MaxInlineSize is the maximum size for inline PDF data (20MB)
	MaxInlineSize = 20 * 1024 * 1024
	// DefaultModel is used when no model is configured or requested
	DefaultModel = "gemini-2.0-flash"
)

// Client is a gateway.Gateway backed directly by the Gemini API.
type Client struct {
	client       *genai.Client
	defaultModel string
	timeouts     gateway.Timeouts
	log          *logger.Logger
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey, model string, timeouts gateway.Timeouts, log *logger.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client:       client,
		defaultModel: model,
		timeouts:     timeouts,
		log:          log.With("component", "GeminiClient"),
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

// Status lists a single model to prove the API key and network work.
func (c *Client) Status(ctx context.Context) (models.GatewayStatus, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	it := c.client.ListModels(ctx)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		c.log.Warn("Gemini status check failed", "error", err)
		return models.GatewayStatus{Status: "running", Ollama: "disconnected"}, nil
	}
	return models.GatewayStatus{Status: "running", Ollama: "connected"}, nil
}

// Models returns the models that support content generation, without the "models/" prefix.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Models)
	defer cancel()

	var out []string
	it := c.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, gateway.FromError(ctx, err, gateway.MsgInvalidReply)
		}
		if supportsGenerate(m.SupportedGenerationMethods) {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return out, nil
}

func supportsGenerate(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}

// Chat answers a learner question.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Chat)
	defer cancel()

	model := c.model(req.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(gateway.ChatPrompt(req.FastMode)))
	if req.FastMode {
		model.SetMaxOutputTokens(512)
	}
	return c.generateText(ctx, model, genai.Text(req.Message))
}

// EvaluateEssay grades an essay given as text or as a base64 image (data URL or bare).
func (c *Client) EvaluateEssay(ctx context.Context, req models.EssayRequest) (string, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Essay)
	defer cancel()

	model := c.model(req.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(gateway.EssayPrompt(req.IsQuestion)))

	if strings.TrimSpace(req.ImageData) != "" {
		format, data, err := decodeImage(req.ImageData)
		if err != nil {
			return "", gateway.Validation("The uploaded image could not be read")
		}
		return c.generateText(ctx, model, genai.Text("Evaluate the handwritten or scanned answer in this image."), genai.ImageData(format, data))
	}
	return c.generateText(ctx, model, genai.Text(req.EssayText))
}

// GenerateQuiz sends the PDF inline and asks for a JSON quiz.
func (c *Client) GenerateQuiz(ctx context.Context, req gateway.QuizRequest) (*models.GeneratedQuiz, error) {
	ctx, cancel := gateway.WithTimeout(ctx, c.timeouts.Quiz)
	defer cancel()

	if len(req.Document.Data) == 0 {
		return nil, gateway.Validation("The selected file is empty")
	}
	if len(req.Document.Data) > MaxInlineSize {
		return nil, gateway.Validation("File is too large for inline processing")
	}

	model := c.model(req.Model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(8192)

	c.log.Info("Generating quiz", "file", req.Document.Name, "num_questions", req.NumQuestions)
	text, err := c.generateText(ctx, model,
		genai.Text(gateway.QuizPrompt(req.NumQuestions)),
		genai.Blob{MIMEType: "application/pdf", Data: req.Document.Data},
	)
	if err != nil {
		return nil, err
	}

	body := gateway.LimitQuiz([]byte(gateway.ExtractJSON(text)), req.NumQuestions)
	quiz, err := gateway.DecodeQuiz(body)
	if err != nil {
		c.log.Debug("Unusable quiz JSON from Gemini", "raw", text)
		return nil, err
	}
	c.log.Info("Quiz generated", "questions", len(quiz.Quiz))
	return quiz, nil
}

func (c *Client) model(name string) *genai.GenerativeModel {
	if name == "" {
		name = c.defaultModel
	}
	return c.client.GenerativeModel(name)
}

func (c *Client) generateText(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		c.log.Warn("Gemini request failed", "error", err)
		return "", gateway.FromError(ctx, err, "The AI service could not process the request")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidReply, fmt.Errorf("no content generated"))
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidReply, fmt.Errorf("empty text in response"))
	}
	return sb.String(), nil
}

// decodeImage accepts "data:image/png;base64,...." or bare base64 (assumed jpeg).
func decodeImage(s string) (string, []byte, error) {
	format := "jpeg"
	if strings.HasPrefix(s, "data:") {
		comma := strings.Index(s, ",")
		if comma < 0 {
			return "", nil, fmt.Errorf("malformed data URL")
		}
		meta := s[len("data:"):comma]
		mimeType := strings.TrimSuffix(meta, ";base64")
		format = strings.TrimPrefix(mimeType, "image/")
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	return format, data, nil
}
