package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"examprephub/internal/logger"
	"examprephub/internal/models"
)

const maxResponseBytes = 16 << 20

// HTTPClient talks to the Express gateway in front of the local Ollama runtime.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
	log      *logger.Logger
}

// NewHTTPClient creates a client for the gateway at baseURL (e.g. http://localhost:5000).
// Per-call ceilings come from timeouts; the http.Client itself has no global timeout.
func NewHTTPClient(baseURL string, timeouts Timeouts, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{},
		timeouts: timeouts,
		log:      log.With("component", "GatewayHTTPClient"),
	}
}

// Status calls GET /api/status.
func (c *HTTPClient) Status(ctx context.Context) (models.GatewayStatus, error) {
	ctx, cancel := WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	var status models.GatewayStatus
	body, code, err := c.do(ctx, http.MethodGet, "/api/status", "", nil)
	if err != nil {
		return status, err
	}
	if code < 200 || code >= 300 {
		return status, &Error{Kind: KindConnectivity, Message: MsgConnectivity, Status: code}
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return status, NewError(KindMalformed, MsgInvalidReply, err)
	}
	return status, nil
}

// Models calls GET /api/models. The body may be a bare array or {"models": [...]}.
func (c *HTTPClient) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := WithTimeout(ctx, c.timeouts.Models)
	defer cancel()

	body, code, err := c.do(ctx, http.MethodGet, "/api/models", "", nil)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, errorFromBody(code, body)
	}
	list, err := decodeModelList(body)
	if err != nil {
		return nil, NewError(KindMalformed, MsgInvalidReply, err)
	}
	return list, nil
}

// Chat calls POST /api/chat.
func (c *HTTPClient) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	ctx, cancel := WithTimeout(ctx, c.timeouts.Chat)
	defer cancel()
	return c.postText(ctx, "/api/chat", req)
}

// EvaluateEssay calls POST /api/evaluate-essay.
func (c *HTTPClient) EvaluateEssay(ctx context.Context, req models.EssayRequest) (string, error) {
	ctx, cancel := WithTimeout(ctx, c.timeouts.Essay)
	defer cancel()
	return c.postText(ctx, "/api/evaluate-essay", req)
}

// GenerateQuiz posts the PDF as multipart form data to /api/generate-quiz.
func (c *HTTPClient) GenerateQuiz(ctx context.Context, req QuizRequest) (*models.GeneratedQuiz, error) {
	ctx, cancel := WithTimeout(ctx, c.timeouts.Quiz)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	contentType := req.Document.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdfFile"; filename=%q`, req.Document.Name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := part.Write(req.Document.Data); err != nil {
		return nil, fmt.Errorf("write multipart file part: %w", err)
	}
	if err := mw.WriteField("numQuestions", strconv.Itoa(req.NumQuestions)); err != nil {
		return nil, fmt.Errorf("write numQuestions field: %w", err)
	}
	if req.Model != "" {
		if err := mw.WriteField("model", req.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	c.log.Info("Requesting quiz generation", "file", req.Document.Name, "size", len(req.Document.Data), "num_questions", req.NumQuestions)
	body, code, err := c.do(ctx, http.MethodPost, "/api/generate-quiz", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return nil, errorFromBody(code, body)
	}
	quiz, err := DecodeQuiz(body)
	if err != nil {
		return nil, err
	}
	c.log.Info("Quiz generated", "questions", len(quiz.Quiz))
	return quiz, nil
}

// DecodeQuiz parses a {quiz, note} body and normalises the questions.
// A missing, non-array or empty quiz is reported as malformed.
func DecodeQuiz(body []byte) (*models.GeneratedQuiz, error) {
	var envelope struct {
		Quiz json.RawMessage `json:"quiz"`
		Note *string         `json:"note"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewError(KindMalformed, MsgInvalidQuiz, err)
	}
	trimmed := bytes.TrimSpace(envelope.Quiz)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, NewError(KindMalformed, MsgInvalidQuiz, fmt.Errorf("quiz field missing or not an array"))
	}
	var raw []models.RawQuizQuestion
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, NewError(KindMalformed, MsgInvalidQuiz, err)
	}
	if len(raw) == 0 {
		return nil, NewError(KindMalformed, MsgInvalidQuiz, fmt.Errorf("quiz is empty"))
	}
	questions, dropped := models.NormalizeQuiz(raw)
	if len(questions) == 0 {
		return nil, NewError(KindMalformed, MsgInvalidQuiz, fmt.Errorf("no usable questions (%d dropped)", len(dropped)))
	}
	return &models.GeneratedQuiz{Quiz: questions, Note: envelope.Note}, nil
}

func (c *HTTPClient) postText(ctx context.Context, path string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", path, err)
	}
	body, code, err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	if code < 200 || code >= 300 {
		return "", errorFromBody(code, body)
	}
	var resp models.TextResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", NewError(KindMalformed, MsgInvalidReply, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", NewError(KindMalformed, MsgInvalidReply, fmt.Errorf("empty text in response"))
	}
	return resp.Text, nil
}

// do performs one round trip and returns the (bounded) body and status code.
// Transport failures come back as connectivity or timeout errors.
func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("Gateway request failed", "method", method, "path", path, "error", err)
		return nil, 0, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, classifyTransport(ctx, err)
	}
	return data, resp.StatusCode, nil
}

// errorFromBody surfaces the gateway's own message when the body is JSON.
func errorFromBody(code int, body []byte) *Error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &Error{Kind: KindServer, Message: MsgNotResponding, Status: code}
	}
	msg := strings.TrimSpace(payload.Message)
	if msg == "" {
		msg = strings.TrimSpace(payload.Error)
	}
	if msg == "" {
		msg = fmt.Sprintf("Server error (%d)", code)
	}
	return &Error{Kind: KindServer, Message: msg, Status: code}
}

func decodeModelList(body []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(wrapped.Models))
	for _, m := range wrapped.Models {
		var name string
		if err := json.Unmarshal(m, &name); err == nil {
			out = append(out, name)
			continue
		}
		// Ollama's /api/tags shape: {"name": "..."}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(m, &obj); err != nil {
			return nil, err
		}
		if obj.Name != "" {
			out = append(out, obj.Name)
		}
	}
	return out, nil
}
