package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"examprephub/internal/logger"
	"examprephub/internal/models"
)

const validQuizBody = `{"quiz": [
	{"id": 1, "question": "Q1", "options": [{"id":"A","text":"a"},{"id":"B","text":"b"},{"id":"C","text":"c"},{"id":"D","text":"d"}], "correctAnswer": "A", "explanation": "e1"},
	{"id": 2, "question": "Q2", "options": [{"id":"A","text":"a"},{"id":"B","text":"b"},{"id":"C","text":"c"},{"id":"D","text":"d"}], "correctAnswer": "C", "explanation": "e2"}
], "note": "Generated from the first 20 pages"}`

func newTestClient(t *testing.T, h http.HandlerFunc, timeouts Timeouts) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, timeouts, logger.NewNop())
}

func TestGenerateQuizSuccess(t *testing.T) {
	var gotCount, gotName string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate-quiz" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotCount = r.FormValue("numQuestions")
		if fh := r.MultipartForm.File["pdfFile"]; len(fh) == 1 {
			gotName = fh[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, validQuizBody)
	}, DefaultTimeouts())

	quiz, err := c.GenerateQuiz(context.Background(), QuizRequest{
		Document:     Document{Name: "polity.pdf", Data: []byte("%PDF-1.4 test")},
		NumQuestions: 5,
	})
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if gotCount != "5" || gotName != "polity.pdf" {
		t.Fatalf("multipart: numQuestions=%q file=%q", gotCount, gotName)
	}
	if len(quiz.Quiz) != 2 || quiz.Quiz[1].CorrectAnswer != models.OptionC {
		t.Fatalf("unexpected quiz: %+v", quiz.Quiz)
	}
	if quiz.Note == nil || *quiz.Note != "Generated from the first 20 pages" {
		t.Fatalf("note: got=%v", quiz.Note)
	}
}

func TestGenerateQuizFailureShapes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{"json error body", http.StatusInternalServerError, `{"message": "PDF has no extractable text"}`, KindServer, "PDF has no extractable text"},
		{"json error field", http.StatusBadRequest, `{"error": "numQuestions must be 3-20"}`, KindServer, "numQuestions must be 3-20"},
		{"html error body", http.StatusBadGateway, `<html>Bad Gateway</html>`, KindServer, MsgNotResponding},
		{"empty quiz", http.StatusOK, `{"quiz": []}`, KindMalformed, MsgInvalidQuiz},
		{"missing quiz", http.StatusOK, `{"note": "nothing"}`, KindMalformed, MsgInvalidQuiz},
		{"quiz not array", http.StatusOK, `{"quiz": {"id": 1}}`, KindMalformed, MsgInvalidQuiz},
		{"not json", http.StatusOK, `ok`, KindMalformed, MsgInvalidQuiz},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, DefaultTimeouts())
			_, err := c.GenerateQuiz(context.Background(), QuizRequest{Document: Document{Name: "a.pdf", Data: []byte("%PDF-")}, NumQuestions: 3})
			if err == nil {
				t.Fatalf("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind: want=%q got=%q (%v)", tt.wantKind, KindOf(err), err)
			}
			if MessageOf(err) != tt.wantMsg {
				t.Fatalf("message: want=%q got=%q", tt.wantMsg, MessageOf(err))
			}
		})
	}
}

func TestGenerateQuizTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Timeouts{Quiz: 50 * time.Millisecond})

	_, err := c.GenerateQuiz(context.Background(), QuizRequest{Document: Document{Name: "a.pdf", Data: []byte("%PDF-")}, NumQuestions: 3})
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind: want=%q got=%q (%v)", KindTimeout, KindOf(err), err)
	}
}

func TestChatAndEssay(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/api/chat":
			if !strings.Contains(string(body), `"fastMode":true`) {
				t.Errorf("chat body missing fastMode: %s", body)
			}
			io.WriteString(w, `{"text": "Article 21 protects life and liberty."}`)
		case "/api/evaluate-essay":
			io.WriteString(w, `{"text": ""}`)
		}
	}, DefaultTimeouts())

	text, err := c.Chat(context.Background(), models.ChatRequest{Message: "Explain Article 21", Model: "llama3", FastMode: true})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.HasPrefix(text, "Article 21") {
		t.Fatalf("Chat text: got=%q", text)
	}

	_, err = c.EvaluateEssay(context.Background(), models.EssayRequest{EssayText: "essay"})
	if KindOf(err) != KindMalformed {
		t.Fatalf("empty essay text: want malformed, got %v", err)
	}
}

func TestModelsShapes(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{`["llama3", "phi3"]`, []string{"llama3", "phi3"}},
		{`{"models": ["gemma"]}`, []string{"gemma"}},
		{`{"models": [{"name": "qwen2"}]}`, []string{"qwen2"}},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, tt.body)
		}, DefaultTimeouts())
		got, err := c.Models(context.Background())
		if err != nil {
			t.Fatalf("Models(%s): %v", tt.body, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Fatalf("Models(%s): want=%v got=%v", tt.body, tt.want, got)
		}
	}
}

func TestPreflightStatusTimeoutStopsBeforeOtherCalls(t *testing.T) {
	var modelCalls int32
	release := make(chan struct{})
	defer close(release)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			select {
			case <-release:
			case <-r.Context().Done():
			}
		case "/api/models":
			atomic.AddInt32(&modelCalls, 1)
			io.WriteString(w, `["llama3"]`)
		}
	}, Timeouts{Status: 50 * time.Millisecond, Models: time.Second})

	_, err := Preflight(context.Background(), c, "", logger.NewNop())
	if KindOf(err) != KindConnectivity {
		t.Fatalf("kind: want=%q got=%q", KindConnectivity, KindOf(err))
	}
	if !strings.HasPrefix(MessageOf(err), "Cannot connect to the backend server") {
		t.Fatalf("message: got=%q", MessageOf(err))
	}
	if n := atomic.LoadInt32(&modelCalls); n != 0 {
		t.Fatalf("models endpoint called %d times after failed status", n)
	}
}

func TestPreflightUpstreamDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status": "running", "ollama": "disconnected"}`)
	}, DefaultTimeouts())

	_, err := Preflight(context.Background(), c, "", logger.NewNop())
	if KindOf(err) != KindUpstreamDown {
		t.Fatalf("kind: want=%q got=%q", KindUpstreamDown, KindOf(err))
	}
}

func TestPreflightModelsFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			io.WriteString(w, `{"status": "running", "ollama": "connected"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}, DefaultTimeouts())

	ready, err := Preflight(context.Background(), c, "mistral", logger.NewNop())
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if !ready.ModelsFallback || len(ready.Models) != 2 {
		t.Fatalf("want fallback list of 2, got %+v", ready)
	}
	if ready.Model != "mistral" {
		t.Fatalf("Model: want=%q got=%q", "mistral", ready.Model)
	}
}

func TestPickModel(t *testing.T) {
	if got := PickModel([]string{"a", "b"}, "b"); got != "b" {
		t.Fatalf("preferred present: got=%q", got)
	}
	if got := PickModel([]string{"a", "b"}, "z"); got != "a" {
		t.Fatalf("preferred missing: got=%q", got)
	}
	if got := PickModel(nil, "z"); got != "z" {
		t.Fatalf("empty list: got=%q", got)
	}
}
