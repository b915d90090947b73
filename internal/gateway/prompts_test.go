package gateway

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"quiz": []}`, `{"quiz": []}`},
		{"fenced", "Here you go:\n```json\n{\"quiz\": [1]}\n```\nGood luck!", `{"quiz": [1]}`},
		{"prose around", `Sure! {"quiz": [{"id": 1}]} Hope this helps.`, `{"quiz": [{"id": 1}]}`},
		{"truncated", `{"quiz": [{"id": 1, "question": "Q"`, `{"quiz": [{"id": 1, "question": "Q"}]}`},
		{"truncated in string", `{"quiz": [{"id": 1, "question": "Wh`, `{"quiz": [{"id": 1, "question": "Wh"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.in)
			if got != tt.want {
				t.Fatalf("ExtractJSON: want=%q got=%q", tt.want, got)
			}
			if !json.Valid([]byte(got)) {
				t.Fatalf("result is not valid JSON: %q", got)
			}
		})
	}
}

func TestLimitQuiz(t *testing.T) {
	body := []byte(`{"quiz":[{"id":1},{"id":2},{"id":3}],"note":"n"}`)
	got := LimitQuiz(body, 2)
	var out struct {
		Quiz []map[string]int `json:"quiz"`
		Note string           `json:"note"`
	}
	if err := json.Unmarshal(got, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Quiz) != 2 || out.Note != "n" {
		t.Fatalf("LimitQuiz: %s", got)
	}
	if string(LimitQuiz(body, 5)) != string(body) {
		t.Fatalf("LimitQuiz should leave short quizzes untouched")
	}
}

func TestPrompts(t *testing.T) {
	if !strings.Contains(QuizPrompt(10), "exactly 10 questions") {
		t.Fatalf("QuizPrompt does not carry the count")
	}
	if ChatPrompt(true) == ChatPrompt(false) {
		t.Fatalf("fast mode should change the chat prompt")
	}
	if EssayPrompt(true) == EssayPrompt(false) {
		t.Fatalf("question mode should change the essay prompt")
	}
}
