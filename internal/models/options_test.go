package models

import (
	"encoding/json"
	"testing"
)

func TestParseOptionID(t *testing.T) {
	tests := []struct {
		in      string
		want    OptionID
		wantErr bool
	}{
		{"A", OptionA, false},
		{"b", OptionB, false},
		{" C) ", OptionC, false},
		{"(d)", OptionD, false},
		{"Option A", OptionA, false},
		{"E", "", true},
		{"", "", true},
		{"AB", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOptionID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseOptionID(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseOptionID(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseOptionID(%q): want=%q got=%q", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeQuizLenientInput(t *testing.T) {
	body := `[
		{"id": 1, "question": "Capital of India?", "options": [
			{"id": "A", "text": "Mumbai"}, {"id": "B", "text": "New Delhi"},
			{"id": "C", "text": "Kolkata"}, {"id": "D", "text": "Chennai"}],
		 "correctAnswer": "B", "explanation": "New Delhi is the capital."},
		{"id": "2", "question": "Largest planet?", "options": ["Mars", "Venus", "Jupiter", "Earth"],
		 "correctAnswer": "Jupiter"},
		{"question": "Bad", "options": ["only", "three", "options"], "correctAnswer": "A"},
		{"id": 4, "question": "Numeric answer", "options": ["w", "x", "y", "z"], "correctAnswer": 3}
	]`
	var raw []RawQuizQuestion
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	quiz, dropped := NormalizeQuiz(raw)
	if len(dropped) != 1 {
		t.Fatalf("dropped: want=1 got=%d (%v)", len(dropped), dropped)
	}
	if len(quiz) != 3 {
		t.Fatalf("questions: want=3 got=%d", len(quiz))
	}
	if quiz[0].CorrectAnswer != OptionB {
		t.Fatalf("q1 answer: want=B got=%q", quiz[0].CorrectAnswer)
	}
	if quiz[1].Options[2].ID != OptionC || quiz[1].CorrectAnswer != OptionC {
		t.Fatalf("q2: want relabelled options with answer C, got %+v", quiz[1])
	}
	if quiz[2].CorrectAnswer != OptionD {
		t.Fatalf("q3 answer: want=D got=%q", quiz[2].CorrectAnswer)
	}
	if quiz[0].ID != 1 || quiz[1].ID != 2 || quiz[2].ID != 4 {
		t.Fatalf("ids should be kept when unique: %d %d %d", quiz[0].ID, quiz[1].ID, quiz[2].ID)
	}
}

func TestNormalizeQuizRenumbersDuplicateIDs(t *testing.T) {
	opts := []RawOption{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	raw := []RawQuizQuestion{
		{ID: float64(7), Question: "one", Options: opts, CorrectAnswer: "A"},
		{ID: float64(7), Question: "two", Options: opts, CorrectAnswer: "B"},
	}
	quiz, dropped := NormalizeQuiz(raw)
	if len(dropped) != 0 {
		t.Fatalf("dropped: %v", dropped)
	}
	if quiz[0].ID != 1 || quiz[1].ID != 2 {
		t.Fatalf("ids: want 1,2 got %d,%d", quiz[0].ID, quiz[1].ID)
	}
}

func TestNormalizeQuizUnknownAnswerDropped(t *testing.T) {
	raw := []RawQuizQuestion{{
		ID:            float64(1),
		Question:      "q",
		Options:       []RawOption{{ID: "A", Text: "a"}, {ID: "B", Text: "b"}, {ID: "C", Text: "c"}, {ID: "D", Text: "d"}},
		CorrectAnswer: "none of these",
	}}
	quiz, dropped := NormalizeQuiz(raw)
	if len(quiz) != 0 || len(dropped) != 1 {
		t.Fatalf("want question dropped, got quiz=%v dropped=%v", quiz, dropped)
	}
}
