package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OptionID identifies one of the four answer choices.
type OptionID string

const (
	OptionA OptionID = "A"
	OptionB OptionID = "B"
	OptionC OptionID = "C"
	OptionD OptionID = "D"
)

// OptionIDs lists the choices in display order.
var OptionIDs = []OptionID{OptionA, OptionB, OptionC, OptionD}

// OptionsPerQuestion is the number of choices every question must carry.
const OptionsPerQuestion = 4

// Valid reports whether id is A, B, C or D.
func (id OptionID) Valid() bool {
	return id.Index() >= 0
}

// Index returns the 0-based position of id, or -1 when id is not a known choice.
func (id OptionID) Index() int {
	for i, known := range OptionIDs {
		if id == known {
			return i
		}
	}
	return -1
}

// ParseOptionID normalises generator output such as "a", " B ", "C)", "(d)" or "Option A".
func ParseOptionID(s string) (OptionID, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "OPTION")
	v = strings.Trim(v, " ().:")
	id := OptionID(v)
	if !id.Valid() {
		return "", fmt.Errorf("invalid option id %q", s)
	}
	return id, nil
}

// UnmarshalJSON accepts both {"id":"A","text":"..."} and a bare "..." string.
func (o *RawOption) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		o.ID = ""
		o.Text = text
		return nil
	}
	type plain RawOption
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = RawOption(p)
	return nil
}

// FlexString decodes from either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// NormalizeQuiz turns lenient generator output into well-formed questions.
//
// Option ids are kept when they are valid and unique within the question, otherwise
// every option of that question is re-labelled by position (A, B, C, D). The correct
// answer may be given as an option id, as the exact option text, or as a 0-based
// index. Questions that cannot be repaired are dropped and reported in the second
// return value. Question ids are renumbered 1..n when missing or duplicated.
func NormalizeQuiz(raw []RawQuizQuestion) ([]QuizQuestion, []error) {
	var out []QuizQuestion
	var dropped []error
	for i, rq := range raw {
		q, err := normalizeQuestion(rq)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("question %d: %w", i+1, err))
			continue
		}
		out = append(out, q)
	}

	seen := make(map[int]bool, len(out))
	renumber := false
	for _, q := range out {
		if q.ID <= 0 || seen[q.ID] {
			renumber = true
			break
		}
		seen[q.ID] = true
	}
	if renumber {
		for i := range out {
			out[i].ID = i + 1
		}
	}
	return out, dropped
}

func normalizeQuestion(rq RawQuizQuestion) (QuizQuestion, error) {
	text := strings.TrimSpace(rq.Question)
	if text == "" {
		return QuizQuestion{}, fmt.Errorf("empty question text")
	}
	if len(rq.Options) != OptionsPerQuestion {
		return QuizQuestion{}, fmt.Errorf("expected %d options, got %d", OptionsPerQuestion, len(rq.Options))
	}

	options := make([]Option, len(rq.Options))
	ids := make(map[OptionID]bool, len(rq.Options))
	relabel := false
	for i, ro := range rq.Options {
		optText := strings.TrimSpace(ro.Text)
		if optText == "" {
			return QuizQuestion{}, fmt.Errorf("option %d has no text", i+1)
		}
		id, err := ParseOptionID(ro.ID)
		if err != nil || ids[id] {
			relabel = true
		}
		ids[id] = true
		options[i] = Option{ID: id, Text: optText}
	}
	if relabel {
		for i := range options {
			options[i].ID = OptionIDs[i]
		}
	}

	correct, err := resolveCorrectAnswer(string(rq.CorrectAnswer), rq.Options, options)
	if err != nil {
		return QuizQuestion{}, err
	}

	return QuizQuestion{
		ID:            questionID(rq.ID),
		Question:      text,
		Options:       options,
		CorrectAnswer: correct,
		Explanation:   strings.TrimSpace(rq.Explanation),
	}, nil
}

func resolveCorrectAnswer(answer string, raw []RawOption, options []Option) (OptionID, error) {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return "", fmt.Errorf("missing correct answer")
	}
	// Raw ids first so that a relabelled question still maps its original answer.
	for i, ro := range raw {
		if ro.ID != "" && strings.EqualFold(strings.TrimSpace(ro.ID), trimmed) {
			return options[i].ID, nil
		}
	}
	if id, err := ParseOptionID(trimmed); err == nil {
		for _, o := range options {
			if o.ID == id {
				return id, nil
			}
		}
	}
	for _, o := range options {
		if strings.EqualFold(o.Text, trimmed) {
			return o.ID, nil
		}
	}
	if idx, err := strconv.Atoi(trimmed); err == nil && idx >= 0 && idx < len(options) {
		return options[idx].ID, nil
	}
	return "", fmt.Errorf("correct answer %q does not match any option", answer)
}

func questionID(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}
