package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Prompts shared by the direct providers (Gemini, Ollama). The HTTP gateway
// builds its own prompts server-side.

const quizPromptTemplate = `Generate a multiple-choice quiz of exactly %d questions based on the content of the provided study material. Follow these requirements exactly:

1. Cover the most important concepts, facts and arguments of the material, spread across all of its sections.
2. Mix question types: factual recall, comprehension, and application/analysis questions that ask about causes, consequences and relationships between ideas.
3. Each question must have exactly 4 options labelled "A", "B", "C" and "D" with exactly one correct answer.
4. Make incorrect options plausible: use common misconceptions or partial understandings, keep all options of similar length and style, and avoid joke options.
5. Give a short explanation of why the correct answer is correct, based on the material.

Respond with a JSON object only, using this structure:
{
  "quiz": [
    {
      "id": 1,
      "question": "Question text here?",
      "options": [
        {"id": "A", "text": "Option A"},
        {"id": "B", "text": "Option B"},
        {"id": "C", "text": "Option C"},
        {"id": "D", "text": "Option D"}
      ],
      "correctAnswer": "B",
      "explanation": "Why B is correct."
    }
  ]
}
`

// QuizPrompt asks for n questions in the {quiz: [...]} wire shape.
func QuizPrompt(n int) string {
	return fmt.Sprintf(quizPromptTemplate, n)
}

const (
	chatPrompt     = `You are a patient study assistant helping a student prepare for a competitive exam. Answer accurately and structure longer answers with short headings or bullet points. If a question is ambiguous, state your assumption.`
	fastChatPrompt = `You are a study assistant. Answer in at most a few sentences, accurately and without preamble.`
	essayPrompt    = `You are an experienced examiner. Evaluate the following essay answer. Comment on structure, content coverage, use of examples, and language, then give a score out of 10 and three concrete suggestions for improvement.`
	questionPrompt = `You are an experienced examiner. The following is an exam question. Explain what the examiner expects, outline a model answer structure, and list the key points a strong answer must cover.`
)

// ChatPrompt is the system instruction for assistant chat.
func ChatPrompt(fast bool) string {
	if fast {
		return fastChatPrompt
	}
	return chatPrompt
}

// EssayPrompt is the instruction for essay evaluation, or for question analysis when isQuestion is set.
func EssayPrompt(isQuestion bool) string {
	if isQuestion {
		return questionPrompt
	}
	return essayPrompt
}

var (
	codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	quizArrayPattern = regexp.MustCompile(`(?s)"quiz"\s*:\s*\[(.*)\]`)
)

// ExtractJSON pulls the JSON object out of model output that may be wrapped in
// markdown fences or prose, and tries to close a truncated object.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return text
	}
	if m := codeBlockPattern.FindStringSubmatch(text); len(m) > 1 && json.Valid([]byte(m[1])) {
		return m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start && json.Valid([]byte(text[start:end+1])) {
		return text[start : end+1]
	}
	if start >= 0 {
		if fixed := balanceBraces(text[start:]); json.Valid([]byte(fixed)) {
			return fixed
		}
	}
	// Last resort: keep the complete questions of a truncated quiz array.
	if m := quizArrayPattern.FindStringSubmatch(text); len(m) > 1 {
		body := m[1]
		if i := strings.LastIndex(body, "}"); i >= 0 {
			fixed := `{"quiz":[` + body[:i+1] + `]}`
			if json.Valid([]byte(fixed)) {
				return fixed
			}
		}
	}
	return text
}

// balanceBraces appends the closing brackets missing from a truncated object.
func balanceBraces(s string) string {
	var stack []rune
	inString, escaped := false, false
	for _, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case (ch == '}' || ch == ']') && len(stack) > 0:
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// LimitQuiz trims a decoded quiz to at most n questions.
func LimitQuiz(body []byte, n int) []byte {
	if n <= 0 {
		return body
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	var items []json.RawMessage
	if err := json.Unmarshal(envelope["quiz"], &items); err != nil || len(items) <= n {
		return body
	}
	trimmed, err := json.Marshal(items[:n])
	if err != nil {
		return body
	}
	envelope["quiz"] = trimmed
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return out
}
