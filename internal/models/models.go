package models

import (
	"time"
)

// Option represents one answer choice of a quiz question
type Option struct {
	ID   OptionID `json:"id"`
	Text string   `json:"text"`
}

// QuizQuestion is a multiple-choice question as produced by the AI gateway.
// It is never modified after normalisation.
type QuizQuestion struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []Option `json:"options"`
	CorrectAnswer OptionID `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// HasOption reports whether id is one of the question's options.
func (q QuizQuestion) HasOption(id OptionID) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// GeneratedQuiz is the success body of the quiz generation endpoint.
type GeneratedQuiz struct {
	Quiz []QuizQuestion `json:"quiz"`
	Note *string        `json:"note,omitempty"`
}

// RawQuizQuestion is the lenient wire shape accepted from generators before normalisation.
type RawQuizQuestion struct {
	ID            interface{} `json:"id"`
	Question      string      `json:"question"`
	Options       []RawOption `json:"options"`
	CorrectAnswer FlexString  `json:"correctAnswer"`
	Explanation   string      `json:"explanation"`
}

// RawOption accepts either {"id","text"} objects or bare strings.
type RawOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SourceDocument describes the PDF a quiz was generated from
type SourceDocument struct {
	FileName   string `json:"fileName"`
	Size       int64  `json:"size"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

// ChatRequest is the body sent to the gateway chat endpoint.
type ChatRequest struct {
	Message  string `json:"message"`
	Model    string `json:"model"`
	FastMode bool   `json:"fastMode"`
}

// EssayRequest is the body sent to the gateway essay evaluation endpoint.
// Exactly one of EssayText or ImageData is set.
type EssayRequest struct {
	EssayText  string `json:"essayText,omitempty"`
	ImageData  string `json:"imageData,omitempty"`
	Model      string `json:"model,omitempty"`
	IsQuestion bool   `json:"isQuestion,omitempty"`
}

// TextResponse is the {text} body returned by chat and essay evaluation.
type TextResponse struct {
	Text string `json:"text"`
}

// GatewayStatus is the liveness body of the gateway.
type GatewayStatus struct {
	Status string `json:"status"`
	Ollama string `json:"ollama"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Priority of a revision topic.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ResourceType classifies a study resource.
type ResourceType string

const (
	ResourceNote     ResourceType = "note"
	ResourceLink     ResourceType = "link"
	ResourceBook     ResourceType = "book"
	ResourceVideo    ResourceType = "video"
	ResourcePractice ResourceType = "practice"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceNote, ResourceLink, ResourceBook, ResourceVideo, ResourcePractice:
		return true
	}
	return false
}

// RevisionMap is a learner's study plan. It owns its topics and everything below them.
type RevisionMap struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Subject     string     `json:"subject,omitempty"`
	Topics      []Topic    `json:"topics"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ExamDate    *time.Time `json:"examDate,omitempty"`
}

// Topic is one entry of a revision map.
type Topic struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Completed          bool            `json:"completed"`
	Priority           Priority        `json:"priority"`
	Difficulty         int             `json:"difficulty,omitempty"`         // 1..5, 0 when unset
	EstimatedStudyTime float64         `json:"estimatedStudyTime,omitempty"` // hours
	Resources          []StudyResource `json:"resources,omitempty"`
	Subtopics          []Subtopic      `json:"subtopics,omitempty"`
	StudySessions      []StudySession  `json:"studySessions,omitempty"`
	KeyPoints          []string        `json:"keyPoints,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

// StudyResource is a note, link, book, video or practice set attached to a topic.
type StudyResource struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Type        ResourceType `json:"type"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
}

// Subtopic is a checklist item under a topic.
type Subtopic struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// StudySession is a planned or completed block of study time.
type StudySession struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Duration  int       `json:"duration"` // minutes
	Completed bool      `json:"completed"`
	Notes     string    `json:"notes,omitempty"`
}
