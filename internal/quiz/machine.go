package quiz

import (
	"errors"
	"fmt"
	"time"

	"examprephub/internal/gateway"
	"examprephub/internal/models"
	"examprephub/internal/upload"
)

// Stage is one step of the quiz workflow.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageConfigure Stage = "configure"
	StageTakeQuiz  Stage = "take_quiz"
	StageResults   Stage = "results"
)

var (
	ErrNoFile          = errors.New("please select a PDF file first")
	ErrWrongStage      = errors.New("action not available at this step")
	ErrBusy            = errors.New("a quiz is already being generated")
	ErrCancelled       = errors.New("quiz generation was cancelled")
	ErrStaleTicket     = errors.New("quiz generation result is no longer wanted")
	ErrUnanswered      = errors.New("please select an answer before continuing")
	ErrIncomplete      = errors.New("please answer all questions before finishing")
	ErrQuizCompleted   = errors.New("the quiz has already been submitted")
	ErrUnknownOption   = errors.New("unknown answer option")
	ErrUnknownQuestion = errors.New("unknown question")
	ErrNotCompleted    = errors.New("the quiz has not been submitted yet")
)

// State is the persisted quiz in progress. Score is set iff QuizCompleted.
type State struct {
	Stage                Stage                   `json:"stage"`
	Questions            []models.QuizQuestion   `json:"questions"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	SelectedAnswers      map[int]models.OptionID `json:"selectedAnswers"`
	Score                *int                    `json:"score"`
	QuizCompleted        bool                    `json:"quizCompleted"`
	Note                 *string                 `json:"note,omitempty"`
	NumQuestions         int                     `json:"numQuestions,omitempty"`
	Source               *models.SourceDocument  `json:"source,omitempty"`
	GeneratedAt          *time.Time              `json:"generatedAt,omitempty"`
	CompletedAt          *time.Time              `json:"completedAt,omitempty"`
	LastError            string                  `json:"lastError,omitempty"`
}

// Ticket identifies one outstanding generation request.
type Ticket struct {
	ID           uint64
	Document     gateway.Document
	NumQuestions int
}

// Machine drives Upload → Configure → Take Quiz → Results. It is not safe for
// concurrent use; the owning workspace serialises access.
type Machine struct {
	state      State
	file       *upload.File
	generating bool
	cancelled  bool
	ticket     uint64
	now        func() time.Time
}

// NewMachine returns a machine at the Upload step.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	m := &Machine{now: now}
	m.clear()
	return m
}

func (m *Machine) clear() {
	m.state = State{Stage: StageUpload, SelectedAnswers: map[int]models.OptionID{}}
	m.file = nil
	m.cancelled = false
	m.generating = false
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	s := m.state
	s.Questions = append([]models.QuizQuestion(nil), m.state.Questions...)
	s.SelectedAnswers = make(map[int]models.OptionID, len(m.state.SelectedAnswers))
	for k, v := range m.state.SelectedAnswers {
		s.SelectedAnswers[k] = v
	}
	if m.state.Score != nil {
		score := *m.state.Score
		s.Score = &score
	}
	return s
}

func (m *Machine) Stage() Stage { return m.state.Stage }

func (m *Machine) Generating() bool { return m.generating }

// File returns the selected document, if any.
func (m *Machine) File() *upload.File { return m.file }

// SelectFile stores a validated document. Selecting a file from Upload or
// Configure replaces the previous one.
func (m *Machine) SelectFile(f *upload.File) error {
	if f == nil {
		return ErrNoFile
	}
	if m.state.Stage != StageUpload && m.state.Stage != StageConfigure {
		return ErrWrongStage
	}
	if m.generating {
		return ErrBusy
	}
	m.file = f
	m.state.LastError = ""
	m.state.Source = &models.SourceDocument{FileName: f.Name, Size: f.Size}
	return nil
}

// SetArchiveURL records where the selected document was archived.
func (m *Machine) SetArchiveURL(url string) {
	if m.state.Source != nil {
		m.state.Source.ArchiveURL = url
	}
}

// Continue moves from Upload to Configure.
func (m *Machine) Continue() error {
	if m.state.Stage != StageUpload {
		return ErrWrongStage
	}
	if m.file == nil {
		return ErrNoFile
	}
	m.state.Stage = StageConfigure
	return nil
}

// BeginGeneration reserves the single generation slot. The caller performs the
// gateway call without holding any lock and reports back with CompleteGeneration.
func (m *Machine) BeginGeneration(count upload.QuestionCount) (Ticket, error) {
	if m.state.Stage != StageConfigure {
		return Ticket{}, ErrWrongStage
	}
	if m.file == nil {
		return Ticket{}, ErrNoFile
	}
	if m.generating {
		return Ticket{}, ErrBusy
	}
	if !count.Valid() {
		return Ticket{}, gateway.Validation(upload.MsgBadCount)
	}
	m.ticket++
	m.generating = true
	m.cancelled = false
	m.state.LastError = ""
	m.state.NumQuestions = int(count)
	return Ticket{ID: m.ticket, Document: m.file.Document(), NumQuestions: int(count)}, nil
}

// Cancel raises the advisory cancel flag. The in-flight request is not aborted;
// its result is discarded when it arrives.
func (m *Machine) Cancel() error {
	if !m.generating {
		return ErrWrongStage
	}
	m.cancelled = true
	return nil
}

// CompleteGeneration applies the outcome of the call started with t. Cancelled,
// failed, empty or invalid results leave the machine in Configure.
func (m *Machine) CompleteGeneration(t Ticket, quiz *models.GeneratedQuiz, callErr error) error {
	if !m.generating || t.ID != m.ticket {
		return ErrStaleTicket
	}
	m.generating = false
	if m.cancelled {
		m.cancelled = false
		return ErrCancelled
	}
	if callErr != nil {
		m.state.LastError = gateway.MessageOf(callErr)
		return callErr
	}
	if err := checkQuiz(quiz); err != nil {
		m.state.LastError = gateway.MessageOf(err)
		return err
	}

	now := m.now()
	// The document is not needed past Configure.
	m.file = nil
	m.state.Stage = StageTakeQuiz
	m.state.Questions = append([]models.QuizQuestion(nil), quiz.Quiz...)
	m.state.CurrentQuestionIndex = 0
	m.state.SelectedAnswers = map[int]models.OptionID{}
	m.state.Score = nil
	m.state.QuizCompleted = false
	m.state.Note = quiz.Note
	m.state.GeneratedAt = &now
	m.state.CompletedAt = nil
	m.state.LastError = ""
	return nil
}

func checkQuiz(quiz *models.GeneratedQuiz) error {
	if quiz == nil || len(quiz.Quiz) == 0 {
		return gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidQuiz, errors.New("quiz is empty"))
	}
	seen := make(map[int]bool, len(quiz.Quiz))
	for _, q := range quiz.Quiz {
		if seen[q.ID] {
			return gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidQuiz, fmt.Errorf("duplicate question id %d", q.ID))
		}
		seen[q.ID] = true
		if len(q.Options) != models.OptionsPerQuestion || !q.HasOption(q.CorrectAnswer) {
			return gateway.NewError(gateway.KindMalformed, gateway.MsgInvalidQuiz, fmt.Errorf("question %d is not a valid 4-option question", q.ID))
		}
	}
	return nil
}

// SelectAnswer records the learner's choice for a question.
func (m *Machine) SelectAnswer(questionID int, option models.OptionID) error {
	if m.state.Stage != StageTakeQuiz {
		return ErrWrongStage
	}
	if m.state.QuizCompleted {
		return ErrQuizCompleted
	}
	q, ok := m.question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if !q.HasOption(option) {
		return ErrUnknownOption
	}
	m.state.SelectedAnswers[questionID] = option
	return nil
}

func (m *Machine) question(id int) (models.QuizQuestion, bool) {
	for _, q := range m.state.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.QuizQuestion{}, false
}

// Next moves forward one question once the current one is answered. At the
// last question it stays put.
func (m *Machine) Next() error {
	if m.state.Stage != StageTakeQuiz {
		return ErrWrongStage
	}
	cur := m.state.Questions[m.state.CurrentQuestionIndex]
	if _, ok := m.state.SelectedAnswers[cur.ID]; !ok {
		return ErrUnanswered
	}
	if m.state.CurrentQuestionIndex < len(m.state.Questions)-1 {
		m.state.CurrentQuestionIndex++
	}
	return nil
}

// Previous moves back one question, staying at the first.
func (m *Machine) Previous() error {
	if m.state.Stage != StageTakeQuiz {
		return ErrWrongStage
	}
	if m.state.CurrentQuestionIndex > 0 {
		m.state.CurrentQuestionIndex--
	}
	return nil
}

// Finish grades the quiz and moves to Results. Every question must be answered.
func (m *Machine) Finish() (int, error) {
	if m.state.Stage != StageTakeQuiz {
		return 0, ErrWrongStage
	}
	if m.state.QuizCompleted {
		return 0, ErrQuizCompleted
	}
	if !allAnswered(m.state.Questions, m.state.SelectedAnswers) {
		return 0, ErrIncomplete
	}
	score := Grade(m.state.Questions, m.state.SelectedAnswers)
	now := m.now()
	m.state.Score = &score
	m.state.QuizCompleted = true
	m.state.CompletedAt = &now
	m.state.Stage = StageResults
	return score, nil
}

// Back returns from Results to Take Quiz, allowed only before submission.
func (m *Machine) Back() error {
	if m.state.Stage != StageResults {
		return ErrWrongStage
	}
	if m.state.QuizCompleted {
		return ErrQuizCompleted
	}
	m.state.Stage = StageTakeQuiz
	return nil
}

// Review lists per-question results of a submitted quiz.
func (m *Machine) Review() ([]QuestionResult, error) {
	if !m.state.QuizCompleted {
		return nil, ErrNotCompleted
	}
	return Review(m.state.Questions, m.state.SelectedAnswers), nil
}

// Reset clears everything and returns to Upload. An outstanding generation
// becomes stale and its result is dropped.
func (m *Machine) Reset() {
	m.clear()
}

// Restore rehydrates persisted state: Take Quiz for an unfinished quiz,
// Results for a submitted one, Upload otherwise. Inconsistent state is discarded.
func (m *Machine) Restore(s State) {
	m.clear()
	if len(s.Questions) == 0 || checkQuiz(&models.GeneratedQuiz{Quiz: s.Questions}) != nil {
		return
	}
	if s.SelectedAnswers == nil {
		s.SelectedAnswers = map[int]models.OptionID{}
	}
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		s.CurrentQuestionIndex = 0
	}
	s.LastError = ""
	if s.QuizCompleted && !allAnswered(s.Questions, s.SelectedAnswers) {
		s.QuizCompleted = false
	}
	if s.QuizCompleted {
		// Re-derive rather than trust the stored value.
		score := Grade(s.Questions, s.SelectedAnswers)
		s.Score = &score
		s.Stage = StageResults
	} else {
		s.Score = nil
		s.CompletedAt = nil
		s.Stage = StageTakeQuiz
	}
	m.state = s
}

func allAnswered(questions []models.QuizQuestion, selected map[int]models.OptionID) bool {
	for _, q := range questions {
		if _, ok := selected[q.ID]; !ok {
			return false
		}
	}
	return true
}
