// Package workspace holds the per-learner application state: the quiz in
// progress, revision maps and recent assistant questions. Each learner gets
// one Workspace; its mutex serialises state changes but is never held while
// waiting on the AI gateway.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"examprephub/internal/gateway"
	"examprephub/internal/history"
	"examprephub/internal/logger"
	"examprephub/internal/models"
	"examprephub/internal/progress"
	"examprephub/internal/quiz"
	"examprephub/internal/revision"
	"examprephub/internal/upload"
)

type Workspace struct {
	owner string
	mgr   *Manager
	log   *logger.Logger

	// guarded by mgr.mu
	lastUsed time.Time

	mu       sync.Mutex
	machine  *quiz.Machine
	recent   *history.Recent
	maps     *revision.Store
	progress *progress.Estimator
}

// Owner returns the id the workspace is stored under.
func (w *Workspace) Owner() string { return w.owner }

// Maps returns the learner's revision map store. It has its own lock.
func (w *Workspace) Maps() *revision.Store { return w.maps }

// QuizState returns a copy of the quiz state.
func (w *Workspace) QuizState() quiz.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.State()
}

// Generating reports whether a quiz generation is outstanding.
func (w *Workspace) Generating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.Generating()
}

// Progress returns the synthetic generation progress.
func (w *Workspace) Progress() progress.Snapshot {
	return w.progress.Snapshot()
}

// SelectFile stores a validated PDF for the Configure step and, when an
// archiver is configured, keeps a copy of it. Archive failures are logged only.
func (w *Workspace) SelectFile(ctx context.Context, f *upload.File) (quiz.State, error) {
	w.mu.Lock()
	err := w.machine.SelectFile(f)
	w.mu.Unlock()
	if err != nil {
		return w.QuizState(), err
	}

	if a := w.mgr.archiver; a != nil {
		url, err := a.Archive(ctx, w.owner, f.Name, f.Data)
		if err != nil {
			w.log.Warn("Failed to archive uploaded document", "file", f.Name, "error", err)
		} else {
			w.mu.Lock()
			if cur := w.machine.File(); cur == f {
				w.machine.SetArchiveURL(url)
			}
			w.mu.Unlock()
		}
	}

	w.log.Info("Document selected", "file", f.Name, "size", f.Size)
	return w.update(ctx, func(m *quiz.Machine) error { return nil })
}

// Continue moves from Upload to Configure.
func (w *Workspace) Continue(ctx context.Context) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error { return m.Continue() })
}

// GenerateQuiz runs the pre-flight and the generation call for the selected
// document. The call is not tied to the caller's context: a learner who
// navigates away still finds the quiz when they come back, unless they
// cancelled it.
func (w *Workspace) GenerateQuiz(ctx context.Context, count upload.QuestionCount, model string) (quiz.State, error) {
	w.mu.Lock()
	ticket, err := w.machine.BeginGeneration(count)
	var run uint64
	if err == nil {
		run = w.progress.Start()
	}
	w.mu.Unlock()
	if err != nil {
		return w.QuizState(), err
	}

	callCtx := context.WithoutCancel(ctx)
	w.log.Info("Generating quiz", "file", ticket.Document.Name, "num_questions", ticket.NumQuestions)
	generated, callErr := w.generate(callCtx, ticket, model)

	state, err := w.update(callCtx, func(m *quiz.Machine) error {
		return m.CompleteGeneration(ticket, generated, callErr)
	})
	switch {
	case err == nil:
		w.progress.CompleteRun(run)
		w.log.Info("Quiz ready", "questions", len(state.Questions))
	case errors.Is(err, quiz.ErrStaleTicket):
		// A reset or a newer generation owns the estimator now.
		w.log.Info("Discarded quiz generation result", "reason", err)
	case errors.Is(err, quiz.ErrCancelled):
		w.progress.StopRun(run)
		w.log.Info("Discarded quiz generation result", "reason", err)
	default:
		w.progress.StopRun(run)
		w.log.Warn("Quiz generation failed", "kind", gateway.KindOf(err), "error", err)
	}
	return state, err
}

// generate runs the pre-flight and the quiz call. A panic in the provider is
// reported as a server error so the generation slot is always released.
func (w *Workspace) generate(ctx context.Context, ticket quiz.Ticket, model string) (generated *models.GeneratedQuiz, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Recovered panic during quiz generation", "panic", r, "stack", string(debug.Stack()))
			generated = nil
			err = gateway.NewError(gateway.KindServer, gateway.MsgGenericFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	ready, err := gateway.Preflight(ctx, w.mgr.gw, w.preferred(model), w.log)
	if err != nil {
		return nil, err
	}
	return w.mgr.gw.GenerateQuiz(ctx, gateway.QuizRequest{
		Document:     ticket.Document,
		NumQuestions: ticket.NumQuestions,
		Model:        ready.Model,
	})
}

// Cancel flags the outstanding generation; its result will be discarded.
func (w *Workspace) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.machine.Cancel(); err != nil {
		return err
	}
	w.progress.Stop()
	return nil
}

func (w *Workspace) SelectAnswer(ctx context.Context, questionID int, option models.OptionID) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error { return m.SelectAnswer(questionID, option) })
}

func (w *Workspace) Next(ctx context.Context) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error { return m.Next() })
}

func (w *Workspace) Previous(ctx context.Context) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error { return m.Previous() })
}

// Finish grades the quiz.
func (w *Workspace) Finish(ctx context.Context) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error {
		score, err := m.Finish()
		if err == nil {
			w.log.Info("Quiz submitted", "score", score, "total", len(m.State().Questions))
		}
		return err
	})
}

func (w *Workspace) Back(ctx context.Context) (quiz.State, error) {
	return w.update(ctx, func(m *quiz.Machine) error { return m.Back() })
}

// Reset discards the quiz and the selected document, and removes the stored
// quiz document.
func (w *Workspace) Reset(ctx context.Context) (quiz.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.progress.Stop()
	w.machine.Reset()
	if err := w.mgr.deleteDoc(ctx, w.owner, quizKey); err != nil {
		w.log.Error("Failed to delete quiz state", "error", err)
	}
	return w.machine.State(), nil
}

// Review returns per-question results of a submitted quiz.
func (w *Workspace) Review() ([]quiz.QuestionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.Review()
}

// update applies fn under the lock and persists the resulting state whether or
// not fn failed, since a failed generation still records its error.
func (w *Workspace) update(ctx context.Context, fn func(m *quiz.Machine) error) (quiz.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := fn(w.machine)
	state := w.machine.State()
	if perr := w.mgr.saveJSON(ctx, w.owner, quizKey, state); perr != nil {
		w.log.Error("Failed to persist quiz state", "error", perr)
	}
	return state, err
}

func (w *Workspace) preferred(model string) string {
	if model != "" {
		return model
	}
	return w.mgr.model
}
