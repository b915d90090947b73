package workspace

import (
	"context"
	"strings"

	"examprephub/internal/gateway"
	"examprephub/internal/models"
)

// Status runs the gateway pre-flight.
func (w *Workspace) Status(ctx context.Context) (gateway.Readiness, error) {
	return gateway.Preflight(ctx, w.mgr.gw, w.mgr.model, w.log)
}

// Models returns the gateway's models, or the default list when unavailable.
func (w *Workspace) Models(ctx context.Context) ([]string, bool) {
	return gateway.ModelsOrDefault(ctx, w.mgr.gw, w.log)
}

// Chat asks the gateway and records the question in the recent list once it
// has been answered.
func (w *Workspace) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return "", gateway.Validation(gateway.MsgEmptyInput)
	}

	ready, err := gateway.Preflight(ctx, w.mgr.gw, w.preferred(req.Model), w.log)
	if err != nil {
		return "", err
	}
	req.Model = ready.Model
	text, err := w.mgr.gw.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	w.remember(ctx, req.Message)
	return text, nil
}

// EvaluateEssay sends an essay (text or image) for feedback.
func (w *Workspace) EvaluateEssay(ctx context.Context, req models.EssayRequest) (string, error) {
	if strings.TrimSpace(req.EssayText) == "" && strings.TrimSpace(req.ImageData) == "" {
		return "", gateway.Validation(gateway.MsgEmptyInput)
	}
	ready, err := gateway.Preflight(ctx, w.mgr.gw, w.preferred(req.Model), w.log)
	if err != nil {
		return "", err
	}
	req.Model = ready.Model
	return w.mgr.gw.EvaluateEssay(ctx, req)
}

// RecentQuestions returns the recent chat questions, newest first.
func (w *Workspace) RecentQuestions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recent.Items()
}

// ClearRecentQuestions empties the recent list.
func (w *Workspace) ClearRecentQuestions(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent.Clear()
	return w.mgr.deleteDoc(ctx, w.owner, questionKey)
}

func (w *Workspace) remember(ctx context.Context, q string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.recent.Add(q) {
		return
	}
	if err := w.mgr.saveJSON(ctx, w.owner, questionKey, w.recent.Items()); err != nil {
		w.log.Error("Failed to persist recent questions", "error", err)
	}
}
