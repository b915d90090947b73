package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"examprephub/internal/db"
	"examprephub/internal/gateway"
	"examprephub/internal/logger"
	"examprephub/internal/models"
	"examprephub/internal/quiz"
	"examprephub/internal/revision"
	"examprephub/internal/upload"
)

type fakeGateway struct {
	mu        sync.Mutex
	status    models.GatewayStatus
	statusErr error
	models    []string
	quiz      *models.GeneratedQuiz
	quizErr   error
	release   chan struct{}
	gates     []chan struct{}
	panicMsg  string
	calls     []string
	lastQuiz  gateway.QuizRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		status: models.GatewayStatus{Status: "running", Ollama: "connected"},
		models: []string{"llama3", "mistral"},
		quiz:   sampleQuiz(5),
	}
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) Status(context.Context) (models.GatewayStatus, error) {
	f.record("status")
	return f.status, f.statusErr
}

func (f *fakeGateway) Models(context.Context) ([]string, error) {
	f.record("models")
	return f.models, nil
}

func (f *fakeGateway) Chat(_ context.Context, req models.ChatRequest) (string, error) {
	f.record("chat")
	return "answer to " + req.Message, nil
}

func (f *fakeGateway) EvaluateEssay(context.Context, models.EssayRequest) (string, error) {
	f.record("essay")
	return "feedback", nil
}

func (f *fakeGateway) GenerateQuiz(_ context.Context, req gateway.QuizRequest) (*models.GeneratedQuiz, error) {
	f.record("quiz")
	f.mu.Lock()
	f.lastQuiz = req
	var gate chan struct{}
	if len(f.gates) > 0 {
		gate, f.gates = f.gates[0], f.gates[1:]
	}
	panicMsg := f.panicMsg
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if gate != nil {
		<-gate
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	return f.quiz, f.quizErr
}

func (f *fakeGateway) quizCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == "quiz" {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func sampleQuiz(n int) *models.GeneratedQuiz {
	q := &models.GeneratedQuiz{}
	for i := 1; i <= n; i++ {
		q.Quiz = append(q.Quiz, models.QuizQuestion{
			ID:       i,
			Question: fmt.Sprintf("Question %d", i),
			Options: []models.Option{
				{ID: models.OptionA, Text: "a"},
				{ID: models.OptionB, Text: "b"},
				{ID: models.OptionC, Text: "c"},
				{ID: models.OptionD, Text: "d"},
			},
			CorrectAnswer: models.OptionA,
		})
	}
	return q
}

func samplePDF() *upload.File {
	data := []byte("%PDF-1.4 sample")
	return &upload.File{Name: "notes.pdf", ContentType: "application/pdf", Size: int64(len(data)), Data: data}
}

func newManager(t *testing.T, store db.Store, gw gateway.Gateway, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithProgressIntervals(time.Hour, time.Hour)}, opts...)
	m := NewManager(store, gw, logger.NewNop(), opts...)
	t.Cleanup(m.Close)
	return m
}

func prepare(t *testing.T, ws *Workspace) {
	t.Helper()
	ctx := context.Background()
	if _, err := ws.SelectFile(ctx, samplePDF()); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if _, err := ws.Continue(ctx); err != nil {
		t.Fatalf("Continue: %v", err)
	}
}

func TestGenerateAndGrade(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newManager(t, db.NewMemoryStore(), gw, WithDefaultModel("mistral"))
	ws, err := m.Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	prepare(t, ws)

	state, err := ws.GenerateQuiz(ctx, 5, "")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if state.Stage != quiz.StageTakeQuiz || len(state.Questions) != 5 {
		t.Fatalf("state after generation: stage=%q questions=%d", state.Stage, len(state.Questions))
	}
	if got := fmt.Sprint(gw.calls); got != "[status models quiz]" {
		t.Fatalf("call order: got=%s", got)
	}
	if gw.lastQuiz.Model != "mistral" || gw.lastQuiz.NumQuestions != 5 || gw.lastQuiz.Document.Name != "notes.pdf" {
		t.Fatalf("quiz request: %+v", gw.lastQuiz)
	}
	if p := ws.Progress(); p.Percent != 100 || p.Running {
		t.Fatalf("progress after success: %+v", p)
	}

	answers := map[int]models.OptionID{1: models.OptionA, 2: models.OptionB, 3: models.OptionA, 4: models.OptionC, 5: models.OptionA}
	for id := 1; id <= 5; id++ {
		if _, err := ws.SelectAnswer(ctx, id, answers[id]); err != nil {
			t.Fatalf("SelectAnswer(%d): %v", id, err)
		}
	}
	state, err = ws.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if state.Score == nil || *state.Score != 3 || state.Stage != quiz.StageResults {
		t.Fatalf("Finish: score=%v stage=%q", state.Score, state.Stage)
	}
	review, err := ws.Review()
	if err != nil || len(review) != 5 {
		t.Fatalf("Review: %d %v", len(review), err)
	}
}

func TestGenerateUpstreamDown(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.status = models.GatewayStatus{Status: "running", Ollama: "disconnected"}
	m := newManager(t, db.NewMemoryStore(), gw)
	ws, _ := m.Get(ctx, "learner-1")
	prepare(t, ws)

	state, err := ws.GenerateQuiz(ctx, 3, "")
	if gateway.KindOf(err) != gateway.KindUpstreamDown {
		t.Fatalf("kind: want=%q got=%q", gateway.KindUpstreamDown, gateway.KindOf(err))
	}
	if state.Stage != quiz.StageConfigure || state.LastError != gateway.MsgUpstreamDown {
		t.Fatalf("state: stage=%q lastError=%q", state.Stage, state.LastError)
	}
	for _, c := range gw.calls {
		if c == "quiz" {
			t.Fatalf("quiz must not be requested when the runtime is down")
		}
	}
	if ws.Progress().Running {
		t.Fatalf("progress should stop after a failure")
	}
}

func TestCancelDiscardsResult(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.release = make(chan struct{})
	m := newManager(t, db.NewMemoryStore(), gw)
	ws, _ := m.Get(ctx, "learner-1")
	prepare(t, ws)

	type result struct {
		state quiz.State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		s, err := ws.GenerateQuiz(ctx, 5, "")
		done <- result{s, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ws.Cancel() != nil {
		if time.Now().After(deadline) {
			t.Fatalf("generation never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := ws.GenerateQuiz(ctx, 5, ""); !errors.Is(err, quiz.ErrBusy) {
		t.Fatalf("second generation: want ErrBusy, got %v", err)
	}
	close(gw.release)

	r := <-done
	if !errors.Is(r.err, quiz.ErrCancelled) {
		t.Fatalf("want ErrCancelled, got %v", r.err)
	}
	if r.state.Stage != quiz.StageConfigure || len(r.state.Questions) != 0 {
		t.Fatalf("cancelled result leaked into state: %+v", r.state)
	}
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	gw := newFakeGateway()
	ws, _ := newManager(t, store, gw).Get(ctx, "learner-1")
	prepare(t, ws)
	if _, err := ws.GenerateQuiz(ctx, 5, ""); err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	if _, err := ws.SelectAnswer(ctx, 1, models.OptionB); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := ws.Maps().CreateMap(ctx, revision.MapInput{Title: "Polity"}); err != nil {
		t.Fatalf("CreateMap: %v", err)
	}
	if _, err := ws.Chat(ctx, models.ChatRequest{Message: "What is the Preamble?"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	again, err := newManager(t, store, gw).Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	st := again.QuizState()
	if st.Stage != quiz.StageTakeQuiz || st.SelectedAnswers[1] != models.OptionB {
		t.Fatalf("reloaded quiz: stage=%q answers=%v", st.Stage, st.SelectedAnswers)
	}
	if maps := again.Maps().ListMaps(); len(maps) != 1 || maps[0].Title != "Polity" {
		t.Fatalf("reloaded maps: %+v", maps)
	}
	if recent := again.RecentQuestions(); len(recent) != 1 || recent[0] != "What is the Preamble?" {
		t.Fatalf("reloaded recent: %v", recent)
	}
}

func TestCorruptDocumentIsReset(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	_ = store.Put(ctx, "learner-1:quiz", []byte("{not json"))
	_ = store.Put(ctx, "learner-1:revision-maps", []byte(`"wrong shape"`))

	ws, err := newManager(t, store, newFakeGateway()).Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ws.QuizState().Stage != quiz.StageUpload {
		t.Fatalf("corrupt quiz should start at upload")
	}
	if len(ws.Maps().ListMaps()) != 0 {
		t.Fatalf("corrupt maps should start empty")
	}
}

func TestChatValidationAndHistory(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	ws, _ := newManager(t, db.NewMemoryStore(), gw).Get(ctx, "learner-1")

	if _, err := ws.Chat(ctx, models.ChatRequest{Message: "   "}); gateway.KindOf(err) != gateway.KindValidation {
		t.Fatalf("empty chat: want validation, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("empty chat must not reach the gateway: %v", gw.calls)
	}
	for _, q := range []string{"one", "two", "ONE"} {
		if _, err := ws.Chat(ctx, models.ChatRequest{Message: q}); err != nil {
			t.Fatalf("Chat(%q): %v", q, err)
		}
	}
	if got := fmt.Sprint(ws.RecentQuestions()); got != "[ONE two]" {
		t.Fatalf("recent: got=%s", got)
	}
	if err := ws.ClearRecentQuestions(ctx); err != nil || len(ws.RecentQuestions()) != 0 {
		t.Fatalf("ClearRecentQuestions: %v", err)
	}
}

func TestStatusConnectivity(t *testing.T) {
	gw := newFakeGateway()
	gw.statusErr = gateway.NewError(gateway.KindTimeout, gateway.MsgTimeout, context.DeadlineExceeded)
	ws, _ := newManager(t, db.NewMemoryStore(), gw).Get(context.Background(), "learner-1")
	if _, err := ws.Status(context.Background()); gateway.KindOf(err) != gateway.KindConnectivity {
		t.Fatalf("kind: want=%q got=%q", gateway.KindConnectivity, gateway.KindOf(err))
	}
}

type fakeArchiver struct{ url string }

func (a fakeArchiver) Archive(_ context.Context, owner, name string, _ []byte) (string, error) {
	return a.url + "/" + owner + "/" + name, nil
}

func TestSelectFileArchives(t *testing.T) {
	ctx := context.Background()
	ws, _ := newManager(t, db.NewMemoryStore(), newFakeGateway(), WithArchiver(fakeArchiver{url: "https://files.example.com"})).Get(ctx, "learner-1")
	state, err := ws.SelectFile(ctx, samplePDF())
	if err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if state.Source == nil || state.Source.ArchiveURL != "https://files.example.com/learner-1/notes.pdf" {
		t.Fatalf("source: %+v", state.Source)
	}
}

type generation struct {
	state quiz.State
	err   error
}

func TestStaleResultLeavesNewGenerationRunning(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	first, second := make(chan struct{}), make(chan struct{})
	gw.gates = []chan struct{}{first, second}
	ws, _ := newManager(t, db.NewMemoryStore(), gw).Get(ctx, "learner-1")
	prepare(t, ws)

	doneFirst := make(chan generation, 1)
	go func() {
		s, err := ws.GenerateQuiz(ctx, 5, "")
		doneFirst <- generation{s, err}
	}()
	waitFor(t, "first quiz call", func() bool { return gw.quizCalls() == 1 })

	if _, err := ws.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	prepare(t, ws)
	doneSecond := make(chan generation, 1)
	go func() {
		s, err := ws.GenerateQuiz(ctx, 5, "")
		doneSecond <- generation{s, err}
	}()
	waitFor(t, "second quiz call", func() bool { return gw.quizCalls() == 2 })

	close(first)
	if r := <-doneFirst; !errors.Is(r.err, quiz.ErrStaleTicket) {
		t.Fatalf("first generation: want ErrStaleTicket, got %v", r.err)
	}
	if !ws.Generating() {
		t.Fatalf("second generation should still be outstanding")
	}
	if p := ws.Progress(); !p.Running {
		t.Fatalf("stale result stopped the running estimator: %+v", p)
	}

	close(second)
	r := <-doneSecond
	if r.err != nil || r.state.Stage != quiz.StageTakeQuiz {
		t.Fatalf("second generation: stage=%q err=%v", r.state.Stage, r.err)
	}
	if p := ws.Progress(); p.Running || p.Percent != 100 {
		t.Fatalf("progress after second generation: %+v", p)
	}
}

func TestProviderPanicReleasesGeneration(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.panicMsg = "malformed xref table"
	ws, _ := newManager(t, db.NewMemoryStore(), gw).Get(ctx, "learner-1")
	prepare(t, ws)

	state, err := ws.GenerateQuiz(ctx, 5, "")
	if gateway.KindOf(err) != gateway.KindServer {
		t.Fatalf("kind: want=%q got=%q (%v)", gateway.KindServer, gateway.KindOf(err), err)
	}
	if state.Stage != quiz.StageConfigure || state.LastError != gateway.MsgGenericFailure {
		t.Fatalf("state after panic: stage=%q lastError=%q", state.Stage, state.LastError)
	}
	if ws.Generating() || ws.Progress().Running {
		t.Fatalf("generation slot not released: generating=%v progress=%+v", ws.Generating(), ws.Progress())
	}

	gw.mu.Lock()
	gw.panicMsg = ""
	gw.mu.Unlock()
	if state, err := ws.GenerateQuiz(ctx, 5, ""); err != nil || state.Stage != quiz.StageTakeQuiz {
		t.Fatalf("retry: stage=%q err=%v", state.Stage, err)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestIdleWorkspacesAreEvicted(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	gw := newFakeGateway()
	gw.release = make(chan struct{})
	m := newManager(t, db.NewMemoryStore(), gw, WithClock(clock.Now), WithIdleTimeout(time.Hour))

	idle, _ := m.Get(ctx, "learner-idle")
	if _, err := idle.Maps().CreateMap(ctx, revision.MapInput{Title: "Economy"}); err != nil {
		t.Fatalf("CreateMap: %v", err)
	}
	busy, _ := m.Get(ctx, "learner-busy")
	prepare(t, busy)
	done := make(chan generation, 1)
	go func() {
		s, err := busy.GenerateQuiz(ctx, 5, "")
		done <- generation{s, err}
	}()
	waitFor(t, "quiz call", func() bool { return gw.quizCalls() == 1 })

	clock.Advance(30 * time.Minute)
	if n := m.evictIdle(); n != 0 {
		t.Fatalf("evicted %d workspaces before the timeout", n)
	}
	clock.Advance(45 * time.Minute)
	if n := m.evictIdle(); n != 1 {
		t.Fatalf("evictIdle: want=1 got=%d", n)
	}
	if again, _ := m.Get(ctx, "learner-busy"); again != busy {
		t.Fatalf("workspace with an outstanding generation was evicted")
	}

	reloaded, err := m.Get(ctx, "learner-idle")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded == idle {
		t.Fatalf("idle workspace was not evicted")
	}
	if maps := reloaded.Maps().ListMaps(); len(maps) != 1 || maps[0].Title != "Economy" {
		t.Fatalf("reloaded maps: %+v", maps)
	}

	close(gw.release)
	if r := <-done; r.err != nil {
		t.Fatalf("generation: %v", r.err)
	}
}

func TestResetAndClearDeleteStoredDocuments(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ws, _ := newManager(t, store, newFakeGateway()).Get(ctx, "learner-1")
	prepare(t, ws)
	if _, err := ws.Chat(ctx, models.ChatRequest{Message: "Define federalism"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	for _, key := range []string{"learner-1:quiz", "learner-1:recent-questions"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Fatalf("%s not stored: %v", key, err)
		}
	}

	state, err := ws.Reset(ctx)
	if err != nil || state.Stage != quiz.StageUpload {
		t.Fatalf("Reset: stage=%q err=%v", state.Stage, err)
	}
	if err := ws.ClearRecentQuestions(ctx); err != nil {
		t.Fatalf("ClearRecentQuestions: %v", err)
	}
	for _, key := range []string{"learner-1:quiz", "learner-1:recent-questions"} {
		if _, err := store.Get(ctx, key); !errors.Is(err, db.ErrNotFound) {
			t.Fatalf("%s: want ErrNotFound, got %v", key, err)
		}
	}
}

func TestFailedChatIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.statusErr = errors.New("connection refused")
	ws, _ := newManager(t, db.NewMemoryStore(), gw).Get(ctx, "learner-1")

	if _, err := ws.Chat(ctx, models.ChatRequest{Message: "What is GDP?"}); gateway.KindOf(err) != gateway.KindConnectivity {
		t.Fatalf("kind: want=%q got=%q", gateway.KindConnectivity, gateway.KindOf(err))
	}
	if recent := ws.RecentQuestions(); len(recent) != 0 {
		t.Fatalf("failed chat recorded: %v", recent)
	}
}
