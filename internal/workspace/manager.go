package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"examprephub/internal/db"
	"examprephub/internal/gateway"
	"examprephub/internal/history"
	"examprephub/internal/logger"
	"examprephub/internal/models"
	"examprephub/internal/progress"
	"examprephub/internal/quiz"
	"examprephub/internal/revision"
)

// Document keys, prefixed with the owner id.
const (
	quizKey     = "quiz"
	mapsKey     = "revision-maps"
	questionKey = "recent-questions"
)

// DefaultIdleTimeout is how long an unused workspace stays in memory.
const DefaultIdleTimeout = 30 * time.Minute

// Archiver keeps a copy of an uploaded source document and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, owner, name string, data []byte) (string, error)
}

// Manager hands out one Workspace per owner, loading it from storage on first use.
type Manager struct {
	store    db.Store
	gw       gateway.Gateway
	archiver Archiver
	model    string
	now      func() time.Time
	newID    func() string

	interval      time.Duration
	phaseInterval time.Duration
	idle          time.Duration

	log *logger.Logger

	mu        sync.Mutex
	spaces    map[string]*Workspace
	stop      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithArchiver enables archiving of uploaded PDFs.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithDefaultModel sets the model preferred when a request names none.
func WithDefaultModel(model string) Option {
	return func(m *Manager) { m.model = model }
}

// WithClock overrides time.Now for quiz and revision timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDs overrides the revision id generator.
func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithProgressIntervals overrides the synthetic progress timers.
func WithProgressIntervals(interval, phaseInterval time.Duration) Option {
	return func(m *Manager) {
		m.interval = interval
		m.phaseInterval = phaseInterval
	}
}

// WithIdleTimeout sets how long a workspace may go unused before it is dropped
// from memory. Its state stays in storage. Zero keeps workspaces forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idle = d }
}

func NewManager(store db.Store, gw gateway.Gateway, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		gw:            gw,
		now:           time.Now,
		interval:      progress.DefaultInterval,
		phaseInterval: progress.DefaultPhaseInterval,
		idle:          DefaultIdleTimeout,
		log:           log.With("component", "Workspace"),
		spaces:        make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.idle > 0 {
		m.stop = make(chan struct{})
		go m.janitor(m.stop)
	}
	return m
}

// Get returns the owner's workspace, restoring persisted state the first time.
func (m *Manager) Get(ctx context.Context, owner string) (*Workspace, error) {
	if owner == "" {
		return nil, errors.New("workspace owner is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.spaces[owner]; ok {
		ws.lastUsed = m.now()
		return ws, nil
	}
	ws, err := m.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	ws.lastUsed = m.now()
	m.spaces[owner] = ws
	return ws, nil
}

// Close stops the idle sweeper and every running progress estimator.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
		}
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ws := range m.spaces {
		ws.progress.Stop()
	}
}

func (m *Manager) janitor(stop <-chan struct{}) {
	every := m.idle / 2
	if every <= 0 {
		every = m.idle
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if n := m.evictIdle(); n > 0 {
				m.log.Debug("Evicted idle workspaces", "count", n, "remaining", m.size())
			}
		}
	}
}

// evictIdle drops workspaces unused for longer than the idle timeout. A
// workspace with a generation outstanding is kept until it finishes.
func (m *Manager) evictIdle() int {
	cutoff := m.now().Add(-m.idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for owner, ws := range m.spaces {
		if ws.lastUsed.After(cutoff) || ws.Generating() {
			continue
		}
		ws.progress.Stop()
		delete(m.spaces, owner)
		evicted++
	}
	return evicted
}

func (m *Manager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}

func (m *Manager) load(ctx context.Context, owner string) (*Workspace, error) {
	log := m.log.With("owner", owner)
	ws := &Workspace{
		owner:    owner,
		mgr:      m,
		log:      log,
		machine:  quiz.NewMachine(m.now),
		progress: progress.New(progress.Phases, m.interval, m.phaseInterval),
	}

	var state quiz.State
	found, err := m.loadJSON(ctx, owner, quizKey, &state)
	if err != nil {
		return nil, err
	}
	if found {
		ws.machine.Restore(state)
		log.Debug("Restored quiz state", "stage", ws.machine.Stage())
	}

	var maps []models.RevisionMap
	if _, err := m.loadJSON(ctx, owner, mapsKey, &maps); err != nil {
		return nil, err
	}
	opts := []revision.Option{revision.WithClock(m.now)}
	if m.newID != nil {
		opts = append(opts, revision.WithIDs(m.newID))
	}
	ws.maps = revision.NewStore(maps, revision.PersisterFunc(func(ctx context.Context, maps []models.RevisionMap) error {
		return m.saveJSON(ctx, owner, mapsKey, maps)
	}), opts...)

	var recent []string
	if _, err := m.loadJSON(ctx, owner, questionKey, &recent); err != nil {
		return nil, err
	}
	ws.recent = history.NewRecent(recent)
	return ws, nil
}

func docKey(owner, name string) string {
	return owner + ":" + name
}

// loadJSON decodes the stored document into v. A missing document reports
// false; a corrupt one is logged, discarded and also reports false.
func (m *Manager) loadJSON(ctx context.Context, owner, name string, v interface{}) (bool, error) {
	data, err := m.store.Get(ctx, docKey(owner, name))
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		m.log.Warn("Discarding corrupt document", "owner", owner, "document", name, "error", err)
		return false, nil
	}
	return true, nil
}

func (m *Manager) deleteDoc(ctx context.Context, owner, name string) error {
	if err := m.store.Delete(ctx, docKey(owner, name)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (m *Manager) saveJSON(ctx context.Context, owner, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := m.store.Put(ctx, docKey(owner, name), data); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}
