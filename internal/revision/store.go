package revision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"examprephub/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

// Persister writes the whole collection. A failed write leaves the store unchanged.
type Persister interface {
	SaveMaps(ctx context.Context, maps []models.RevisionMap) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, maps []models.RevisionMap) error

func (f PersisterFunc) SaveMaps(ctx context.Context, maps []models.RevisionMap) error {
	return f(ctx, maps)
}

// Store holds a learner's revision maps and flushes every mutation.
type Store struct {
	mu      sync.RWMutex
	maps    []models.RevisionMap
	persist Persister
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides the uuid generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore wraps an already loaded collection. persist may be nil for a purely in-memory store.
func NewStore(maps []models.RevisionMap, persist Persister, opts ...Option) *Store {
	s := &Store{
		maps:    cloneMaps(maps),
		persist: persist,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MapInput holds the editable fields of a map.
type MapInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Subject     string     `json:"subject"`
	ExamDate    *time.Time `json:"examDate"`
}

func (in MapInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	return nil
}

// TopicInput holds the editable fields of a topic.
type TopicInput struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Priority           models.Priority `json:"priority"`
	Difficulty         int             `json:"difficulty"`
	EstimatedStudyTime float64         `json:"estimatedStudyTime"`
	KeyPoints          []string        `json:"keyPoints"`
	Notes              string          `json:"notes"`
}

func (in *TopicInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: topic name is required", ErrInvalid)
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: priority must be high, medium or low", ErrInvalid)
	}
	if in.Difficulty != 0 && (in.Difficulty < 1 || in.Difficulty > 5) {
		return fmt.Errorf("%w: difficulty must be between 1 and 5", ErrInvalid)
	}
	if in.EstimatedStudyTime < 0 {
		return fmt.Errorf("%w: estimated study time cannot be negative", ErrInvalid)
	}
	return nil
}

// ResourceInput holds the editable fields of a study resource.
type ResourceInput struct {
	Title       string              `json:"title"`
	Type        models.ResourceType `json:"type"`
	URL         string              `json:"url"`
	Description string              `json:"description"`
}

func (in ResourceInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: resource title is required", ErrInvalid)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: resource type must be note, link, book, video or practice", ErrInvalid)
	}
	return nil
}

// SessionInput holds the editable fields of a study session.
type SessionInput struct {
	Date      time.Time `json:"date"`
	Duration  int       `json:"duration"`
	Completed bool      `json:"completed"`
	Notes     string    `json:"notes"`
}

func (in SessionInput) validate() error {
	if in.Duration <= 0 {
		return fmt.Errorf("%w: session duration must be positive", ErrInvalid)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: session date is required", ErrInvalid)
	}
	return nil
}

// ListMaps returns every map in insertion order.
func (s *Store) ListMaps() []models.RevisionMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMaps(s.maps)
}

// GetMap returns one map.
func (s *Store) GetMap(id string) (models.RevisionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.RevisionMap{}, fmt.Errorf("revision map %s: %w", id, ErrNotFound)
	}
	return cloneMap(s.maps[i]), nil
}

// CreateMap appends a new, empty map.
func (s *Store) CreateMap(ctx context.Context, in MapInput) (models.RevisionMap, error) {
	if err := in.validate(); err != nil {
		return models.RevisionMap{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	m := models.RevisionMap{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Subject:     in.Subject,
		Topics:      []models.Topic{},
		CreatedAt:   now,
		UpdatedAt:   now,
		ExamDate:    in.ExamDate,
	}
	next := append(cloneMaps(s.maps), m)
	if err := s.flush(ctx, next); err != nil {
		return models.RevisionMap{}, err
	}
	return cloneMap(m), nil
}

// UpdateMap replaces the editable fields of a map.
func (s *Store) UpdateMap(ctx context.Context, id string, in MapInput) (models.RevisionMap, error) {
	if err := in.validate(); err != nil {
		return models.RevisionMap{}, err
	}
	return s.mutate(ctx, id, func(m *models.RevisionMap) error {
		m.Title = strings.TrimSpace(in.Title)
		m.Description = in.Description
		m.Subject = in.Subject
		m.ExamDate = in.ExamDate
		return nil
	})
}

// DeleteMap removes a map with all its topics, resources, subtopics and sessions.
func (s *Store) DeleteMap(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("revision map %s: %w", id, ErrNotFound)
	}
	next := cloneMaps(s.maps)
	next = append(next[:i], next[i+1:]...)
	return s.flush(ctx, next)
}

// AddTopic appends a topic to a map.
func (s *Store) AddTopic(ctx context.Context, mapID string, in TopicInput) (models.Topic, error) {
	if err := in.normalize(); err != nil {
		return models.Topic{}, err
	}
	t := models.Topic{
		ID:                 s.newID(),
		Name:               in.Name,
		Description:        in.Description,
		Priority:           in.Priority,
		Difficulty:         in.Difficulty,
		EstimatedStudyTime: in.EstimatedStudyTime,
		KeyPoints:          append([]string(nil), in.KeyPoints...),
		Notes:              in.Notes,
	}
	_, err := s.mutate(ctx, mapID, func(m *models.RevisionMap) error {
		m.Topics = append(m.Topics, t)
		return nil
	})
	if err != nil {
		return models.Topic{}, err
	}
	return t, nil
}

// UpdateTopic replaces the editable fields of a topic. Completion and children are kept.
func (s *Store) UpdateTopic(ctx context.Context, mapID, topicID string, in TopicInput) (models.Topic, error) {
	if err := in.normalize(); err != nil {
		return models.Topic{}, err
	}
	var out models.Topic
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		t.Name = in.Name
		t.Description = in.Description
		t.Priority = in.Priority
		t.Difficulty = in.Difficulty
		t.EstimatedStudyTime = in.EstimatedStudyTime
		t.KeyPoints = append([]string(nil), in.KeyPoints...)
		t.Notes = in.Notes
		out = cloneTopic(*t)
		return nil
	})
	return out, err
}

// DeleteTopic removes a topic and everything under it.
func (s *Store) DeleteTopic(ctx context.Context, mapID, topicID string) error {
	_, err := s.mutate(ctx, mapID, func(m *models.RevisionMap) error {
		i := topicIndex(m, topicID)
		if i < 0 {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
		}
		m.Topics = append(m.Topics[:i], m.Topics[i+1:]...)
		return nil
	})
	return err
}

// ToggleTopic flips only the completed flag.
func (s *Store) ToggleTopic(ctx context.Context, mapID, topicID string) (models.Topic, error) {
	var out models.Topic
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		t.Completed = !t.Completed
		out = cloneTopic(*t)
		return nil
	})
	return out, err
}

// MoveTopic moves a topic to index, clamped to the list bounds.
func (s *Store) MoveTopic(ctx context.Context, mapID, topicID string, index int) (models.RevisionMap, error) {
	return s.mutate(ctx, mapID, func(m *models.RevisionMap) error {
		i := topicIndex(m, topicID)
		if i < 0 {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
		}
		t := m.Topics[i]
		rest := append(m.Topics[:i:i], m.Topics[i+1:]...)
		if index < 0 {
			index = 0
		}
		if index > len(rest) {
			index = len(rest)
		}
		moved := make([]models.Topic, 0, len(m.Topics))
		moved = append(moved, rest[:index]...)
		moved = append(moved, t)
		moved = append(moved, rest[index:]...)
		m.Topics = moved
		return nil
	})
}

// AddResource attaches a resource to a topic.
func (s *Store) AddResource(ctx context.Context, mapID, topicID string, in ResourceInput) (models.StudyResource, error) {
	if err := in.validate(); err != nil {
		return models.StudyResource{}, err
	}
	r := models.StudyResource{ID: s.newID(), Title: strings.TrimSpace(in.Title), Type: in.Type, URL: in.URL, Description: in.Description}
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		t.Resources = append(t.Resources, r)
		return nil
	})
	if err != nil {
		return models.StudyResource{}, err
	}
	return r, nil
}

// UpdateResource replaces a resource's fields.
func (s *Store) UpdateResource(ctx context.Context, mapID, topicID, resourceID string, in ResourceInput) (models.StudyResource, error) {
	if err := in.validate(); err != nil {
		return models.StudyResource{}, err
	}
	var out models.StudyResource
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.Resources {
			if t.Resources[i].ID == resourceID {
				t.Resources[i] = models.StudyResource{ID: resourceID, Title: strings.TrimSpace(in.Title), Type: in.Type, URL: in.URL, Description: in.Description}
				out = t.Resources[i]
				return nil
			}
		}
		return fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
	})
	return out, err
}

// DeleteResource removes a resource from a topic.
func (s *Store) DeleteResource(ctx context.Context, mapID, topicID, resourceID string) error {
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.Resources {
			if t.Resources[i].ID == resourceID {
				t.Resources = append(t.Resources[:i], t.Resources[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("resource %s: %w", resourceID, ErrNotFound)
	})
	return err
}

// AddSubtopic appends a checklist item to a topic.
func (s *Store) AddSubtopic(ctx context.Context, mapID, topicID, name string) (models.Subtopic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Subtopic{}, fmt.Errorf("%w: subtopic name is required", ErrInvalid)
	}
	st := models.Subtopic{ID: s.newID(), Name: name}
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		t.Subtopics = append(t.Subtopics, st)
		return nil
	})
	if err != nil {
		return models.Subtopic{}, err
	}
	return st, nil
}

// DeleteSubtopic removes a checklist item.
func (s *Store) DeleteSubtopic(ctx context.Context, mapID, topicID, subtopicID string) error {
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.Subtopics {
			if t.Subtopics[i].ID == subtopicID {
				t.Subtopics = append(t.Subtopics[:i], t.Subtopics[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("subtopic %s: %w", subtopicID, ErrNotFound)
	})
	return err
}

// ToggleSubtopic flips a checklist item.
func (s *Store) ToggleSubtopic(ctx context.Context, mapID, topicID, subtopicID string) (models.Subtopic, error) {
	var out models.Subtopic
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.Subtopics {
			if t.Subtopics[i].ID == subtopicID {
				t.Subtopics[i].Completed = !t.Subtopics[i].Completed
				out = t.Subtopics[i]
				return nil
			}
		}
		return fmt.Errorf("subtopic %s: %w", subtopicID, ErrNotFound)
	})
	return out, err
}

// AddSession schedules or logs a study session on a topic.
func (s *Store) AddSession(ctx context.Context, mapID, topicID string, in SessionInput) (models.StudySession, error) {
	if err := in.validate(); err != nil {
		return models.StudySession{}, err
	}
	ss := models.StudySession{ID: s.newID(), Date: in.Date, Duration: in.Duration, Completed: in.Completed, Notes: in.Notes}
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		t.StudySessions = append(t.StudySessions, ss)
		return nil
	})
	if err != nil {
		return models.StudySession{}, err
	}
	return ss, nil
}

// UpdateSession replaces a session's fields.
func (s *Store) UpdateSession(ctx context.Context, mapID, topicID, sessionID string, in SessionInput) (models.StudySession, error) {
	if err := in.validate(); err != nil {
		return models.StudySession{}, err
	}
	var out models.StudySession
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.StudySessions {
			if t.StudySessions[i].ID == sessionID {
				t.StudySessions[i] = models.StudySession{ID: sessionID, Date: in.Date, Duration: in.Duration, Completed: in.Completed, Notes: in.Notes}
				out = t.StudySessions[i]
				return nil
			}
		}
		return fmt.Errorf("study session %s: %w", sessionID, ErrNotFound)
	})
	return out, err
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, mapID, topicID, sessionID string) error {
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.StudySessions {
			if t.StudySessions[i].ID == sessionID {
				t.StudySessions = append(t.StudySessions[:i], t.StudySessions[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("study session %s: %w", sessionID, ErrNotFound)
	})
	return err
}

// ToggleSession flips only a session's completed flag.
func (s *Store) ToggleSession(ctx context.Context, mapID, topicID, sessionID string) (models.StudySession, error) {
	var out models.StudySession
	_, err := s.mutateTopic(ctx, mapID, topicID, func(t *models.Topic) error {
		for i := range t.StudySessions {
			if t.StudySessions[i].ID == sessionID {
				t.StudySessions[i].Completed = !t.StudySessions[i].Completed
				out = t.StudySessions[i]
				return nil
			}
		}
		return fmt.Errorf("study session %s: %w", sessionID, ErrNotFound)
	})
	return out, err
}

// mutate applies fn to a copy of the map, refreshes UpdatedAt and flushes the
// whole collection. The store only changes if the flush succeeds.
func (s *Store) mutate(ctx context.Context, mapID string, fn func(m *models.RevisionMap) error) (models.RevisionMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(mapID)
	if i < 0 {
		return models.RevisionMap{}, fmt.Errorf("revision map %s: %w", mapID, ErrNotFound)
	}
	next := cloneMaps(s.maps)
	if err := fn(&next[i]); err != nil {
		return models.RevisionMap{}, err
	}
	next[i].UpdatedAt = s.now()
	if err := s.flush(ctx, next); err != nil {
		return models.RevisionMap{}, err
	}
	return cloneMap(next[i]), nil
}

func (s *Store) mutateTopic(ctx context.Context, mapID, topicID string, fn func(t *models.Topic) error) (models.RevisionMap, error) {
	return s.mutate(ctx, mapID, func(m *models.RevisionMap) error {
		i := topicIndex(m, topicID)
		if i < 0 {
			return fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
		}
		return fn(&m.Topics[i])
	})
}

// flush must be called with s.mu held.
func (s *Store) flush(ctx context.Context, next []models.RevisionMap) error {
	if s.persist != nil {
		if err := s.persist.SaveMaps(ctx, next); err != nil {
			return fmt.Errorf("save revision maps: %w", err)
		}
	}
	s.maps = next
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.maps {
		if s.maps[i].ID == id {
			return i
		}
	}
	return -1
}

func topicIndex(m *models.RevisionMap, id string) int {
	for i := range m.Topics {
		if m.Topics[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMaps(in []models.RevisionMap) []models.RevisionMap {
	out := make([]models.RevisionMap, len(in))
	for i := range in {
		out[i] = cloneMap(in[i])
	}
	return out
}

func cloneMap(m models.RevisionMap) models.RevisionMap {
	if m.ExamDate != nil {
		d := *m.ExamDate
		m.ExamDate = &d
	}
	topics := make([]models.Topic, len(m.Topics))
	for i := range m.Topics {
		topics[i] = cloneTopic(m.Topics[i])
	}
	m.Topics = topics
	return m
}

func cloneTopic(t models.Topic) models.Topic {
	if t.Resources != nil {
		t.Resources = append([]models.StudyResource(nil), t.Resources...)
	}
	if t.Subtopics != nil {
		t.Subtopics = append([]models.Subtopic(nil), t.Subtopics...)
	}
	if t.StudySessions != nil {
		t.StudySessions = append([]models.StudySession(nil), t.StudySessions...)
	}
	if t.KeyPoints != nil {
		t.KeyPoints = append([]string(nil), t.KeyPoints...)
	}
	return t
}
