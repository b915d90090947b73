package revision

import (
	"math"
	"time"

	"examprephub/internal/models"
)

// CompletionPercentage is round(100*completed/total), 0 for a map without topics.
// It is derived on every read and never stored.
func CompletionPercentage(m models.RevisionMap) int {
	if len(m.Topics) == 0 {
		return 0
	}
	done := 0
	for _, t := range m.Topics {
		if t.Completed {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(m.Topics))))
}

// MapView is a map together with its derived completion percentage.
type MapView struct {
	models.RevisionMap
	CompletionPercentage int `json:"completionPercentage"`
}

func View(m models.RevisionMap) MapView {
	return MapView{RevisionMap: m, CompletionPercentage: CompletionPercentage(m)}
}

func Views(maps []models.RevisionMap) []MapView {
	out := make([]MapView, 0, len(maps))
	for _, m := range maps {
		out = append(out, View(m))
	}
	return out
}

// Summary holds the derived statistics shown on a map's dashboard.
type Summary struct {
	TotalTopics          int                     `json:"totalTopics"`
	CompletedTopics      int                     `json:"completedTopics"`
	CompletionPercentage int                     `json:"completionPercentage"`
	ByPriority           map[models.Priority]int `json:"byPriority"`
	RemainingHours       float64                 `json:"remainingHours"`
	StudiedMinutes       int                     `json:"studiedMinutes"`
	PlannedMinutes       int                     `json:"plannedMinutes"`
	DaysUntilExam        *int                    `json:"daysUntilExam,omitempty"`
}

// Summarize derives statistics for m as of now. Remaining hours sum the
// estimates of incomplete topics; studied minutes count completed sessions only.
func Summarize(m models.RevisionMap, now time.Time) Summary {
	s := Summary{
		TotalTopics:          len(m.Topics),
		CompletionPercentage: CompletionPercentage(m),
		ByPriority:           map[models.Priority]int{},
	}
	for _, t := range m.Topics {
		if t.Completed {
			s.CompletedTopics++
		} else {
			s.RemainingHours += t.EstimatedStudyTime
			s.ByPriority[t.Priority]++
		}
		for _, ss := range t.StudySessions {
			if ss.Completed {
				s.StudiedMinutes += ss.Duration
			} else {
				s.PlannedMinutes += ss.Duration
			}
		}
	}
	if m.ExamDate != nil {
		days := daysBetween(now, *m.ExamDate)
		s.DaysUntilExam = &days
	}
	return s
}

// daysBetween counts calendar days from a to b in b's location; negative once the exam has passed.
func daysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
