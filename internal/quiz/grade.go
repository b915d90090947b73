package quiz

import "examprephub/internal/models"

// Grade counts the questions whose selected answer equals the correct one.
// No partial credit, no negative marking. Pure and idempotent.
func Grade(questions []models.QuizQuestion, selected map[int]models.OptionID) int {
	score := 0
	for _, q := range questions {
		if a, ok := selected[q.ID]; ok && a == q.CorrectAnswer {
			score++
		}
	}
	return score
}

// QuestionResult is one row of the Results page.
type QuestionResult struct {
	QuestionID    int             `json:"questionId"`
	Question      string          `json:"question"`
	Options       []models.Option `json:"options"`
	Selected      models.OptionID `json:"selected,omitempty"`
	CorrectAnswer models.OptionID `json:"correctAnswer"`
	Correct       bool            `json:"correct"`
	Explanation   string          `json:"explanation"`
}

// Review pairs every question with the learner's answer, in quiz order.
func Review(questions []models.QuizQuestion, selected map[int]models.OptionID) []QuestionResult {
	out := make([]QuestionResult, 0, len(questions))
	for _, q := range questions {
		a := selected[q.ID]
		out = append(out, QuestionResult{
			QuestionID:    q.ID,
			Question:      q.Question,
			Options:       q.Options,
			Selected:      a,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       a != "" && a == q.CorrectAnswer,
			Explanation:   q.Explanation,
		})
	}
	return out
}

// Percentage is round(100*score/total), 0 for an empty quiz.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*score + total) / (2 * total)
}
