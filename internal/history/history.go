package history

import "strings"

// MaxRecent is how many questions are remembered.
const MaxRecent = 5

// Recent is the most-recent-first list of questions the learner asked the assistant.
type Recent struct {
	items []string
}

// NewRecent restores a list from persisted items, re-applying the dedupe and bound.
func NewRecent(items []string) *Recent {
	r := &Recent{}
	for i := len(items) - 1; i >= 0; i-- {
		r.Add(items[i])
	}
	return r
}

// Add records q as the most recent question. Empty input is ignored and an
// earlier entry with the same text (ignoring case and surrounding space) is removed.
func (r *Recent) Add(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}
	out := make([]string, 0, MaxRecent)
	out = append(out, q)
	for _, existing := range r.items {
		if strings.EqualFold(existing, q) {
			continue
		}
		if len(out) == MaxRecent {
			break
		}
		out = append(out, existing)
	}
	r.items = out
	return true
}

// Items returns a copy of the list, most recent first.
func (r *Recent) Items() []string {
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}

// Clear forgets everything.
func (r *Recent) Clear() {
	r.items = nil
}

func (r *Recent) Len() int { return len(r.items) }
