package session

import "github.com/claude/physiotrack/internal/models"

// FeedbackLog keeps the most recent feedback items in arrival order.
type FeedbackLog struct {
	limit int
	items []models.FeedbackItem
}

// NewFeedbackLog creates a log holding at most limit items (minimum 1).
func NewFeedbackLog(limit int) *FeedbackLog {
	if limit < 1 {
		limit = 1
	}
	return &FeedbackLog{limit: limit}
}

// Append adds items, evicting the oldest beyond the limit.
func (l *FeedbackLog) Append(items ...models.FeedbackItem) {
	l.items = append(l.items, items...)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

// Items returns a copy of the log, oldest first.
func (l *FeedbackLog) Items() []models.FeedbackItem {
	out := make([]models.FeedbackItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of items held.
func (l *FeedbackLog) Len() int { return len(l.items) }

// Clear drops all items.
func (l *FeedbackLog) Clear() { l.items = nil }
