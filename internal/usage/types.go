package usage

import (
	"time"
)

// ActiveSession is the live timing window of one in-progress conversation.
type ActiveSession struct {
	StartedAt          time.Time `json:"started_at"`
	AccumulatedSeconds int64     `json:"accumulated_seconds"`
}

// DailyUsageRecord is a user's conversation count for one UTC calendar day.
type DailyUsageRecord struct {
	UsageDate              string         `json:"usage_date"`
	ConversationsUsedToday int            `json:"conversations_used_today"`
	ActiveSession          *ActiveSession `json:"active_session,omitempty"`
}

// copy returns a snapshot that shares no pointers with r.
func (r *DailyUsageRecord) copy() DailyUsageRecord {
	out := *r
	if r.ActiveSession != nil {
		s := *r.ActiveSession
		out.ActiveSession = &s
	}
	return out
}

// UsageStats is a consistent view of a user's quota position for one plan.
type UsageStats struct {
	Date                   string `json:"date"`
	ConversationsUsed      int    `json:"conversations_used"`
	DailyLimit             int    `json:"daily_limit"`
	RemainingConversations int    `json:"remaining_conversations"`
	LimitReached           bool   `json:"limit_reached"`
	SessionActive          bool   `json:"session_active"`
	RemainingSeconds       int    `json:"remaining_seconds"`
}
