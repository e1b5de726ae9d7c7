package api

import (
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/usage"
)

// TalkRequest is the body of POST /v1/talk.
type TalkRequest struct {
	Message string `json:"message"`
	Feature string `json:"feature,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
	usage.UsageStats
	MaxSeconds int `json:"max_seconds"`
}

// PlanInfo is one tier in GET /v1/plans.
type PlanInfo struct {
	ID                string   `json:"id"`
	Price             int      `json:"price"`
	ConvosPerDay      int      `json:"convos_per_day"`
	MaxSecondsPerConv int      `json:"max_seconds_per_convo"`
	Priority          int      `json:"priority"`
	Features          []string `json:"features"`
	InterruptionLimit int      `json:"interruption_limit"`
	Default           bool     `json:"default"`
}

// PlansResponse is the body of GET /v1/plans.
type PlansResponse struct {
	Plans []PlanInfo `json:"plans"`
}

func planInfo(t plans.Tier, defaultID string) PlanInfo {
	return PlanInfo{
		ID:                t.ID,
		Price:             t.Price,
		ConvosPerDay:      t.DailyConversationLimit,
		MaxSecondsPerConv: t.MaxSecondsPerConversation,
		Priority:          t.Priority,
		Features:          t.FeatureStrings(),
		InterruptionLimit: t.InterruptionLimit,
		Default:           t.ID == defaultID,
	}
}
