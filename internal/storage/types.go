package storage

import (
	"fmt"
	"time"
)

// Subscription assigns a plan tier to a user.
type Subscription struct {
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the subscription can be stored.
func (s Subscription) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("subscription: user id is required")
	}
	if s.PlanID == "" {
		return fmt.Errorf("subscription: plan id is required")
	}
	return nil
}
