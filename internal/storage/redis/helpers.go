package redis

import (
	"fmt"
	"time"

	"github.com/goodtune/talkgate/internal/storage"
)

// parseSubscription converts a Redis hash to Subscription
func parseSubscription(data map[string]string) (*storage.Subscription, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	sub := &storage.Subscription{
		UserID: data["user_id"],
		PlanID: data["plan_id"],
	}

	if raw := data["updated_at"]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		sub.UpdatedAt = updatedAt
	}

	return sub, nil
}
