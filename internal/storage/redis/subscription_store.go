package redis

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/talkgate/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	upsertSubscription = redis.NewScript(upsertSubscriptionScript)
	deleteSubscription = redis.NewScript(deleteSubscriptionScript)
)

type subscriptionStore struct {
	client *redis.Client
}

// Get retrieves the subscription for userID
func (s *subscriptionStore) Get(ctx context.Context, userID string) (*storage.Subscription, error) {
	data, err := s.client.HGetAll(ctx, subscriptionKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return parseSubscription(data)
}

// List returns every subscription ordered by user id
func (s *subscriptionStore) List(ctx context.Context) ([]storage.Subscription, error) {
	userIDs, err := s.client.SMembers(ctx, subscriptionIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []storage.Subscription{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, subscriptionKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	subs := make([]storage.Subscription, 0, len(cmds))
	for _, cmd := range cmds {
		sub, err := parseSubscription(cmd.Val())
		if err == storage.ErrNotFound {
			// Hash removed outside the script; skip the stale index entry
			continue
		}
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].UserID < subs[j].UserID })
	return subs, nil
}

// Upsert creates or replaces a subscription
func (s *subscriptionStore) Upsert(ctx context.Context, sub storage.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	keys := []string{subscriptionKey(sub.UserID), subscriptionIndexKey()}
	return upsertSubscription.Run(ctx, s.client, keys,
		sub.UserID,
		sub.PlanID,
		sub.UpdatedAt.Format(time.RFC3339Nano),
	).Err()
}

// Delete removes the subscription for userID
func (s *subscriptionStore) Delete(ctx context.Context, userID string) error {
	keys := []string{subscriptionKey(userID), subscriptionIndexKey()}
	deleted, err := deleteSubscription.Run(ctx, s.client, keys, userID).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}
