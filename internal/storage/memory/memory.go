package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/goodtune/talkgate/internal/storage"
)

// Store implements storage.Store in process memory. Contents are lost on
// restart.
type Store struct {
	subscriptions *subscriptionStore
}

// Open creates an empty in-memory store.
func Open() *Store {
	return &Store{
		subscriptions: &subscriptionStore{data: make(map[string]storage.Subscription)},
	}
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return nil
}

// Subscriptions returns the SubscriptionStore implementation
func (s *Store) Subscriptions() storage.SubscriptionStore {
	return s.subscriptions
}

type subscriptionStore struct {
	mu   sync.RWMutex
	data map[string]storage.Subscription
}

func (s *subscriptionStore) Get(ctx context.Context, userID string) (*storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.data[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &sub, nil
}

func (s *subscriptionStore) List(ctx context.Context) ([]storage.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]storage.Subscription, 0, len(s.data))
	for _, sub := range s.data {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].UserID < subs[j].UserID })
	return subs, nil
}

func (s *subscriptionStore) Upsert(ctx context.Context, sub storage.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data[sub.UserID] = sub
	s.mu.Unlock()
	return nil
}

func (s *subscriptionStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, userID)
	return nil
}
