package usage

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/goodtune/talkgate/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultShards is the number of lock stripes used when none is configured.
const DefaultShards = 64

// StoreConfig holds usage store configuration
type StoreConfig struct {
	// Shards is rounded up to a power of two.
	Shards int
	Clock  Clock
}

// shard guards the records of every user whose id hashes to it.
type shard struct {
	mu      sync.Mutex
	records map[string]*DailyUsageRecord
}

// Store tracks per-user daily conversation counts and active sessions.
//
// Users are spread over a striped lock table: each compound operation takes
// the lock of the user's shard for its whole read-check-mutate sequence, so
// operations for one user are serialized while different users rarely contend.
type Store struct {
	shards []*shard
	mask   uint32
	clock  Clock
	logger zerolog.Logger
}

// NewStore creates a new usage store
func NewStore(config StoreConfig, logger zerolog.Logger) *Store {
	n := config.Shards
	if n <= 0 {
		n = DefaultShards
	}
	n = nextPowerOfTwo(n)

	if config.Clock == nil {
		config.Clock = RealClock{}
	}

	s := &Store{
		shards: make([]*shard, n),
		mask:   uint32(n - 1),
		clock:  config.Clock,
		logger: logger.With().Str("component", "usage-store").Logger(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]*DailyUsageRecord)}
	}

	return s
}

// GetOrResetDaily returns a snapshot of today's record for userID, replacing a
// stale record with a fresh zero-count one first.
func (s *Store) GetOrResetDaily(userID string) DailyUsageRecord {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.currentLocked(sh, userID).copy()
}

// HasReachedDailyLimit reports whether today's count is at or above limit.
func (s *Store) HasReachedDailyLimit(userID string, limit int) bool {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.currentLocked(sh, userID).ConversationsUsedToday >= limit
}

// StartConversation opens a new session for userID starting now. An existing
// session is discarded, not merged. It reports whether one was replaced.
func (s *Store) StartConversation(userID string) (replaced bool) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.currentLocked(sh, userID)
	replaced = rec.ActiveSession != nil

	rec.ActiveSession = &ActiveSession{
		StartedAt:          s.clock.Now(),
		AccumulatedSeconds: 0,
	}

	if replaced {
		metrics.SessionsReplaced.Inc()
		s.logger.Warn().
			Str("user_id", userID).
			Msg("Replaced active conversation session")
	} else {
		metrics.ActiveSessions.Inc()
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("conversations_used", rec.ConversationsUsedToday).
		Msg("Conversation started")

	return replaced
}

// BeginConversation checks the daily limit and opens a session in one step.
// An open session counts toward the limit, so overlapping turns from one user
// cannot be admitted past it. A session that is still open is counted before
// it is replaced; together with EndConversation this charges every admitted
// turn exactly once.
func (s *Store) BeginConversation(userID string, limit int) (started, reached bool) {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.currentLocked(sh, userID)

	inUse := rec.ConversationsUsedToday
	if rec.ActiveSession != nil {
		inUse++
	}
	if inUse >= limit {
		return false, true
	}

	if rec.ActiveSession != nil {
		rec.ConversationsUsedToday++
		metrics.SessionsReplaced.Inc()
		metrics.ConversationsEnded.Inc()
		s.logger.Warn().
			Str("user_id", userID).
			Int("conversations_used", rec.ConversationsUsedToday).
			Msg("Counted and replaced overlapping conversation session")
	} else {
		metrics.ActiveSessions.Inc()
	}

	rec.ActiveSession = &ActiveSession{
		StartedAt:          s.clock.Now(),
		AccumulatedSeconds: 0,
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("conversations_used", rec.ConversationsUsedToday).
		Msg("Conversation started")

	return true, false
}

// RemainingSeconds returns how much of maxSeconds the active session has left.
// Without an active session the whole budget remains. The result is never
// negative.
func (s *Store) RemainingSeconds(userID string, maxSeconds int) int {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.remainingLocked(s.currentLocked(sh, userID), maxSeconds)
}

// EndConversation closes the active session and counts it against today's
// quota. Without an active session it does nothing. It reports whether a
// session was closed.
func (s *Store) EndConversation(userID string) bool {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.currentLocked(sh, userID)
	if rec.ActiveSession == nil {
		s.logger.Debug().Str("user_id", userID).Msg("No active conversation to end")
		return false
	}

	rec.ActiveSession = nil
	rec.ConversationsUsedToday++

	metrics.ActiveSessions.Dec()
	metrics.ConversationsEnded.Inc()

	s.logger.Debug().
		Str("user_id", userID).
		Int("conversations_used", rec.ConversationsUsedToday).
		Msg("Conversation ended")

	return true
}

// Stats returns the user's position against a daily limit and time budget,
// read under a single lock acquisition.
func (s *Store) Stats(userID string, dailyLimit, maxSeconds int) UsageStats {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.currentLocked(sh, userID)

	remaining := dailyLimit - rec.ConversationsUsedToday
	if remaining < 0 {
		remaining = 0
	}

	return UsageStats{
		Date:                   rec.UsageDate,
		ConversationsUsed:      rec.ConversationsUsedToday,
		DailyLimit:             dailyLimit,
		RemainingConversations: remaining,
		LimitReached:           rec.ConversationsUsedToday >= dailyLimit,
		SessionActive:          rec.ActiveSession != nil,
		RemainingSeconds:       s.remainingLocked(rec, maxSeconds),
	}
}

// Len returns the number of users with a record in memory.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

// Sweep evicts every record not dated today. A missing record is recreated
// fresh on next access, so eviction is indistinguishable from the lazy reset.
func (s *Store) Sweep() int {
	today := dayKey(s.clock.Now())
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for userID, rec := range sh.records {
			if rec.UsageDate == today {
				continue
			}
			if rec.ActiveSession != nil {
				metrics.ActiveSessions.Dec()
			}
			delete(sh.records, userID)
			removed++
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		metrics.TrackedUsers.Sub(float64(removed))
		metrics.RecordsSwept.Add(float64(removed))
	}

	return removed
}

// currentLocked returns the live record for userID dated today, creating or
// resetting it as needed (must be called with the shard lock held).
func (s *Store) currentLocked(sh *shard, userID string) *DailyUsageRecord {
	today := dayKey(s.clock.Now())

	rec, exists := sh.records[userID]
	if !exists {
		rec = &DailyUsageRecord{UsageDate: today}
		sh.records[userID] = rec
		metrics.TrackedUsers.Inc()
		return rec
	}

	if rec.UsageDate != today {
		s.logger.Debug().
			Str("user_id", userID).
			Str("previous_date", rec.UsageDate).
			Str("date", today).
			Int("previous_count", rec.ConversationsUsedToday).
			Msg("Daily usage reset")

		if rec.ActiveSession != nil {
			metrics.ActiveSessions.Dec()
		}
		rec = &DailyUsageRecord{UsageDate: today}
		sh.records[userID] = rec
		metrics.DailyResets.Inc()
	}

	return rec
}

// remainingLocked computes the time left in rec's active session.
func (s *Store) remainingLocked(rec *DailyUsageRecord, maxSeconds int) int {
	if maxSeconds < 0 {
		maxSeconds = 0
	}

	session := rec.ActiveSession
	if session == nil {
		return maxSeconds
	}

	elapsed := int64(s.clock.Now().Sub(session.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	elapsed += session.AccumulatedSeconds

	remaining := int64(maxSeconds) - elapsed
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

func (s *Store) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return s.shards[h.Sum32()&s.mask]
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
