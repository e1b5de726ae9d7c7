package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/usage"
	"github.com/rs/zerolog"
)

// fakeResponder records calls and returns canned results.
type fakeResponder struct {
	mu        sync.Mutex
	calls     int
	lastLimit int
	text      string
	err       error
}

func (f *fakeResponder) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastLimit = maxOutputTokens
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return "reply: " + message, nil
}

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	gate      *Gate
	store     *usage.Store
	clock     *usage.TestClock
	responder *fakeResponder
}

func newTestEnv(t *testing.T, tiers ...plans.Tier) *testEnv {
	t.Helper()

	if len(tiers) == 0 {
		tiers = []plans.Tier{{ID: "BASIC", DailyConversationLimit: 2, MaxSecondsPerConversation: 30, Priority: 1}}
	}
	cat, err := plans.NewCatalog(tiers, tiers[0].ID)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	clock := usage.NewTestClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := usage.NewStore(usage.StoreConfig{Shards: 4, Clock: clock}, zerolog.Nop())
	fake := &fakeResponder{}

	return &testEnv{
		gate:      NewGate(plans.NewResolver(cat), store, fake, Config{}, zerolog.Nop()),
		store:     store,
		clock:     clock,
		responder: fake,
	}
}

func TestGate_DailyLimitScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	steps := []struct {
		wantStatus Status
		wantCount  int
		wantCalls  int
	}{
		{StatusAllowed, 1, 1},
		{StatusAllowed, 2, 2},
		{StatusDailyExhausted, 2, 2},
	}

	for i, step := range steps {
		out, err := env.gate.Turn(ctx, TurnRequest{UserID: "u1", Message: "hello"})
		if err != nil {
			t.Fatalf("turn %d: unexpected error %v", i+1, err)
		}
		if out.Status != step.wantStatus {
			t.Errorf("turn %d: status = %s, want %s", i+1, out.Status, step.wantStatus)
		}
		if got := env.store.GetOrResetDaily("u1").ConversationsUsedToday; got != step.wantCount {
			t.Errorf("turn %d: count = %d, want %d", i+1, got, step.wantCount)
		}
		if out.Meta.ConversationsUsed != step.wantCount {
			t.Errorf("turn %d: meta count = %d, want %d", i+1, out.Meta.ConversationsUsed, step.wantCount)
		}
		if got := env.responder.callCount(); got != step.wantCalls {
			t.Errorf("turn %d: responder calls = %d, want %d", i+1, got, step.wantCalls)
		}
	}

	if env.store.GetOrResetDaily("u1").ActiveSession != nil {
		t.Error("daily-exhausted turn must not open a session")
	}
}

func TestGate_AllowedOutcome(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.gate.Turn(context.Background(), TurnRequest{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if out.Text != "reply: hi" {
		t.Errorf("Text = %q", out.Text)
	}
	want := PlanMeta{Plan: "BASIC", MaxSeconds: 30, DailyLimit: 2, ConversationsUsed: 1}
	if out.Meta != want {
		t.Errorf("Meta = %+v, want %+v", out.Meta, want)
	}
	if env.responder.lastLimit != DefaultMaxOutputTokens {
		t.Errorf("max output tokens = %d, want %d", env.responder.lastLimit, DefaultMaxOutputTokens)
	}
}

func TestGate_EmptyResponseUsesFallback(t *testing.T) {
	env := newTestEnv(t)
	env.gate.responder = responderFunc(func(ctx context.Context, m string, n int) (string, error) {
		return "", nil
	})

	out, err := env.gate.Turn(context.Background(), TurnRequest{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if out.Text != FallbackText {
		t.Errorf("Text = %q, want fallback", out.Text)
	}
}

func TestGate_TimeBudgetScenario(t *testing.T) {
	env := newTestEnv(t)
	plan := env.gate.Resolve("")

	env.store.StartConversation("u2")
	env.clock.Advance(31 * time.Second)

	out, expired := env.gate.EnforceTimeBudget("u2", plan)
	if !expired {
		t.Fatal("EnforceTimeBudget() should report an expired budget")
	}
	if out.Status != StatusTimeExhausted || out.Text != TimeExhaustedText {
		t.Errorf("outcome = %+v", out)
	}

	rec := env.store.GetOrResetDaily("u2")
	if rec.ActiveSession != nil {
		t.Error("session should be cleared")
	}
	if rec.ConversationsUsedToday != 1 {
		t.Errorf("count = %d, want 1", rec.ConversationsUsedToday)
	}
}

func TestGate_TimeBudgetNotExpired(t *testing.T) {
	env := newTestEnv(t)
	plan := env.gate.Resolve("")

	env.store.StartConversation("u3")
	env.clock.Advance(29 * time.Second)

	if _, expired := env.gate.EnforceTimeBudget("u3", plan); expired {
		t.Error("budget should not be expired after 29s of 30s")
	}
	if env.store.GetOrResetDaily("u3").ActiveSession == nil {
		t.Error("session should remain open")
	}
}

func TestGate_ZeroSecondTierIsTimeExhausted(t *testing.T) {
	env := newTestEnv(t, plans.Tier{ID: "MUTE", DailyConversationLimit: 5, MaxSecondsPerConversation: 0})

	out, err := env.gate.Turn(context.Background(), TurnRequest{UserID: "u4", Message: "hi"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if out.Status != StatusTimeExhausted {
		t.Errorf("status = %s, want %s", out.Status, StatusTimeExhausted)
	}
	if env.responder.callCount() != 0 {
		t.Error("responder must not be called once time is exhausted")
	}
	if got := env.store.GetOrResetDaily("u4").ConversationsUsedToday; got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestGate_ResponderFailureStillConsumesQuota(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("upstream timeout")
	env.responder.err = boom

	out, err := env.gate.Turn(context.Background(), TurnRequest{UserID: "u5", Message: "hi"})
	if out != nil {
		t.Errorf("outcome = %+v, want nil", out)
	}
	if !errors.Is(err, ErrResponderFailed) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapping ErrResponderFailed and cause", err)
	}

	rec := env.store.GetOrResetDaily("u5")
	if rec.ConversationsUsedToday != 1 {
		t.Errorf("count = %d, want 1", rec.ConversationsUsedToday)
	}
	if rec.ActiveSession != nil {
		t.Error("session should be closed after a failed call")
	}
}

func TestGate_TierHint(t *testing.T) {
	env := newTestEnv(t,
		plans.Tier{ID: "BASIC", DailyConversationLimit: 1, MaxSecondsPerConversation: 30, Priority: 1},
		plans.Tier{ID: "PRO", DailyConversationLimit: 3, MaxSecondsPerConversation: 120, Priority: 2},
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := env.gate.Turn(ctx, TurnRequest{UserID: "u6", TierHint: "PRO", Message: "hi"})
		if err != nil {
			t.Fatalf("Turn() error = %v", err)
		}
		if out.Status != StatusAllowed || out.Meta.Plan != "PRO" {
			t.Fatalf("turn %d: outcome = %+v", i+1, out)
		}
	}

	out, _ := env.gate.Turn(ctx, TurnRequest{UserID: "u6", TierHint: "NOPE", Message: "hi"})
	if out.Status != StatusDailyExhausted || out.Meta.Plan != "BASIC" {
		t.Errorf("unknown hint should fall back to BASIC and be exhausted, got %+v", out)
	}
}

func TestGate_ConcurrentTurnsRespectLimit(t *testing.T) {
	const limit = 10
	env := newTestEnv(t, plans.Tier{ID: "BASIC", DailyConversationLimit: limit, MaxSecondsPerConversation: 30})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := env.gate.Turn(ctx, TurnRequest{UserID: "u7", Message: "hi"})
			if err == nil && out.Status == StatusAllowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec := env.store.GetOrResetDaily("u7")
	if rec.ActiveSession != nil {
		t.Error("no session should remain open")
	}
	if calls := env.responder.callCount(); calls > limit {
		t.Errorf("responder calls = %d, exceeds daily limit %d", calls, limit)
	}
	if allowed > limit {
		t.Errorf("allowed turns = %d, exceeds daily limit %d", allowed, limit)
	}
	if rec.ConversationsUsedToday > limit {
		t.Errorf("count = %d, exceeds daily limit %d", rec.ConversationsUsedToday, limit)
	}
	if rec.ConversationsUsedToday != env.responder.callCount() {
		t.Errorf("count = %d, want one per responder call (%d)", rec.ConversationsUsedToday, env.responder.callCount())
	}
}

func TestGate_OverlappingTurnsCannotExceedLimit(t *testing.T) {
	env := newTestEnv(t, plans.Tier{ID: "SOLO", DailyConversationLimit: 1, MaxSecondsPerConversation: 30})
	ctx := context.Background()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var (
		calls   int
		callsMu sync.Mutex
	)
	env.gate.responder = responderFunc(func(ctx context.Context, m string, n int) (string, error) {
		callsMu.Lock()
		calls++
		callsMu.Unlock()
		if m == "first" {
			entered <- struct{}{}
			<-release
		}
		return "ok", nil
	})

	results := make(chan *Outcome, 2)
	go func() {
		out, _ := env.gate.Turn(ctx, TurnRequest{UserID: "u8", Message: "first"})
		results <- out
	}()

	// The first turn is inside the responder with its session open
	<-entered

	second, err := env.gate.Turn(ctx, TurnRequest{UserID: "u8", Message: "second"})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if second.Status != StatusDailyExhausted {
		t.Errorf("overlapping turn status = %s, want %s", second.Status, StatusDailyExhausted)
	}

	close(release)
	first := <-results
	if first == nil || first.Status != StatusAllowed {
		t.Fatalf("first turn outcome = %+v, want allowed", first)
	}

	callsMu.Lock()
	defer callsMu.Unlock()
	if calls != 1 {
		t.Errorf("responder calls = %d, want 1", calls)
	}
	if got := env.store.GetOrResetDaily("u8").ConversationsUsedToday; got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

type responderFunc func(ctx context.Context, message string, maxOutputTokens int) (string, error)

func (f responderFunc) Respond(ctx context.Context, message string, maxOutputTokens int) (string, error) {
	return f(ctx, message, maxOutputTokens)
}
