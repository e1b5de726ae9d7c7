package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/talkgate/internal/storage"
)

func TestSubscriptionStore_Lifecycle(t *testing.T) {
	store := Open()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	subs := store.Subscriptions()

	if _, err := subs.Get(ctx, "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	now := time.Now().UTC()
	if err := subs.Upsert(ctx, storage.Subscription{UserID: "bob", PlanID: "PLAN_399", UpdatedAt: now}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := subs.Upsert(ctx, storage.Subscription{UserID: "alice", PlanID: "PLAN_599", UpdatedAt: now}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := subs.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PlanID != "PLAN_599" {
		t.Errorf("PlanID = %s, want PLAN_599", got.PlanID)
	}

	list, err := subs.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].UserID != "alice" || list[1].UserID != "bob" {
		t.Errorf("List() = %+v, want alice then bob", list)
	}

	if err := subs.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := subs.Delete(ctx, "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSubscriptionStore_Validation(t *testing.T) {
	subs := Open().Subscriptions()
	ctx := context.Background()

	if err := subs.Upsert(ctx, storage.Subscription{PlanID: "FREE"}); err == nil {
		t.Error("Upsert() without user id should fail")
	}
	if err := subs.Upsert(ctx, storage.Subscription{UserID: "u"}); err == nil {
		t.Error("Upsert() without plan id should fail")
	}
}

func TestSubscriptionStore_GetReturnsCopy(t *testing.T) {
	subs := Open().Subscriptions()
	ctx := context.Background()

	_ = subs.Upsert(ctx, storage.Subscription{UserID: "u", PlanID: "FREE"})
	got, _ := subs.Get(ctx, "u")
	got.PlanID = "PLAN_699"

	again, _ := subs.Get(ctx, "u")
	if again.PlanID != "FREE" {
		t.Errorf("stored PlanID = %s, want FREE", again.PlanID)
	}
}
