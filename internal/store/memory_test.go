package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"binroute/internal/model"
)

func testRun(id, org, date string) model.Run {
	return model.Run{ID: id, OrgID: org, Date: date, Kind: "optimize", Status: "completed", CreatedAt: time.Now()}
}

func TestMemorySaveAndGetRun(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.SaveRun(ctx, testRun("r1", "org1", "2026-09-01")); err != nil {
		t.Fatalf("save: %v", err)
	}
	run, err := m.GetRun(ctx, "org1", "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Date != "2026-09-01" || run.Kind != "optimize" {
		t.Fatalf("run = %+v", run)
	}
	if _, err := m.GetRun(ctx, "org2", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-org get should be not found, got %v", err)
	}
	if _, err := m.GetRun(ctx, "org1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id should be not found, got %v", err)
	}
}

func TestMemoryListRunsDateFilterAndPaging(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		date := "2026-09-01"
		if i%2 == 1 {
			date = "2026-09-02"
		}
		if err := m.SaveRun(ctx, testRun(fmt.Sprintf("r%d", i), "org1", date)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	runs, _, err := m.ListRuns(ctx, "org1", "2026-09-01", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("date filter returned %d runs", len(runs))
	}

	page1, next, err := m.ListRuns(ctx, "org1", "", "", 2)
	if err != nil || len(page1) != 2 || next == "" {
		t.Fatalf("page1 = %d next = %q err = %v", len(page1), next, err)
	}
	page2, next2, err := m.ListRuns(ctx, "org1", "", next, 10)
	if err != nil || len(page2) != 3 || next2 != "" {
		t.Fatalf("page2 = %d next2 = %q err = %v", len(page2), next2, err)
	}
	if page1[0].ID == page2[0].ID {
		t.Fatal("pages overlap")
	}

	if got, _, _ := m.ListRuns(ctx, "org_other", "", "", 0); len(got) != 0 {
		t.Fatalf("other org sees %d runs", len(got))
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s1, err := m.CreateSubscription(ctx, model.SubscriptionRequest{OrgID: "org1", URL: "https://a.example", Events: []string{"run.completed"}})
	if err != nil || s1.ID == "" {
		t.Fatalf("create: %v", err)
	}
	s2, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{OrgID: "org1", URL: "https://b.example", Events: []string{"*"}})

	subs, _, err := m.ListSubscriptions(ctx, "org1", "", 0)
	if err != nil || len(subs) != 2 {
		t.Fatalf("list = %d err = %v", len(subs), err)
	}

	matched, err := m.GetSubscriptionsForEvent(ctx, "org1", "run.adapted")
	if err != nil {
		t.Fatalf("for event: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != s2.ID {
		t.Fatalf("wildcard match = %+v", matched)
	}
	matched, _ = m.GetSubscriptionsForEvent(ctx, "org1", "run.completed")
	if len(matched) != 2 {
		t.Fatalf("completed match = %d", len(matched))
	}

	if err := m.DeleteSubscription(ctx, "org1", s1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "org1", s1.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestMemoryDeliveryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueDelivery(ctx, "org1", "sub1", "run.completed", "https://a.example", "sec", []byte(`{}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	due, err := m.FetchDueDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %+v err = %v", due, err)
	}

	// Retry pushed into the future is no longer due.
	retryAt := time.Now().Add(time.Hour)
	if err := m.MarkDelivery(ctx, id, false, &retryAt, "timeout", 0, 120); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	if due, _ = m.FetchDueDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry should not be due yet, got %d", len(due))
	}

	if err := m.MarkDelivery(ctx, id, true, nil, "", 200, 80); err != nil {
		t.Fatalf("mark ok: %v", err)
	}
	if due, _ = m.FetchDueDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("delivered should not be due, got %d", len(due))
	}

	id2, _ := m.EnqueueDelivery(ctx, "org1", "sub1", "run.adapted", "https://a.example", "sec", []byte(`{}`))
	if err := m.FailDelivery(ctx, id2, "boom", 500, 90); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if due, _ = m.FetchDueDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("failed should not be due, got %d", len(due))
	}

	if err := m.MarkDelivery(ctx, "missing", true, nil, "", 200, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("mark missing: %v", err)
	}
}
