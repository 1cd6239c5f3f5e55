// Package notify delivers audit/notification events about completed
// optimization runs to registered HTTP endpoints, with HMAC signing and
// retry backoff.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"binroute/internal/store"
)

// Event types emitted by the engine.
const (
	EventRunCompleted = "run.completed"
	EventRunAdapted   = "run.adapted"
	EventRunCanceled  = "run.canceled"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit enqueues the event for every subscription matching its type. Failures
// are swallowed: notification is best-effort and never blocks a run.
func (p *Publisher) Emit(ctx context.Context, orgID, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, orgID, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":    fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":  eventType,
		"orgId": orgID,
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"data":  data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueDelivery(ctx, orgID, s.ID, eventType, s.URL, s.Secret, body)
	}
}
