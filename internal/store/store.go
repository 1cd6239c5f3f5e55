// Package store persists optimization runs, notification subscriptions and
// outbound deliveries. Memory backs tests and dev; Postgres backs prod.
package store

import (
	"context"
	"errors"
	"time"

	"binroute/internal/model"
)

// Store is the persistence interface used by the engine and API server.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, orgID, id string) (model.Run, error)
	ListRuns(ctx context.Context, orgID, date, cursor string, limit int) ([]model.Run, string, error)

	// Notification subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, orgID, cursor string, limit int) ([]model.Subscription, string, error)
	GetSubscriptionsForEvent(ctx context.Context, orgID, eventType string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, orgID, id string) error

	// Outbound delivery queue
	EnqueueDelivery(ctx context.Context, orgID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

// Delivery is one pending outbound notification.
type Delivery struct {
	ID             string
	OrgID          string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
