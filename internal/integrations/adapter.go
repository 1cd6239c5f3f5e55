// Package integrations defines adapters that pull collection stops from
// external bin data feeds (fill-level platforms, municipal exports).
package integrations

import (
	"binroute/internal/vrp"
)

// SourceAdapter is the minimal interface for a stop feed integration.
type SourceAdapter interface {
	Name() string
	Authenticate(cfg map[string]any) (AuthState, error)
	FetchStops(date, cursor string) (StopBatch, error)
	AckStops(ids []string) error
}

type AuthState struct {
	Method string
	Token  string
}

// StopBatch is one page of stops from a feed; Cursor is empty on the
// last page.
type StopBatch struct {
	Stops  []vrp.Stop
	Cursor string
}
