package api

import (
	"context"
	"strings"

	"binroute/internal/auth"
	"binroute/internal/config"
	"binroute/internal/engine"
	"binroute/internal/integrations/csvsftp"
	"binroute/internal/notify"
	"binroute/internal/store"
)

type Server struct {
	Store  store.Store
	Engine *engine.Engine
	Pub    *notify.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Cfg    config.Config
}

// NewServer wires the store, event broker and engine from config. With no
// DATABASE_URL the store is in-memory; with no REDIS_URL events stay local.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = sp
	}
	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	pub := notify.NewPublisher(s)
	var provider engine.DataProvider = engine.NewDemoProvider()
	if cfg.FeedDir != "" {
		provider = &engine.FeedProvider{Source: csvsftp.Adapter{Dir: cfg.FeedDir}, Fleet: provider}
	}
	eng := engine.New(s, provider, pub, brokerSink{broker}, cfg.Engine)
	return &Server{
		Store:  s,
		Engine: eng,
		Pub:    pub,
		Auth:   auth.NewVerifierFromEnv(),
		Broker: broker,
		Cfg:    cfg,
	}, nil
}

// brokerSink adapts the event broker to the engine's sink interface,
// fanning each run event out to both the org topic and the run topic.
type brokerSink struct {
	b EventBroker
}

func (s brokerSink) Publish(topic, eventType string, data map[string]any) {
	evt := SSEEvent{Type: eventType, Data: data}
	s.b.Publish(topic, evt)
	if rid, ok := data["runId"].(string); ok && rid != "" && rid != topic {
		s.b.Publish(rid, evt)
	}
}

// NewNotifyWorker creates the background delivery worker.
func (s *Server) NewNotifyWorker() *notify.Worker {
	return notify.NewWorker(s.Store, s.Cfg.Notify.MaxAttempts)
}
