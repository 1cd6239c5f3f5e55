package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"binroute/internal/model"
)

// Postgres persists runs and deliveries via database/sql over the pgx
// stdlib driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping reports database connectivity, used by the readiness probe.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema if missing. Dev helper; production migrations
// run out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			org_id TEXT NOT NULL,
			plan_date TEXT NOT NULL,
			kind TEXT NOT NULL,
			parent_id TEXT,
			priority TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_org_date ON runs (org_id, plan_date, id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			org_id TEXT NOT NULL,
			url TEXT NOT NULL,
			events TEXT[] NOT NULL,
			secret TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id UUID PRIMARY KEY,
			org_id TEXT NOT NULL,
			subscription_id TEXT,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_error TEXT,
			response_code INT,
			latency_ms INT,
			delivered_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS deliveries_due ON deliveries (status, next_attempt_at)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO runs (id, org_id, plan_date, kind, parent_id, priority, status, created_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`,
		run.ID, run.OrgID, run.Date, run.Kind, nullIfEmpty(run.ParentID), nullIfEmpty(run.Priority),
		run.Status, run.CreatedAt, payload)
	return err
}

func (p *Postgres) GetRun(ctx context.Context, orgID, id string) (model.Run, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT payload FROM runs WHERE org_id=$1 AND id::text=$2`, orgID, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	var run model.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (p *Postgres) ListRuns(ctx context.Context, orgID, date, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, payload FROM runs WHERE org_id=$1`
	args := []any{orgID}
	if date != "" {
		args = append(args, date)
		q += ` AND plan_date=$2`
	}
	if cursor != "" {
		args = append(args, cursor)
		q += ` AND id::text > $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	var last string
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, "", err
		}
		var run model.Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, "", err
		}
		out = append(out, run)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, org_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.OrgID, req.URL, pqStringArray(req.Events), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id.String(), OrgID: req.OrgID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, orgID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions WHERE org_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`,
			orgID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions WHERE org_id=$1 ORDER BY id LIMIT $2`,
			orgID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, "", err
		}
		s.OrgID = orgID
		s.Events = parsePgArray(events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, orgID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, events, secret FROM subscriptions WHERE org_id=$1 AND ($2 = ANY(events) OR '*' = ANY(events))`,
		orgID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events string
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		s.OrgID = orgID
		s.Events = parsePgArray(events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, orgID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE org_id=$1 AND id::text=$2`, orgID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueDelivery(ctx context.Context, orgID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, org_id, subscription_id, event_type, url, secret, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, orgID, nullIfEmpty(subscriptionID), eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *Postgres) FetchDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, org_id, COALESCE(subscription_id,''), event_type, url, secret, payload, attempts
		FROM deliveries WHERE status='pending' AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Delivery{}
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.OrgID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts); err != nil {
			return nil, err
		}
		d.Status = "pending"
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE deliveries SET status='delivered', attempts=attempts+1, last_error=NULL,
				response_code=$2, latency_ms=$3, delivered_at=now()
			WHERE id::text=$1`, id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE deliveries SET attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5
		WHERE id::text=$1`, id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4
		WHERE id::text=$1`, id, lastError, responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// pqStringArray renders a TEXT[] literal; inputs are internal event names,
// not user text.
func pqStringArray(xs []string) string {
	out := "{"
	for i, x := range xs {
		if i > 0 {
			out += ","
		}
		out += `"` + x + `"`
	}
	return out + "}"
}

// parsePgArray parses the simple {a,b} form produced above.
func parsePgArray(s string) []string {
	if len(s) < 2 {
		return nil
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range splitComma(s) {
		if len(part) >= 2 && part[0] == '"' {
			part = part[1 : len(part)-1]
		}
		out = append(out, part)
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
