package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"binroute/internal/model"
	"binroute/internal/store"
)

func subReq(orgID, url, event string) model.SubscriptionRequest {
	return model.SubscriptionRequest{OrgID: orgID, URL: url, Events: []string{event}, Secret: "secret"}
}

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}
type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}
type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnceSuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	body := []byte(`{"id":"evt1"}`)
	id, err := rs.Memory.EnqueueDelivery(context.Background(), "org1", "", EventRunCompleted, srv.URL, "secret", body)
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventRunCompleted {
		t.Fatalf("type header = %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnceFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueDelivery(context.Background(), "org1", "", EventRunAdapted, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
}

func TestPublisherEnqueuesForMatchingSubscriptions(t *testing.T) {
	m := store.NewMemory()
	p := NewPublisher(m)
	_, err := m.CreateSubscription(context.Background(), subReq("org1", "https://a.example", EventRunCompleted))
	if err != nil {
		t.Fatalf("create sub: %v", err)
	}
	if _, err := m.CreateSubscription(context.Background(), subReq("org1", "https://b.example", EventRunAdapted)); err != nil {
		t.Fatalf("create sub: %v", err)
	}

	p.Emit(context.Background(), "org1", EventRunCompleted, map[string]any{"runId": "r1"})

	due, err := m.FetchDueDeliveries(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != 1 || due[0].URL != "https://a.example" {
		t.Fatalf("deliveries = %+v", due)
	}
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"x":1}`)
	sig := SignHMAC("secret", body)
	if !VerifyHMAC("secret", body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatalf("wrong secret accepted")
	}
	if VerifyHMAC("secret", body, "zz") {
		t.Fatalf("garbage signature accepted")
	}
}
