package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/lostfound/internal/auth"
	"github.com/felixgeelhaar/lostfound/internal/log"
	"github.com/felixgeelhaar/lostfound/internal/metrics"
)

var fixedNow = time.Date(2026, time.March, 14, 15, 30, 0, 0, time.UTC)

// fakeSession is a SessionReader whose snapshot can be swapped
type fakeSession struct {
	mu   sync.Mutex
	snap auth.Session
}

func (f *fakeSession) Snapshot() auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) set(s auth.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
}

func anonymous() *fakeSession { return &fakeSession{} }

func signedIn(userID string, groups ...string) *fakeSession {
	return &fakeSession{snap: auth.Session{
		Token:       "token-" + userID,
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: userID,
		Groups:      groups,
	}}
}

// backend records requests and answers with a configurable handler
type backend struct {
	*httptest.Server
	hits    atomic.Int32
	mu      sync.Mutex
	last    *http.Request
	lastRaw []byte
}

func newBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.last = r.Clone(r.Context())
		b.lastRaw = body
		b.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) request() (*http.Request, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.lastRaw
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestGateway(t *testing.T, url string, session SessionReader, opts ...Option) *Gateway {
	t.Helper()
	base := []Option{WithLogger(log.Discard()), WithClock(func() time.Time { return fixedNow })}
	g, err := New(url, session, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}
