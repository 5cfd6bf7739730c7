package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
)

func TestNew(t *testing.T) {
	t.Run("rejects relative base URL", func(t *testing.T) {
		_, err := New("/api", anonymous())
		require.Error(t, err)
		assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	})

	t.Run("requires session reader", func(t *testing.T) {
		_, err := New("https://api.example.com", nil)
		require.Error(t, err)
	})

	t.Run("forces a timeout on clients without one", func(t *testing.T) {
		g, err := New("https://api.example.com/prod/", anonymous(), WithHTTPClient(&http.Client{}))
		require.NoError(t, err)
		assert.Equal(t, DefaultTimeout, g.httpClient.Timeout)
		assert.Equal(t, "/prod", g.baseURL.Path)
	})
}

func TestAccessString(t *testing.T) {
	assert.Equal(t, "public", AccessPublic.String())
	assert.Equal(t, "authenticated", AccessAuthenticated.String())
	assert.Equal(t, "admin", AccessAdmin.String())
	assert.Equal(t, "access(9)", Access(9).String())
}

func TestGuardBlocksBeforeAnyRequest(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `{}`))
	m := newTestMetrics()
	ctx := context.Background()

	draft := domain.ItemDraft{
		Title: "Blue umbrella", Status: domain.StatusLost, Location: "Library",
		Date: "2026-03-10", Category: "accessories", Description: "Left near the entrance",
	}

	tests := []struct {
		name    string
		session *fakeSession
		call    func(g *Gateway) error
		want    errors.Kind
	}{
		{
			name:    "anonymous create",
			session: anonymous(),
			call: func(g *Gateway) error {
				_, err := g.CreateItem(ctx, draft, nil)
				return err
			},
			want: errors.KindUnauthenticated,
		},
		{
			name:    "anonymous inbox",
			session: anonymous(),
			call: func(g *Gateway) error {
				_, err := g.Inbox(ctx)
				return err
			},
			want: errors.KindUnauthenticated,
		},
		{
			name:    "anonymous delete",
			session: anonymous(),
			call:    func(g *Gateway) error { return g.DeleteItem(ctx, "item-1") },
			want:    errors.KindUnauthenticated,
		},
		{
			name:    "anonymous user listing",
			session: anonymous(),
			call: func(g *Gateway) error {
				_, err := g.ListUsers(ctx)
				return err
			},
			want: errors.KindUnauthenticated,
		},
		{
			name:    "non-admin user listing",
			session: signedIn("u1"),
			call: func(g *Gateway) error {
				_, err := g.ListUsers(ctx)
				return err
			},
			want: errors.KindForbidden,
		},
		{
			name:    "non-admin block",
			session: signedIn("u1", "Members"),
			call: func(g *Gateway) error {
				_, err := g.SetUserStatus(ctx, "someone", domain.ActionBlock)
				return err
			},
			want: errors.KindForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, b.URL, tt.session, WithMetrics(m))
			err := tt.call(g)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
		})
	}

	assert.Zero(t, b.hits.Load(), "guarded calls must not reach the server")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues(OpCreateItem, "unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues(OpListUsers, "forbidden")))
}

func TestAdminGroupOption(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `[]`))

	g := newTestGateway(t, b.URL, signedIn("root", "Staff"), WithAdminGroup("Staff"))
	users, err := g.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)

	g = newTestGateway(t, b.URL, signedIn("root", "Admins"), WithAdminGroup("Staff"))
	_, err = g.ListUsers(context.Background())
	assert.Equal(t, errors.KindForbidden, errors.KindOf(err))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		want    errors.Kind
		message string
	}{
		{http.StatusUnauthorized, `{"message":"Unauthorized"}`, errors.KindUnauthenticated, "Unauthorized"},
		{http.StatusForbidden, `{"error":"Forbidden: You can only update your own items"}`, errors.KindForbidden, "only update your own"},
		{http.StatusNotFound, `{"error":"Item not found"}`, errors.KindNotFound, "Item not found"},
		{http.StatusBadRequest, `{"error":"Title must be between 3 and 100 characters"}`, errors.KindValidation, "between 3 and 100"},
		{http.StatusConflict, `not json`, errors.KindValidation, "status 409"},
		{http.StatusInternalServerError, `{"errorMessage":"Internal error: boom"}`, errors.KindServerError, "Internal error"},
		{http.StatusServiceUnavailable, ``, errors.KindServerError, "status 503"},
		{http.StatusMultipleChoices, ``, errors.KindUnknown, "status 300"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			b := newBackend(t, jsonReply(tt.status, tt.body))
			g := newTestGateway(t, b.URL, signedIn("u1"))

			err := g.DeleteItem(context.Background(), "item-1")
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
			assert.EqualValues(t, 1, b.hits.Load())
		})
	}
}

func TestUndecodableSuccessIsUnknown(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `<html>gateway</html>`))
	g := newTestGateway(t, b.URL, signedIn("u1"))

	_, err := g.Inbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknown, errors.KindOf(err))
}

func TestConnectionRefusedIsNetwork(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	g := newTestGateway(t, "http://"+addr, signedIn("u1"))
	_, err = g.Inbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestTimeoutIsNetwork(t *testing.T) {
	release := make(chan struct{})
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	g := newTestGateway(t, b.URL, signedIn("u1"), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := g.Inbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestCancelledContextIsNetwork(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `{}`))
	g := newTestGateway(t, b.URL, signedIn("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Inbox(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestRequestHeaders(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `{"threads":[]}`))

	t.Run("authenticated", func(t *testing.T) {
		g := newTestGateway(t, b.URL, signedIn("u1"))
		g.requestIDFn = func() string { return "req-123" }

		_, err := g.Inbox(context.Background())
		require.NoError(t, err)

		req, _ := b.request()
		assert.Equal(t, "Bearer token-u1", req.Header.Get("Authorization"))
		assert.Equal(t, "req-123", req.Header.Get(RequestIDHeader))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "/messages", req.URL.Path)
		assert.True(t, strings.HasPrefix(req.Header.Get("User-Agent"), "lostfound/"))
	})

	t.Run("anonymous public call carries no token", func(t *testing.T) {
		g := newTestGateway(t, b.URL, anonymous())
		_, err := g.ListItems(context.Background(), domain.ListFilter{})
		require.NoError(t, err)

		req, _ := b.request()
		assert.Empty(t, req.Header.Get("Authorization"))
		assert.NotEmpty(t, req.Header.Get(RequestIDHeader))
	})

	t.Run("signed-in public call carries the token", func(t *testing.T) {
		g := newTestGateway(t, b.URL, signedIn("u2"))
		_, err := g.ListItems(context.Background(), domain.ListFilter{})
		require.NoError(t, err)

		req, _ := b.request()
		assert.Equal(t, "Bearer token-u2", req.Header.Get("Authorization"))
	})
}

func TestBasePathIsPreserved(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `{"success":true}`))
	g := newTestGateway(t, b.URL+"/prod", signedIn("u1"))

	require.NoError(t, g.DeleteItem(context.Background(), "item 7"))
	req, _ := b.request()
	assert.Equal(t, "/prod/items/id", req.URL.Path)
	assert.Equal(t, "item 7", req.URL.Query().Get("id"))
}

func TestUnauthenticatedHook(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusUnauthorized, `{"message":"Unauthorized"}`))

	var mu sync.Mutex
	var seen []string
	hook := func(_ context.Context, token string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, token)
	}

	session := signedIn("u1")
	g := newTestGateway(t, b.URL, session, WithUnauthenticatedHook(hook))

	_, err := g.Inbox(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUnauthenticated, errors.KindOf(err))

	mu.Lock()
	assert.Equal(t, []string{"token-u1"}, seen)
	mu.Unlock()

	// The gateway never clears the session itself.
	assert.True(t, session.Snapshot().IsAuthenticated())
}

func TestUnauthenticatedHookNotCalledForOtherFailures(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusForbidden, `{"error":"Forbidden"}`))

	called := false
	g := newTestGateway(t, b.URL, signedIn("u1"), WithUnauthenticatedHook(func(context.Context, string) { called = true }))

	_, err := g.Inbox(context.Background())
	require.Error(t, err)
	assert.False(t, called)
}

func TestSnapshotReadPerCall(t *testing.T) {
	b := newBackend(t, jsonReply(http.StatusOK, `{"threads":[]}`))
	session := signedIn("u1")
	g := newTestGateway(t, b.URL, session)

	_, err := g.Inbox(context.Background())
	require.NoError(t, err)

	session.set(signedIn("u2").Snapshot())
	_, err = g.Inbox(context.Background())
	require.NoError(t, err)

	req, _ := b.request()
	assert.Equal(t, "Bearer token-u2", req.Header.Get("Authorization"))

	session.set(anonymous().Snapshot())
	_, err = g.Inbox(context.Background())
	assert.Equal(t, errors.KindUnauthenticated, errors.KindOf(err))
	assert.EqualValues(t, 2, b.hits.Load())
}

func TestRequestMetrics(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "missing") {
			jsonReply(http.StatusNotFound, `{"error":"Item not found"}`)(w, r)
			return
		}
		jsonReply(http.StatusOK, `{"success":true}`)(w, r)
	})
	m := newTestMetrics()
	g := newTestGateway(t, b.URL, signedIn("u1"), WithMetrics(m))

	require.NoError(t, g.DeleteItem(context.Background(), "item-1"))
	require.Error(t, g.DeleteItem(context.Background(), "missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues(OpDeleteItem, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues(OpDeleteItem, "not_found")))
}
