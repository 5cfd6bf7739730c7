package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/ux"
)

const (
	testClientID = "client-123"
	testPassword = "correct-horse-9"
)

// account is a user known to the fake pool
type account struct {
	sub       string
	email     string
	name      string
	password  string
	groups    []string
	confirmed bool
	code      string
}

// fakePool speaks just enough of the user pool JSON protocol
type fakePool struct {
	mu       sync.Mutex
	accounts map[string]*account
	issued   map[string]*account
	latest   map[string]string
	revoked  []string
	calls    []string
}

func newFakePool() *fakePool {
	return &fakePool{
		accounts: map[string]*account{},
		issued:   map[string]*account{},
		latest:   map[string]string{},
	}
}

func (p *fakePool) add(a *account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a.confirmed = true
	p.accounts[a.email] = a
}

func (p *fakePool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), "AWSCognitoIdentityProviderService.")

	var body struct {
		ClientID         string            `json:"ClientId"`
		Username         string            `json:"Username"`
		Password         string            `json:"Password"`
		ConfirmationCode string            `json:"ConfirmationCode"`
		AuthFlow         string            `json:"AuthFlow"`
		AuthParameters   map[string]string `json:"AuthParameters"`
		Token            string            `json:"Token"`
		UserAttributes   []struct {
			Name  string `json:"Name"`
			Value string `json:"Value"`
		} `json:"UserAttributes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)

	if body.ClientID != testClientID {
		poolException(w, "ResourceNotFoundException", "unknown client")
		return
	}

	switch op {
	case "SignUp":
		if _, exists := p.accounts[body.Username]; exists {
			poolException(w, "UsernameExistsException", "An account with the given email already exists.")
			return
		}
		a := &account{sub: "sub-" + body.Username, email: body.Username, password: body.Password, code: "123456"}
		for _, attr := range body.UserAttributes {
			if attr.Name == "name" {
				a.name = attr.Value
			}
		}
		p.accounts[a.email] = a
		poolJSON(w, map[string]any{"UserConfirmed": false, "UserSub": a.sub})
	case "ConfirmSignUp":
		a := p.accounts[body.Username]
		if a == nil {
			poolException(w, "UserNotFoundException", "User does not exist.")
			return
		}
		if body.ConfirmationCode != a.code {
			poolException(w, "CodeMismatchException", "Invalid verification code provided, please try again.")
			return
		}
		a.confirmed = true
		poolJSON(w, map[string]any{})
	case "ResendConfirmationCode":
		if a := p.accounts[body.Username]; a != nil {
			a.code = "654321"
		}
		poolJSON(w, map[string]any{})
	case "InitiateAuth":
		a := p.accounts[body.AuthParameters["USERNAME"]]
		if a == nil || a.password != body.AuthParameters["PASSWORD"] {
			poolException(w, "NotAuthorizedException", "Incorrect username or password.")
			return
		}
		if !a.confirmed {
			poolException(w, "UserNotConfirmedException", "User is not confirmed.")
			return
		}
		token := p.mint(a)
		poolJSON(w, map[string]any{"AuthenticationResult": map[string]any{
			"IdToken":      token,
			"AccessToken":  "access-" + a.sub,
			"RefreshToken": "refresh-" + a.sub,
			"ExpiresIn":    3600,
			"TokenType":    "Bearer",
		}})
	case "RevokeToken":
		p.revoked = append(p.revoked, body.Token)
		poolJSON(w, map[string]any{})
	default:
		poolException(w, "InvalidParameterException", "unsupported operation "+op)
	}
}

// mint issues an ID token for a. Callers hold p.mu.
func (p *fakePool) mint(a *account) string {
	claims := jwt.MapClaims{
		"sub":              a.sub,
		"email":            a.email,
		"name":             a.name,
		"cognito:username": a.sub,
		"iat":              time.Now().Unix(),
		"exp":              time.Now().Add(time.Hour).Unix(),
		"jti":              fmt.Sprintf("%s-%d", a.sub, len(p.issued)),
	}
	if len(a.groups) > 0 {
		claims["cognito:groups"] = a.groups
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		panic(err)
	}
	p.issued[token] = a
	p.latest[a.sub] = token
	return token
}

func (p *fakePool) holder(token string) *account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issued[token]
}

// tokenOf returns the latest token issued to a
func (p *fakePool) tokenOf(a *account) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest[a.sub]
}

func (p *fakePool) revokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

func (p *fakePool) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == op {
			n++
		}
	}
	return n
}

func poolJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	_ = json.NewEncoder(w).Encode(v)
}

func poolException(w http.ResponseWriter, name, message string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"__type": name, "message": message})
}

// fakeAPI is an in-memory lost-and-found backend
type fakeAPI struct {
	pool *fakePool

	mu       sync.Mutex
	items    []domain.Item
	users    []domain.UserRecord
	inbox    domain.Inbox
	rejected map[string]bool
	lastBody map[string]any
	hits     map[string]int
	requests int
}

func newFakeAPI(pool *fakePool) *fakeAPI {
	return &fakeAPI{
		pool:     pool,
		rejected: map[string]bool{},
		hits:     map[string]int{},
	}
}

// caller resolves the bearer token, writing a 401 when it is required and
// missing or rejected
func (f *fakeAPI) caller(w http.ResponseWriter, r *http.Request, required bool) (*account, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	rejected := f.rejected[token]
	f.mu.Unlock()

	a := f.pool.holder(token)
	if (a == nil || rejected) && required {
		apiJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return nil, false
	}
	return a, true
}

func (f *fakeAPI) record(r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.Method+" "+r.URL.Path]++
	f.lastBody = body
}

func (f *fakeAPI) hitCount(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

// requestCount counts every request that reached the server
func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeAPI) reject(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected[token] = true
}

func (f *fakeAPI) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		items := []domain.Item{}
		for _, it := range f.items {
			if s := r.URL.Query().Get("status"); s != "" && string(it.Status) != s {
				continue
			}
			items = append(items, it)
		}
		apiJSON(w, http.StatusOK, domain.ItemPage{Items: items, Count: len(items)})
	})

	mux.HandleFunc("POST /items", func(w http.ResponseWriter, r *http.Request) {
		a, ok := f.caller(w, r, true)
		if !ok {
			return
		}
		f.record(r)
		body := f.body()
		f.mu.Lock()
		defer f.mu.Unlock()
		id := fmt.Sprintf("item-%d", len(f.items)+1)
		title, _ := body["title"].(string)
		status, _ := body["status"].(string)
		f.items = append(f.items, domain.Item{ID: id, Title: title, Status: domain.ItemStatus(status), UserID: a.sub})
		resp := map[string]any{"success": true, "id": id, "message": "Item created successfully"}
		if _, hasImage := body["imageBase64"]; hasImage {
			resp["imageUrl"] = "https://cdn.example.com/" + id + ".png"
		}
		apiJSON(w, http.StatusCreated, resp)
	})

	mux.HandleFunc("PATCH /items/id", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		resolved, _ := f.body()["resolved"].(bool)
		apiJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"item":    map[string]any{"id": r.URL.Query().Get("id"), "resolved": resolved},
		})
	})

	mux.HandleFunc("DELETE /items/id", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		if r.URL.Query().Get("id") == "missing" {
			apiJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found"})
			return
		}
		apiJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("POST /contact", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		apiJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Message sent",
			"details": map[string]any{"messageId": "msg-1", "recipientEmail": "owner@example.com"},
		})
	})

	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		apiJSON(w, http.StatusOK, f.inbox)
	})

	mux.HandleFunc("POST /messages/reply", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		apiJSON(w, http.StatusOK, map[string]any{"success": true, "messageId": "msg-2", "message": "Reply sent"})
	})

	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		apiJSON(w, http.StatusOK, f.users)
	})

	mux.HandleFunc("PATCH /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.caller(w, r, true); !ok {
			return
		}
		f.record(r)
		action, _ := f.body()["action"].(string)
		apiJSON(w, http.StatusOK, map[string]any{
			"status":   "success",
			"username": r.PathValue("username"),
			"action":   action,
			"message":  fmt.Sprintf("User %s %sed", r.PathValue("username"), action),
		})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func apiJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// scriptedPrompter answers prompts by title and refuses anything else
type scriptedPrompter struct {
	answers  map[string]string
	confirms map[string]bool
	asked    []string
}

func (p *scriptedPrompter) Input(title string, _ bool) (string, error) {
	p.asked = append(p.asked, title)
	if v, ok := p.answers[title]; ok {
		return v, nil
	}
	return ux.NoPrompter{}.Input(title, false)
}

func (p *scriptedPrompter) Confirm(title string, _ bool) (bool, error) {
	p.asked = append(p.asked, title)
	if v, ok := p.confirms[title]; ok {
		return v, nil
	}
	return ux.NoPrompter{}.Confirm(title, false)
}

// harness runs the CLI against a fake pool and backend sharing one
// credential store
type harness struct {
	t        *testing.T
	pool     *fakePool
	api      *fakeAPI
	env      map[string]string
	prompter ux.Prompter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pool := newFakePool()
	api := newFakeAPI(pool)

	poolSrv := httptest.NewServer(pool)
	t.Cleanup(poolSrv.Close)
	apiSrv := httptest.NewServer(api.handler())
	t.Cleanup(apiSrv.Close)

	dir := t.TempDir()
	return &harness{
		t:    t,
		pool: pool,
		api:  api,
		env: map[string]string{
			"LOSTFOUND_API_URL":           apiSrv.URL,
			"LOSTFOUND_CLIENT_ID":         testClientID,
			"LOSTFOUND_IDENTITY_ENDPOINT": poolSrv.URL,
			"LOSTFOUND_CREDENTIALS_PATH":  filepath.Join(dir, "credentials.json"),
			"LOSTFOUND_PASSPHRASE":        "test passphrase",
			"LOSTFOUND_AUDIT_DIR":         filepath.Join(dir, "audit"),
		},
		prompter: ux.NoPrompter{},
	}
}

func (h *harness) lookup(key string) (string, bool) {
	v, ok := h.env[key]
	return v, ok
}

// run executes one CLI invocation, like a separate process would
func (h *harness) run(args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	err = Run(context.Background(), args,
		WithOutput(&out, &errOut),
		WithEnvironment(h.lookup),
		WithPrompter(h.prompter),
	)
	return out.String(), errOut.String(), err
}

// mustRun fails the test when the invocation fails
func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run(args...)
	require.NoError(h.t, err, "stderr: %s", errOut)
	return out
}

// signIn creates a confirmed account and logs it in
func (h *harness) signIn(email string, groups ...string) *account {
	h.t.Helper()
	a := &account{sub: "sub-" + email, email: email, name: "Test " + email, password: testPassword, groups: groups}
	h.pool.add(a)
	h.mustRun("auth", "login", "--email", email, "--password", testPassword)
	return a
}
