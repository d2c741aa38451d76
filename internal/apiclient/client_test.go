package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"brdconsole.org/internal/session"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   []recorded
	handler http.HandlerFunc
}

func newFakeBackend(t *testing.T, h http.HandlerFunc) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{handler: h}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.calls = append(fb.calls, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		fb.mu.Unlock()
		fb.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (f *fakeBackend) Calls() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.calls...)
}

func newTestClient(t *testing.T, srv *httptest.Server, store session.Store, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	c, err := New(Config{BaseURL: srv.URL + "/api/v1"}, store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func loggedIn(token string) *session.MemoryStore {
	s := session.NewMemoryStore()
	_ = s.Save(session.Session{AccessToken: token, User: session.User{Email: "admin@brd.in"}})
	return s
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}, session.NewMemoryStore()); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := New(Config{BaseURL: "ftp://x/"}, session.NewMemoryStore()); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	if _, err := New(Config{BaseURL: "http://x/"}, nil); err == nil {
		t.Fatal("expected error for missing session store")
	}
}

func TestClientAttachesBearerAndKeepsTrailingSlash(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1}]`))
	})
	c := newTestClient(t, srv, loggedIn("tok-1"))

	var out []map[string]any
	if err := c.Get(context.Background(), "/tenants/branches/", url.Values{"tenant": {"4"}}, &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	calls := fb.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].Path != "/api/v1/tenants/branches/" {
		t.Fatalf("unexpected path %q", calls[0].Path)
	}
	if calls[0].Query != "tenant=4" {
		t.Fatalf("unexpected query %q", calls[0].Query)
	}
	if calls[0].Auth != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", calls[0].Auth)
	}
	if len(out) != 1 || out[0]["id"] != float64(1) {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestClientOmitsTokenWithoutSession(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, srv, session.NewMemoryStore())
	if err := c.Delete(context.Background(), "tenants/3/", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if auth := fb.Calls()[0].Auth; auth != "" {
		t.Fatalf("expected no auth header, got %q", auth)
	}
}

func TestClientPublicPathsSkipToken(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, srv, loggedIn("tok-1"))
	if err := c.Post(context.Background(), srv.URL+"/api/token/", map[string]string{"email": "a@b.com"}, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	call := fb.Calls()[0]
	if call.Path != "/api/token/" {
		t.Fatalf("absolute url not honoured: %q", call.Path)
	}
	if call.Auth != "" {
		t.Fatalf("token sent to public endpoint: %q", call.Auth)
	}
}

func TestClientSendsPayloadUnchanged(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":9}`))
	})
	c := newTestClient(t, srv, loggedIn("tok"))
	payload := map[string]any{"name": "Acme", "is_active": true, "nested": map[string]any{"k": []any{1.0, "x"}}}
	var out map[string]any
	if err := c.Post(context.Background(), "tenants/", payload, &out); err != nil {
		t.Fatalf("Post: %v", err)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(fb.Calls()[0].Body), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	want, _ := json.Marshal(payload)
	got, _ := json.Marshal(sent)
	if string(want) != string(got) {
		t.Fatalf("payload changed in transit:\nwant %s\ngot  %s", want, got)
	}
	if payload["name"] != "Acme" || len(payload) != 3 {
		t.Fatalf("caller payload mutated: %v", payload)
	}
}

func TestClientAuthFailureClearsSession(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		status := status
		t.Run(http.StatusText(status), func(t *testing.T) {
			_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
			})
			store := loggedIn("expired")
			var routed []string
			c := newTestClient(t, srv, store, WithAuthFailureHandler(func(_ context.Context, err *APIError) {
				if _, cerr := store.Current(); !errors.Is(cerr, session.ErrNoSession) {
					t.Errorf("session must be cleared before the handler runs")
				}
				routed = append(routed, "/login")
			}))

			err := c.Get(context.Background(), "users/users/", nil, nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
				t.Fatalf("expected APIError %d, got %v", status, err)
			}
			if apiErr.Message != "Given token not valid for any token type" {
				t.Fatalf("unexpected message %q", apiErr.Message)
			}
			if _, err := store.Current(); !errors.Is(err, session.ErrNoSession) {
				t.Fatalf("expected session cleared, got %v", err)
			}
			if len(routed) != 1 || routed[0] != "/login" {
				t.Fatalf("expected one navigation to /login, got %v", routed)
			}
		})
	}
}

func TestClientLoginRejectionKeepsSession(t *testing.T) {
	_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	})
	store := loggedIn("keep")
	called := false
	c := newTestClient(t, srv, store, WithAuthFailureHandler(func(context.Context, *APIError) { called = true }))
	err := c.Post(context.Background(), "token/", map[string]string{"email": "x"}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if called {
		t.Fatal("auth failure handler must not run for public endpoints")
	}
	if session.AccessToken(store) != "keep" {
		t.Fatal("session cleared by public endpoint rejection")
	}
}

func TestClientRefreshRejectionKeepsSession(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired","code":"token_not_valid"}`))
	})
	store := loggedIn("keep")
	called := false
	c := newTestClient(t, srv, store, WithAuthFailureHandler(func(context.Context, *APIError) { called = true }))
	err := c.Post(context.Background(), srv.URL+"/api/token/refresh/", map[string]string{"refresh": "stale"}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if called {
		t.Fatal("auth failure handler must not run for token refresh")
	}
	if session.AccessToken(store) != "keep" {
		t.Fatal("session cleared by refresh rejection")
	}
	calls := fb.Calls()
	if len(calls) != 1 || calls[0].Path != "/api/token/refresh/" || calls[0].Auth != "" {
		t.Fatalf("unexpected requests %+v", calls)
	}
}

func TestClientDoesNotRetry(t *testing.T) {
	fb, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, srv, loggedIn("t"))
	err := c.Get(context.Background(), "tenants/", nil, nil)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if n := len(fb.Calls()); n != 1 {
		t.Fatalf("expected exactly one attempt, got %d", n)
	}
}

func TestAPIErrorFieldErrors(t *testing.T) {
	e := newAPIError(http.StatusBadRequest, "POST", "users/users/", []byte(`{"email":["user with this email already exists."],"phone":"invalid","request_id":"r1"}`))
	if !errors.Is(e, ErrBadRequest) {
		t.Fatal("expected ErrBadRequest")
	}
	if e.Message != "email: user with this email already exists." {
		t.Fatalf("unexpected message %q", e.Message)
	}
	if got := e.FieldErrors["phone"]; len(got) != 1 || got[0] != "invalid" {
		t.Fatalf("unexpected phone errors %v", got)
	}
	if _, ok := e.FieldErrors["request_id"]; ok {
		t.Fatal("request_id must not be reported as a field error")
	}

	plain := newAPIError(http.StatusNotFound, "GET", "tenants/1/", []byte("<html>"))
	if plain.Message != "Not Found" || !errors.Is(plain, ErrNotFound) {
		t.Fatalf("unexpected fallback error %+v", plain)
	}
}

func TestClientRawMessageOutput(t *testing.T) {
	_, srv := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[1,2]}`))
	})
	c := newTestClient(t, srv, loggedIn("t"))
	var raw json.RawMessage
	if err := c.Get(context.Background(), "tenants/categories/", nil, &raw); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `{"results":[1,2]}` {
		t.Fatalf("unexpected raw body %s", raw)
	}
}
