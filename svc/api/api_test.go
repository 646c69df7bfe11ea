package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pbin/cfg"
	"pbin/pkg/domain"
	"pbin/pkg/pastebin"
	"pbin/svc/svc"
)

type upstream struct {
	mu       sync.Mutex
	lastPost url.Values
	logins   int
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{}
	r := chi.NewRouter()
	r.Post("/api/api_login.php", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.logins++
		u.mu.Unlock()
		io.WriteString(w, "user-key")
	})
	r.Post("/api_post.php", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		u.mu.Lock()
		u.lastPost = r.PostForm
		u.mu.Unlock()
		io.WriteString(w, "https://pastebin.com/Xy12")
	})
	r.Get("/raw/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "Xy12" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "hello bridge")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return u, srv
}

type secretMap map[string]string

func (m secretMap) GetSecret(ctx context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("missing " + key)
	}
	return v, nil
}

type stubHistory struct {
	mu   sync.Mutex
	rows []domain.Paste
}

func (h *stubHistory) Record(ctx context.Context, p *domain.Paste) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, *p)
	return nil
}
func (h *stubHistory) Recent(ctx context.Context, limit int) ([]domain.Paste, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.rows) {
		limit = len(h.rows)
	}
	return append([]domain.Paste(nil), h.rows[:limit]...), nil
}
func (h *stubHistory) Ping(ctx context.Context) error { return nil }

type downPinger struct{}

func (downPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func newBridge(t *testing.T, history *stubHistory) (*Server, *upstream, *svc.Paste) {
	t.Helper()
	up, srv := newUpstream(t)
	client, err := pastebin.New(secretMap{
		pastebin.SecretDevKey:   "dev",
		pastebin.SecretUserName: "alice",
		pastebin.SecretPassword: "pw",
	}, pastebin.WithBaseURL(srv.URL), pastebin.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("pastebin.New failed: %v", err)
	}
	var p *svc.Paste
	var hp Pinger
	if history != nil {
		p = svc.NewPaste(client, history)
		hp = history
	} else {
		p = svc.NewPaste(client, nil)
	}
	t.Cleanup(p.Shutdown)
	c := &cfg.Cfg{Port: "0", ContextTimeout: 5 * time.Second}
	return NewServer(c, p, hp, nil), up, p
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreatePaste(t *testing.T) {
	s, up, _ := newBridge(t, nil)
	rec := do(t, s, http.MethodPost, "/pastes", `{"text":"hi","name":"Cafe\u0301","privacy":0,"expiration":"1 week","format":"go"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp CreateResp
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.URL != "https://pastebin.com/Xy12" {
		t.Errorf("url = %q", resp.URL)
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	f := up.lastPost
	if f.Get("api_paste_private") != "0" {
		t.Errorf("privacy 0 not preserved: %q", f.Get("api_paste_private"))
	}
	if f.Get("api_paste_expire_date") != "1W" || f.Get("api_paste_format") != "go" {
		t.Errorf("unexpected form: %v", f)
	}
	if f.Get("api_paste_name") != "Caf\u00e9" {
		t.Errorf("title not NFC normalized: %q", f.Get("api_paste_name"))
	}
	if f.Get("api_user_key") != "user-key" {
		t.Errorf("expected authenticated post, got %q", f.Get("api_user_key"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestCreatePaste_InvalidOption(t *testing.T) {
	s, up, _ := newBridge(t, nil)
	rec := do(t, s, http.MethodPost, "/pastes", `{"text":"hi","privacy":"secret"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp domain.ErrResp
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error.Code != "INVALID_OPTION" || resp.Error.Meta["option"] != "privacy" {
		t.Errorf("unexpected error body: %+v", resp)
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.lastPost != nil || up.logins != 0 {
		t.Error("invalid option reached the paste host")
	}
}

func TestCreatePaste_BadRequests(t *testing.T) {
	s, _, _ := newBridge(t, nil)
	cases := map[string]string{
		"empty":   "",
		"no text": `{"name":"x"}`,
		"unknown": `{"text":"x","password":"y"}`,
		"broken":  `{"text":`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text/plain: status = %d, want 415", rec.Code)
	}
}

func TestGetPaste(t *testing.T) {
	s, _, _ := newBridge(t, nil)
	rec := do(t, s, http.MethodGet, "/pastes/Xy12", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "hello bridge" {
		t.Fatalf("GET /pastes/Xy12 = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	rec = do(t, s, http.MethodGet, "/pastes/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing paste status = %d, want 404", rec.Code)
	}
}

func TestDeletePaste_NotImplemented(t *testing.T) {
	s, _, _ := newBridge(t, nil)
	rec := do(t, s, http.MethodDelete, "/pastes/Xy12", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
	var resp domain.ErrResp
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error.Code != "NOT_IMPLEMENTED" {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestSessionAndOptions(t *testing.T) {
	s, up, _ := newBridge(t, nil)
	rec := do(t, s, http.MethodPost, "/session", "")
	var sess map[string]bool
	json.NewDecoder(rec.Body).Decode(&sess)
	if !sess["authenticated"] {
		t.Errorf("session = %v", sess)
	}
	do(t, s, http.MethodPost, "/session", "")
	up.mu.Lock()
	if up.logins != 1 {
		t.Errorf("expected 1 upstream login, got %d", up.logins)
	}
	up.mu.Unlock()

	rec = do(t, s, http.MethodGet, "/config/options", "")
	var opts OptionsResp
	if err := json.NewDecoder(rec.Body).Decode(&opts); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	if len(opts.Privacy) != 3 || len(opts.Expiration) != 9 {
		t.Errorf("options = %+v", opts)
	}
	if opts.Expiration[0] != (ExpirationEntry{Name: "never", Code: "N"}) {
		t.Errorf("first expiration = %+v", opts.Expiration[0])
	}
}

func TestHistory(t *testing.T) {
	s, _, _ := newBridge(t, nil)
	if rec := do(t, s, http.MethodGet, "/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d, want 404", rec.Code)
	}

	hist := &stubHistory{}
	s, _, p := newBridge(t, hist)
	do(t, s, http.MethodPost, "/pastes", `{"text":"hi"}`)
	p.Shutdown()

	rec := do(t, s, http.MethodGet, "/history?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rows []domain.Paste
	json.NewDecoder(rec.Body).Decode(&rows)
	if len(rows) != 1 || rows[0].URL != "https://pastebin.com/Xy12" || rows[0].Title != "untitled paste" {
		t.Errorf("rows = %+v", rows)
	}
	if rec := do(t, s, http.MethodGet, "/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _, p := newBridge(t, &stubHistory{})
	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/ready", "")
	var ready ReadyResponse
	json.NewDecoder(rec.Body).Decode(&ready)
	if rec.Code != http.StatusOK || !ready.Ready || ready.History != "up" || ready.Sessions != "disabled" || ready.Session != "anonymous" {
		t.Errorf("ready = %d %+v", rec.Code, ready)
	}

	down := NewServer(&cfg.Cfg{Port: "0", ContextTimeout: time.Second}, p, nil, downPinger{})
	rec = do(t, down, http.MethodGet, "/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with down store = %d, want 503", rec.Code)
	}
}

func TestMetricsBasicAuth(t *testing.T) {
	_, _, p := newBridge(t, nil)
	c := &cfg.Cfg{Port: "0", ContextTimeout: time.Second, MetricsUser: "prom", MetricsPass: cfg.NewSecret("scrape")}
	s := NewServer(c, p, nil, nil)

	if rec := do(t, s, http.MethodGet, "/metrics", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated metrics = %d, want 401", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "scrape")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("authenticated metrics = %d", rec.Code)
	}
}
