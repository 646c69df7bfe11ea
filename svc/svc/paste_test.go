package svc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pbin/metrics"
	"pbin/pkg/domain"
	"pbin/pkg/pastebin"
)

type fakeClient struct {
	mu       sync.Mutex
	postBody string
	postErr  error
	authed   bool
	pastes   map[string]string
	posts    []pastebin.Options
}

func (f *fakeClient) Login(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authed = true
	return true
}
func (f *fakeClient) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}
func (f *fakeClient) Authenticating() bool { return false }
func (f *fakeClient) Get(ctx context.Context, id string) (string, bool) {
	v, ok := f.pastes[id]
	return v, ok
}
func (f *fakeClient) Post(ctx context.Context, text string, opts pastebin.Options) (string, error) {
	if opts.Privacy != nil {
		if _, err := pastebin.ResolvePrivacy(opts.Privacy); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, opts)
	return f.postBody, f.postErr
}
func (f *fakeClient) Delete(ctx context.Context, id string) error {
	return domain.ErrNotImplemented
}

type memHistory struct {
	mu   sync.Mutex
	rows []domain.Paste
}

func (m *memHistory) Record(ctx context.Context, p *domain.Paste) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *p)
	return nil
}
func (m *memHistory) Recent(ctx context.Context, limit int) ([]domain.Paste, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Paste, 0, len(m.rows))
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.rows[i])
	}
	return out, nil
}

func TestCreate_RecordsHistory(t *testing.T) {
	client := &fakeClient{postBody: "https://pastebin.com/AbCd1234", authed: true}
	hist := &memHistory{}
	p := NewPaste(client, hist)

	got, err := p.Create(context.Background(), "hello", pastebin.Options{Name: "greeting", Privacy: "private", Expiration: "1 day", Format: "text"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got != "https://pastebin.com/AbCd1234" {
		t.Errorf("Create = %q", got)
	}
	p.Shutdown()

	rows, err := p.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(rows))
	}
	r := rows[0]
	if r.URL != got || r.Title != "greeting" || r.Privacy != "2" || r.Expiration != "1D" || r.Format != "text" || !r.Authenticated {
		t.Errorf("unexpected history row: %+v", r)
	}
}

func TestCreate_NonURLBodyIsReturnedNotRecorded(t *testing.T) {
	client := &fakeClient{postBody: "Bad API request, invalid api_dev_key"}
	hist := &memHistory{}
	p := NewPaste(client, hist)

	got, err := p.Create(context.Background(), "hello", pastebin.Options{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got != "Bad API request, invalid api_dev_key" {
		t.Errorf("Create = %q, want body verbatim", got)
	}
	p.Shutdown()
	if len(hist.rows) != 0 {
		t.Errorf("non-URL body should not be recorded, got %d rows", len(hist.rows))
	}
}

func TestCreate_InvalidOption(t *testing.T) {
	p := NewPaste(&fakeClient{postBody: "https://pastebin.com/x"}, nil)
	before := testutil.ToFloat64(metrics.InvalidOptions.WithLabelValues("privacy"))

	_, err := p.Create(context.Background(), "x", pastebin.Options{Privacy: 7})
	if !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if testutil.ToFloat64(metrics.InvalidOptions.WithLabelValues("privacy"))-before != 1 {
		t.Error("invalid option not counted")
	}
}

func TestCreate_TransportError(t *testing.T) {
	p := NewPaste(&fakeClient{postErr: errors.New("connection refused")}, nil)
	if _, err := p.Create(context.Background(), "x", pastebin.Options{}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestRecent_Disabled(t *testing.T) {
	p := NewPaste(&fakeClient{}, nil)
	defer p.Shutdown()
	if p.HistoryEnabled() {
		t.Error("history should be disabled")
	}
	if _, err := p.Recent(context.Background(), 5); !errors.Is(err, domain.ErrHistoryDisabled) {
		t.Errorf("expected ErrHistoryDisabled, got %v", err)
	}
}

func TestFetchAndSession(t *testing.T) {
	client := &fakeClient{pastes: map[string]string{"abc": "body"}}
	p := NewPaste(client, nil)
	defer p.Shutdown()

	if got, ok := p.Fetch(context.Background(), "abc"); !ok || got != "body" {
		t.Errorf("Fetch(abc) = %q, %v", got, ok)
	}
	if _, ok := p.Fetch(context.Background(), "nope"); ok {
		t.Error("Fetch(nope) should be no content")
	}
	if p.SessionState() != "anonymous" {
		t.Errorf("SessionState = %s, want anonymous", p.SessionState())
	}
	if !p.Login(context.Background()) || p.SessionState() != "authenticated" {
		t.Errorf("SessionState after login = %s", p.SessionState())
	}
	if err := p.Delete(context.Background(), "abc"); !errors.Is(err, domain.ErrNotImplemented) {
		t.Errorf("Delete err = %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	p := NewPaste(&fakeClient{postBody: "https://pastebin.com/x"}, &memHistory{})
	p.Shutdown()
	p.Shutdown()
	if _, err := p.Create(context.Background(), "late", pastebin.Options{}); err != nil {
		t.Errorf("Create after shutdown failed: %v", err)
	}
}
