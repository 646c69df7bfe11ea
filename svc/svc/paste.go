package svc

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pbin/metrics"
	"pbin/pkg/domain"
	"pbin/pkg/pastebin"
	"pbin/svc/util"
)

const historyQueueSize = 64

// Client is the part of *pastebin.Client the service drives.
type Client interface {
	Login(ctx context.Context) bool
	Authenticated() bool
	Authenticating() bool
	Get(ctx context.Context, pasteID string) (string, bool)
	Post(ctx context.Context, text string, opts pastebin.Options) (string, error)
	Delete(ctx context.Context, pasteID string) error
}

type History interface {
	Record(ctx context.Context, p *domain.Paste) error
	Recent(ctx context.Context, limit int) ([]domain.Paste, error)
}

type Paste struct {
	client       Client
	history      History
	historyQueue chan *domain.Paste
	workerWg     sync.WaitGroup
	mu           sync.Mutex
	shutdown     bool
	shutdownCtx  context.Context
	shutdownFn   context.CancelFunc
}

// NewPaste wires the client to an optional history store; pass a nil History
// to disable recording.
func NewPaste(client Client, history History) *Paste {
	if client == nil {
		panic("paste service: nil client")
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	p := &Paste{
		client:      client,
		history:     history,
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
	if history != nil {
		p.historyQueue = make(chan *domain.Paste, historyQueueSize)
		p.workerWg.Add(1)
		go p.historyWorker()
	}
	return p
}
func (p *Paste) historyWorker() {
	defer p.workerWg.Done()
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("historyWorker panicked")
		}
	}()
	for rec := range p.historyQueue {
		ctx, cancel := context.WithTimeout(p.shutdownCtx, 5*time.Second)
		if err := p.history.Record(ctx, rec); err != nil {
			metrics.HistoryWrites.WithLabelValues("error").Inc()
			util.Warn().Err(err).Str("url", rec.URL).Msg("failed to record paste history")
		} else {
			metrics.HistoryWrites.WithLabelValues("ok").Inc()
		}
		cancel()
	}
}

// Shutdown drains pending history writes. Safe to call more than once.
func (p *Paste) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	if p.historyQueue != nil {
		close(p.historyQueue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		util.Warn().Msg("history worker didn't stop in time")
	}
	p.shutdownFn()
	util.Debug().Msg("paste service shutdown complete")
}

func (p *Paste) Create(ctx context.Context, text string, opts pastebin.Options) (string, error) {
	body, err := p.client.Post(ctx, text, opts)
	if err != nil {
		var oe *domain.OptionError
		if errors.As(err, &oe) {
			metrics.InvalidOptions.WithLabelValues(oe.Option).Inc()
			return "", err
		}
		return "", errors.Wrap(err, "post paste")
	}
	authenticated := p.client.Authenticated()
	session := "anonymous"
	if authenticated {
		session = "authenticated"
	}
	metrics.PastesPosted.WithLabelValues(session).Inc()

	if !IsPasteURL(body) {
		util.Warn().
			Str("response", util.RedactLogLine(truncate(body, 200))).
			Msg("paste host returned a non-URL body")
		return body, nil
	}
	util.Info().
		Str("url", strings.TrimSpace(body)).
		Str("title", util.RedactPasteContent(opts.Name)).
		Int("size", len(text)).
		Bool("authenticated", authenticated).
		Msg("paste created")
	p.enqueue(historyRecord(body, opts, authenticated))
	return body, nil
}
func (p *Paste) enqueue(rec *domain.Paste) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown || p.historyQueue == nil {
		return
	}
	select {
	case p.historyQueue <- rec:
	default:
		util.Warn().Str("url", rec.URL).Msg("history queue full, dropping record")
	}
}

func (p *Paste) Fetch(ctx context.Context, pasteID string) (string, bool) {
	content, ok := p.client.Get(ctx, pasteID)
	if ok {
		metrics.PastesFetched.WithLabelValues("found").Inc()
	} else {
		metrics.PastesFetched.WithLabelValues("no_content").Inc()
	}
	return content, ok
}

func (p *Paste) Delete(ctx context.Context, pasteID string) error {
	return p.client.Delete(ctx, pasteID)
}

func (p *Paste) Login(ctx context.Context) bool {
	return p.client.Login(ctx)
}

// SessionState is one of "authenticated", "authenticating" or "anonymous".
func (p *Paste) SessionState() string {
	switch {
	case p.client.Authenticated():
		return "authenticated"
	case p.client.Authenticating():
		return "authenticating"
	default:
		return "anonymous"
	}
}

func (p *Paste) HistoryEnabled() bool {
	return p.history != nil
}

func (p *Paste) Recent(ctx context.Context, limit int) ([]domain.Paste, error) {
	if p.history == nil {
		return nil, domain.ErrHistoryDisabled
	}
	rows, err := p.history.Recent(ctx, limit)
	return rows, errors.Wrap(err, "recent pastes")
}

func historyRecord(body string, opts pastebin.Options, authenticated bool) *domain.Paste {
	privacy := pastebin.DefaultPrivacy
	if opts.Privacy != nil {
		if v, err := pastebin.ResolvePrivacy(opts.Privacy); err == nil {
			privacy = v
		}
	}
	expiration := pastebin.DefaultExpiration
	if opts.Expiration != "" {
		if v, err := pastebin.ResolveExpiration(opts.Expiration); err == nil {
			expiration = v
		}
	}
	title := opts.Name
	if title == "" {
		title = pastebin.DefaultTitle
	}
	return &domain.Paste{
		URL:           strings.TrimSpace(body),
		Title:         title,
		Privacy:       privacy,
		Expiration:    expiration,
		Format:        opts.Format,
		Authenticated: authenticated,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsPasteURL reports whether a post response body is an http(s) paste URL.
func IsPasteURL(body string) bool {
	u, err := url.Parse(strings.TrimSpace(body))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
