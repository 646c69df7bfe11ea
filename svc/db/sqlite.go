package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"pbin/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
	maxRecent       = 500
)

const (
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 2
	defaultQueryTimeout = 5 * time.Second
)

// SQLite keeps a local history of created pastes.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", historyDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}
// historyDSN carries the per-connection pragmas so every pooled connection gets them.
func historyDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		privacy TEXT NOT NULL,
		expiration TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		authenticated INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_created_at ON pastes(created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Record stores p and fills in its ID.
func (s *SQLite) Record(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (url, title, privacy, expiration, format, authenticated, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(queryCtx, q,
		p.URL, p.Title, p.Privacy, p.Expiration, p.Format, p.Authenticated, p.CreatedAt,
	)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "db record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "db record id")
	}
	p.ID = id
	return nil
}

// Recent returns up to limit pastes, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, url, title, privacy, expiration, format, authenticated, created_at
	FROM pastes ORDER BY id DESC LIMIT ?
	`
	rows, err := s.db.QueryContext(queryCtx, q, limit)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db recent")
	}
	defer rows.Close()
	var out []domain.Paste
	for rows.Next() {
		var p domain.Paste
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Privacy, &p.Expiration, &p.Format, &p.Authenticated, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "db recent scan")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "db recent rows")
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
