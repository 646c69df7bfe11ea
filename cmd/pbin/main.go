package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pbin/cfg"
	"pbin/metrics"
	"pbin/pkg/pastebin"
	"pbin/pkg/secrets"
	"pbin/svc/api"
	"pbin/svc/db"
	"pbin/svc/svc"
	"pbin/svc/util"
)

const usage = `usage: pbin <command> [flags]

commands:
  post [-name n] [-privacy p] [-expire e] [-format f] [-qr file.png] [file|-]
  get <id>
  delete <id>
  login
  history [-n count]
  options
  serve

  pbin -health   probe a running bridge
`

// app holds everything a subcommand may need. history and sqlDB are nil when
// HISTORY_PATH is unset; rdb is nil without REDIS_URL.
type app struct {
	cfg     *cfg.Cfg
	paste   *svc.Paste
	secrets *secrets.Adapter
	sqlDB   *db.SQLite
	rdb     *db.Redis
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthcheck())
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := setup(ctx, c)
	if err != nil {
		util.Fatal().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer a.close()

	cmd, args := os.Args[1], os.Args[2:]
	var code int
	switch cmd {
	case "post":
		code = a.post(ctx, args)
	case "get":
		code = a.get(ctx, args)
	case "delete":
		code = a.delete(ctx, args)
	case "login":
		code = a.login(ctx)
	case "history":
		code = a.history(ctx, args)
	case "options":
		code = printOptions()
	case "serve":
		code = a.serve(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		code = 2
	}
	if code != 0 {
		a.close()
		c.Wipe()
		os.Exit(code)
	}
}

func setup(ctx context.Context, c *cfg.Cfg) (*app, error) {
	a := &app{cfg: c}
	adapter, err := secrets.NewAdapter(ctx)
	if err != nil {
		return nil, err
	}
	a.secrets = adapter
	util.Debug().Str("source", adapter.Source()).Msg("secrets adapter initialized")

	opts := []pastebin.Option{
		pastebin.WithBaseURL(c.BaseURL),
		pastebin.WithTimeout(c.RequestTimeout),
		pastebin.WithLogger(util.GetLogger()),
		pastebin.WithObserver(metrics.ObserveUpstream),
	}
	if c.UserAgent != "" {
		opts = append(opts, pastebin.WithUserAgent(c.UserAgent))
	}
	if c.RedisURL != "" {
		rdb, err := db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				return nil, err
			}
			util.Warn().Err(err).Msg("redis unavailable, sessions will not persist")
		} else {
			a.rdb = rdb
			opts = append(opts, pastebin.WithSessionStore(rdb))
			util.Debug().Dur("ttl", c.SessionTTL).Msg("redis session store enabled")
		}
	}

	var history svc.History
	if c.HistoryPath != "" {
		sqlDB, err := db.NewSQLiteWithConfig(c.HistoryPath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			a.close()
			return nil, err
		}
		a.sqlDB = sqlDB
		history = sqlDB
		util.Debug().Str("path", c.HistoryPath).Msg("paste history enabled")
	}

	client, err := pastebin.New(adapter, opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.paste = svc.NewPaste(client, history)
	return a, nil
}

// close is idempotent; main calls it before os.Exit, which skips defers.
func (a *app) close() {
	if a.paste != nil {
		a.paste.Shutdown()
	}
	if a.sqlDB != nil {
		a.sqlDB.Close()
		a.sqlDB = nil
	}
	if a.rdb != nil {
		a.rdb.Close()
		a.rdb = nil
	}
}

func (a *app) serve(ctx context.Context) int {
	var history, sessions api.Pinger
	if a.sqlDB != nil {
		history = a.sqlDB
	}
	if a.rdb != nil {
		sessions = a.rdb
	}
	server := api.NewServer(a.cfg, a.paste, history, sessions)

	walCtx, walCancel := context.WithCancel(ctx)
	walDone := make(chan struct{})
	if a.sqlDB != nil {
		go func() {
			a.sqlDB.StartWALMaintenance(walCtx, 0)
			close(walDone)
		}()
		util.Info().Msg("WAL maintenance worker started")
	} else {
		close(walDone)
	}

	util.Info().
		Str("port", a.cfg.Port).
		Str("environment", a.cfg.Environment).
		Str("secrets", a.secrets.Source()).
		Bool("history", a.sqlDB != nil).
		Bool("session_store", a.rdb != nil).
		Msg("bridge starting")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	code := 0
	select {
	case <-sigCh:
		util.Info().Msg("shutting down gracefully...")
	case err := <-errCh:
		if err != nil {
			util.Error().Err(err).Msg("bridge failed")
			code = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("bridge shutdown error")
	}
	walCancel()
	select {
	case <-walDone:
		util.Info().Msg("WAL maintenance stopped")
	case <-time.After(6 * time.Second):
		util.Warn().Msg("WAL maintenance did not stop gracefully")
	}
	a.paste.Shutdown()
	util.Info().Msg("shutdown complete")
	return code
}

// healthcheck probes a running bridge on PORT. It runs before config loading
// so container health checks stay cheap.
func healthcheck() int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://127.0.0.1:" + port + "/health")
	if err != nil {
		return 1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
