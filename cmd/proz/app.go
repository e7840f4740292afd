package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"proz/internal/config"
	"proz/pkg/assign"
	"proz/pkg/classify"
	"proz/pkg/notify"
	"proz/pkg/offline"
	"proz/pkg/protocol"
	"proz/pkg/ranker"
	"proz/pkg/remote"
)

// app bundles the components a subcommand works with.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
	client *remote.Client
	tokens *remote.TokenFile
	ranker *ranker.Ranker
	queue  *offline.Queue
	orch   *assign.Orchestrator
}

// loadConfig resolves config for g: file, env, then flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configFile != "" {
		home, herr := config.Home()
		if herr != nil {
			return nil, herr
		}
		cfg, err = config.LoadFrom(home, g.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Override(g.baseURL, g.logLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp wires the client stack for cmd. Callers must Close it.
func openApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	tokens := &remote.TokenFile{Path: cfg.TokenFile}
	var auth remote.AuthProvider = tokens
	if cfg.Token != "" {
		auth = &remote.BearerToken{Token: cfg.Token}
	}
	client := remote.NewClient(cfg.BaseURL,
		remote.WithAuth(auth),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration()}),
		remote.WithPhrases(classify.DefaultPhrases.With(cfg.Phrases.Conflict, cfg.Phrases.Auth)),
		remote.WithLogger(logger),
	)
	rk := ranker.New(client, logger)
	queue := offline.NewQueue(offline.NewSQLiteStore(db, cfg.Namespace))

	orch := assign.New(assign.Config{
		RankLimit:    cfg.RankLimit,
		Source:       "cli",
		WatchDir:     cfg.QueueDir(),
		PollInterval: cfg.PollInterval.Duration(),
		Logger:       logger,
	}, db, client, rk, queue, tokens, newNotifier(cmd.ErrOrStderr(), logger))

	return &app{
		cfg:    cfg,
		db:     db,
		logger: logger,
		client: client,
		tokens: tokens,
		ranker: rk,
		queue:  queue,
		orch:   orch,
	}, nil
}

// Close releases the database handle.
func (a *app) Close() error {
	return a.db.Close()
}

// newLogger builds the text logger used for diagnostics.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// newNotifier renders toasts on w, styled only when w is a terminal, and
// mirrors them to logger at debug level.
func newNotifier(w io.Writer, logger *slog.Logger) notify.Notifier {
	var term notify.Notifier
	if f, ok := w.(*os.File); ok {
		term = notify.NewTerminal(f)
	} else {
		term = notify.NewTerminalWriter(w, false)
	}
	return notify.Multi{term, notify.Log{Logger: logger, Level: slog.LevelDebug}}
}

// explain adds an operator hint to errors that need one.
func explain(err error) error {
	var authErr *protocol.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%w (session cleared; run 'proz login')", err)
	}
	return err
}
