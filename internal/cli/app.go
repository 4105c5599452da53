package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/rxn/internal/api"
	"github.com/roach88/rxn/internal/config"
	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/ledger"
	"github.com/roach88/rxn/internal/reaction"
	"github.com/roach88/rxn/internal/store"
	"github.com/roach88/rxn/internal/visitor"
)

// session is the wiring shared by commands that talk to the backend.
type session struct {
	cfg    config.Config
	store  *store.Store
	who    visitor.Identity
	ledger *ledger.Ledger
	client *api.Client
	ctl    *reaction.Controller
	logger *slog.Logger
	out    *OutputFormatter
}

// openSession resolves configuration, opens the database and builds the
// controller. Errors are already reported through the formatter.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := opts.resolveConfig()
	if err != nil {
		out := opts.formatter(cmd)
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", nil, err)
	}
	out := opts.formatter(cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, out.Fail(ExitCommandError, ErrCodeStorage, "failed to create database directory", cfg.DBPath, err)
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeStorage, "failed to open database", cfg.DBPath, err)
	}

	who, err := visitor.Resolve(ctx, st, cfg.Token, opts.IDGenerator)
	if err != nil {
		logger.Warn("visitor id not persisted", "visitor", string(who.ID), "error", err)
	}
	logger.Debug("visitor resolved", "visitor", string(who.ID), "authenticated", who.Authenticated)

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	client := api.New(cfg.APIURL, api.WithHTTPClient(hc), api.WithLogger(logger))
	book := ledger.New(st, who, logger)

	return &session{
		cfg:    cfg,
		store:  st,
		who:    who,
		ledger: book,
		client: client,
		ctl:    reaction.New(client, book, who, reaction.WithLogger(logger)),
		logger: logger,
		out:    out,
	}, nil
}

// Close waits for background reconciliation and closes the database.
func (s *session) Close() {
	s.ctl.Wait()
	s.ctl.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close database", "error", err)
	}
}

// newLogger returns a text logger on w. Debug records are kept only when
// verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseTargetArg parses a target argument, reporting failures as command errors.
func parseTargetArg(out *OutputFormatter, arg string) (ir.Target, error) {
	target, err := ir.ParseTarget(arg)
	if err != nil {
		return ir.Target{}, out.Fail(ExitCommandError, ErrCodeTarget, fmt.Sprintf("invalid target %q", arg), nil, err)
	}
	return target, nil
}
