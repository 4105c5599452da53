package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/reaction"
)

// ReactResult is the printed outcome of like, dislike and clear.
type ReactResult struct {
	Target    string    `json:"target"`
	Seq       int64     `json:"seq,omitempty"`
	Prev      ir.Value  `json:"prev"`
	Mine      ir.Value  `json:"mine"`
	Counts    ir.Counts `json:"counts"`
	Refreshed bool      `json:"refreshed"`
}

func (r ReactResult) String() string {
	s := fmt.Sprintf("%s: %s (likes %d, dislikes %d)", r.Target, r.Mine, r.Counts.Likes, r.Counts.Dislikes)
	if !r.Refreshed {
		s += " [totals unconfirmed]"
	}
	return s
}

func newReactResult(out reaction.Outcome) ReactResult {
	return ReactResult{
		Target:    out.Dispatch.Target.String(),
		Seq:       out.Dispatch.Seq,
		Prev:      out.Dispatch.Prev,
		Mine:      out.Value,
		Counts:    out.Counts,
		Refreshed: out.Refreshed,
	}
}

// NewReactCommand creates the like or dislike command.
func NewReactCommand(rootOpts *RootOptions, direction string) *cobra.Command {
	return &cobra.Command{
		Use:   direction + " <target>",
		Short: fmt.Sprintf("Toggle a %s on an event or comment", direction),
		Long: fmt.Sprintf(`Toggle a %[1]s on a target and reconcile it with the API.

Clicking %[1]s again removes it; clicking it while holding the opposite
reaction switches sides. If the API rejects the change it is rolled back
and the command exits with code 1.

Targets are "event:<id>" or "comment:<id>@<event-id>".

Examples:
  rxn %[1]s event:42
  rxn %[1]s comment:7@42 --format json`, direction),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := ir.ParseValue(direction)
			if err != nil {
				return err
			}
			return runReact(rootOpts, cmd, args[0], v)
		},
	}
}

func runReact(opts *RootOptions, cmd *cobra.Command, arg string, direction ir.Value) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	target, err := parseTargetArg(s.out, arg)
	if err != nil {
		return err
	}

	// Seed counts so the optimistic step starts from the server's totals.
	if _, err := s.ctl.Refresh(ctx, target); err != nil {
		s.logger.Warn("could not load totals before toggling", "target", target.String(), "error", err)
	}

	outcome, err := s.ctl.React(ctx, target, direction)
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeTarget, "invalid reaction", nil, err)
	}
	return reportOutcome(s, outcome)
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <target>",
		Short: "Remove your reaction from a target",
		Long: `Remove the current visitor's reaction from a target, if there is one.

Nothing is sent when the ledger holds no reaction for the target.

Examples:
  rxn clear event:42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(rootOpts, cmd, args[0])
		},
	}
}

func runClear(opts *RootOptions, cmd *cobra.Command, arg string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	target, err := parseTargetArg(s.out, arg)
	if err != nil {
		return err
	}

	_, refreshErr := s.ctl.Refresh(ctx, target)
	if refreshErr != nil {
		s.logger.Warn("could not load totals before clearing", "target", target.String(), "error", refreshErr)
	}

	d, ok := s.ctl.Clear(ctx, target)
	if !ok {
		view := s.ctl.View(ctx, target)
		return s.out.Success(ReactResult{
			Target:    target.String(),
			Prev:      ir.None,
			Mine:      view.Mine,
			Counts:    view.Counts,
			Refreshed: refreshErr == nil,
		})
	}
	return reportOutcome(s, s.ctl.Reconcile(ctx, d))
}

func reportOutcome(s *session, outcome reaction.Outcome) error {
	result := newReactResult(outcome)
	if outcome.Err != nil {
		if s.out.Format != "json" {
			fmt.Fprintln(s.out.Writer, result)
		}
		return s.out.Fail(ExitFailure, ErrCodeRolledBack, "reaction rolled back", result, outcome.Err)
	}
	return s.out.Success(result)
}
