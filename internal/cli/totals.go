package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxn/internal/ir"
)

// TotalsResult is the printed outcome of the totals command.
type TotalsResult struct {
	Target string    `json:"target"`
	Counts ir.Counts `json:"counts"`
	Mine   ir.Value  `json:"mine"`
}

func (r TotalsResult) String() string {
	return fmt.Sprintf("%s: likes %d, dislikes %d (mine: %s)", r.Target, r.Counts.Likes, r.Counts.Dislikes, r.Mine)
}

// NewTotalsCommand creates the totals command.
func NewTotalsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "totals <target>",
		Short: "Fetch authoritative like/dislike totals",
		Long: `Fetch the authoritative totals for a target from the API.

Exit codes:
  0 - Totals fetched
  1 - API unreachable or returned an error
  2 - Command error (invalid target, config, database)

Examples:
  rxn totals event:42
  rxn totals comment:7@42 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTotals(rootOpts, cmd, args[0])
		},
	}
}

func runTotals(opts *RootOptions, cmd *cobra.Command, arg string) error {
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

	counts, err := s.ctl.Refresh(ctx, target)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeTotals, "failed to fetch totals", target.String(), err)
	}
	return s.out.Success(TotalsResult{
		Target: target.String(),
		Counts: counts,
		Mine:   s.ledger.Get(ctx, target),
	})
}
