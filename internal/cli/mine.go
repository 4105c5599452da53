package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxn/internal/ledger"
)

// MineEntry is one recorded reaction.
type MineEntry struct {
	Target string `json:"target"`
	Value  string `json:"value"`
}

// MineResult lists the current visitor's recorded reactions.
type MineResult struct {
	Visitor   string      `json:"visitor"`
	Reactions []MineEntry `json:"reactions"`
}

func (r MineResult) String() string {
	if len(r.Reactions) == 0 {
		return fmt.Sprintf("%s has no reactions", r.Visitor)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:", r.Visitor)
	for _, e := range r.Reactions {
		fmt.Fprintf(&b, "\n  %s %s", e.Target, e.Value)
	}
	return b.String()
}

// NewMineCommand creates the mine command.
func NewMineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mine [target]",
		Short: "Show your recorded reactions",
		Long: `Show the current visitor's reactions from the local ledger.

With a target, show the reaction to that target (possibly "none").
Without one, list every recorded reaction. No request is sent.

Examples:
  rxn mine
  rxn mine event:42`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMine(rootOpts, cmd, args)
		},
	}
}

func runMine(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result := MineResult{Visitor: string(s.who.ID), Reactions: []MineEntry{}}

	if len(args) == 1 {
		target, err := parseTargetArg(s.out, args[0])
		if err != nil {
			return err
		}
		result.Reactions = append(result.Reactions, MineEntry{
			Target: target.String(),
			Value:  s.ledger.Get(ctx, target).String(),
		})
		return s.out.Success(result)
	}

	for _, e := range s.ledger.All(ctx) {
		result.Reactions = append(result.Reactions, mineEntry(e))
	}
	return s.out.Success(result)
}

func mineEntry(e ledger.Entry) MineEntry {
	return MineEntry{Target: e.Target.String(), Value: e.Value.String()}
}
