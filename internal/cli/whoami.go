package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// WhoamiResult describes the resolved visitor.
type WhoamiResult struct {
	Visitor       string `json:"visitor"`
	Authenticated bool   `json:"authenticated"`
	API           string `json:"api"`
	DB            string `json:"db"`
}

func (r WhoamiResult) String() string {
	kind := "guest"
	if r.Authenticated {
		kind = "user"
	}
	return fmt.Sprintf("%s (%s)\napi: %s\ndb:  %s", r.Visitor, kind, r.API, r.DB)
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the resolved visitor identity",
		Long: `Show the visitor id reactions are recorded under.

A bearer token with a JWT subject yields "u:<sub>". Otherwise a guest id
"g:<id>" is generated once and persisted in the local database.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			return s.out.Success(WhoamiResult{
				Visitor:       string(s.who.ID),
				Authenticated: s.who.Authenticated,
				API:           s.client.BaseURL(),
				DB:            s.cfg.DBPath,
			})
		},
	}
}
