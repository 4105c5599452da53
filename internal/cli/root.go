package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rxn/internal/config"
	"github.com/roach88/rxn/internal/ir"
	"github.com/roach88/rxn/internal/visitor"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	APIURL     string
	DBPath     string
	Token      string

	// Lookup reads environment variables. Nil means os.LookupEnv.
	Lookup config.LookupFunc
	// HTTPClient replaces the client built from the configured timeout.
	HTTPClient *http.Client
	// IDGenerator replaces the UUID-based guest id generator.
	IDGenerator visitor.IDGenerator

	formatSet bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON}

// NewRootCommand creates the root command for the rxn CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rxn",
		Short:   "rxn - optimistic reactions",
		Long:    "Like and dislike events and comments with optimistic updates reconciled against the reactions API.",
		Version: ir.ClientVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.formatSet = cmd.Flags().Changed("format")
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.FormatText, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a CUE config file")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "reactions API base URL")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the local SQLite database")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token of the signed-in visitor")

	// Add subcommands
	cmd.AddCommand(NewReactCommand(opts, "like"))
	cmd.AddCommand(NewReactCommand(opts, "dislike"))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewTotalsCommand(opts))
	cmd.AddCommand(NewMineCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolveConfig layers the config file, the environment and the global flags.
// --format only overrides the other sources when given explicitly.
func (o *RootOptions) resolveConfig() (config.Config, error) {
	lookup := o.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	flags := config.Overrides{
		APIURL: o.APIURL,
		DBPath: o.DBPath,
		Token:  o.Token,
	}
	if o.formatSet {
		flags.Format = o.Format
	}
	cfg, err := config.Resolve(o.ConfigPath, lookup, flags)
	if err != nil {
		return config.Config{}, err
	}
	o.Format = cfg.Format
	return cfg, nil
}

// formatter returns an OutputFormatter writing to the command's stdout.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  o.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
