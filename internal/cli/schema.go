package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/offstore/internal/config"
	"github.com/roach88/offstore/internal/offline"
	"github.com/roach88/offstore/internal/record"
)

// SchemaInfo is the JSON form of the schema command output.
type SchemaInfo struct {
	Name    string            `json:"name"`
	Version int               `json:"version"`
	Backend string            `json:"backend"`
	Tables  map[string]string `json:"tables"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Validate and print the store schema",
		Long: `Load the config, validate its table definitions and print the
normalized schema. Nothing is opened or written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			cfg, err := config.Load(rootOpts.Config)
			if err != nil {
				return outputFailure(f, ErrCodeConfigLoad, err)
			}
			s, err := cfg.Schema()
			if err != nil {
				return outputFailure(f, ErrorCode(err), err)
			}

			if f.Format == "json" {
				return f.Success(SchemaInfo{
					Name:    s.Name,
					Version: s.Version,
					Backend: string(cfg.Backend),
					Tables:  s.Definitions(),
				})
			}
			fmt.Fprintf(f.Writer, "%s v%d (%s)\n", s.Name, s.Version, cfg.Backend)
			for _, t := range s.Tables() {
				fmt.Fprintf(f.Writer, "  %s: %s\n", t.Name, t.Definition)
			}
			return nil
		},
	}
}

// NewEntriesCommand creates the entries command.
func NewEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entries <table>",
		Short: "Print the raw stored [id, record] pairs (local backend)",
		Long: `Print a table exactly as the local backend stores it: an ordered list
of [primary-key, record] pairs. Not available for the indexeddb backend.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter) error {
				p, err := offline.Use(ctx)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				entries, err := p.Entries(ctx, args[0])
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				if f.Format == "json" {
					return f.Success(entries)
				}
				data, err := record.MarshalEntries(entries)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				return f.Success(string(data))
			})
		},
	}
}

func formatCount(verb string, n int) string {
	if n == 1 {
		return fmt.Sprintf("%s 1 record", verb)
	}
	return fmt.Sprintf("%s %d records", verb, n)
}
