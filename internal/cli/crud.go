package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/offstore/internal/offline"
	"github.com/roach88/offstore/internal/record"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where string // JSON criteria object
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <table> <record-json>",
		Short: "Insert a record",
		Long: `Insert one record and print it with its primary key.

A primary key is generated when the record has none.

Example:
  offstore create formData '{"fullName":"A","species":"grouper"}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			rec, err := parseRecord(args[1])
			if err != nil {
				return outputFailure(formatter, ErrCodeInvalidInput, err)
			}
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter) error {
				p, err := offline.Use(ctx)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				created, err := p.CreateOfflineData(ctx, args[0], rec)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				return outputRecords(f, []record.Record{created}, false)
			})
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <table>",
		Short: "List records, optionally filtered",
		Long: `Print the records of a table, one JSON object per line.

With --where only records equal on every given field are printed. The
indexeddb backend only accepts the primary key and index fields.

Examples:
  offstore find formData
  offstore find formData --where '{"species":"grouper"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			var criteria record.Record
			if opts.Where != "" {
				var err error
				if criteria, err = parseRecord(opts.Where); err != nil {
					return outputFailure(formatter, ErrCodeInvalidInput, err)
				}
			}
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter) error {
				p, err := offline.Use(ctx)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				found, err := p.FindOfflineData(ctx, args[0], criteria)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				f.VerboseLog("%d record(s) found", len(found))
				return outputRecords(f, found, true)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "criteria as a JSON object")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <record-json>...",
		Short: "Upsert records by primary key",
		Long: `Replace each record by primary key, inserting records that are not
stored yet. Every record must carry its primary key.

Example:
  offstore update formData '{"uuid":"0192...","species":"salmon"}'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			recs := make([]record.Record, 0, len(args)-1)
			for _, arg := range args[1:] {
				rec, err := parseRecord(arg)
				if err != nil {
					return outputFailure(formatter, ErrCodeInvalidInput, err)
				}
				recs = append(recs, rec)
			}
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter) error {
				p, err := offline.Use(ctx)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				if err := p.UpdateOfflineData(ctx, args[0], recs); err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				return outputCount(f, "updated", len(recs))
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>...",
		Short: "Delete records by primary key",
		Long: `Delete records by primary key. Ids that are not stored are ignored.

Example:
  offstore delete formData 0192... 0193...`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(ctx context.Context, f *OutputFormatter) error {
				p, err := offline.Use(ctx)
				if err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				if err := p.DeleteOfflineData(ctx, args[0], args[1:]); err != nil {
					return outputFailure(f, ErrorCode(err), err)
				}
				return outputCount(f, "deleted", len(args)-1)
			})
		},
	}
}

// outputRecords prints records as canonical JSON lines, or as a JSON
// envelope. list selects an array payload in JSON mode.
func outputRecords(f *OutputFormatter, recs []record.Record, list bool) error {
	if f.Format == "json" {
		if list {
			if recs == nil {
				recs = []record.Record{}
			}
			return f.Success(recs)
		}
		return f.Success(recs[0])
	}
	for _, rec := range recs {
		data, err := record.MarshalCanonical(rec)
		if err != nil {
			return outputFailure(f, ErrCodeGeneric, err)
		}
		if err := f.Success(string(data)); err != nil {
			return err
		}
	}
	return nil
}

func outputCount(f *OutputFormatter, verb string, n int) error {
	if f.Format == "json" {
		return f.Success(map[string]int{verb: n})
	}
	return f.Success(formatCount(verb, n))
}
