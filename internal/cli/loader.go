package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/offstore/internal/config"
	"github.com/roach88/offstore/internal/offline"
	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/storage"
)

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfigLoad   = "E002" // Config file missing or malformed
	ErrCodeInvalidInput = "E003" // Bad record or criteria argument
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeWriteFailed  = "E007" // File write error

	// Storage error kinds
	ErrCodeConfig          = "E201"
	ErrCodeNotImplemented  = "E202"
	ErrCodeSchemaMismatch  = "E203"
	ErrCodeQuotaExceeded   = "E204"
	ErrCodeVersionConflict = "E205"
	ErrCodeBlocked         = "E206"
	ErrCodeVersionChanged  = "E207"
	ErrCodeConstraint      = "E208"
	ErrCodeInvalidRecord   = "E209"
	ErrCodeSerialization   = "E210"
	ErrCodeIO              = "E211"
)

var kindCodes = map[storage.Kind]string{
	storage.KindConfig:          ErrCodeConfig,
	storage.KindNotImplemented:  ErrCodeNotImplemented,
	storage.KindSchemaMismatch:  ErrCodeSchemaMismatch,
	storage.KindQuotaExceeded:   ErrCodeQuotaExceeded,
	storage.KindVersionConflict: ErrCodeVersionConflict,
	storage.KindBlocked:         ErrCodeBlocked,
	storage.KindVersionChanged:  ErrCodeVersionChanged,
	storage.KindConstraint:      ErrCodeConstraint,
	storage.KindInvalidRecord:   ErrCodeInvalidRecord,
	storage.KindSerialization:   ErrCodeSerialization,
	storage.KindIO:              ErrCodeIO,
}

// ErrorCode maps an error to its CLI error code.
func ErrorCode(err error) string {
	if code, ok := kindCodes[storage.KindOf(err)]; ok {
		return code
	}
	return ErrCodeGeneric
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger builds the text logger for diagnostics on w.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// withStore loads the config, builds a provider scoped to the command
// context and runs fn with it. The provider is closed afterwards.
func withStore(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, f *OutputFormatter) error) error {
	formatter := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return outputFailure(formatter, ErrCodeConfigLoad, err)
	}
	formatter.VerboseLog("Store %s v%d (%s) at %q", cfg.Name, cfg.Version, cfg.Backend, cfg.Path)

	p, err := offline.NewProvider(cfg, offline.WithLogger(logger))
	if err != nil {
		return outputFailure(formatter, ErrorCode(err), err)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return fn(offline.WithProvider(parent, p), formatter)
}

// outputFailure reports err and returns the matching ExitError. Config
// and input problems exit with ExitCommandError, storage failures with
// ExitFailure.
func outputFailure(formatter *OutputFormatter, code string, err error) error {
	kind := storage.KindOf(err)
	_ = formatter.Error(code, string(kind), err.Error(), nil)

	exit := ExitFailure
	if kind == storage.KindConfig || code == ErrCodeConfigLoad || code == ErrCodeInvalidInput {
		exit = ExitCommandError
	}
	return WrapExitError(exit, code, err)
}

// parseRecord parses a JSON object argument into a record.
func parseRecord(arg string) (record.Record, error) {
	rec, err := record.Unmarshal([]byte(arg))
	if err != nil {
		return nil, fmt.Errorf("invalid record %s: %w", arg, err)
	}
	return rec, nil
}
