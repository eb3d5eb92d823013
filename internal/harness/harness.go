package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/offstore/internal/config"
	"github.com/roach88/offstore/internal/ident"
	"github.com/roach88/offstore/internal/offline"
	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/storage"
	"github.com/roach88/offstore/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	cfg      config.Config
	provider *offline.Provider
	ids      ident.Generator
	clock    *testutil.Counter
	logger   *slog.Logger
}

// Run executes scenario against a fresh store and returns the result.
// An error is returned only when the scenario cannot run at all (the
// store cannot be created or a setup step fails); failed expectations and
// assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "offstore-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		cfg:    scenarioConfig(scenario, filepath.Join(dir, "store.db")),
		ids:    ident.NewSequenceGenerator("id"),
		clock:  testutil.NewCounter(),
		logger: testutil.DiscardLogger(),
	}
	if err := h.open(); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { h.provider.Close() }()

	result := NewResult()
	for i, step := range scenario.Setup {
		event, err := h.execute(ctx, step)
		result.AddTrace(event)
		if err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
	}

	for i, step := range scenario.Flow {
		event, err := h.execute(ctx, step)
		result.AddTrace(event)
		if msg := checkExpect(step, event, err); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
		h.logger.Info("flow step completed",
			"step", i,
			"op", step.Op,
			"table", step.Table,
			"outcome", event.Outcome,
		)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, h.provider) {
		result.AddError(msg)
	}
	return result, nil
}

func scenarioConfig(s *Scenario, path string) config.Config {
	cfg := config.Config{
		Name:       s.Store.Name,
		Version:    s.Store.Version,
		Backend:    s.Store.Backend,
		Path:       path,
		QuotaBytes: s.Store.QuotaBytes,
		Tables:     s.Store.Tables,
	}
	if cfg.Name == "" {
		cfg.Name = s.Name
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Backend == "" {
		cfg.Backend = config.BackendLocal
	}
	return cfg
}

func (h *Harness) open() error {
	p, err := offline.NewProvider(h.cfg,
		offline.WithLogger(h.logger),
		offline.WithIDGenerator(h.ids),
	)
	if err != nil {
		return err
	}
	h.provider = p
	return nil
}

// execute runs one step and returns its trace event and the operation error.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	event := TraceEvent{
		Seq:   h.clock.Next(),
		Op:    step.Op,
		Table: step.Table,
	}

	result, err := h.dispatch(ctx, step, &event)
	if err != nil {
		event.Outcome = string(storage.KindOf(err))
		if event.Outcome == "" {
			event.Outcome = "error"
		}
		return event, err
	}
	event.Outcome = OutcomeOK
	event.Result = result
	return event, nil
}

func (h *Harness) dispatch(ctx context.Context, step Step, event *TraceEvent) (any, error) {
	p := h.provider
	switch step.Op {
	case OpCreate:
		rec, err := toRecord(step.Op, step.Table, step.Record)
		if err != nil {
			return nil, err
		}
		event.Args = rec.Map()
		out, err := p.CreateOfflineData(ctx, step.Table, rec)
		if err != nil {
			return nil, err
		}
		if event.Digest, err = record.Digest(out); err != nil {
			return nil, err
		}
		return out.Map(), nil

	case OpFind:
		criteria, err := toRecord(step.Op, step.Table, step.Where)
		if err != nil {
			return nil, err
		}
		if len(criteria) > 0 {
			event.Args = criteria.Map()
		}
		found, err := p.FindOfflineData(ctx, step.Table, criteria)
		if err != nil {
			return nil, err
		}
		return recordMaps(found), nil

	case OpUpdate:
		recs := make([]record.Record, 0, len(step.Records))
		for _, m := range step.Records {
			rec, err := toRecord(step.Op, step.Table, m)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		event.Args = recordMaps(recs)
		return nil, p.UpdateOfflineData(ctx, step.Table, recs)

	case OpDelete:
		ids := step.IDs
		if ids == nil {
			ids = []string{}
		}
		event.Args = ids
		return nil, p.DeleteOfflineData(ctx, step.Table, ids)

	case OpReopen:
		return nil, h.reopen(step, event)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// reopen closes the provider and opens the same file with a new version
// and, when given, a new table set.
func (h *Harness) reopen(step Step, event *TraceEvent) error {
	next := h.cfg
	next.Version = step.Version
	if step.Tables != nil {
		next.Tables = step.Tables
	}
	event.Args = map[string]any{"version": next.Version, "tables": next.Tables}

	if err := h.provider.Close(); err != nil {
		return err
	}
	prev := h.cfg
	h.cfg = next
	if err := h.open(); err != nil {
		h.cfg = prev
		return err
	}
	return nil
}

func toRecord(op, table string, m map[string]any) (record.Record, error) {
	rec, err := record.FromMap(m)
	if err != nil {
		return nil, storage.WrapError(storage.KindInvalidRecord, op, table, err)
	}
	return rec, nil
}

func recordMaps(recs []record.Record) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		out[i] = r.Map()
	}
	return out
}

// checkExpect compares a flow step's outcome with its expect clause and
// returns a failure message, or "" when the step behaved as expected.
func checkExpect(step Step, event TraceEvent, err error) string {
	e := step.Expect
	if e == nil || e.Error == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
	} else {
		if err == nil {
			return fmt.Sprintf("expected %s error, got success", e.Error)
		}
		if event.Outcome != e.Error {
			return fmt.Sprintf("expected %s error, got %s: %v", e.Error, event.Outcome, err)
		}
		return ""
	}
	if e == nil {
		return ""
	}

	switch step.Op {
	case OpCreate:
		if e.Record != nil {
			got, _ := event.Result.(map[string]any)
			if msg := subsetMismatch(e.Record, got); msg != "" {
				return "record: " + msg
			}
		}
	case OpFind:
		got, _ := event.Result.([]map[string]any)
		if e.Count != nil && len(got) != *e.Count {
			return fmt.Sprintf("expected %d records, got %d", *e.Count, len(got))
		}
		if e.Records != nil {
			if len(got) != len(e.Records) {
				return fmt.Sprintf("expected %d records, got %d", len(e.Records), len(got))
			}
			for i := range got {
				if msg := exactMismatch(e.Records[i], got[i]); msg != "" {
					return fmt.Sprintf("records[%d]: %s", i, msg)
				}
			}
		}
	}
	return ""
}
