package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/offstore/internal/offline"
	"github.com/roach88/offstore/internal/record"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s\n", event.Seq, event.Op, event.Table, event.Args, event.Outcome)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, p *offline.Provider) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, p, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceCount checks that op appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the ops occur in order. Other steps may
// occur in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Ops) && event.Op == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("ops in order: %v", a.Ops),
			Actual:   fmt.Sprintf("matched %v, then no %s", a.Ops[:next], a.Ops[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState queries the store through the provider and checks the
// count and field values of the result.
func assertFinalState(ctx context.Context, p *offline.Provider, a Assertion) error {
	where, err := record.FromMap(a.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}

	found, err := p.FindOfflineData(ctx, a.Table, where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if a.Count != nil && len(found) != *a.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d records in %s where %s", *a.Count, a.Table, formatFields(a.Where)),
			Actual:   fmt.Sprintf("%d records", len(found)),
		}
	}
	if len(a.Expect) > 0 && len(found) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record in %s where %s", a.Table, formatFields(a.Where)),
			Actual:   "no records",
		}
	}
	for i, rec := range found {
		if msg := subsetMismatch(a.Expect, rec.Map()); msg != "" {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: formatFields(a.Expect),
				Actual:   fmt.Sprintf("record %d: %s", i, msg),
			}
		}
	}
	return nil
}

// subsetMismatch reports the first field of want that got lacks or holds a
// different value for.
func subsetMismatch(want, got map[string]any) string {
	for _, k := range sortedKeys(want) {
		g, ok := got[k]
		if !ok {
			return fmt.Sprintf("field %q missing", k)
		}
		if !sameValue(want[k], g) {
			return fmt.Sprintf("field %q: expected %v, got %v", k, want[k], g)
		}
	}
	return ""
}

// exactMismatch is subsetMismatch plus a check for extra fields.
func exactMismatch(want, got map[string]any) string {
	if msg := subsetMismatch(want, got); msg != "" {
		return msg
	}
	for _, k := range sortedKeys(got) {
		if _, ok := want[k]; !ok {
			return fmt.Sprintf("unexpected field %q", k)
		}
	}
	return ""
}

// sameValue compares after conversion to record values, so a YAML int
// matches a stored Int and never a Float or String.
func sameValue(a, b any) bool {
	va, err := record.FromAny(a)
	if err != nil {
		return false
	}
	vb, err := record.FromAny(b)
	if err != nil {
		return false
	}
	return record.Equal(va, vb)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFields(m map[string]any) string {
	if len(m) == 0 {
		return "(all)"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
