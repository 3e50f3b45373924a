package harness

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/store"
	"github.com/1001054/Data-Disguise/internal/target"
)

// validIdentifier matches plain SQL identifiers. Table names are
// interpolated into queries, so anything else is refused.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionContext gives assertions access to the scenario's databases.
type AssertionContext struct {
	Ctx    context.Context
	Target *target.SQLStore
	Vault  *store.Store
}

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

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Op, ev.Policy, ev.Outcome)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(actx, a)
		case AssertRowValues:
			err = assertRowValues(actx, a)
		case AssertLedgerCount:
			err = assertLedgerCount(actx, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func where(a Assertion) string {
	if a.Where == "" {
		return "1=1"
	}
	return a.Where
}

func assertRowCount(actx *AssertionContext, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q", a.Table)
	}

	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", a.Table, where(a))
	if err := actx.Target.DB().QueryRowContext(actx.Ctx, q).Scan(&n); err != nil {
		return fmt.Errorf("row_count %s: %w", a.Table, err)
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d row(s) in %s WHERE %s", *a.Count, a.Table, where(a)),
			Actual:   fmt.Sprintf("%d row(s)", n),
		}
	}
	return nil
}

// assertRowValues requires every selected row to hold the expected display
// values.
func assertRowValues(actx *AssertionContext, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q", a.Table)
	}

	rows, err := target.NewAccessor(actx.Target).SelectRows(actx.Ctx, a.Table, a.Where)
	if ir.IsNoMatch(err) {
		return &AssertionError{
			Type:     AssertRowValues,
			Expected: fmt.Sprintf("rows in %s WHERE %s", a.Table, a.Where),
			Actual:   "no rows",
		}
	}
	if err != nil {
		return fmt.Errorf("row_values %s: %w", a.Table, err)
	}

	columns := make([]string, 0, len(a.Expect))
	for c := range a.Expect {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	for i, row := range rows {
		for _, col := range columns {
			f, ok := row.Field(col)
			if !ok {
				return fmt.Errorf("row_values %s: no column %s", a.Table, col)
			}
			got := f.Value
			if f.Null {
				got = "NULL"
			}
			if got != a.Expect[col] {
				return &AssertionError{
					Type:     AssertRowValues,
					Expected: fmt.Sprintf("%s.%s = %q in row %d", a.Table, col, a.Expect[col], i+1),
					Actual:   fmt.Sprintf("%q", got),
				}
			}
		}
	}
	return nil
}

func assertLedgerCount(actx *AssertionContext, a Assertion) error {
	disguises, err := actx.Vault.List(actx.Ctx, a.VaultID)
	if err != nil {
		return fmt.Errorf("ledger_count %s: %w", a.VaultID, err)
	}

	n := 0
	for _, d := range disguises {
		if a.Policy == "" || d.PolicyName == strings.ToLower(a.Policy) {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertLedgerCount,
			Expected: fmt.Sprintf("%d disguise(s) for vault %s", *a.Count, a.VaultID),
			Actual:   fmt.Sprintf("%d disguise(s)", n),
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if a.Op != "" && ev.Op != a.Op {
			continue
		}
		if a.Policy != "" && ev.Policy != strings.ToLower(a.Policy) {
			continue
		}
		if a.Outcome != "" && ev.Outcome != a.Outcome {
			continue
		}
		n++
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d matching step(s)", *a.Count),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertTraceOrder checks that ops occur in the given order, not
// necessarily consecutively.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Ops) && ev.Op == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("ops in order: %v", a.Ops),
			Actual:   fmt.Sprintf("missing %s after position %d", a.Ops[next], next),
		}
	}
	return nil
}
