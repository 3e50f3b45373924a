package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/1001054/Data-Disguise/internal/compiler"
	"github.com/1001054/Data-Disguise/internal/engine"
	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/service"
	"github.com/1001054/Data-Disguise/internal/store"
	"github.com/1001054/Data-Disguise/internal/target"
)

// Harness runs one scenario against its own scratch databases.
type Harness struct {
	target *target.SQLStore
	vault  *store.Store
	svc    *service.Service
	clock  *engine.FixedClock
	logger *slog.Logger
}

// sequentialIDs numbers disguises in application order so traces are
// reproducible.
type sequentialIDs struct{ n int }

func (g *sequentialIDs) Generate() string {
	g.n++
	return fmt.Sprintf("disguise-%03d", g.n)
}

// Run executes a scenario and returns its result.
//
// Each scenario gets a fresh SQLite target and vault in a temporary
// directory, a fixed clock and sequential disguise ids. An error is returned
// only when the scenario cannot be set up; step and assertion failures are
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "disguise-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := newHarness(scenario, dir)
	if err != nil {
		return nil, err
	}
	defer h.target.Close()
	defer h.vault.Close()

	for _, stmt := range append(append([]string{}, scenario.Schema...), scenario.Seed...) {
		if _, err := h.target.DB().ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to prepare target: %q: %w", stmt, err)
		}
	}

	for i, v := range scenario.Vaults {
		_, err := h.svc.GenerateVault(ctx, service.GenerateVault{
			VaultID: v.VaultID,
			Email:   v.Email,
			GeneratePlaceholder: service.GeneratePlaceholder{
				Table:          v.Table,
				PrimaryKeyName: v.PrimaryKey,
				Fields:         v.Fields,
				FieldValues:    v.Values,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("vaults[%d]: %w", i, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step, result)
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Target: h.target,
		Vault:  h.vault,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, dir string) (*Harness, error) {
	now, err := scenario.Clock()
	if err != nil {
		return nil, err
	}

	t, err := target.Open("sqlite3", filepath.Join(dir, "target.db"))
	if err != nil {
		return nil, err
	}
	v, err := store.Open("sqlite3", filepath.Join(dir, "vault.db"))
	if err != nil {
		t.Close()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := engine.NewFixedClock(now)
	e := engine.New(t, v,
		engine.WithClock(clock),
		engine.WithIDGenerator(&sequentialIDs{}),
		engine.WithLogger(logger),
	)

	opts := []service.Option{service.WithLogger(logger)}
	if pd := scenario.PolicyDir(); pd != "" {
		opts = append(opts, service.WithPolicySource(compiler.Source{Dir: pd}))
	}

	return &Harness{
		target: t,
		vault:  v,
		svc:    service.New(e, opts...),
		clock:  clock,
		logger: logger,
	}, nil
}

// stepCounts are the observed counters an Expect clause may check.
type stepCounts struct {
	transformations int
	restored        int
	disguises       int
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	ev := TraceEvent{Op: step.Op, Policy: strings.ToLower(step.Policy), VaultID: step.VaultID}

	counts, detail, err := h.perform(ctx, step)
	if err != nil {
		ev.Outcome = string(ir.CodeOf(err))
		if ev.Outcome == "" {
			ev.Outcome = "ERROR"
		}
		h.logger.Info("step failed", "step", i, "op", step.Op, "error", err)
	} else {
		ev.Outcome = "ok"
		ev.Detail = detail
	}
	result.AddEvent(ev)

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	switch {
	case err != nil && want == "":
		result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Op, err))
		return
	case want != "" && ev.Outcome != want:
		result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s", i, step.Op, want, ev.Outcome))
		return
	case err != nil:
		return
	}

	if step.Expect == nil {
		return
	}
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s=%d, got %d", i, step.Op, name, *want, got))
		}
	}
	check("transformations", step.Expect.Transformations, counts.transformations)
	check("restored", step.Expect.Restored, counts.restored)
	check("disguises", step.Expect.Disguises, counts.disguises)
}

func (h *Harness) perform(ctx context.Context, step Step) (stepCounts, []string, error) {
	var counts stepCounts

	switch step.Op {
	case OpApply:
		res, err := h.svc.ApplyNamed(ctx, service.Requirement{
			DisguiseName:    step.Policy,
			VaultID:         step.VaultID,
			DeleteAge:       step.Age,
			Transformations: step.Transformations,
		})
		if err != nil {
			return counts, nil, err
		}
		counts.transformations = len(res.Transformations)
		return counts, describe(res.Transformations), nil

	case OpPlan:
		planned, err := h.svc.Plan(ctx, strings.ToLower(step.Policy), step.VaultID, step.Age)
		if err != nil {
			return counts, nil, err
		}
		counts.transformations = len(planned)
		return counts, describe(planned), nil

	case OpRecover:
		res, err := h.svc.Recover(ctx, service.Requirement{DisguiseName: step.Policy, VaultID: step.VaultID})
		if err != nil {
			return counts, nil, err
		}
		counts.restored = res.Restored
		return counts, []string{fmt.Sprintf("restored=%d", res.Restored)}, nil

	case OpClearVault:
		res, err := h.svc.ClearVault(ctx, service.Requirement{
			DisguiseName: service.PolicyClearVault,
			VaultID:      step.VaultID,
			DeleteAge:    step.Age,
			DeleteName:   step.DeleteName,
		})
		if err != nil {
			return counts, nil, err
		}
		counts.disguises = res.Disguises
		return counts, []string{fmt.Sprintf("disguises=%d", res.Disguises), fmt.Sprintf("purged_rows=%d", res.PurgedRows)}, nil

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return counts, nil, ir.NewInvalidInput(err.Error())
		}
		h.clock.Advance(d)
		return counts, []string{d.String()}, nil
	}
	return counts, nil, ir.NewInvalidInput(fmt.Sprintf("unknown op %q", step.Op))
}

func describe(ts []ir.Transformation) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}
