package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1001054/Data-Disguise/internal/ir"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

var contactSchema = []string{
	`CREATE TABLE contact_info (contact_id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
}

var contactSeed = []string{
	`INSERT INTO contact_info (contact_id, name) VALUES (0, 'anonymous'), (19, 'bea')`,
}

func anonymizeStep() Step {
	return Step{
		Op:      OpApply,
		Policy:  "anonymize",
		VaultID: "19",
		Transformations: []ir.Transformation{
			{Kind: ir.Modification, Table: "contact_info", Predicate: "contact_id=19", Changes: "name='anonymous'"},
		},
	}
}

func contactScenario(flow []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "built in code",
		Schema:      contactSchema,
		Seed:        contactSeed,
		Vaults: []VaultSetup{
			{VaultID: "19", Email: "bea@example.com", Table: "contact_info", Fields: []string{"name"}, Values: []string{"placeholder"}},
		},
		Flow:       flow,
		Assertions: assertions,
	}
}

func intPtr(n int) *int { return &n }

func TestRun_AnonymizeRoundTrip(t *testing.T) {
	sc := contactScenario(
		[]Step{
			anonymizeStep(),
			{Op: OpRecover, Policy: "anonymize", VaultID: "19", Expect: &Expect{Restored: intPtr(1)}},
		},
		Assertion{Type: AssertRowValues, Table: "contact_info", Where: "contact_id=19", Expect: map[string]string{"name": "bea"}},
		Assertion{Type: AssertLedgerCount, VaultID: "19", Count: intPtr(0)},
	)

	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, []string{"modification contact_info WHERE contact_id=19 SET name='anonymous'"}, result.Trace[0].Detail)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}

func TestRun_UnexpectedStepError(t *testing.T) {
	sc := contactScenario(
		[]Step{{Op: OpRecover, Policy: "anonymize", VaultID: "19"}},
		Assertion{Type: AssertTraceCount, Outcome: "NOT_FOUND", Count: intPtr(1)},
	)

	result, err := Run(sc)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_WrongExpectedError(t *testing.T) {
	step := anonymizeStep()
	step.Expect = &Expect{Error: "NO_MATCH"}
	sc := contactScenario([]Step{step}, Assertion{Type: AssertLedgerCount, VaultID: "19", Count: intPtr(1)})

	result, err := Run(sc)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error NO_MATCH, got ok")
}

func TestRun_ExpectedNoMatch(t *testing.T) {
	step := anonymizeStep()
	step.Transformations[0].Predicate = "contact_id=404"
	step.Expect = &Expect{Error: "NO_MATCH"}
	sc := contactScenario([]Step{step}, Assertion{Type: AssertLedgerCount, VaultID: "19", Count: intPtr(0)})

	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "1 apply anonymize vault=19 NO_MATCH\n", result.Transcript())
}

func TestRun_CountMismatch(t *testing.T) {
	step := anonymizeStep()
	step.Expect = &Expect{Transformations: intPtr(5)}
	sc := contactScenario([]Step{step}, Assertion{Type: AssertLedgerCount, VaultID: "19", Count: intPtr(1)})

	result, err := Run(sc)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected transformations=5, got 1")
}

func TestRun_AssertionFailures(t *testing.T) {
	sc := contactScenario(
		[]Step{anonymizeStep()},
		Assertion{Type: AssertRowCount, Table: "contact_info", Where: "name='anonymous'", Count: intPtr(1)},
		Assertion{Type: AssertRowValues, Table: "contact_info", Where: "contact_id=19", Expect: map[string]string{"name": "bea"}},
		Assertion{Type: AssertRowValues, Table: "contact_info", Where: "contact_id=404", Expect: map[string]string{"name": "x"}},
		Assertion{Type: AssertTraceOrder, Ops: []string{OpRecover, OpApply}},
	)

	result, err := Run(sc)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Assertion failed: row_count")
	assert.Contains(t, result.Errors[0], "Actual: 2 row(s)")
	assert.Contains(t, result.Errors[1], `Actual: "anonymous"`)
	assert.Contains(t, result.Errors[2], "no rows")
	assert.Contains(t, result.Errors[3], "Assertion failed: trace_order")
}

func TestRun_AdvanceMovesClock(t *testing.T) {
	sc := contactScenario(
		[]Step{
			anonymizeStep(),
			{Op: OpAdvance, Duration: "48h"},
			{Op: OpClearVault, Age: intPtr(0), Expect: &Expect{Error: string(ir.ErrCodeInvalidInput)}},
			{Op: OpClearVault, DeleteName: "anonymize", VaultID: "19", Expect: &Expect{Disguises: intPtr(1)}},
		},
		Assertion{Type: AssertLedgerCount, VaultID: "19", Count: intPtr(0)},
	)

	result, err := Run(sc)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"48h0m0s"}, result.Trace[1].Detail)
	assert.Equal(t, []string{"disguises=1", "purged_rows=0"}, result.Trace[3].Detail)
}

func TestRun_SetupErrors(t *testing.T) {
	sc := contactScenario([]Step{anonymizeStep()}, Assertion{Type: AssertTraceOrder, Ops: []string{OpApply}})
	sc.Seed = []string{"INSERT INTO nowhere VALUES (1)"}
	_, err := Run(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prepare target")

	sc = contactScenario([]Step{anonymizeStep()}, Assertion{Type: AssertTraceOrder, Ops: []string{OpApply}})
	sc.Vaults[0].Fields = []string{"nickname"}
	_, err = Run(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vaults[0]")
}
