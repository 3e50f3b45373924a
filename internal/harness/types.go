package harness

import (
	"fmt"
	"strings"
)

// TraceEvent records one executed scenario step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Policy  string `json:"policy,omitempty"`
	VaultID string `json:"vault_id,omitempty"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	// Detail lists what the step did: planned transformations for apply
	// and plan, counters for recover and clearvault.
	Detail []string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step met its expectation and every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace, numbering it.
func (r *Result) AddEvent(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Transcript renders the trace one step per line, with details indented
// beneath their step. Golden files hold this text.
func (r *Result) Transcript() string {
	var b strings.Builder
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "%d %s", ev.Seq, ev.Op)
		if ev.Policy != "" {
			fmt.Fprintf(&b, " %s", ev.Policy)
		}
		if ev.VaultID != "" {
			fmt.Fprintf(&b, " vault=%s", ev.VaultID)
		}
		fmt.Fprintf(&b, " %s\n", ev.Outcome)
		for _, d := range ev.Detail {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	return b.String()
}
