package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/store"
	"github.com/1001054/Data-Disguise/internal/target"
)

// Engine holds the target and vault handles and runs disguise operations
// against them. It is the explicit context every operation goes through;
// nothing in this package keeps connections in globals.
//
// Thread-safety: Engine methods may be called concurrently, but no locking
// spans an operation. Overlapping disguises and recoveries on the same rows
// race; callers that need exclusion take a lock around the call.
type Engine struct {
	target   *target.Accessor
	vault    *store.Store
	planner  *Planner
	executor *Executor
	recovery *Recovery
	ids      IDGenerator
	clock    Clock
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used for cutoffs and ledger timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the disguise id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the engine's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over a target store and a vault.
func New(t target.Store, v *store.Store, opts ...Option) *Engine {
	e := &Engine{
		target: target.NewAccessor(t),
		vault:  v,
		ids:    UUIDv7Generator{},
		clock:  RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.planner = NewPlanner(e.target, e.clock)
	e.executor = NewExecutor(t)
	e.recovery = NewRecovery(e.target, v)
	return e
}

// Vault returns the engine's vault.
func (e *Engine) Vault() *store.Store {
	return e.vault
}

// ApplyRequest describes one policy application.
type ApplyRequest struct {
	PolicyName string
	VaultID    string

	// Transformations are concrete operations, or expansion templates when
	// Expand is set.
	Transformations []ir.Transformation

	// Expand runs the planner over Transformations with AgeYears.
	Expand   bool
	AgeYears int

	// PlaceholderAssignment is the SET clause used by Decorrelation.
	PlaceholderAssignment string
}

// ApplyResult reports an applied disguise.
type ApplyResult struct {
	Disguise        *ir.Disguise        `json:"disguise"`
	Transformations []ir.Transformation `json:"transformations"`
	Changes         []string            `json:"changes"`
}

// Plan expands templates without touching the target.
func (e *Engine) Plan(ctx context.Context, templates []ir.Transformation, ageYears int) ([]ir.Transformation, error) {
	return e.planner.Expand(ctx, templates, ageYears)
}

// Apply snapshots, executes and records a policy application.
//
// Expanded batches drop dependent transformations whose selection matches no
// rows, since the planner emits one per owner row whether or not that owner
// has dependents. Explicit batches fail on any empty selection.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	if req.PolicyName == "" || req.VaultID == "" {
		return nil, ir.NewInvalidInput("policy name and vault id are required")
	}

	transformations := req.Transformations
	if req.Expand {
		planned, err := e.planner.Expand(ctx, transformations, req.AgeYears)
		if err != nil {
			return nil, err
		}
		transformations = planned
	} else {
		if len(transformations) == 0 {
			return nil, ir.NewInvalidInput("at least one transformation is required")
		}
		for _, t := range transformations {
			if err := t.Validate(); err != nil {
				return nil, err
			}
		}
	}

	kept := make([]ir.Transformation, 0, len(transformations))
	originals := make([][]ir.Target, 0, len(transformations))
	for _, t := range transformations {
		rows, err := e.target.SelectRows(ctx, t.Table, t.Predicate)
		if err != nil {
			if req.Expand && ir.IsNoMatch(err) {
				e.logger.Debug("skipping empty selection", "table", t.Table, "predicate", t.Predicate)
				continue
			}
			return nil, err
		}
		kept = append(kept, t)
		originals = append(originals, rows)
	}

	changes, err := e.executor.Execute(ctx, kept, req.PlaceholderAssignment)
	if err != nil {
		e.logger.Error("disguise aborted",
			"policy", req.PolicyName,
			"vault_id", req.VaultID,
			"committed", len(changes),
			"planned", len(kept),
			"error", err)
		return nil, err
	}

	d, err := e.vault.Append(ctx, store.Entry{
		ID:              e.ids.Generate(),
		PolicyName:      req.PolicyName,
		VaultID:         req.VaultID,
		AppliedAt:       e.clock.Now(),
		Transformations: kept,
		Originals:       originals,
		Changes:         changes,
	})
	if err != nil {
		e.logger.Error("ledger append failed after target writes",
			"policy", req.PolicyName,
			"vault_id", req.VaultID,
			"error", err)
		return nil, err
	}

	e.logger.Info("disguise applied",
		"policy", req.PolicyName,
		"vault_id", req.VaultID,
		"disguise_id", d.ID,
		"transformations", len(kept),
		"functions", len(d.Functions))

	return &ApplyResult{Disguise: d, Transformations: kept, Changes: changes}, nil
}

// RecoverResult reports a completed recovery.
type RecoverResult struct {
	DisguiseID string `json:"disguise_id"`
	Restored   int    `json:"restored"`
}

// Recover undoes the most recent disguise policyName applied to vaultID and
// removes it from the vault.
//
// The stored digest is checked before any target write. If replay fails the
// disguise stays in the vault, with the steps already undone flagged, so the
// call can be retried.
func (e *Engine) Recover(ctx context.Context, policyName, vaultID string) (*RecoverResult, error) {
	d, err := e.vault.Lookup(ctx, policyName, vaultID)
	if err != nil {
		return nil, err
	}

	digest, err := ir.DisguiseDigest(d.ID, d.Functions)
	if err != nil {
		return nil, err
	}
	if digest != d.Digest {
		return nil, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: fmt.Sprintf("ledger digest mismatch for disguise %s", d.ID)}
	}

	n, err := e.recovery.Recover(ctx, d)
	if err != nil {
		e.logger.Error("recovery failed",
			"disguise_id", d.ID,
			"restored", n,
			"error", err)
		return nil, err
	}

	if err := e.vault.Delete(ctx, d.ID); err != nil {
		return nil, err
	}

	e.logger.Info("disguise recovered", "disguise_id", d.ID, "policy", policyName, "vault_id", vaultID, "restored", n)
	return &RecoverResult{DisguiseID: d.ID, Restored: n}, nil
}

// ClearVault runs a retention sweep. Decorrelated target rows of the matching
// disguises are deleted for good before their ledger records.
func (e *Engine) ClearVault(ctx context.Context, criterion ir.RetentionCriterion) (store.SweepResult, error) {
	res, err := e.vault.RetentionSweep(ctx, e.target.Store(), criterion, e.clock.Now())
	if err != nil {
		return res, err
	}
	e.logger.Info("vault cleared", "disguises", res.Disguises, "purged_rows", res.PurgedRows)
	return res, nil
}

// GenerateVaultRequest creates a subject's vault identity and placeholder row.
type GenerateVaultRequest struct {
	VaultID string
	Email   string

	// Table receives the placeholder row. Columns and Values are its
	// contents, as display strings parsed by column type.
	Table   string
	Columns []string
	Values  []string

	// PrimaryKey, when set, must name the table's primary key column.
	PrimaryKey string
}

// GenerateVault inserts a placeholder row into the target and records the
// subject's vault identity pointing at it.
func (e *Engine) GenerateVault(ctx context.Context, req GenerateVaultRequest) (*ir.VaultIdentity, error) {
	if req.VaultID == "" || req.Email == "" || req.Table == "" {
		return nil, ir.NewInvalidInput("vault id, email and placeholder table are required")
	}
	if len(req.Columns) != len(req.Values) {
		return nil, ir.NewInvalidInput(fmt.Sprintf("%d placeholder columns but %d values", len(req.Columns), len(req.Values)))
	}
	if _, err := e.vault.GetVault(ctx, req.VaultID); err == nil {
		return nil, ir.NewInvalidInput(fmt.Sprintf("vault %s already exists", req.VaultID))
	} else if !ir.IsNotFound(err) {
		return nil, err
	}

	columns, err := e.target.DescribeSchema(ctx, req.Table)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]ir.Column, len(columns))
	var pk ir.Column
	for _, c := range columns {
		byName[c.Name] = c
		if c.PrimaryKey {
			pk = c
		}
	}

	if req.PrimaryKey != "" && req.PrimaryKey != pk.Name {
		return nil, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: fmt.Sprintf("primary key is %s, not %s", pk.Name, req.PrimaryKey), Table: req.Table}
	}

	args := make([]any, len(req.Columns))
	var explicitKey *ir.Field
	for i, name := range req.Columns {
		col, ok := byName[name]
		if !ok {
			return nil, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: fmt.Sprintf("unknown column %s", name), Table: req.Table}
		}
		v := req.Values[i]
		if args[i], err = ir.ParseValue(col, &v); err != nil {
			return nil, err
		}
		if col.PrimaryKey {
			explicitKey = &ir.Field{Name: col.Name, Type: col.Type, Value: v}
		}
	}

	id, err := e.target.Store().InsertRow(ctx, req.Table, req.Columns, args)
	if err != nil {
		return nil, err
	}

	key := ir.Field{Name: pk.Name, Type: ir.Integer, Value: strconv.FormatInt(id, 10)}
	if explicitKey != nil {
		key = *explicitKey
	}

	v := ir.VaultIdentity{
		VaultID:     req.VaultID,
		Email:       req.Email,
		Placeholder: ir.PlaceholderLocator{Table: req.Table, Predicate: ir.EqualityPredicate(key)},
	}
	if err := e.vault.CreateVault(ctx, v); err != nil {
		return nil, err
	}

	e.logger.Info("vault generated", "vault_id", v.VaultID, "placeholder", v.Placeholder.Predicate)
	return &v, nil
}
