// Package service maps the named disguise policies (userscrub, anonymize,
// expiration, clearvault and recover) onto engine calls. It owns request
// validation, placeholder lookup and per-subject locking.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1001054/Data-Disguise/internal/distlock"
	"github.com/1001054/Data-Disguise/internal/engine"
	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/store"
)

// Policy names accepted by the service.
const (
	PolicyUserScrub  = "userscrub"
	PolicyAnonymize  = "anonymize"
	PolicyExpiration = "expiration"
	PolicyClearVault = "clearvault"
	PolicyRecover    = "recover"
)

// PolicySource resolves a named policy for one subject.
// compiler.Source implements it over a directory of CUE files.
type PolicySource interface {
	Policy(name, subject string) (*ir.Policy, error)
}

// Requirement is a policy request as it arrives from a caller.
type Requirement struct {
	DisguiseName    string              `json:"disguise_name"`
	VaultID         string              `json:"vault_id"`
	DeleteAge       *int                `json:"delete_age,omitempty"`
	DeleteName      string              `json:"delete_name,omitempty"`
	Transformations []ir.Transformation `json:"transformations,omitempty"`
}

// Service is the policy layer over an engine.
type Service struct {
	engine   *engine.Engine
	policies PolicySource
	locks    distlock.Factory
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicySource lets requests without transformations fall back to
// named policy definitions.
func WithPolicySource(src PolicySource) Option {
	return func(s *Service) { s.policies = src }
}

// WithLocks serializes operations per subject. A nil factory disables locking.
func WithLocks(f distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(e *engine.Engine, opts ...Option) *Service {
	s := &Service{engine: e, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// ScrubUser removes a subject while decorrelating their content.
func (s *Service) ScrubUser(ctx context.Context, req Requirement) (*engine.ApplyResult, error) {
	return s.applyExplicit(ctx, PolicyUserScrub, req)
}

// Anonymize rewrites a subject's identifying data.
func (s *Service) Anonymize(ctx context.Context, req Requirement) (*engine.ApplyResult, error) {
	return s.applyExplicit(ctx, PolicyAnonymize, req)
}

// Expiration disguises every owner row older than delete_age years, with
// the rows that depend on it.
func (s *Service) Expiration(ctx context.Context, req Requirement) (*engine.ApplyResult, error) {
	if err := checkName(PolicyExpiration, req.DisguiseName); err != nil {
		return nil, err
	}
	if req.VaultID == "" {
		return nil, ir.NewInvalidInput("vault_id is required")
	}

	templates := req.Transformations
	age := req.DeleteAge
	if len(templates) == 0 {
		p, err := s.policy(PolicyExpiration, req.VaultID)
		if err != nil {
			return nil, err
		}
		if p.Kind != ir.PolicyExpiration {
			return nil, ir.NewInvalidInput(fmt.Sprintf("policy %s is not an expiration policy", p.Name))
		}
		templates = p.Transformations
		if age == nil {
			age = &p.AgeYears
		}
	}
	if age == nil {
		return nil, ir.NewInvalidInput("delete_age is required")
	}

	return s.apply(ctx, engine.ApplyRequest{
		PolicyName:      PolicyExpiration,
		VaultID:         req.VaultID,
		Transformations: templates,
		Expand:          true,
		AgeYears:        *age,
	})
}

// ApplyNamed routes req to the handler of its disguise_name. Names other
// than the built-in policies are resolved from the policy source and cannot
// carry inline transformations.
func (s *Service) ApplyNamed(ctx context.Context, req Requirement) (*engine.ApplyResult, error) {
	switch name := strings.ToLower(req.DisguiseName); name {
	case PolicyUserScrub:
		return s.ScrubUser(ctx, req)
	case PolicyAnonymize:
		return s.Anonymize(ctx, req)
	case PolicyExpiration:
		return s.Expiration(ctx, req)
	default:
		if len(req.Transformations) > 0 {
			return nil, ir.NewInvalidInput(fmt.Sprintf("policy %s cannot take inline transformations", name))
		}
		return s.Apply(ctx, name, req.VaultID, req.DeleteAge)
	}
}

// Apply runs a named policy definition for a subject. Expiration policies use
// ageOverride when it is non-nil.
func (s *Service) Apply(ctx context.Context, name, vaultID string, ageOverride *int) (*engine.ApplyResult, error) {
	p, err := s.policy(name, vaultID)
	if err != nil {
		return nil, err
	}

	req := engine.ApplyRequest{
		PolicyName:      p.Name,
		VaultID:         vaultID,
		Transformations: p.Transformations,
	}
	if p.Kind == ir.PolicyExpiration {
		req.Expand = true
		req.AgeYears = p.AgeYears
		if ageOverride != nil {
			req.AgeYears = *ageOverride
		}
	}
	return s.apply(ctx, req)
}

// Plan expands a named expiration policy without applying it.
func (s *Service) Plan(ctx context.Context, name, vaultID string, ageOverride *int) ([]ir.Transformation, error) {
	p, err := s.policy(name, vaultID)
	if err != nil {
		return nil, err
	}
	if p.Kind != ir.PolicyExpiration {
		return p.Transformations, nil
	}
	age := p.AgeYears
	if ageOverride != nil {
		age = *ageOverride
	}
	return s.engine.Plan(ctx, p.Transformations, age)
}

// ClearVault permanently retires disguises, either all those older than
// delete_age years or those of delete_name applied to vault_id.
func (s *Service) ClearVault(ctx context.Context, req Requirement) (store.SweepResult, error) {
	if err := checkName(PolicyClearVault, req.DisguiseName); err != nil {
		return store.SweepResult{}, err
	}

	var (
		criterion ir.RetentionCriterion
		key       string
	)
	switch {
	case req.DeleteAge != nil && (req.DeleteName != "" || req.VaultID != ""):
		return store.SweepResult{}, ir.NewInvalidInput("clearvault takes either delete_age or delete_name with vault_id, not both")
	case req.DeleteAge != nil:
		if err := ir.CheckAgeYears(*req.DeleteAge); err != nil {
			return store.SweepResult{}, err
		}
		criterion.ByAge = true
		criterion.MaxAge = YearsToDuration(*req.DeleteAge)
		key = PolicyClearVault
	default:
		if req.DeleteName == "" || req.VaultID == "" {
			return store.SweepResult{}, ir.NewInvalidInput("clearvault needs delete_age, or delete_name and vault_id")
		}
		criterion.PolicyName = strings.ToLower(req.DeleteName)
		criterion.VaultID = req.VaultID
		key = req.VaultID
	}

	var res store.SweepResult
	err := s.locked(ctx, key, func(ctx context.Context) error {
		var err error
		res, err = s.engine.ClearVault(ctx, criterion)
		return err
	})
	return res, err
}

// Recover undoes the latest disguise named disguise_name on vault_id.
func (s *Service) Recover(ctx context.Context, req Requirement) (*engine.RecoverResult, error) {
	name := strings.ToLower(req.DisguiseName)
	if name == "" || req.VaultID == "" {
		return nil, ir.NewInvalidInput("disguise_name and vault_id are required")
	}

	var res *engine.RecoverResult
	err := s.locked(ctx, req.VaultID, func(ctx context.Context) error {
		var err error
		res, err = s.engine.Recover(ctx, name, req.VaultID)
		return err
	})
	return res, err
}

// GeneratePlaceholder describes the placeholder row of a new vault.
type GeneratePlaceholder struct {
	Table          string   `json:"table"`
	PrimaryKeyName string   `json:"primary_key_name,omitempty"`
	Fields         []string `json:"fields"`
	FieldValues    []string `json:"field_values"`
}

// GenerateVault is a vault creation request.
type GenerateVault struct {
	VaultID             string              `json:"vault_id"`
	Email               string              `json:"email"`
	GeneratePlaceholder GeneratePlaceholder `json:"generate_placeholder"`
}

// GenerateVault creates a subject's vault and placeholder row.
func (s *Service) GenerateVault(ctx context.Context, req GenerateVault) (*ir.VaultIdentity, error) {
	var v *ir.VaultIdentity
	err := s.locked(ctx, req.VaultID, func(ctx context.Context) error {
		var err error
		v, err = s.engine.GenerateVault(ctx, engine.GenerateVaultRequest{
			VaultID:    req.VaultID,
			Email:      req.Email,
			Table:      req.GeneratePlaceholder.Table,
			PrimaryKey: req.GeneratePlaceholder.PrimaryKeyName,
			Columns:    req.GeneratePlaceholder.Fields,
			Values:     req.GeneratePlaceholder.FieldValues,
		})
		return err
	})
	return v, err
}

// Vault returns a vault identity by id.
func (s *Service) Vault(ctx context.Context, vaultID string) (*ir.VaultIdentity, error) {
	return s.engine.Vault().GetVault(ctx, vaultID)
}

// VaultByEmail returns a vault identity by the subject's email.
func (s *Service) VaultByEmail(ctx context.Context, email string) (*ir.VaultIdentity, error) {
	return s.engine.Vault().GetVaultByEmail(ctx, email)
}

// Disguises lists the disguise headers recorded for vaultID, or all of them
// when vaultID is empty.
func (s *Service) Disguises(ctx context.Context, vaultID string) ([]ir.Disguise, error) {
	return s.engine.Vault().List(ctx, vaultID)
}

// Disguise returns one disguise with its Functions.
func (s *Service) Disguise(ctx context.Context, disguiseID string) (*ir.Disguise, error) {
	return s.engine.Vault().Get(ctx, disguiseID)
}

func (s *Service) applyExplicit(ctx context.Context, policy string, req Requirement) (*engine.ApplyResult, error) {
	if err := checkName(policy, req.DisguiseName); err != nil {
		return nil, err
	}
	if req.VaultID == "" {
		return nil, ir.NewInvalidInput("vault_id is required")
	}

	transformations := req.Transformations
	if len(transformations) == 0 {
		p, err := s.policy(policy, req.VaultID)
		if err != nil {
			return nil, err
		}
		if p.Kind != ir.PolicyExplicit {
			return nil, ir.NewInvalidInput(fmt.Sprintf("policy %s is not an explicit policy", p.Name))
		}
		transformations = p.Transformations
	}

	return s.apply(ctx, engine.ApplyRequest{
		PolicyName:      policy,
		VaultID:         req.VaultID,
		Transformations: transformations,
	})
}

// apply resolves the subject's placeholder and runs the request under the
// subject's lock.
func (s *Service) apply(ctx context.Context, req engine.ApplyRequest) (*engine.ApplyResult, error) {
	var res *engine.ApplyResult
	err := s.locked(ctx, req.VaultID, func(ctx context.Context) error {
		v, err := s.engine.Vault().GetVault(ctx, req.VaultID)
		if err != nil {
			return err
		}
		req.PlaceholderAssignment = v.Placeholder.Assignment()

		res, err = s.engine.Apply(ctx, req)
		return err
	})
	return res, err
}

func (s *Service) policy(name, subject string) (*ir.Policy, error) {
	if s.policies == nil {
		return nil, ir.NewInvalidInput("transformations are required")
	}
	return s.policies.Policy(name, subject)
}

func (s *Service) locked(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	err := distlock.Do(ctx, s.locks("disguise:"+key), fn)
	if errors.Is(err, distlock.ErrLocked) {
		s.logger.Warn("operation refused, subject locked", "key", key)
		return ir.NewInvalidInput(fmt.Sprintf("another disguise operation is running for %s", key))
	}
	return err
}

// checkName requires the request's disguise_name to match the policy it was
// sent to, ignoring case.
func checkName(want, got string) error {
	if strings.ToLower(got) != want {
		return ir.NewInvalidInput(fmt.Sprintf("disguise name %q does not match policy %s", got, want))
	}
	return nil
}

// YearsToDuration converts a retention age in years to a duration of 365-day
// years. years must pass ir.CheckAgeYears.
func YearsToDuration(years int) time.Duration {
	return time.Duration(years) * 365 * 24 * time.Hour
}
