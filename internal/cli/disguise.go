package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/service"
)

// PolicyOptions holds the flags shared by the policy commands.
type PolicyOptions struct {
	*RootOptions
	VaultID string
	Age     int
	File    string
}

// age returns the --age flag, or nil when it was not given.
func (o *PolicyOptions) age(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("age") {
		return nil
	}
	age := o.Age
	return &age
}

func (o *PolicyOptions) bindVault(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.VaultID, "vault", "", "subject vault id (required)")
	_ = cmd.MarkFlagRequired("vault")
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <policy>",
		Short: "Apply a disguise policy to a subject",
		Long: `Apply a disguise policy to a subject and record it in the vault.

The policy is read from the policy directory unless --file names a YAML
list of transformations, which userscrub, anonymize and expiration accept.

Example:
  disguise apply userscrub --vault 19
  disguise apply expiration --vault ops --age 5
  disguise apply anonymize --vault 19 --file anonymize.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	opts.bindVault(cmd)
	cmd.Flags().IntVar(&opts.Age, "age", 0, "expiration age in years (overrides the policy)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file of inline transformations")

	return cmd
}

func runApply(opts *PolicyOptions, policy string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	req := service.Requirement{DisguiseName: policy, VaultID: opts.VaultID, DeleteAge: opts.age(cmd)}
	if opts.File != "" {
		ts, err := readTransformations(opts.File)
		if err != nil {
			return f.Fail("failed to read transformations", err)
		}
		req.Transformations = ts
	}

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		res, err := s.svc.ApplyNamed(ctx, req)
		if err != nil {
			return f.Fail("apply failed", err)
		}
		if f.Format == "json" {
			return f.Success(res)
		}
		fmt.Fprintf(f.Writer, "✓ Applied %s to vault %s (disguise %s)\n", res.Disguise.PolicyName, res.Disguise.VaultID, res.Disguise.ID)
		printTransformations(f, res.Transformations)
		return nil
	})
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <policy>",
		Short: "Show the transformations a policy would run",
		Long: `Resolve a policy for a subject without changing anything.

Expiration policies are expanded against the current target rows.

Example:
  disguise plan expiration --vault ops --age 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	opts.bindVault(cmd)
	cmd.Flags().IntVar(&opts.Age, "age", 0, "expiration age in years (overrides the policy)")

	return cmd
}

func runPlan(opts *PolicyOptions, policy string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		planned, err := s.svc.Plan(ctx, policy, opts.VaultID, opts.age(cmd))
		if err != nil {
			return f.Fail("plan failed", err)
		}
		if f.Format == "json" {
			return f.Success(planned)
		}
		fmt.Fprintf(f.Writer, "%s for vault %s: %d transformation(s)\n", policy, opts.VaultID, len(planned))
		printTransformations(f, planned)
		return nil
	})
}

// NewRecoverCommand creates the recover command.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recover <policy>",
		Short: "Undo the latest disguise of a policy for a subject",
		Long: `Restore the rows changed by the most recent disguise of <policy> on a
subject and remove it from the vault.

Example:
  disguise recover userscrub --vault 19`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(opts, args[0], cmd)
		},
	}

	opts.bindVault(cmd)
	return cmd
}

func runRecover(opts *PolicyOptions, policy string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		res, err := s.svc.Recover(ctx, service.Requirement{DisguiseName: policy, VaultID: opts.VaultID})
		if err != nil {
			return f.Fail("recover failed", err)
		}
		if f.Format == "json" {
			return f.Success(res)
		}
		fmt.Fprintf(f.Writer, "✓ Recovered disguise %s (%d row(s) restored)\n", res.DisguiseID, res.Restored)
		return nil
	})
}

// ClearVaultOptions holds flags for the clear-vault command.
type ClearVaultOptions struct {
	*RootOptions
	Age     int
	Name    string
	VaultID string
}

// NewClearVaultCommand creates the clear-vault command.
func NewClearVaultCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearVaultOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear-vault",
		Short: "Permanently retire disguises",
		Long: `Retire disguises so they can no longer be recovered. Rows that were
decorrelated onto a placeholder are deleted for good.

Select either every disguise older than --age years, or the disguises of
--name applied to --vault.

Example:
  disguise clear-vault --age 2
  disguise clear-vault --name userscrub --vault 19`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearVault(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Age, "age", 0, "retire disguises older than this many years")
	cmd.Flags().StringVar(&opts.Name, "name", "", "retire disguises of this policy")
	cmd.Flags().StringVar(&opts.VaultID, "vault", "", "subject vault id, with --name")
	cmd.MarkFlagsMutuallyExclusive("age", "name")
	cmd.MarkFlagsRequiredTogether("name", "vault")

	return cmd
}

func runClearVault(opts *ClearVaultOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	req := service.Requirement{
		DisguiseName: service.PolicyClearVault,
		DeleteName:   opts.Name,
		VaultID:      opts.VaultID,
	}
	if cmd.Flags().Changed("age") {
		age := opts.Age
		req.DeleteAge = &age
	}

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		res, err := s.svc.ClearVault(ctx, req)
		if err != nil {
			return f.Fail("clear-vault failed", err)
		}
		if f.Format == "json" {
			return f.Success(res)
		}
		fmt.Fprintf(f.Writer, "✓ Cleared %d disguise(s), purged %d row(s)\n", res.Disguises, res.PurgedRows)
		return nil
	})
}

// withSession opens a session for cmd, runs fn and closes it.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return opts.formatter(cmd).Report(err)
	}
	defer s.Close()
	return fn(ctx, s)
}

// readTransformations loads a YAML list of transformations.
func readTransformations(path string) ([]ir.Transformation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ts []ir.Transformation
	if err := yaml.Unmarshal(data, &ts); err != nil {
		return nil, ir.NewInvalidInput(fmt.Sprintf("parse %s: %v", path, err))
	}
	return ts, nil
}

func printTransformations(f *OutputFormatter, ts []ir.Transformation) {
	for _, t := range ts {
		fmt.Fprintf(f.Writer, "  %s\n", t)
	}
}
