package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/service"
)

// VaultOptions holds flags for the vault commands.
type VaultOptions struct {
	*RootOptions
	VaultID    string
	Email      string
	Table      string
	PrimaryKey string
	Fields     []string
}

// NewVaultCommand creates the vault command and its subcommands.
func NewVaultCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage subject vaults",
	}
	cmd.AddCommand(newVaultGenerateCommand(rootOpts))
	cmd.AddCommand(newVaultShowCommand(rootOpts))
	return cmd
}

func newVaultGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VaultOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create a vault and its placeholder row",
		Long: `Create a subject's vault. A placeholder row is inserted into --table
with the given --field values; decorrelated rows are pointed at it.

Example:
  disguise vault generate --vault 19 --email bea@example.com \
    --table contact_info --pk contact_id --field name=anonymous-19`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.VaultID, "vault", "", "vault id (required)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "subject email (required)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "placeholder table (required)")
	cmd.Flags().StringVar(&opts.PrimaryKey, "pk", "", "placeholder primary key column")
	cmd.Flags().StringArrayVar(&opts.Fields, "field", nil, "placeholder column as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runVaultGenerate(opts *VaultOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	req := service.GenerateVault{
		VaultID: opts.VaultID,
		Email:   opts.Email,
		GeneratePlaceholder: service.GeneratePlaceholder{
			Table:          opts.Table,
			PrimaryKeyName: opts.PrimaryKey,
		},
	}
	for _, field := range opts.Fields {
		name, value, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return f.Fail("invalid --field", ir.NewInvalidInput(fmt.Sprintf("%q is not name=value", field)))
		}
		req.GeneratePlaceholder.Fields = append(req.GeneratePlaceholder.Fields, name)
		req.GeneratePlaceholder.FieldValues = append(req.GeneratePlaceholder.FieldValues, value)
	}

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		v, err := s.svc.GenerateVault(ctx, req)
		if err != nil {
			return f.Fail("vault generate failed", err)
		}
		if f.Format == "json" {
			return f.Success(v)
		}
		fmt.Fprintf(f.Writer, "✓ Generated vault %s (placeholder %s WHERE %s)\n", v.VaultID, v.Placeholder.Table, v.Placeholder.Predicate)
		return nil
	})
}

func newVaultShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VaultOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [vault-id]",
		Short: "Show a vault by id or email",
		Long: `Show a subject's vault.

Example:
  disguise vault show 19
  disguise vault show --email bea@example.com`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			if (len(args) == 1) == (opts.Email != "") {
				return f.Fail("vault show", ir.NewInvalidInput("give either a vault id or --email"))
			}
			if len(args) == 1 {
				opts.VaultID = args[0]
			}
			return runVaultShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "look the vault up by email")

	return cmd
}

func runVaultShow(opts *VaultOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		var (
			v   *ir.VaultIdentity
			err error
		)
		if opts.Email != "" {
			v, err = s.svc.VaultByEmail(ctx, opts.Email)
		} else {
			v, err = s.svc.Vault(ctx, opts.VaultID)
		}
		if err != nil {
			return f.Fail("vault show failed", err)
		}
		if f.Format == "json" {
			return f.Success(v)
		}
		fmt.Fprintf(f.Writer, "vault:       %s\n", v.VaultID)
		fmt.Fprintf(f.Writer, "email:       %s\n", v.Email)
		fmt.Fprintf(f.Writer, "placeholder: %s WHERE %s\n", v.Placeholder.Table, v.Placeholder.Predicate)
		return nil
	})
}

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	VaultID string
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger [disguise-id]",
		Short: "List recorded disguises",
		Long: `List the disguises recorded in the vault, optionally for one subject.
With a disguise id, print that disguise and its undo functions.

Example:
  disguise ledger --vault 19
  disguise ledger 0190f3c2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runLedgerShow(opts, args[0], cmd)
			}
			return runLedgerList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.VaultID, "vault", "", "only disguises of this subject")

	return cmd
}

func runLedgerList(opts *LedgerOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		ds, err := s.svc.Disguises(ctx, opts.VaultID)
		if err != nil {
			return f.Fail("ledger failed", err)
		}
		if f.Format == "json" {
			if ds == nil {
				ds = []ir.Disguise{}
			}
			return f.Success(ds)
		}
		if len(ds) == 0 {
			fmt.Fprintln(f.Writer, "No disguises recorded.")
			return nil
		}
		for _, d := range ds {
			fmt.Fprintf(f.Writer, "%s  %s  vault=%s  %s\n", d.ID, d.AppliedAt.UTC().Format(time.RFC3339), d.VaultID, d.PolicyName)
		}
		return nil
	})
}

func runLedgerShow(opts *LedgerOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		d, err := s.svc.Disguise(ctx, id)
		if err != nil {
			return f.Fail("ledger failed", err)
		}
		if f.Format == "json" {
			return f.Success(d)
		}
		fmt.Fprintf(f.Writer, "disguise:   %s\n", d.ID)
		fmt.Fprintf(f.Writer, "policy:     %s\n", d.PolicyName)
		fmt.Fprintf(f.Writer, "vault:      %s\n", d.VaultID)
		fmt.Fprintf(f.Writer, "applied at: %s\n", d.AppliedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(f.Writer, "functions:  %d\n", len(d.Functions))
		for _, fn := range d.Functions {
			fmt.Fprintf(f.Writer, "  %d %s %s WHERE %s\n", fn.Seq, fn.Type, fn.Table, fn.Predicate)
		}
		return nil
	})
}
