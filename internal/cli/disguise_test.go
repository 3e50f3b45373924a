package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateVault19 creates the vault for contact 19. Its placeholder is the
// next contact_info row, contact_id=22.
func generateVault19(t *testing.T, cfg string) {
	t.Helper()
	out, err := execute(t, "-c", cfg, "vault", "generate",
		"--vault", "19", "--email", "bea@example.com",
		"--table", "contact_info", "--pk", "contact_id", "--field", "name=anonymous-19")
	require.NoError(t, err, out)
	require.Contains(t, out, "✓ Generated vault 19 (placeholder contact_info WHERE contact_id=22)")
}

func TestApplyLedgerRecover(t *testing.T) {
	cfg := writeConfig(t)
	generateVault19(t, cfg)

	out, err := execute(t, "-c", cfg, "apply", "userscrub", "--vault", "19")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Applied userscrub to vault 19")
	assert.Contains(t, out, "  decorrelation review WHERE contact_id=19\n")
	assert.Contains(t, out, "  removal contact_info WHERE contact_id=19\n")

	out, err = execute(t, "-c", cfg, "ledger", "--vault", "19")
	require.NoError(t, err)
	assert.Contains(t, out, "vault=19  userscrub")

	out, err = execute(t, "-c", cfg, "--format", "json", "ledger", "--vault", "19")
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID string `json:"disguise_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	id := resp.Data[0].ID

	out, err = execute(t, "-c", cfg, "ledger", id)
	require.NoError(t, err)
	assert.Contains(t, out, "policy:     userscrub")
	assert.Contains(t, out, "functions:  3")

	out, err = execute(t, "-c", cfg, "recover", "userscrub", "--vault", "19")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Recovered disguise "+id+" (3 row(s) restored)")

	out, err = execute(t, "-c", cfg, "recover", "userscrub", "--vault", "19")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]: recover failed")

	out, err = execute(t, "-c", cfg, "ledger", "--vault", "19")
	require.NoError(t, err)
	assert.Contains(t, out, "No disguises recorded.")
}

func TestApply_InlineFile(t *testing.T) {
	cfg := writeConfig(t)
	generateVault19(t, cfg)

	file := filepath.Join(t.TempDir(), "anonymize.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`- kind: Modification
  table: contact_info
  predicate: contact_id=19
  changes: name='anonymous'
`), 0o644))

	out, err := execute(t, "-c", cfg, "apply", "anonymize", "--vault", "19", "--file", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "  modification contact_info WHERE contact_id=19 SET name='anonymous'\n")

	out, err = execute(t, "-c", cfg, "recover", "anonymize", "--vault", "19")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(1 row(s) restored)")
}

func TestApply_Errors(t *testing.T) {
	cfg := writeConfig(t)
	generateVault19(t, cfg)

	t.Run("unknown vault", func(t *testing.T) {
		out, err := execute(t, "-c", cfg, "apply", "userscrub", "--vault", "404")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [NOT_FOUND]")
	})

	t.Run("missing file", func(t *testing.T) {
		out, err := execute(t, "-c", cfg, "apply", "anonymize", "--vault", "19", "--file", "nope.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "failed to read transformations")
	})

	t.Run("inline on custom policy", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "t.yaml")
		require.NoError(t, os.WriteFile(file, []byte("- {kind: removal, table: review, predicate: review_id=9}\n"), 0o644))
		out, err := execute(t, "-c", cfg, "apply", "purge", "--vault", "19", "--file", file)
		require.Error(t, err)
		assert.Contains(t, out, "Error [INVALID_INPUT]")
	})

	t.Run("vault flag required", func(t *testing.T) {
		_, err := execute(t, "-c", cfg, "apply", "userscrub")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "vault" not set`)
	})
}

func TestPlan_Expiration(t *testing.T) {
	cfg := writeConfig(t)
	generateVault19(t, cfg)

	out, err := execute(t, "-c", cfg, "plan", "expiration", "--vault", "19")
	require.NoError(t, err, out)
	assert.Contains(t, out, "expiration for vault 19: 4 transformation(s)")
	assert.Contains(t, out, "  removal contact_info WHERE contact_id=21\n")

	// Planning changes nothing.
	out, err = execute(t, "-c", cfg, "ledger")
	require.NoError(t, err)
	assert.Contains(t, out, "No disguises recorded.")
}

func TestClearVault(t *testing.T) {
	cfg := writeConfig(t)
	generateVault19(t, cfg)

	_, err := execute(t, "-c", cfg, "apply", "userscrub", "--vault", "19")
	require.NoError(t, err)

	out, err := execute(t, "-c", cfg, "clear-vault", "--age", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Cleared 0 disguise(s), purged 0 row(s)")

	out, err = execute(t, "-c", cfg, "clear-vault", "--name", "userscrub", "--vault", "19")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Cleared 1 disguise(s), purged 2 row(s)")

	out, err = execute(t, "-c", cfg, "recover", "userscrub", "--vault", "19")
	require.Error(t, err)
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestClearVault_AgeBounds(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "-c", cfg, "clear-vault", "--age", "0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ Cleared 0 disguise(s), purged 0 row(s)")

	out, err = execute(t, "-c", cfg, "clear-vault", "--age", "585")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INVALID_INPUT]")
}

func TestClearVault_NoCriterion(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "-c", cfg, "clear-vault")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [INVALID_INPUT]")
}

func TestClearVault_FlagConflicts(t *testing.T) {
	cfg := writeConfig(t)

	_, err := execute(t, "-c", cfg, "clear-vault", "--age", "1", "--name", "userscrub", "--vault", "19")
	require.Error(t, err)

	_, err = execute(t, "-c", cfg, "clear-vault", "--name", "userscrub")
	require.Error(t, err)
}
