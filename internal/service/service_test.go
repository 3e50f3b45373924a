package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1001054/Data-Disguise/internal/compiler"
	"github.com/1001054/Data-Disguise/internal/distlock"
	"github.com/1001054/Data-Disguise/internal/engine"
	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/target"
	"github.com/1001054/Data-Disguise/internal/testutil"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

const policyFile = `package policies

subject: string

policy: userscrub: transformations: [
	{kind: "decorrelation", table: "review", predicate: "contact_id=\(subject)", foreign_key: "contact_id"},
	{kind: "removal", table: "contact_info", predicate: "contact_id=\(subject)"},
]

policy: anonymize: transformations: [
	{kind: "modification", table: "contact_info", predicate: "contact_id=\(subject)", changes: "name='anonymous', email=NULL"},
]

policy: expiration: {
	kind:      "expiration"
	age_years: 5
	transformations: [
		{kind: "decorrelation", table: "review", foreign_key: "contact_id"},
		{kind: "removal", table: "contact_info", predicate: "last_login"},
	]
}
`

type fixture struct {
	svc    *Service
	target *target.SQLStore
	clock  *engine.FixedClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.cue"), []byte(policyFile), 0o644))

	s := testutil.OpenReviewTarget(t)
	v := testutil.OpenVault(t)
	clock := engine.NewFixedClock(testNow)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	e := engine.New(s, v, engine.WithClock(clock), engine.WithLogger(logger))

	require.NoError(t, v.CreateVault(context.Background(), ir.VaultIdentity{
		VaultID:     "19",
		Email:       "bea@example.com",
		Placeholder: ir.PlaceholderLocator{Table: "contact_info", Predicate: "contact_id=0"},
	}))

	opts = append([]Option{WithPolicySource(compiler.Source{Dir: dir}), WithLogger(logger)}, opts...)
	return &fixture{svc: New(e, opts...), target: s, clock: clock}
}

func scrubRequirement() Requirement {
	return Requirement{
		DisguiseName: "UserScrub",
		VaultID:      "19",
		Transformations: []ir.Transformation{
			{Kind: ir.Decorrelation, Table: "review", Predicate: "contact_id=19", ForeignKey: "contact_id"},
			{Kind: ir.Removal, Table: "contact_info", Predicate: "contact_id=19"},
		},
	}
}

func TestScrubUser_AndRecover(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := testutil.Dump(t, f.target, "review")

	res, err := f.svc.ScrubUser(ctx, scrubRequirement())
	require.NoError(t, err)
	assert.Equal(t, "userscrub", res.Disguise.PolicyName)
	assert.Equal(t, []string{"contact_id=0", ""}, res.Changes)
	assert.Equal(t, 0, testutil.Count(t, f.target, "contact_info", "contact_id=19"))

	rec, err := f.svc.Recover(ctx, Requirement{DisguiseName: "userscrub", VaultID: "19"})
	require.NoError(t, err)
	assert.Equal(t, res.Disguise.ID, rec.DisguiseID)
	assert.Equal(t, before, testutil.Dump(t, f.target, "review"))
}

func TestScrubUser_NameMismatch(t *testing.T) {
	f := newFixture(t)
	req := scrubRequirement()
	req.DisguiseName = "anonymize"

	_, err := f.svc.ScrubUser(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ir.IsInvalidInput(err))
}

func TestScrubUser_UnknownVault(t *testing.T) {
	f := newFixture(t)
	req := scrubRequirement()
	req.VaultID = "404"

	_, err := f.svc.ScrubUser(context.Background(), req)
	require.Error(t, err)
	assert.True(t, ir.IsNotFound(err))
	assert.Equal(t, 1, testutil.Count(t, f.target, "contact_info", "contact_id=19"))
}

func TestAnonymize_FromPolicyDefinition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Anonymize(ctx, Requirement{DisguiseName: "anonymize", VaultID: "19"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name='anonymous', email=NULL"}, res.Changes)
	assert.Equal(t, 1, testutil.Count(t, f.target, "contact_info", "contact_id=19 AND name='anonymous'"))
}

func TestExpiration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Expiration(ctx, Requirement{DisguiseName: "expiration", VaultID: "19"})
	require.NoError(t, err)
	assert.Len(t, res.Transformations, 3)
	assert.Equal(t, 0, testutil.Count(t, f.target, "contact_info", "contact_id IN (19, 21)"))

	// An explicit age overrides the definition; nothing is older than 50 years.
	age := 50
	_, err = f.svc.Expiration(ctx, Requirement{DisguiseName: "expiration", VaultID: "19", DeleteAge: &age})
	require.Error(t, err)
	assert.True(t, ir.IsNoMatch(err))
}

func TestExpiration_InlineTemplatesNeedAge(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Expiration(context.Background(), Requirement{
		DisguiseName: "expiration",
		VaultID:      "19",
		Transformations: []ir.Transformation{
			{Kind: ir.Removal, Table: "contact_info", Predicate: "last_login"},
		},
	})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidInput(err))
}

func TestApplyAndPlan_Named(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	planned, err := f.svc.Plan(ctx, "expiration", "19", nil)
	require.NoError(t, err)
	assert.Len(t, planned, 4)

	planned, err = f.svc.Plan(ctx, "userscrub", "19", nil)
	require.NoError(t, err)
	assert.Equal(t, "contact_id=19", planned[1].Predicate)

	res, err := f.svc.Apply(ctx, "userscrub", "19", nil)
	require.NoError(t, err)
	assert.Len(t, res.Disguise.Functions, 3)

	_, err = f.svc.Apply(ctx, "shred", "19", nil)
	assert.True(t, ir.IsNotFound(err))
}

func TestApplyNamed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.ApplyNamed(ctx, Requirement{DisguiseName: "Anonymize", VaultID: "19"})
	require.NoError(t, err)
	assert.Equal(t, "anonymize", res.Disguise.PolicyName)

	res, err = f.svc.ApplyNamed(ctx, scrubRequirement())
	require.NoError(t, err)
	assert.Equal(t, "userscrub", res.Disguise.PolicyName)

	_, err = f.svc.ApplyNamed(ctx, Requirement{DisguiseName: "shred", VaultID: "19"})
	assert.True(t, ir.IsNotFound(err))

	req := scrubRequirement()
	req.DisguiseName = "shred"
	_, err = f.svc.ApplyNamed(ctx, req)
	assert.True(t, ir.IsInvalidInput(err))
}

func TestClearVault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ScrubUser(ctx, scrubRequirement())
	require.NoError(t, err)

	res, err := f.svc.ClearVault(ctx, Requirement{DisguiseName: "clearvault", VaultID: "19", DeleteName: "UserScrub"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Disguises)
	assert.Equal(t, int64(2), res.PurgedRows)

	list, err := f.svc.Disguises(ctx, "19")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClearVault_ByAge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ScrubUser(ctx, scrubRequirement())
	require.NoError(t, err)

	one := 1
	res, err := f.svc.ClearVault(ctx, Requirement{DisguiseName: "clearvault", DeleteAge: &one})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Disguises)

	f.clock.Advance(YearsToDuration(1) + time.Hour)
	res, err = f.svc.ClearVault(ctx, Requirement{DisguiseName: "clearvault", DeleteAge: &one})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Disguises)
}

func TestClearVault_AgeZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ScrubUser(ctx, scrubRequirement())
	require.NoError(t, err)

	zero := 0
	res, err := f.svc.ClearVault(ctx, Requirement{DisguiseName: "clearvault", DeleteAge: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Disguises)

	f.clock.Advance(time.Second)
	res, err = f.svc.ClearVault(ctx, Requirement{DisguiseName: "clearvault", DeleteAge: &zero})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Disguises)
	assert.Equal(t, int64(2), res.PurgedRows)
}

func TestExpiration_AgeBeyondBound(t *testing.T) {
	f := newFixture(t)
	huge := 585

	_, err := f.svc.Expiration(context.Background(), Requirement{DisguiseName: "expiration", VaultID: "19", DeleteAge: &huge})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidInput(err))
	assert.Equal(t, 4, testutil.Count(t, f.target, "contact_info", "1=1"))
}

func TestClearVault_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	age := 1
	neg := -1
	huge := 585

	tests := []struct {
		name string
		req  Requirement
	}{
		{"wrong name", Requirement{DisguiseName: "recover", DeleteAge: &age}},
		{"both forms", Requirement{DisguiseName: "clearvault", DeleteAge: &age, VaultID: "19"}},
		{"neither form", Requirement{DisguiseName: "clearvault"}},
		{"name without vault", Requirement{DisguiseName: "clearvault", DeleteName: "userscrub"}},
		{"negative age", Requirement{DisguiseName: "clearvault", DeleteAge: &neg}},
		{"age beyond bound", Requirement{DisguiseName: "clearvault", DeleteAge: &huge}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ClearVault(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, ir.IsInvalidInput(err))
		})
	}
}

func TestRecover_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Recover(context.Background(), Requirement{VaultID: "19"})
	assert.True(t, ir.IsInvalidInput(err))

	_, err = f.svc.Recover(context.Background(), Requirement{DisguiseName: "userscrub", VaultID: "19"})
	assert.True(t, ir.IsNotFound(err))
}

func TestGenerateVault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v, err := f.svc.GenerateVault(ctx, GenerateVault{
		VaultID: "20",
		Email:   "cal@example.com",
		GeneratePlaceholder: GeneratePlaceholder{
			Table:          "contact_info",
			PrimaryKeyName: "contact_id",
			Fields:         []string{"name"},
			FieldValues:    []string{"placeholder"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "contact_info", v.Placeholder.Table)

	got, err := f.svc.Vault(ctx, "20")
	require.NoError(t, err)
	assert.Equal(t, *v, *got)

	got, err = f.svc.VaultByEmail(ctx, "cal@example.com")
	require.NoError(t, err)
	assert.Equal(t, "20", got.VaultID)
}

func TestLocked_RefusesConcurrentOperation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newFixture(t, WithLocks(distlock.NewFactory(client, nil, time.Minute)))
	ctx := context.Background()

	holder := distlock.NewRedisLock(client, "disguise:19", time.Minute)
	ok, err := holder.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.ScrubUser(ctx, scrubRequirement())
	require.Error(t, err)
	assert.True(t, ir.IsInvalidInput(err))
	assert.Equal(t, 1, testutil.Count(t, f.target, "contact_info", "contact_id=19"))

	require.NoError(t, holder.Release(ctx))
	_, err = f.svc.ScrubUser(ctx, scrubRequirement())
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:disguise:19"))
}

func TestYearsToDuration(t *testing.T) {
	assert.Equal(t, 365*24*time.Hour, YearsToDuration(1))
	assert.Equal(t, time.Duration(0), YearsToDuration(0))
}
