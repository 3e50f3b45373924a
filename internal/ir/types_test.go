package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransformationKind(t *testing.T) {
	tests := []struct {
		in      string
		want    TransformationKind
		wantErr bool
	}{
		{"removal", Removal, false},
		{"Modification", Modification, false},
		{" DECORRELATION ", Decorrelation, false},
		{"truncate", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransformationKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransformationKind_UnmarshalJSON(t *testing.T) {
	var tr Transformation
	require.NoError(t, json.Unmarshal([]byte(`{"transform_type":"Decorrelation","table_name":"review"}`), &tr))
	assert.Equal(t, Decorrelation, tr.Kind)

	err := json.Unmarshal([]byte(`{"transform_type":"truncate"}`), &tr)
	require.Error(t, err)
}

func TestTransformationValidate(t *testing.T) {
	ok := Transformation{Kind: Modification, Table: "users", Predicate: "id=1", Changes: "name='x'"}
	assert.NoError(t, ok.Validate())

	missingChanges := Transformation{Kind: Modification, Table: "users", Predicate: "id=1"}
	assert.True(t, IsInvalidInput(missingChanges.Validate()))

	missingTable := Transformation{Kind: Removal, Predicate: "id=1"}
	assert.True(t, IsInvalidInput(missingTable.Validate()))

	missingPredicate := Transformation{Kind: Removal, Table: "users"}
	assert.True(t, IsInvalidInput(missingPredicate.Validate()))

	badKind := Transformation{Kind: "drop", Table: "users", Predicate: "id=1"}
	assert.True(t, IsInvalidInput(badKind.Validate()))
}

func TestTargetPredicate(t *testing.T) {
	target := Target{
		Fields: []Field{
			{Name: "email", Type: Text, Value: "bea@example.com"},
			{Name: "contact_id", Type: Integer, Value: "19"},
		},
		PrimaryKey: 1,
	}
	pred, err := target.Predicate()
	require.NoError(t, err)
	assert.Equal(t, "contact_id=19", pred)

	f, ok := target.Field("email")
	require.True(t, ok)
	assert.Equal(t, "bea@example.com", f.Value)

	_, ok = target.Field("missing")
	assert.False(t, ok)

	_, err = Target{}.Predicate()
	assert.True(t, IsInvalidInput(err))
	_, err = Target{Fields: target.Fields, PrimaryKey: 2}.PrimaryKeyField()
	assert.True(t, IsInvalidInput(err))
}

func TestRetentionCriterionValidate(t *testing.T) {
	assert.NoError(t, RetentionCriterion{ByAge: true, MaxAge: time.Hour}.Validate())
	assert.NoError(t, RetentionCriterion{ByAge: true}.Validate())
	assert.NoError(t, RetentionCriterion{VaultID: "19", PolicyName: "userscrub"}.Validate())

	assert.True(t, IsInvalidInput(RetentionCriterion{}.Validate()))
	assert.True(t, IsInvalidInput(RetentionCriterion{VaultID: "19"}.Validate()))
	assert.True(t, IsInvalidInput(RetentionCriterion{ByAge: true, MaxAge: time.Hour, VaultID: "19", PolicyName: "userscrub"}.Validate()))
	assert.True(t, IsInvalidInput(RetentionCriterion{ByAge: true, MaxAge: -time.Hour}.Validate()))
}

func TestCheckAgeYears(t *testing.T) {
	assert.NoError(t, CheckAgeYears(0))
	assert.NoError(t, CheckAgeYears(MaxAgeYears))
	assert.True(t, IsInvalidInput(CheckAgeYears(-1)))
	assert.True(t, IsInvalidInput(CheckAgeYears(MaxAgeYears+1)))
	assert.True(t, IsInvalidInput(CheckAgeYears(585)))
}

func TestPlaceholderAssignment(t *testing.T) {
	p := PlaceholderLocator{Table: "contact_info", Predicate: "contact_id=0"}
	assert.Equal(t, "contact_id=0", p.Assignment())
}
