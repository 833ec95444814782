package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagExpression(t *testing.T) {
	expr, err := ParseFlagExpression("ssl static? ( !dynamic ) || ( gtk qt ) ^^ ( x86 arm )")
	require.NoError(t, err)
	all, ok := expr.(AllOf)
	require.True(t, ok)
	assert.Len(t, all.Exprs, 4)
}

func TestEvaluateIfVacuousTruth(t *testing.T) {
	expr, err := ParseFlagExpression("static? ( ssl )")
	require.NoError(t, err)
	assert.True(t, expr.Evaluate(map[string]bool{"static": false}))
	assert.False(t, expr.Evaluate(map[string]bool{"static": true, "ssl": false}))
	assert.True(t, expr.Evaluate(map[string]bool{"static": true, "ssl": true}))
}

func TestEvaluateExactlyOneOf(t *testing.T) {
	expr, err := ParseFlagExpression("^^ ( gtk qt )")
	require.NoError(t, err)
	assert.False(t, expr.Evaluate(map[string]bool{}))
	assert.True(t, expr.Evaluate(map[string]bool{"gtk": true}))
	assert.False(t, expr.Evaluate(map[string]bool{"gtk": true, "qt": true}))
}

// TestRepairFlagsIdempotent is P4: re-applying repair to an already-valid
// vector must be a no-op.
func TestRepairFlagsIdempotent(t *testing.T) {
	expr, err := ParseFlagExpression("^^ ( gtk qt )")
	require.NoError(t, err)
	available := map[string]bool{"gtk": true, "qt": true}

	repaired, ok := RepairFlags(expr, map[string]bool{}, available, 4)
	require.True(t, ok)
	assert.True(t, expr.Evaluate(repaired))

	again, ok := RepairFlags(expr, repaired, available, 4)
	require.True(t, ok)
	assert.Equal(t, repaired, again)
}

func TestRepairFlagsNeverEnablesUnavailable(t *testing.T) {
	expr, err := ParseFlagExpression("gtk")
	require.NoError(t, err)
	_, ok := RepairFlags(expr, map[string]bool{}, map[string]bool{}, 4)
	assert.False(t, ok)
}

func TestValidateFlagsDisablesAllButFirst(t *testing.T) {
	expr, err := ParseFlagExpression("?? ( gtk qt sdl )")
	require.NoError(t, err)
	v := ValidateFlags(expr, map[string]bool{"gtk": true, "qt": true, "sdl": true}, map[string]bool{"gtk": true, "qt": true, "sdl": true})
	assert.False(t, v.Satisfied)
	assert.ElementsMatch(t, []string{"qt", "sdl"}, v.SuggestDisable)
}
