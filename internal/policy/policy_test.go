package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/harvest/pkg/schema"
)

func TestDefaultRuleOverScoreGrid(t *testing.T) {
	rule, err := Compile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRule, rule.Expression())

	// Exhaustive over [0,10] step 0.5 with the derived risk formula:
	// act iff score >= 6.0.
	for i := 0; i <= 20; i++ {
		score := float64(i) * 0.5
		risk := 10.0 - score
		if risk < 1.0 {
			risk = 1.0
		}

		decision, err := rule.Decide("item.test", score, risk)
		require.NoError(t, err)

		want := schema.DecisionSkip
		if score >= 6.0 {
			want = schema.DecisionAct
		}
		assert.Equal(t, want, decision, "score=%v risk=%v", score, risk)
	}
}

func TestCustomRule(t *testing.T) {
	rule, err := Compile(`score >= 8.0 && item != "banned.test"`)
	require.NoError(t, err)

	decision, err := rule.Decide("ok.test", 9.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, schema.DecisionAct, decision)

	decision, err = rule.Decide("banned.test", 9.0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, schema.DecisionSkip, decision)
}

func TestCompileError(t *testing.T) {
	_, err := Compile("score >=")
	require.Error(t, err)

	var herr *schema.HarvestError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, schema.ErrCodeValidation, herr.Code)
}

func TestNonBooleanRuleFailsAtDecide(t *testing.T) {
	// With undefined variables allowed the compiler cannot prove the result
	// type, so a non-boolean rule only surfaces at evaluation. It must be
	// an error, never a silent skip.
	for _, expression := range []string{"undefined_field", "score + risk", `"yes"`} {
		rule, err := Compile(expression)
		require.NoError(t, err, "rule %q", expression)

		decision, err := rule.Decide("item.test", 5.0, 5.0)
		require.Error(t, err, "rule %q", expression)
		assert.Equal(t, schema.DecisionUndetermined, decision)

		var herr *schema.HarvestError
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, schema.ErrCodeExecution, herr.Code)
	}
}
