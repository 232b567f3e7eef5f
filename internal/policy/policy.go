package policy

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/harvest/pkg/schema"
)

// DefaultRule is the shipped decision policy. The risk clause is redundant
// with the score threshold under the current risk formula; it is kept as
// headroom for an independent risk signal.
const DefaultRule = "score >= 6.0 && risk <= 5.0"

// Rule is a compiled act/skip decision policy evaluated once per item
// against the environment {item, score, risk}.
type Rule struct {
	expression string
	program    *vm.Program
}

// Compile validates and compiles a decision rule expression.
func Compile(expression string) (*Rule, error) {
	if expression == "" {
		expression = DefaultRule
	}
	// No AsBool: it would coerce non-boolean results (an undefined field
	// evaluates to nil) to false and silently skip every item. Decide
	// checks the raw output type instead.
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decision rule compile error in %q: %s", expression, err.Error()).WithCause(err)
	}
	return &Rule{expression: expression, program: program}, nil
}

// Expression returns the source text of the rule.
func (r *Rule) Expression() string { return r.expression }

// Decide evaluates the rule for one item. A rule that fails to evaluate is
// an operator configuration mistake and is fatal to the run.
func (r *Rule) Decide(item string, score, risk float64) (schema.Decision, error) {
	out, err := vm.Run(r.program, map[string]any{
		"item":  item,
		"score": score,
		"risk":  risk,
	})
	if err != nil {
		return schema.DecisionUndetermined, schema.NewErrorf(schema.ErrCodeExecution,
			"decision rule evaluation failed for %q: %s", r.expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"item": item, "score": score, "risk": risk})
	}
	act, ok := out.(bool)
	if !ok {
		return schema.DecisionUndetermined, schema.NewErrorf(schema.ErrCodeExecution,
			"decision rule %q produced non-boolean %T", r.expression, out)
	}
	if act {
		return schema.DecisionAct, nil
	}
	return schema.DecisionSkip, nil
}
