package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

func newGuardEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("entity", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

func compileGuard(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("when: compile: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("when: expression must be boolean, got %s", t)
	}
	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("when: program: %w", err)
	}
	return prg, nil
}

// guardHolds evaluates the rule's CEL guard. Evaluation errors, such as a
// reference to an absent field, count as false.
func (e *Engine) guardHolds(cr *compiledRule, ent Entity) bool {
	if cr.guard == nil {
		return true
	}
	out, _, err := cr.guard.Eval(map[string]any{"entity": celInput(ent)})
	if err != nil {
		e.logger.Debug("rule guard did not evaluate",
			"rule_id", cr.rule.ID,
			"entity_id", ent.ID,
			"error", err,
		)
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}
