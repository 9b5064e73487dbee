package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fulfil/internal/domain"
)

// operatorsByType lists the operators each field type supports.
var operatorsByType = map[fieldType][]domain.Operator{
	typeString: {domain.OpEquals, domain.OpNotEquals, domain.OpContains, domain.OpNotContains},
	typeNumber: {domain.OpEquals, domain.OpNotEquals, domain.OpGreaterThan, domain.OpLessThan},
	typeList:   {domain.OpContains, domain.OpNotContains},
}

// condition is a compiled domain.Condition. value is a decimal.Decimal for
// number fields and an NFC-normalised string otherwise.
type condition struct {
	field field
	op    domain.Operator
	value any
}

func compileCondition(ruleID string, kind Kind, c domain.Condition) (condition, error) {
	f, ok := lookupField(kind, c.Field)
	if !ok {
		return condition{}, domain.NewUnknownFieldError(ruleID, c.Field, string(kind))
	}

	supported := false
	for _, op := range operatorsByType[f.typ] {
		if op == c.Operator {
			supported = true
			break
		}
	}
	if !supported {
		return condition{}, domain.NewInvalidRuleError(ruleID,
			fmt.Sprintf("operator %q does not apply to %s field %q", c.Operator, f.typ, c.Field))
	}

	if c.Value == nil {
		return condition{}, domain.NewInvalidRuleError(ruleID,
			fmt.Sprintf("condition on %q has no value", c.Field))
	}

	compiled := condition{field: f, op: c.Operator}
	if f.typ == typeNumber {
		d, ok := toDecimal(c.Value)
		if !ok {
			return condition{}, domain.NewInvalidRuleError(ruleID,
				fmt.Sprintf("condition on %q needs a numeric value, got %v", c.Field, c.Value))
		}
		compiled.value = d
	} else {
		s, ok := toString(c.Value)
		if !ok {
			return condition{}, domain.NewInvalidRuleError(ruleID,
				fmt.Sprintf("condition on %q needs a scalar value, got %v", c.Field, c.Value))
		}
		compiled.value = s
	}
	return compiled, nil
}

// holds evaluates the condition against e.
func (c condition) holds(e Entity) bool {
	v, ok := c.field.get(e)
	if !ok || v == nil {
		return c.op == domain.OpNotEquals || c.op == domain.OpNotContains
	}

	switch c.op {
	case domain.OpEquals:
		return c.equal(v)
	case domain.OpNotEquals:
		return !c.equal(v)
	case domain.OpGreaterThan:
		return c.compare(v) > 0
	case domain.OpLessThan:
		return c.compare(v) < 0
	case domain.OpContains:
		return c.contains(v)
	case domain.OpNotContains:
		return !c.contains(v)
	}
	return false
}

func (c condition) equal(v any) bool {
	if want, ok := c.value.(decimal.Decimal); ok {
		got, ok := toDecimal(v)
		return ok && got.Equal(want)
	}
	got, ok := toString(v)
	return ok && got == c.value
}

// compare returns the sign of v - value. Values that are not numbers
// compare as equal so neither greater_than nor less_than holds.
func (c condition) compare(v any) int {
	want, ok := c.value.(decimal.Decimal)
	if !ok {
		return 0
	}
	got, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return got.Cmp(want)
}

func (c condition) contains(v any) bool {
	want, _ := c.value.(string)
	switch got := v.(type) {
	case []string:
		for _, item := range got {
			if norm.NFC.String(item) == want {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(norm.NFC.String(got), want)
	}
	return false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// toString renders scalars as NFC-normalised strings.
func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return norm.NFC.String(s), true
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(s), true
	case decimal.Decimal:
		return s.String(), true
	}
	return "", false
}
