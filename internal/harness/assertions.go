package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/roach88/fulfil/internal/store"
)

// sqlName matches the table and column names a final_state assertion may
// use. Names are spliced into the query, values are bound.
var sqlName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // attached for trace assertions
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s assertion failed\n", e.Type)
	fmt.Fprintf(&b, "  want: %s\n", e.Expected)
	fmt.Fprintf(&b, "  got:  %s\n", e.Actual)
	if len(e.Trace) == 0 {
		return b.String()
	}
	b.WriteString("trace:\n")
	for _, ev := range e.Trace {
		if ev.Type == EventCompletion {
			fmt.Fprintf(&b, "  #%d   -> %s\n", ev.Seq, ev.OutputCase)
			continue
		}
		fmt.Fprintf(&b, "  #%d %s %v\n", ev.Seq, ev.Action, ev.Args)
	}
	return b.String()
}

// AssertionContext gives final_state assertions access to the scenario's
// store.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions checks every assertion against the result and returns
// one message per failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

type traceCheck func(trace []TraceEvent, a Assertion) error

var traceChecks = map[string]traceCheck{
	AssertTraceContains: assertTraceContains,
	AssertTraceOrder:    assertTraceOrder,
	AssertTraceCount:    assertTraceCount,
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if check, ok := traceChecks[a.Type]; ok {
		return check(trace, a)
	}
	if a.Type != AssertFinalState {
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("final_state needs a store")
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return assertFinalState(ctx, actx.Store, a)
}

// named reports whether ev is the invocation or notification called action.
func named(ev TraceEvent, action string) bool {
	return ev.Type != EventCompletion && ev.Action == action
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	want := normalizeMap(a.Args)
	for _, ev := range trace {
		if named(ev, a.Action) && matchArgs(ev.Args, want) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with %v", a.Action, a.Args),
		Actual:   "no such event",
		Trace:    trace,
	}
}

// assertTraceOrder finds the actions one after the other. Other events may
// sit between them and an action may be listed more than once.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for i, action := range a.Actions {
		at := -1
		for j := next; j < len(trace); j++ {
			if named(trace[j], action) {
				at = j
				break
			}
		}
		if at >= 0 {
			next = at + 1
			continue
		}

		got := action + " never happened"
		if i > 0 {
			got = fmt.Sprintf("no %s after %s", action, a.Actions[i-1])
		}
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: strings.Join(a.Actions, " -> "),
			Actual:   got,
			Trace:    trace,
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if named(ev, a.Action) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %s", a.Count, a.Action),
		Actual:   fmt.Sprintf("%d x %s", n, a.Action),
		Trace:    trace,
	}
}

// assertFinalState reads the expected columns of the single row selected by
// Where and compares them with Expect.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if !sqlName.MatchString(a.Table) {
		return fmt.Errorf("table %q is not a plain SQL name", a.Table)
	}
	columns := sortedKeys(a.Expect)
	for _, c := range append(sortedKeys(a.Where), columns...) {
		if !sqlName.MatchString(c) {
			return fmt.Errorf("column %q is not a plain SQL name", c)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), a.Table)
	filter, args := whereClause(a.Where)
	if filter != "" {
		query += " WHERE " + filter
	}
	selection := fmt.Sprintf("%s where %s", a.Table, describeWhere(a.Where))

	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return &AssertionError{Type: AssertFinalState, Expected: "a readable " + selection, Actual: err.Error()}
	}
	defer rows.Close()

	var row []any
	n := 0
	for rows.Next() {
		n++
		if n > 1 {
			break
		}
		row = make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", a.Table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", a.Table, err)
	}
	if n != 1 {
		got := "no row"
		if n > 1 {
			got = "several rows"
		}
		return &AssertionError{Type: AssertFinalState, Expected: "one row in " + selection, Actual: got}
	}

	for i, c := range columns {
		if !stateValuesEqual(a.Expect[c], row[i]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Table, c, a.Expect[c]),
				Actual:   fmt.Sprintf("%s.%s = %v (%T)", a.Table, c, row[i], row[i]),
			}
		}
	}
	return nil
}

// whereClause renders where as bound equality tests, columns sorted.
func whereClause(where map[string]any) (string, []any) {
	keys := sortedKeys(where)
	tests := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		tests[i] = k + " = ?"
		args[i] = sqlArg(where[k])
	}
	return strings.Join(tests, " AND "), args
}

// sqlArg turns a YAML scalar into a driver value. Whole floats bind as
// integers so that JSON-normalized numbers match INTEGER columns.
func sqlArg(v any) any {
	switch x := v.(type) {
	case string, int, int64, bool:
		return x
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	}
	return fmt.Sprint(v)
}

func describeWhere(where map[string]any) string {
	if len(where) == 0 {
		return "true"
	}
	keys := sortedKeys(where)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, where[k])
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares an expected YAML value with a scanned column.
// SQLite hands back TEXT as []byte or string, INTEGER as int64 and
// TIMESTAMP columns as time.Time; timestamps are written as RFC 3339.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch want := expected.(type) {
	case string:
		if t, ok := actual.(time.Time); ok {
			parsed, err := time.Parse(time.RFC3339, want)
			return err == nil && parsed.Equal(t)
		}
		got, ok := actual.(string)
		return ok && got == want
	case int:
		return intEqual(int64(want), actual)
	case int64:
		return intEqual(want, actual)
	case float64:
		if got, ok := actual.(float64); ok {
			return got == want
		}
		return want == float64(int64(want)) && intEqual(int64(want), actual)
	case bool:
		switch got := actual.(type) {
		case bool:
			return got == want
		case int64:
			return (got != 0) == want
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

func intEqual(want int64, actual any) bool {
	switch got := actual.(type) {
	case int64:
		return got == want
	case int:
		return int64(got) == want
	}
	return false
}

// matchArgs reports whether actual is a map holding every key of expected.
// Nested maps match as subsets too.
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	m, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for k, want := range expected {
		got, ok := m[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(actual, expected any) bool {
	if sub, ok := expected.(map[string]any); ok {
		return matchArgs(actual, sub)
	}
	return reflect.DeepEqual(actual, expected)
}
