package decision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autarch-dev/autarch/pkg/types"
)

// ConditionEvaluator evaluates single conditions and the compound
// AND/OR/NOT expression a rule's condition list forms. Every condition
// is always evaluated, never short-circuited, because the decision
// trace records each result.
type ConditionEvaluator struct {
	resolver *FieldResolver
}

// NewConditionEvaluator creates an evaluator over the given resolver.
func NewConditionEvaluator(resolver *FieldResolver) *ConditionEvaluator {
	return &ConditionEvaluator{resolver: resolver}
}

// EvaluateCondition resolves the condition's field and applies its
// operator, recording the outcome for the trace.
func (e *ConditionEvaluator) EvaluateCondition(cond types.Condition, ctx *Context) types.ConditionResult {
	actual, stale := e.resolver.Resolve(cond.Field, ctx)
	return types.ConditionResult{
		Field:         cond.Field,
		Operator:      cond.Operator,
		Threshold:     cond.Threshold,
		Actual:        actual,
		Passed:        compare(cond.Operator, actual, cond.Threshold),
		PeerDataStale: stale,
	}
}

// EvaluateAll evaluates a rule's full condition list and combines the
// results: contiguous OR conditions form OR groups (any passes), each
// NOT condition is its own inverted group, and everything else forms
// the AND group. The rule matches when the AND group and every OR and
// NOT group pass.
func (e *ConditionEvaluator) EvaluateAll(conds []types.Condition, ctx *Context) (bool, []types.ConditionResult) {
	results := make([]types.ConditionResult, len(conds))
	for i, c := range conds {
		results[i] = e.EvaluateCondition(c, ctx)
	}

	andPass := true
	notPass := true
	orGroupsPass := true

	inOrRun := false
	orRunPass := false
	closeOrRun := func() {
		if inOrRun {
			orGroupsPass = orGroupsPass && orRunPass
			inOrRun = false
			orRunPass = false
		}
	}

	for i, c := range conds {
		logic := c.Logic
		if logic == "" {
			logic = types.LogicAnd
		}
		switch logic {
		case types.LogicOr:
			inOrRun = true
			orRunPass = orRunPass || results[i].Passed
		case types.LogicNot:
			closeOrRun()
			notPass = notPass && !results[i].Passed
		default:
			closeOrRun()
			andPass = andPass && results[i].Passed
		}
	}
	closeOrRun()

	return andPass && orGroupsPass && notPass, results
}

// compare applies the operator. Ordering operators coerce both sides to
// numbers and fail on non-numeric operands; equality falls back to
// case-insensitive string comparison when either side is not numeric.
func compare(op types.Operator, actual, threshold any) bool {
	af, aok := toFloat(actual)
	tf, tok := toFloat(threshold)
	numeric := aok && tok

	switch op {
	case types.OpGreater:
		return numeric && af > tf
	case types.OpLess:
		return numeric && af < tf
	case types.OpGreaterEqual:
		return numeric && af >= tf
	case types.OpLessEqual:
		return numeric && af <= tf
	case types.OpEqual:
		if numeric {
			return af == tf
		}
		return strings.EqualFold(toString(actual), toString(threshold))
	case types.OpNotEqual:
		if numeric {
			return af != tf
		}
		return !strings.EqualFold(toString(actual), toString(threshold))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
