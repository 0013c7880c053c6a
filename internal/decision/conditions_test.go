package decision

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/autarch-dev/autarch/pkg/types"
)

func newTestEvaluator() *ConditionEvaluator {
	return NewConditionEvaluator(NewFieldResolver(zerolog.Nop()))
}

func TestCompareNumericOperators(t *testing.T) {
	assert.True(t, compare(types.OpGreater, 5.0, 3.0))
	assert.False(t, compare(types.OpGreater, 3.0, 3.0))
	assert.True(t, compare(types.OpGreaterEqual, 3.0, 3.0))
	assert.True(t, compare(types.OpLess, 2.0, 3.0))
	assert.True(t, compare(types.OpLessEqual, 3.0, 3.0))
	assert.True(t, compare(types.OpEqual, 3.0, 3.0))
	assert.True(t, compare(types.OpNotEqual, 3.0, 4.0))
}

func TestCompareCoercesNumericStrings(t *testing.T) {
	assert.True(t, compare(types.OpGreater, "5", 3.0))
	assert.True(t, compare(types.OpEqual, "3", 3.0))
}

func TestCompareNonNumericOrderingFails(t *testing.T) {
	assert.False(t, compare(types.OpGreater, "active", 3.0))
	assert.False(t, compare(types.OpLess, 3.0, "idle"))
}

func TestCompareStringEqualityCaseInsensitive(t *testing.T) {
	assert.True(t, compare(types.OpEqual, "Active", "active"))
	assert.False(t, compare(types.OpNotEqual, "ACTIVE", "active"))
	assert.True(t, compare(types.OpNotEqual, "error", "active"))
}

func TestEvaluateConditionRecordsResult(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext() // priceChange1m = -8

	res := e.EvaluateCondition(types.Condition{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0}, ctx)
	assert.Equal(t, "price_drop", res.Field)
	assert.Equal(t, types.OpGreater, res.Operator)
	assert.Equal(t, 5.0, res.Threshold)
	assert.Equal(t, 8.0, res.Actual)
	assert.True(t, res.Passed)
	assert.False(t, res.PeerDataStale)
}

func TestEvaluateConditionFlagsStalePeer(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext() // Beta is in error state with balance 2.0

	res := e.EvaluateCondition(types.Condition{Field: "peer.Alpha.balance", Operator: types.OpGreater, Threshold: 0.5}, ctx)
	assert.False(t, res.PeerDataStale) // Alpha is not a peer here

	res = e.EvaluateCondition(types.Condition{Field: "peer.Beta.balance", Operator: types.OpGreater, Threshold: 0.5}, ctx)
	assert.True(t, res.Passed, "stale value still evaluates")
	assert.True(t, res.PeerDataStale)
}

func TestEvaluateAllDefaultAndGroup(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext()

	matched, results := e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0},
		{Field: "balance", Operator: types.OpGreater, Threshold: 1.0},
	}, ctx)
	assert.True(t, matched)
	assert.Len(t, results, 2)

	matched, _ = e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0},
		{Field: "balance", Operator: types.OpGreater, Threshold: 99.0},
	}, ctx)
	assert.False(t, matched)
}

func TestEvaluateAllOrGroup(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext()

	// OR group passes if any member passes.
	matched, _ := e.EvaluateAll([]types.Condition{
		{Field: "price_rise", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
	}, ctx)
	assert.True(t, matched)

	matched, _ = e.EvaluateAll([]types.Condition{
		{Field: "price_rise", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 50.0, Logic: types.LogicOr},
	}, ctx)
	assert.False(t, matched)
}

func TestEvaluateAllNotGroup(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext()

	matched, _ := e.EvaluateAll([]types.Condition{
		{Field: "price_rise", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicNot},
	}, ctx)
	assert.True(t, matched, "NOT inverts a failing inner condition")

	matched, _ = e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicNot},
	}, ctx)
	assert.False(t, matched)
}

func TestEvaluateAllMixedExpression(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext()

	// AND(price_drop>5) && OR(volume_spike>100 | balance>1) && NOT(status==error)
	matched, results := e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0},
		{Field: "volume_spike", Operator: types.OpGreater, Threshold: 100.0, Logic: types.LogicOr},
		{Field: "balance", Operator: types.OpGreater, Threshold: 1.0, Logic: types.LogicOr},
		{Field: "status", Operator: types.OpEqual, Threshold: "error", Logic: types.LogicNot},
	}, ctx)
	assert.True(t, matched)
	assert.Len(t, results, 4, "every condition is evaluated, no short-circuit")
}

func TestEvaluateAllTwoSeparateOrRuns(t *testing.T) {
	e := newTestEvaluator()
	ctx := testContext()

	// Two OR runs separated by an AND condition: each run must pass.
	matched, _ := e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
		{Field: "price_rise", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
		{Field: "balance", Operator: types.OpGreater, Threshold: 1.0},
		{Field: "volume_spike", Operator: types.OpGreater, Threshold: 100.0, Logic: types.LogicOr},
		{Field: "tick_count", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
	}, ctx)
	assert.True(t, matched)

	matched, _ = e.EvaluateAll([]types.Condition{
		{Field: "price_drop", Operator: types.OpGreater, Threshold: 5.0, Logic: types.LogicOr},
		{Field: "balance", Operator: types.OpGreater, Threshold: 1.0},
		{Field: "volume_spike", Operator: types.OpGreater, Threshold: 100.0, Logic: types.LogicOr},
		{Field: "tick_count", Operator: types.OpGreater, Threshold: 500.0, Logic: types.LogicOr},
	}, ctx)
	assert.False(t, matched, "second OR run fails independently")
}

func TestEvaluateAllEmptyConditionsMatch(t *testing.T) {
	e := newTestEvaluator()
	matched, results := e.EvaluateAll(nil, testContext())
	assert.True(t, matched)
	assert.Empty(t, results)
}
