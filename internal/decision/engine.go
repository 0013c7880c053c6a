package decision

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/pkg/types"
)

// DefaultExecutionThreshold is the minimum aggregate score an action
// must reach before the engine commits to it.
const DefaultExecutionThreshold = 70

// Engine evaluates a full rule set against a context: gates each rule
// on its cooldown, evaluates conditions, applies the balance pre-check,
// aggregates weights per action, and picks a winner.
type Engine struct {
	evaluator *ConditionEvaluator
	cooldowns *CooldownTracker
	threshold int
	log       zerolog.Logger
}

// NewEngine creates an engine with the default execution threshold.
func NewEngine(log zerolog.Logger) *Engine {
	return NewEngineWithThreshold(log, DefaultExecutionThreshold)
}

// NewEngineWithThreshold creates an engine with an explicit threshold.
func NewEngineWithThreshold(log zerolog.Logger, threshold int) *Engine {
	return &Engine{
		evaluator: NewConditionEvaluator(NewFieldResolver(log)),
		cooldowns: NewCooldownTracker(),
		threshold: threshold,
		log:       log,
	}
}

// actionAggregate accumulates matched rule weights for one action.
// Aggregates live in a slice in first-contribution order so that score
// ties resolve to the earliest-seen action.
type actionAggregate struct {
	action     types.ActionType
	total      int
	bestIndex  int // rule index of the highest-weight contributor
	bestWeight int
}

// Evaluate runs every rule and returns the decision plus the full
// per-rule evaluation record. On an actionable decision the winning
// rule's cooldown is recorded before returning.
func (e *Engine) Evaluate(ec *Context) (types.DecisionResult, []types.RuleEvaluation) {
	evals := make([]types.RuleEvaluation, 0, len(ec.Rules))
	var aggs []*actionAggregate

	anyMatched := false
	actionableMatched := 0
	blockedCount := 0

	for i, rule := range ec.Rules {
		if cd := e.cooldowns.Check(i, rule.CooldownSeconds); cd.Active {
			evals = append(evals, types.RuleEvaluation{
				RuleIndex:         i,
				RuleName:          rule.Name,
				Conditions:        []types.ConditionResult{},
				Matched:           false,
				Score:             0,
				Cooldown:          types.CooldownActive,
				CooldownRemaining: cd.RemainingMs,
			})
			continue
		}

		matched, condResults := e.evaluator.EvaluateAll(rule.Conditions, ec)
		ev := types.RuleEvaluation{
			RuleIndex:  i,
			RuleName:   rule.Name,
			Conditions: condResults,
			Matched:    matched,
		}
		if rule.CooldownSeconds > 0 {
			ev.Cooldown = types.CooldownClear
		}
		if matched {
			anyMatched = true
			ev.Score = rule.Weight
		}

		if matched && rule.Action.Actionable() {
			actionableMatched++
			if ec.State != nil && ec.State.Balance < rule.Amount {
				ev.Blocked = types.BlockInsufficientBalance
				blockedCount++
			} else {
				aggs = contribute(aggs, rule.Action, i, rule.Weight)
			}
		}

		evals = append(evals, ev)
	}

	decision := e.decide(ec, aggs, anyMatched, actionableMatched, blockedCount)
	return decision, evals
}

func contribute(aggs []*actionAggregate, action types.ActionType, ruleIndex, weight int) []*actionAggregate {
	for _, a := range aggs {
		if a.action == action {
			a.total += weight
			if weight > a.bestWeight {
				a.bestWeight = weight
				a.bestIndex = ruleIndex
			}
			return aggs
		}
	}
	return append(aggs, &actionAggregate{
		action:     action,
		total:      weight,
		bestIndex:  ruleIndex,
		bestWeight: weight,
	})
}

func (e *Engine) decide(ec *Context, aggs []*actionAggregate, anyMatched bool, actionableMatched, blockedCount int) types.DecisionResult {
	if len(aggs) == 0 {
		switch {
		case actionableMatched > 0 && blockedCount == actionableMatched:
			return types.DecisionResult{Action: types.ActionNone, Reason: types.BlockInsufficientBalance}
		case !anyMatched:
			return types.DecisionResult{Action: types.ActionNone, Reason: "no rules matched"}
		default:
			return types.DecisionResult{Action: types.ActionNone, Reason: "no actionable rules matched"}
		}
	}

	// Strict > keeps the first-inserted action on ties.
	winner := aggs[0]
	for _, a := range aggs[1:] {
		if a.total > winner.total {
			winner = a
		}
	}

	if winner.total < e.threshold {
		return types.DecisionResult{
			Action: types.ActionNone,
			Score:  winner.total,
			Reason: fmt.Sprintf("best aggregate score %d below execution threshold %d", winner.total, e.threshold),
		}
	}

	best := ec.Rules[winner.bestIndex]
	idx := winner.bestIndex
	e.cooldowns.Record(idx)

	e.log.Debug().
		Str("action", string(winner.action)).
		Int("score", winner.total).
		Str("rule", best.Name).
		Msg("Rule engine committed to action")

	return types.DecisionResult{
		Action:    winner.action,
		Amount:    best.Amount,
		RuleIndex: &idx,
		RuleName:  best.Name,
		Score:     winner.total,
		Reason:    fmt.Sprintf("rule %q won with aggregate score %d (threshold %d)", best.Name, winner.total, e.threshold),
	}
}

// ResetCooldowns clears all cooldown state.
func (e *Engine) ResetCooldowns() {
	e.cooldowns.Reset()
}
