package decision

import (
	"time"

	"github.com/autarch-dev/autarch/pkg/types"
)

// BuildTrace assembles a frozen DecisionTrace from an evaluation pass.
// Every nested structure is deep-copied so later engine or caller
// mutations cannot reach a trace already placed in history.
func BuildTrace(agentID int, market types.MarketData, evals []types.RuleEvaluation, decision types.DecisionResult) *types.DecisionTrace {
	copied := make([]types.RuleEvaluation, len(evals))
	for i := range evals {
		copied[i] = evals[i].Clone()
	}
	return &types.DecisionTrace{
		Timestamp:   time.Now().UnixMilli(),
		AgentID:     agentID,
		MarketData:  market.Clone(),
		Evaluations: copied,
		Decision:    decision.Clone(),
	}
}
