package decision

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/pkg/types"
)

// Outcome pairs the engine's verdict with the frozen trace built from
// the same evaluation pass.
type Outcome struct {
	Decision types.DecisionResult
	Trace    *types.DecisionTrace
}

// Module is the polymorphic decision capability an agent drives once
// per tick. Implementations may be slow (the context bounds them) and
// may hold internal state that Reset clears.
type Module interface {
	Evaluate(ctx context.Context, ec *Context) (*Outcome, error)
	Reset()
}

// RuleModule is the default Module: a rule engine with its own
// cooldown tracker.
type RuleModule struct {
	engine *Engine
}

// NewRuleModule creates a rule-based decision module.
func NewRuleModule(log zerolog.Logger) *RuleModule {
	return &RuleModule{engine: NewEngine(log.With().Str("component", "rule_engine").Logger())}
}

// NewRuleModuleWithThreshold creates a rule-based module with a custom
// execution threshold.
func NewRuleModuleWithThreshold(log zerolog.Logger, threshold int) *RuleModule {
	return &RuleModule{engine: NewEngineWithThreshold(log, threshold)}
}

// Evaluate runs the rule engine and assembles the decision trace.
func (m *RuleModule) Evaluate(ctx context.Context, ec *Context) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision, evals := m.engine.Evaluate(ec)
	agentID := 0
	if ec.State != nil {
		agentID = ec.State.AgentID
	}
	return &Outcome{
		Decision: decision,
		Trace:    BuildTrace(agentID, ec.Market, evals, decision),
	}, nil
}

// Reset clears the module's cooldown state.
func (m *RuleModule) Reset() {
	m.engine.ResetCooldowns()
}
