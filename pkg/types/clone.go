package types

// Deep-copy helpers. Snapshots handed across component boundaries are
// produced here so no consumer can reach back into an owner's state.

// Clone returns a deep copy of the market snapshot.
func (m MarketData) Clone() MarketData {
	return m // value type, no reference fields
}

// Clone returns a deep copy of the condition result.
func (c ConditionResult) Clone() ConditionResult {
	return c
}

// Clone returns a deep copy of the rule evaluation.
func (e RuleEvaluation) Clone() RuleEvaluation {
	out := e
	if e.Conditions != nil {
		out.Conditions = make([]ConditionResult, len(e.Conditions))
		copy(out.Conditions, e.Conditions)
	}
	return out
}

// Clone returns a deep copy of the decision result.
func (d DecisionResult) Clone() DecisionResult {
	out := d
	if d.RuleIndex != nil {
		idx := *d.RuleIndex
		out.RuleIndex = &idx
	}
	return out
}

// Clone returns a deep copy of the trace, including execution.
func (t *DecisionTrace) Clone() *DecisionTrace {
	if t == nil {
		return nil
	}
	out := &DecisionTrace{
		Timestamp:  t.Timestamp,
		AgentID:    t.AgentID,
		MarketData: t.MarketData.Clone(),
		Decision:   t.Decision.Clone(),
	}
	if t.Evaluations != nil {
		out.Evaluations = make([]RuleEvaluation, len(t.Evaluations))
		for i := range t.Evaluations {
			out.Evaluations[i] = t.Evaluations[i].Clone()
		}
	}
	if t.Execution != nil {
		exec := *t.Execution
		out.Execution = &exec
	}
	return out
}

// Clone returns a deep copy of the agent state, trace history included.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := &AgentState{
		AgentID:           s.AgentID,
		Name:              s.Name,
		Strategy:          s.Strategy,
		Status:            s.Status,
		Address:           s.Address,
		Balance:           s.Balance,
		ConsecutiveErrors: s.ConsecutiveErrors,
		TickCount:         s.TickCount,
		PositionSize:      s.PositionSize,
		ConsecutiveWins:   s.ConsecutiveWins,
		LastTradeAmount:   s.LastTradeAmount,
	}
	if s.LastAction != nil {
		v := *s.LastAction
		out.LastAction = &v
	}
	if s.LastActionTimestamp != nil {
		v := *s.LastActionTimestamp
		out.LastActionTimestamp = &v
	}
	if s.LastError != nil {
		v := *s.LastError
		out.LastError = &v
	}
	out.LastDecision = s.LastDecision.Clone()
	if s.TraceHistory != nil {
		out.TraceHistory = make([]*DecisionTrace, len(s.TraceHistory))
		for i := range s.TraceHistory {
			out.TraceHistory[i] = s.TraceHistory[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the condition.
func (c Condition) Clone() Condition {
	return c
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		copy(out.Conditions, r.Conditions)
	}
	return out
}

// Clone returns a deep copy of the agent config.
func (c *AgentConfig) Clone() *AgentConfig {
	if c == nil {
		return nil
	}
	out := &AgentConfig{
		Name:       c.Name,
		Strategy:   c.Strategy,
		IntervalMs: c.IntervalMs,
	}
	if c.Rules != nil {
		out.Rules = make([]Rule, len(c.Rules))
		for i := range c.Rules {
			out.Rules[i] = c.Rules[i].Clone()
		}
	}
	return out
}
