// Package types defines the shared data model for the Autarch runtime:
// market snapshots, rule definitions, agent state, and decision traces.
// Everything crossing a component boundary is one of these types, and
// consumers always receive deep copies (see clone.go).
package types

// MarketSource tags where a market snapshot came from.
type MarketSource string

const (
	MarketSourceLive      MarketSource = "live"
	MarketSourceSimulated MarketSource = "simulated"
)

// MarketData is an immutable snapshot of the observed market.
type MarketData struct {
	Price          float64      `json:"price"`
	PriceChange1m  float64      `json:"priceChange1m"`
	PriceChange5m  float64      `json:"priceChange5m"`
	VolumeChange1m float64      `json:"volumeChange1m"`
	Timestamp      int64        `json:"timestamp"` // ms since epoch
	Source         MarketSource `json:"source"`
}

// LogicKind joins a condition into its rule's compound expression.
type LogicKind string

const (
	LogicAnd LogicKind = "AND"
	LogicOr  LogicKind = "OR"
	LogicNot LogicKind = "NOT"
)

// Operator is a comparison operator in a rule condition.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Operators lists every valid operator, in documentation order.
var Operators = []Operator{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual}

// Condition compares one resolved field against a threshold.
// Threshold is a float64 or a string, as decoded from JSON.
type Condition struct {
	Field     string    `json:"field"`
	Operator  Operator  `json:"operator"`
	Threshold any       `json:"threshold"`
	Logic     LogicKind `json:"logic,omitempty"` // default AND
}

// ActionType is what a fired rule asks the wallet to do.
type ActionType string

const (
	ActionBuy      ActionType = "buy"
	ActionSell     ActionType = "sell"
	ActionTransfer ActionType = "transfer"
	ActionNone     ActionType = "none"
)

// Actions lists every valid action.
var Actions = []ActionType{ActionBuy, ActionSell, ActionTransfer, ActionNone}

// Actionable reports whether the action submits a transaction.
func (a ActionType) Actionable() bool {
	return a == ActionBuy || a == ActionSell || a == ActionTransfer
}

// Rule is one declarative trading rule.
type Rule struct {
	Name            string      `json:"name"`
	Conditions      []Condition `json:"conditions"`
	Action          ActionType  `json:"action"`
	Amount          float64     `json:"amount"` // SOL
	Weight          int         `json:"weight"` // 0-100
	CooldownSeconds int         `json:"cooldownSeconds"`
}

// AgentConfig declares one agent: identity plus its ordered rule set.
type AgentConfig struct {
	Name       string `json:"name"`
	Strategy   string `json:"strategy"`
	IntervalMs int64  `json:"intervalMs,omitempty"` // >=1000, default 60000
	Rules      []Rule `json:"rules"`
}

// DefaultIntervalMs is the tick cadence used when intervalMs is absent.
const DefaultIntervalMs int64 = 60000

// MinIntervalMs is the smallest accepted tick cadence.
const MinIntervalMs int64 = 1000

// Interval returns the effective tick interval in milliseconds.
func (c *AgentConfig) Interval() int64 {
	if c.IntervalMs == 0 {
		return DefaultIntervalMs
	}
	return c.IntervalMs
}

// AgentStatus is an agent's lifecycle state.
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusActive   AgentStatus = "active"
	StatusCooldown AgentStatus = "cooldown"
	StatusError    AgentStatus = "error"
	StatusStopped  AgentStatus = "stopped"
)

// AgentState is the externally visible state of one agent. The owning
// agent mutates its private copy; everyone else sees frozen snapshots.
type AgentState struct {
	AgentID             int              `json:"agentId"`
	Name                string           `json:"name"`
	Strategy            string           `json:"strategy"`
	Status              AgentStatus      `json:"status"`
	Address             string           `json:"address"`
	Balance             float64          `json:"balance"` // SOL
	LastAction          *string          `json:"lastAction"`
	LastActionTimestamp *int64           `json:"lastActionTimestamp"`
	ConsecutiveErrors   int              `json:"consecutiveErrors"`
	TickCount           int64            `json:"tickCount"`
	LastError           *string          `json:"lastError"`
	PositionSize        float64          `json:"positionSize"`
	ConsecutiveWins     int              `json:"consecutiveWins"`
	LastTradeAmount     float64          `json:"lastTradeAmount"`
	LastDecision        *DecisionTrace   `json:"lastDecision,omitempty"`
	TraceHistory        []*DecisionTrace `json:"traceHistory"`
}

// CooldownState marks a rule evaluation's cooldown gate result.
type CooldownState string

const (
	CooldownActive CooldownState = "active"
	CooldownClear  CooldownState = "clear"
)

// BlockInsufficientBalance marks a matched rule the balance pre-check refused.
const BlockInsufficientBalance = "insufficient_balance"

// ConditionResult records one condition evaluation for the trace.
type ConditionResult struct {
	Field         string   `json:"field"`
	Operator      Operator `json:"operator"`
	Threshold     any      `json:"threshold"`
	Actual        any      `json:"actual"`
	Passed        bool     `json:"passed"`
	PeerDataStale bool     `json:"peerDataStale,omitempty"`
}

// RuleEvaluation records one rule's full evaluation for the trace.
type RuleEvaluation struct {
	RuleIndex         int               `json:"ruleIndex"`
	RuleName          string            `json:"ruleName"`
	Conditions        []ConditionResult `json:"conditions"`
	Matched           bool              `json:"matched"`
	Score             int               `json:"score"`
	Cooldown          CooldownState     `json:"cooldown,omitempty"`
	CooldownRemaining int64             `json:"cooldownRemaining,omitempty"` // ms
	Blocked           string            `json:"blocked,omitempty"`
}

// DecisionResult is the engine's final verdict for one tick.
type DecisionResult struct {
	Action    ActionType `json:"action"`
	Amount    float64    `json:"amount,omitempty"`
	RuleIndex *int       `json:"ruleIndex,omitempty"`
	RuleName  string     `json:"ruleName,omitempty"`
	Score     int        `json:"score"`
	Reason    string     `json:"reason"`
}

// ExecutionStatus is the outcome class of a submitted transaction.
type ExecutionStatus string

const (
	ExecutionConfirmed ExecutionStatus = "confirmed"
	ExecutionSimulated ExecutionStatus = "simulated"
	ExecutionFailed    ExecutionStatus = "failed"
)

// TraceExecution records the transaction outcome attached to a trace.
type TraceExecution struct {
	Status    ExecutionStatus `json:"status"`
	Signature string          `json:"signature,omitempty"`
	Mode      string          `json:"mode,omitempty"` // normal|degraded|simulation
	Error     string          `json:"error,omitempty"`
}

// DecisionTrace is the frozen per-tick record: every rule's evaluation,
// the market snapshot it saw, the decision, and (if executed) the result.
type DecisionTrace struct {
	Timestamp   int64            `json:"timestamp"`
	AgentID     int              `json:"agentId"`
	MarketData  MarketData       `json:"marketData"`
	Evaluations []RuleEvaluation `json:"evaluations"`
	Decision    DecisionResult   `json:"decision"`
	Execution   *TraceExecution  `json:"execution,omitempty"`
}

// Balance is an on-chain balance in both denominations.
type Balance struct {
	Lamports uint64  `json:"lamports"`
	Sol      float64 `json:"sol"`
}

// LamportsPerSol is the Solana denomination ratio.
const LamportsPerSol = 1_000_000_000

// TransactionResult is what the wallet returns after submitting.
type TransactionResult struct {
	Signature string          `json:"signature"`
	Status    ExecutionStatus `json:"status"`
	Mode      string          `json:"mode"`
}
