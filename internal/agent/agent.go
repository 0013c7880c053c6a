// Package agent implements the per-agent scheduler: a single goroutine
// ticks at the configured interval, runs the decision pipeline, and
// mutates the agent's state under a lock so control operations stay
// safe while a tick is in flight.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/internal/decision"
	"github.com/autarch-dev/autarch/internal/market"
	"github.com/autarch-dev/autarch/internal/metrics"
	"github.com/autarch-dev/autarch/pkg/types"
)

const (
	// MaxConsecutiveErrors is the auto-stop threshold.
	MaxConsecutiveErrors = 5
	// MaxTraceHistory bounds the per-agent decision trace ring.
	MaxTraceHistory = 100
)

// Lifecycle event names emitted through OnLifecycle.
const (
	EventStarted     = "started"
	EventStopped     = "stopped"
	EventError       = "error"
	EventAutoStopped = "auto-stopped"
)

// Wallet is the slice of the wallet manager an agent needs.
type Wallet interface {
	GetAddress(agentID int) string
	GetBalance(ctx context.Context, agentID int) (types.Balance, error)
	Transfer(ctx context.Context, fromID int, toAddress string, lamports uint64) (types.TransactionResult, error)
}

// PeerSupplier returns the frozen peer-state vector for one tick. The
// returned slice never contains the calling agent's own state.
type PeerSupplier func() []*types.AgentState

// Callbacks notify the runtime of agent activity. All callbacks are
// invoked from the agent's tick goroutine, outside the agent's lock.
type Callbacks struct {
	OnStateChange func(state *types.AgentState)
	OnLifecycle   func(agentID int, event, message string)
	OnError       func(agentID int, err error)
	OnAutoStop    func(agentID int)
}

// Options assembles an Agent.
type Options struct {
	ID         int
	Config     types.AgentConfig
	Wallet     Wallet
	Market     market.Provider
	Peers      PeerSupplier
	Module     decision.Module
	OwnsModule bool
	// Treasury is the sink address trade transfers settle against.
	Treasury  string
	Callbacks Callbacks
	Logger    zerolog.Logger
}

// Agent is one scheduled decision unit.
type Agent struct {
	mu         sync.Mutex
	id         int
	cfg        types.AgentConfig
	wallet     Wallet
	market     market.Provider
	peers      PeerSupplier
	module     decision.Module
	ownsModule bool
	treasury   string
	callbacks  Callbacks

	state  *types.AgentState
	cancel context.CancelFunc

	log zerolog.Logger
	now func() time.Time
}

// New builds an idle Agent. Start must be called to begin ticking.
func New(opts Options) *Agent {
	a := &Agent{
		id:         opts.ID,
		cfg:        *opts.Config.Clone(),
		wallet:     opts.Wallet,
		market:     opts.Market,
		peers:      opts.Peers,
		module:     opts.Module,
		ownsModule: opts.OwnsModule,
		treasury:   opts.Treasury,
		callbacks:  opts.Callbacks,
		log: opts.Logger.With().
			Int("agentId", opts.ID).
			Str("agent", opts.Config.Name).
			Logger(),
		now: time.Now,
	}
	a.state = &types.AgentState{
		AgentID:      opts.ID,
		Name:         opts.Config.Name,
		Strategy:     opts.Config.Strategy,
		Status:       types.StatusIdle,
		Address:      opts.Wallet.GetAddress(opts.ID),
		TraceHistory: []*types.DecisionTrace{},
	}
	return a
}

// ID returns the agent's numeric id.
func (a *Agent) ID() int { return a.id }

// Name returns the agent's configured name.
func (a *Agent) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Name
}

// Running reports whether a schedule is active.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Snapshot returns a frozen deep copy of the agent's state.
func (a *Agent) Snapshot() *types.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Start schedules ticks at the configured interval and triggers one
// immediately. Starting a running agent is a no-op.
func (a *Agent) Start() {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	interval := time.Duration(a.cfg.Interval()) * time.Millisecond
	name := a.cfg.Name
	a.mu.Unlock()

	metrics.AgentRunning.WithLabelValues(name).Set(1)
	a.log.Info().Dur("interval", interval).Msg("Agent started")
	a.fireLifecycle(EventStarted, "")
	go a.run(ctx, interval)
}

// Stop cancels the schedule, freezes the agent as stopped, and clears
// its trace history. Stopping a stopped agent is a no-op and emits no
// second lifecycle event. An in-flight tick is not interrupted.
func (a *Agent) Stop() {
	if !a.halt() {
		return
	}
	a.log.Info().Msg("Agent stopped")
	a.fireLifecycle(EventStopped, "")
	a.fireStateChange()
}

// UpdateConfig swaps the configuration in place. The running schedule
// keeps its existing cadence; the next tick picks up the new rules.
func (a *Agent) UpdateConfig(cfg types.AgentConfig) {
	a.mu.Lock()
	a.cfg = *cfg.Clone()
	a.state.Name = cfg.Name
	a.state.Strategy = cfg.Strategy
	a.mu.Unlock()
	a.log.Info().Str("agent", cfg.Name).Msg("Agent configuration updated")
}

// halt performs the shared stop transition. Returns false when the
// agent was not running.
func (a *Agent) halt() bool {
	a.mu.Lock()
	if a.cancel == nil {
		a.mu.Unlock()
		return false
	}
	a.cancel()
	a.cancel = nil
	a.state.Status = types.StatusStopped
	a.state.LastDecision = nil
	a.state.TraceHistory = []*types.DecisionTrace{}
	name := a.cfg.Name
	a.mu.Unlock()

	if a.ownsModule {
		a.module.Reset()
	}
	metrics.AgentRunning.WithLabelValues(name).Set(0)
	return true
}

func (a *Agent) run(ctx context.Context, interval time.Duration) {
	a.tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick runs one decision cycle. sched is the scheduler's context: it
// gates whether the tick starts and whether its result is still
// committable, but tick I/O runs on its own context so Stop never
// aborts an in-flight call.
func (a *Agent) tick(sched context.Context) {
	if sched.Err() != nil {
		return
	}
	started := time.Now()

	a.mu.Lock()
	cfg := *a.cfg.Clone()
	a.state.TickCount++
	a.mu.Unlock()

	metrics.TicksTotal.WithLabelValues(cfg.Name).Inc()
	defer func() {
		metrics.TickDuration.WithLabelValues(cfg.Name).Observe(time.Since(started).Seconds())
	}()

	ctx := context.Background()

	bal, err := a.wallet.GetBalance(ctx, a.id)
	if err != nil {
		a.failTick(sched, cfg.Name, fmt.Errorf("fetching balance: %w", err))
		return
	}

	var peers []*types.AgentState
	if a.peers != nil {
		peers = a.peers()
	}
	snapshot := a.market.Snapshot()

	a.mu.Lock()
	if sched.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.state.Balance = bal.Sol
	frozen := a.state.Clone()
	a.mu.Unlock()

	out, err := a.module.Evaluate(ctx, &decision.Context{
		State:  frozen,
		Market: snapshot,
		Rules:  cfg.Rules,
		Peers:  peers,
	})
	if err != nil {
		a.failTick(sched, cfg.Name, fmt.Errorf("evaluating rules: %w", err))
		return
	}

	trace := out.Trace
	if out.Decision.Action.Actionable() && sched.Err() == nil {
		trace.Execution = a.execute(ctx, out.Decision)
	}
	metrics.DecisionsTotal.WithLabelValues(cfg.Name, string(out.Decision.Action)).Inc()

	a.mu.Lock()
	if sched.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.commitTick(out.Decision, trace)
	a.mu.Unlock()

	a.fireStateChange()
}

// commitTick applies the success-path state mutations. Caller holds mu.
func (a *Agent) commitTick(dec types.DecisionResult, trace *types.DecisionTrace) {
	if trace.Execution != nil {
		action := fmt.Sprintf("%s %.4f SOL", dec.Action, dec.Amount)
		ts := a.now().UnixMilli()
		a.state.Status = types.StatusActive
		a.state.LastAction = &action
		a.state.LastActionTimestamp = &ts
		a.state.LastTradeAmount = dec.Amount
		if trace.Execution.Status == types.ExecutionFailed {
			a.state.ConsecutiveWins = 0
		} else {
			a.state.ConsecutiveWins++
			switch dec.Action {
			case types.ActionBuy:
				a.state.PositionSize += dec.Amount
			case types.ActionSell:
				a.state.PositionSize -= dec.Amount
				if a.state.PositionSize < 0 {
					a.state.PositionSize = 0
				}
			}
		}
	} else {
		a.state.Status = types.StatusCooldown
	}

	a.state.ConsecutiveErrors = 0
	a.state.LastError = nil

	a.state.TraceHistory = append(a.state.TraceHistory, trace)
	if len(a.state.TraceHistory) > MaxTraceHistory {
		a.state.TraceHistory = a.state.TraceHistory[len(a.state.TraceHistory)-MaxTraceHistory:]
	}
	a.state.LastDecision = trace
}

// execute submits the decided trade. Failures never abort the tick;
// they are folded into the trace.
func (a *Agent) execute(ctx context.Context, dec types.DecisionResult) *types.TraceExecution {
	lamports := uint64(dec.Amount * types.LamportsPerSol)
	if lamports == 0 {
		return &types.TraceExecution{Status: types.ExecutionFailed, Error: "decided amount rounds to zero lamports"}
	}
	result, err := a.wallet.Transfer(ctx, a.id, a.treasury, lamports)
	if err != nil {
		a.log.Warn().Err(err).Str("action", string(dec.Action)).Msg("Trade execution failed")
		return &types.TraceExecution{Status: types.ExecutionFailed, Error: err.Error()}
	}
	return &types.TraceExecution{
		Status:    result.Status,
		Signature: result.Signature,
		Mode:      result.Mode,
	}
}

// failTick applies the error path: count the failure, surface it, and
// auto-stop once the consecutive counter reaches the threshold. A tick
// whose scheduler was stopped mid-flight is discarded without counting.
func (a *Agent) failTick(sched context.Context, name string, err error) {
	wrapped := fmt.Errorf("agent %d (%s): %w", a.id, name, err)
	msg := wrapped.Error()

	a.mu.Lock()
	if sched.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.state.ConsecutiveErrors++
	a.state.Status = types.StatusError
	a.state.LastError = &msg
	count := a.state.ConsecutiveErrors
	a.mu.Unlock()

	metrics.TickErrorsTotal.WithLabelValues(name).Inc()

	a.log.Error().Err(err).Int("consecutiveErrors", count).Msg("Tick failed")
	if a.callbacks.OnError != nil {
		a.callbacks.OnError(a.id, wrapped)
	}
	a.fireLifecycle(EventError, msg)
	a.fireStateChange()

	if count < MaxConsecutiveErrors {
		return
	}
	if !a.halt() {
		return
	}
	a.log.Error().Int("consecutiveErrors", count).Msg("Agent auto-stopped")
	if a.callbacks.OnAutoStop != nil {
		a.callbacks.OnAutoStop(a.id)
	}
	a.fireLifecycle(EventAutoStopped, fmt.Sprintf("stopped after %d consecutive errors", count))
	a.fireStateChange()
}

func (a *Agent) fireStateChange() {
	if a.callbacks.OnStateChange == nil {
		return
	}
	a.callbacks.OnStateChange(a.Snapshot())
}

func (a *Agent) fireLifecycle(event, message string) {
	if a.callbacks.OnLifecycle == nil {
		return
	}
	a.callbacks.OnLifecycle(a.id, event, message)
}
