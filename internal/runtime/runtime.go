// Package runtime owns the agent set, mirrors their states for peer
// visibility, and fans events out to subscribers.
package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/internal/agent"
	"github.com/autarch-dev/autarch/internal/decision"
	"github.com/autarch-dev/autarch/internal/market"
	"github.com/autarch-dev/autarch/pkg/types"
)

// Event names subscribers can attach to.
type Event string

const (
	EventStateUpdate    Event = "stateUpdate"
	EventAgentLifecycle Event = "agentLifecycle"
	EventMarketUpdate   Event = "marketUpdate"
	EventSimulationMode Event = "simulationMode"
	EventRulesReloaded  Event = "rulesReloaded"
)

// marketBroadcastInterval paces the periodic market snapshot event.
const marketBroadcastInterval = 10 * time.Second

// Handler receives one emitted event payload.
type Handler func(payload any)

// LifecyclePayload accompanies EventAgentLifecycle.
type LifecyclePayload struct {
	AgentID   int    `json:"agentId"`
	Event     string `json:"event"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SimulationModePayload accompanies EventSimulationMode.
type SimulationModePayload struct {
	Active    bool   `json:"active"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// RulesReloadedPayload accompanies EventRulesReloaded.
type RulesReloadedPayload struct {
	AgentID   int    `json:"agentId,omitempty"`
	Success   bool   `json:"success"`
	FileName  string `json:"fileName,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Wallet is the wallet capability the runtime hands its agents.
type Wallet = agent.Wallet

// Runtime orchestrates the agents over a shared market provider.
type Runtime struct {
	mu       sync.Mutex
	byID     map[int]*agent.Agent
	order    []int
	states   map[int]*types.AgentState
	handlers map[Event][]Handler
	done     chan struct{}
	started  bool

	market market.Provider
	wallet Wallet
	log    zerolog.Logger
}

// New creates an empty Runtime.
func New(provider market.Provider, w Wallet, log zerolog.Logger) *Runtime {
	return &Runtime{
		byID:     make(map[int]*agent.Agent),
		states:   make(map[int]*types.AgentState),
		handlers: make(map[Event][]Handler),
		done:     make(chan struct{}),
		market:   provider,
		wallet:   w,
		log:      log.With().Str("component", "runtime").Logger(),
	}
}

// On subscribes a handler to an event. Handlers run synchronously on
// the emitting goroutine; per-agent event order is preserved.
func (r *Runtime) On(event Event, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

func (r *Runtime) emit(event Event, payload any) {
	r.mu.Lock()
	handlers := append([]Handler(nil), r.handlers[event]...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

// AddAgent registers a new agent with its own rule module. Agents tick
// only after Start (or StartAgent).
func (r *Runtime) AddAgent(id int, cfg types.AgentConfig) (*agent.Agent, error) {
	r.mu.Lock()
	if _, exists := r.byID[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("agent %d already registered", id)
	}
	r.mu.Unlock()

	a := agent.New(agent.Options{
		ID:         id,
		Config:     cfg,
		Wallet:     r.wallet,
		Market:     r.market,
		Peers:      r.peersFor(id),
		Module:     decision.NewRuleModule(r.log),
		OwnsModule: true,
		Treasury:   r.wallet.GetAddress(0),
		Callbacks: agent.Callbacks{
			OnStateChange: r.handleStateChange,
			OnLifecycle:   r.handleLifecycle,
			OnError: func(agentID int, err error) {
				r.log.Warn().Int("agentId", agentID).Err(err).Msg("Agent reported error")
			},
		},
		Logger: r.log,
	})

	r.mu.Lock()
	r.byID[id] = a
	r.order = append(r.order, id)
	r.states[id] = a.Snapshot()
	r.mu.Unlock()

	r.log.Info().Int("agentId", id).Str("agent", cfg.Name).Msg("Agent registered")
	return a, nil
}

// peersFor builds the peer-state supplier for one agent: the cached
// state of every other agent, deep-copied so a tick observes an
// immutable vector. Errored peers stay visible with their last state.
func (r *Runtime) peersFor(id int) agent.PeerSupplier {
	return func() []*types.AgentState {
		r.mu.Lock()
		defer r.mu.Unlock()
		peers := make([]*types.AgentState, 0, len(r.order))
		for _, pid := range r.order {
			if pid == id {
				continue
			}
			if s, ok := r.states[pid]; ok {
				peers = append(peers, s.Clone())
			}
		}
		return peers
	}
}

// handleStateChange refreshes the peer-visible mirror before
// forwarding the update to subscribers.
func (r *Runtime) handleStateChange(state *types.AgentState) {
	r.mu.Lock()
	r.states[state.AgentID] = state
	r.mu.Unlock()
	r.emit(EventStateUpdate, r.GetStates())
}

func (r *Runtime) handleLifecycle(agentID int, event, message string) {
	r.emit(EventAgentLifecycle, LifecyclePayload{
		AgentID:   agentID,
		Event:     event,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NotifySimulationMode forwards an RPC mode transition to subscribers.
func (r *Runtime) NotifySimulationMode(active bool, reason string) {
	r.emit(EventSimulationMode, SimulationModePayload{
		Active:    active,
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Start starts every registered agent and the periodic market
// broadcast. Safe to call once.
func (r *Runtime) Start() {
	r.mu.Lock()
	agents := r.agentsLocked()
	alreadyStarted := r.started
	r.started = true
	r.mu.Unlock()

	for _, a := range agents {
		a.Start()
	}
	if !alreadyStarted {
		go r.marketLoop()
	}
	r.log.Info().Int("agents", len(agents)).Msg("Runtime started")
}

func (r *Runtime) marketLoop() {
	ticker := time.NewTicker(marketBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.emit(EventMarketUpdate, r.market.Snapshot())
		}
	}
}

// StartAgent starts one agent.
func (r *Runtime) StartAgent(id int) error {
	a, err := r.get(id)
	if err != nil {
		return err
	}
	a.Start()
	return nil
}

// StopAgent stops one agent. Stopping an already-stopped agent is a
// no-op and emits nothing.
func (r *Runtime) StopAgent(id int) error {
	a, err := r.get(id)
	if err != nil {
		return err
	}
	a.Stop()
	return nil
}

// Stop stops every agent and the market broadcast.
func (r *Runtime) Stop() {
	r.mu.Lock()
	agents := r.agentsLocked()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
	r.log.Info().Msg("Runtime stopped")
}

func (r *Runtime) agentsLocked() []*agent.Agent {
	agents := make([]*agent.Agent, 0, len(r.order))
	for _, id := range r.order {
		agents = append(agents, r.byID[id])
	}
	return agents
}

func (r *Runtime) get(id int) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown agent %d", id)
	}
	return a, nil
}

// GetStates returns frozen state snapshots in insertion order.
func (r *Runtime) GetStates() []*types.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.AgentState, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.states[id]; ok {
			out = append(out, s.Clone())
		}
	}
	return out
}

// NotifyReloadFailed reports a rule reload that was rejected before it
// reached an agent, keeping the event stream's reload history complete.
func (r *Runtime) NotifyReloadFailed(id int, fileName, reason string) {
	r.emit(EventRulesReloaded, RulesReloadedPayload{
		AgentID:   id,
		Success:   false,
		FileName:  fileName,
		Error:     reason,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ReloadRules swaps an agent's configuration without rescheduling and
// reports the outcome to subscribers.
func (r *Runtime) ReloadRules(id int, cfg types.AgentConfig, fileName string) error {
	a, err := r.get(id)
	if err != nil {
		r.emit(EventRulesReloaded, RulesReloadedPayload{
			AgentID:   id,
			Success:   false,
			FileName:  fileName,
			Error:     err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})
		return err
	}
	a.UpdateConfig(cfg)

	r.mu.Lock()
	if s, ok := r.states[id]; ok {
		s.Name = cfg.Name
		s.Strategy = cfg.Strategy
	}
	r.mu.Unlock()

	r.emit(EventRulesReloaded, RulesReloadedPayload{
		AgentID:   id,
		Success:   true,
		FileName:  fileName,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// InjectDip applies a price drop and broadcasts the resulting market
// snapshot.
func (r *Runtime) InjectDip(percent float64) {
	r.market.InjectDip(percent)
	r.emit(EventMarketUpdate, r.market.Snapshot())
	r.log.Info().Float64("percent", percent).Msg("Injected market dip")
}

// InjectRally applies a price rise and broadcasts the snapshot.
func (r *Runtime) InjectRally(percent float64) {
	r.market.InjectRally(percent)
	r.emit(EventMarketUpdate, r.market.Snapshot())
	r.log.Info().Float64("percent", percent).Msg("Injected market rally")
}

// ResetMarket returns the market to its base state and broadcasts it.
func (r *Runtime) ResetMarket() {
	r.market.Reset()
	r.emit(EventMarketUpdate, r.market.Snapshot())
	r.log.Info().Msg("Market reset")
}
