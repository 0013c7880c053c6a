package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/internal/market"
	"github.com/autarch-dev/autarch/pkg/types"
)

type stubWallet struct{}

func (stubWallet) GetAddress(agentID int) string {
	if agentID == 0 {
		return "TreasuryAddr"
	}
	return "AgentAddr"
}

func (stubWallet) GetBalance(context.Context, int) (types.Balance, error) {
	return types.Balance{Lamports: 1_000_000_000, Sol: 1.0}, nil
}

func (stubWallet) Transfer(context.Context, int, string, uint64) (types.TransactionResult, error) {
	return types.TransactionResult{Signature: "Sig", Status: types.ExecutionConfirmed, Mode: "normal"}, nil
}

func quietConfig(name string) types.AgentConfig {
	return types.AgentConfig{
		Name:       name,
		Strategy:   "observer",
		IntervalMs: 3_600_000,
		Rules: []types.Rule{{
			Name:       "never",
			Conditions: []types.Condition{{Field: "price_drop", Operator: types.OpGreater, Threshold: 1000.0}},
			Action:     types.ActionBuy,
			Amount:     0.1,
			Weight:     80,
		}},
	}
}

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	r := New(market.NewSimulator(1), stubWallet{}, zerolog.Nop())
	t.Cleanup(r.Stop)
	return r
}

type capture struct {
	mu       sync.Mutex
	payloads []any
}

func (c *capture) handler() Handler {
	return func(p any) {
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		c.mu.Unlock()
	}
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *capture) at(i int) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloads[i]
}

func TestAddAgentRejectsDuplicateID(t *testing.T) {
	r := newRuntime(t)
	_, err := r.AddAgent(1, quietConfig("Alpha"))
	require.NoError(t, err)
	_, err = r.AddAgent(1, quietConfig("AlphaTwin"))
	assert.ErrorContains(t, err, "already registered")
}

func TestGetStatesInsertionOrderAndFrozen(t *testing.T) {
	r := newRuntime(t)
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := r.AddAgent(i+1, quietConfig(name))
		require.NoError(t, err)
	}

	states := r.GetStates()
	require.Len(t, states, 3)
	assert.Equal(t, "Alpha", states[0].Name)
	assert.Equal(t, "Gamma", states[2].Name)

	states[0].Name = "mutated"
	assert.Equal(t, "Alpha", r.GetStates()[0].Name, "returned snapshots are copies")
}

func TestPeerSupplierExcludesSelf(t *testing.T) {
	r := newRuntime(t)
	_, err := r.AddAgent(1, quietConfig("Alpha"))
	require.NoError(t, err)
	_, err = r.AddAgent(2, quietConfig("Beta"))
	require.NoError(t, err)

	peers := r.peersFor(1)()
	require.Len(t, peers, 1)
	assert.Equal(t, 2, peers[0].AgentID)

	peers[0].Balance = 99
	assert.Zero(t, r.peersFor(1)()[0].Balance, "peer vector entries are defensive copies")
}

func TestStateUpdateRefreshesPeerMirror(t *testing.T) {
	r := newRuntime(t)
	_, err := r.AddAgent(1, quietConfig("Alpha"))
	require.NoError(t, err)
	_, err = r.AddAgent(2, quietConfig("Beta"))
	require.NoError(t, err)

	updates := &capture{}
	r.On(EventStateUpdate, updates.handler())

	require.NoError(t, r.StartAgent(1))
	require.Eventually(t, func() bool { return updates.len() > 0 }, 2*time.Second, 5*time.Millisecond)

	peers := r.peersFor(2)()
	require.Len(t, peers, 1)
	assert.Equal(t, 1.0, peers[0].Balance, "mirror reflects the ticked balance")

	states, ok := updates.at(0).([]*types.AgentState)
	require.True(t, ok)
	assert.Len(t, states, 2, "stateUpdate carries every agent's frozen state")
}

func TestStopEmitsSingleStoppedLifecycle(t *testing.T) {
	r := newRuntime(t)
	_, err := r.AddAgent(1, quietConfig("Alpha"))
	require.NoError(t, err)

	events := &capture{}
	r.On(EventAgentLifecycle, events.handler())

	require.NoError(t, r.StartAgent(1))
	require.NoError(t, r.StopAgent(1))
	require.NoError(t, r.StopAgent(1))

	stopped := 0
	for i := 0; i < events.len(); i++ {
		if p := events.at(i).(LifecyclePayload); p.Event == "stopped" {
			stopped++
			assert.NotZero(t, p.Timestamp)
		}
	}
	assert.Equal(t, 1, stopped, "duplicate stop emits no second event")
}

func TestReloadRules(t *testing.T) {
	r := newRuntime(t)
	_, err := r.AddAgent(1, quietConfig("Alpha"))
	require.NoError(t, err)

	reloads := &capture{}
	r.On(EventRulesReloaded, reloads.handler())

	next := quietConfig("AlphaPrime")
	require.NoError(t, r.ReloadRules(1, next, "alpha.json"))
	require.Equal(t, 1, reloads.len())
	p := reloads.at(0).(RulesReloadedPayload)
	assert.True(t, p.Success)
	assert.Equal(t, "alpha.json", p.FileName)
	assert.Equal(t, "AlphaPrime", r.GetStates()[0].Name)

	err = r.ReloadRules(9, next, "ghost.json")
	require.Error(t, err)
	p = reloads.at(1).(RulesReloadedPayload)
	assert.False(t, p.Success)
	assert.NotEmpty(t, p.Error)
}

func TestMarketControlBroadcasts(t *testing.T) {
	r := newRuntime(t)
	updates := &capture{}
	r.On(EventMarketUpdate, updates.handler())

	r.InjectDip(10)
	r.InjectRally(5)
	r.ResetMarket()

	require.Equal(t, 3, updates.len())
	data, ok := updates.at(0).(types.MarketData)
	require.True(t, ok)
	assert.Greater(t, data.Price, 0.0)
	assert.Equal(t, types.MarketSourceSimulated, data.Source)
}

func TestNotifySimulationMode(t *testing.T) {
	r := newRuntime(t)
	modes := &capture{}
	r.On(EventSimulationMode, modes.handler())

	r.NotifySimulationMode(true, "3 consecutive network failures")
	require.Equal(t, 1, modes.len())
	p := modes.at(0).(SimulationModePayload)
	assert.True(t, p.Active)
	assert.Equal(t, "3 consecutive network failures", p.Reason)
	assert.NotZero(t, p.Timestamp)
}
