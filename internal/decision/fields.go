package decision

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/pkg/types"
)

// Context carries everything one evaluation may look at: the agent's
// own frozen state, the market snapshot, the rule set under evaluation,
// and the sibling agents' last-known states. The caller guarantees all
// of it is immutable for the duration of the evaluation.
type Context struct {
	State  *types.AgentState
	Market types.MarketData
	Rules  []types.Rule
	Peers  []*types.AgentState
}

// FieldResolver maps a textual field name to a primitive value drawn
// from the market snapshot, the agent's own state, or a peer's state.
type FieldResolver struct {
	log zerolog.Logger
}

// NewFieldResolver creates a resolver logging through the given logger.
func NewFieldResolver(log zerolog.Logger) *FieldResolver {
	return &FieldResolver{log: log}
}

// Resolve returns the field's value (float64 or string) and whether the
// value came from a peer currently in error state. Unknown fields and
// missing peers resolve to 0 with a warning.
func (r *FieldResolver) Resolve(field string, ctx *Context) (any, bool) {
	if strings.HasPrefix(field, "peer.") {
		return r.resolvePeer(field, ctx)
	}

	if v, ok := resolveMarket(field, ctx.Market); ok {
		return v, false
	}
	if v, ok := resolveSelf(field, ctx.State); ok {
		return v, false
	}

	r.log.Warn().Str("field", field).Msg("Unknown field in rule condition, resolving to 0")
	return float64(0), false
}

func resolveMarket(field string, m types.MarketData) (float64, bool) {
	switch field {
	case "price":
		return m.Price, true
	case "price_change", "price_change_1m":
		return m.PriceChange1m, true
	case "price_change_5m":
		return m.PriceChange5m, true
	case "price_drop":
		return math.Max(0, -m.PriceChange1m), true
	case "price_rise":
		return math.Max(0, m.PriceChange1m), true
	case "volume_change", "volume_change_1m":
		return m.VolumeChange1m, true
	case "volume_spike":
		return math.Max(0, m.VolumeChange1m), true
	}
	return 0, false
}

// resolveSelf serves the agent's own field vocabulary. last_action is
// a peer-only subfield and is not addressable here.
func resolveSelf(field string, s *types.AgentState) (any, bool) {
	if field == "last_action" {
		return nil, false
	}
	return resolveAgentField(field, s)
}

func resolveAgentField(field string, s *types.AgentState) (any, bool) {
	if s == nil {
		return nil, false
	}
	switch field {
	case "balance":
		return s.Balance, true
	case "position_size":
		return s.PositionSize, true
	case "consecutive_wins":
		return float64(s.ConsecutiveWins), true
	case "consecutive_errors":
		return float64(s.ConsecutiveErrors), true
	case "tick_count":
		return float64(s.TickCount), true
	case "status":
		return string(s.Status), true
	case "last_trade_amount":
		return s.LastTradeAmount, true
	case "last_trade_result", "last_action":
		return lastActionVerb(s.LastAction), true
	}
	return nil, false
}

// lastActionVerb extracts the leading verb from a recorded action
// string, or "none" when there is no action or the action starts with
// "none".
func lastActionVerb(lastAction *string) string {
	if lastAction == nil {
		return "none"
	}
	fields := strings.Fields(*lastAction)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "none") {
		return "none"
	}
	return fields[0]
}

// resolvePeer handles peer.<name-or-id>.<subfield> lookups. Name match
// is case-insensitive; a numeric-only token matches the agent id.
func (r *FieldResolver) resolvePeer(field string, ctx *Context) (any, bool) {
	parts := strings.SplitN(field, ".", 3)
	if len(parts) < 3 {
		return float64(0), false
	}
	token, subfield := parts[1], parts[2]

	peer := findPeer(token, ctx.Peers)
	if peer == nil {
		r.log.Warn().Str("field", field).Str("peer", token).Msg("Peer not found, resolving to 0")
		return float64(0), false
	}

	stale := peer.Status == types.StatusError
	v, ok := resolveAgentField(subfield, peer)
	if !ok {
		r.log.Warn().Str("field", field).Str("subfield", subfield).Msg("Unknown peer subfield, resolving to 0")
		return float64(0), stale
	}
	return v, stale
}

func findPeer(token string, peers []*types.AgentState) *types.AgentState {
	if id, err := strconv.Atoi(token); err == nil {
		for _, p := range peers {
			if p.AgentID == id {
				return p
			}
		}
		return nil
	}
	for _, p := range peers {
		if strings.EqualFold(p.Name, token) {
			return p
		}
	}
	return nil
}
