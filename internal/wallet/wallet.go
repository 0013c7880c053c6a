// Package wallet manages per-agent keypairs and on-chain movement.
// Keys are derived deterministically from a master seed and held
// behind signing closures; nothing in this package ever exposes or
// logs private key bytes, and errors carry addresses only.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/autarch-dev/autarch/internal/rpc"
	"github.com/autarch-dev/autarch/pkg/types"
)

// TreasuryID is the reserved agent id for the funding wallet.
const TreasuryID = 0

// Faucet airdrops are throttled locally so retries never hammer the
// faucet: one request per 10 seconds with a burst of 2.
const (
	airdropInterval = 10 * time.Second
	airdropBurst    = 2
)

// Agent is one derived wallet. The private key lives only inside the
// sign closure.
type Agent struct {
	ID      int
	Address string

	sign func(message []byte) []byte
}

// Manager derives and caches agent wallets over a master seed.
type Manager struct {
	mu      sync.Mutex
	seed    []byte
	agents  map[int]*Agent
	client  *rpc.Client
	faucet  *rate.Limiter
	log     zerolog.Logger
}

// NewManager builds a Manager over the master seed. The seed must be
// at least 16 bytes of entropy.
func NewManager(seed []byte, client *rpc.Client, log zerolog.Logger) (*Manager, error) {
	if len(seed) < 16 {
		return nil, fmt.Errorf("wallet seed too short: need at least 16 bytes, got %d", len(seed))
	}
	m := &Manager{
		seed:   append([]byte(nil), seed...),
		agents: make(map[int]*Agent),
		client: client,
		faucet: rate.NewLimiter(rate.Every(airdropInterval), airdropBurst),
		log:    log.With().Str("component", "wallet").Logger(),
	}
	return m, nil
}

// GetAgent returns the wallet for the given agent id, deriving it on
// first use.
func (m *Manager) GetAgent(id int) *Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[id]; ok {
		return a
	}

	mac := hmac.New(sha512.New, m.seed)
	fmt.Fprintf(mac, "autarch/agent/%d", id)
	key := ed25519.NewKeyFromSeed(mac.Sum(nil)[:ed25519.SeedSize])
	pub := key.Public().(ed25519.PublicKey)

	a := &Agent{
		ID:      id,
		Address: base58.Encode(pub),
		sign: func(message []byte) []byte {
			return ed25519.Sign(key, message)
		},
	}
	m.agents[id] = a
	m.log.Debug().Int("agentId", id).Str("address", a.Address).Msg("Derived agent wallet")
	return a
}

// Treasury returns the funding wallet.
func (m *Manager) Treasury() *Agent { return m.GetAgent(TreasuryID) }

// GetAddress returns the agent's base58 address.
func (m *Manager) GetAddress(agentID int) string { return m.GetAgent(agentID).Address }

// GetBalance fetches the agent's on-chain balance.
func (m *Manager) GetBalance(ctx context.Context, agentID int) (types.Balance, error) {
	return m.client.GetBalance(ctx, m.GetAgent(agentID).Address)
}

// RequestAirdrop asks the faucet to fund the agent, paced by the local
// throttle.
func (m *Manager) RequestAirdrop(ctx context.Context, agentID int, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", fmt.Errorf("airdrop amount must be positive")
	}
	agent := m.GetAgent(agentID)
	if err := m.faucet.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for airdrop slot: %w", err)
	}
	sig, err := m.client.RequestAirdrop(ctx, agent.Address, lamports)
	if err != nil {
		return "", err
	}
	m.log.Info().
		Int("agentId", agentID).
		Str("address", agent.Address).
		Uint64("lamports", lamports).
		Str("signature", sig).
		Msg("Airdrop requested")
	return sig, nil
}

// Transfer moves lamports from an agent's wallet to a recipient
// address. Each submission attempt signs against a fresh blockhash.
func (m *Manager) Transfer(ctx context.Context, fromID int, toAddress string, lamports uint64) (types.TransactionResult, error) {
	if lamports == 0 {
		return types.TransactionResult{}, fmt.Errorf("transfer amount must be positive")
	}
	from := m.GetAgent(fromID)
	if toAddress == from.Address {
		return types.TransactionResult{}, fmt.Errorf("transfer to own address %s refused", from.Address)
	}
	to, err := base58.Decode(toAddress)
	if err != nil || len(to) != 32 {
		return types.TransactionResult{}, fmt.Errorf("recipient address %q is not a valid base58 public key", toAddress)
	}
	fromKey, err := base58.Decode(from.Address)
	if err != nil {
		return types.TransactionResult{}, fmt.Errorf("decoding sender address: %w", err)
	}

	result, err := m.client.SendAndConfirm(ctx, func(ctx context.Context) (string, error) {
		bh, err := m.client.GetLatestBlockhash(ctx)
		if err != nil {
			return "", err
		}
		msg, err := buildTransferMessage(fromKey, to, bh.Value, lamports)
		if err != nil {
			return "", err
		}
		return encodeTransaction(from.sign(msg), msg), nil
	})
	if err != nil {
		return types.TransactionResult{}, err
	}
	m.log.Info().
		Int("fromAgentId", fromID).
		Str("to", toAddress).
		Uint64("lamports", lamports).
		Str("signature", result.Signature).
		Str("status", string(result.Status)).
		Msg("Transfer submitted")
	return result, nil
}

// DistributeSol funds a child agent from the treasury. The treasury
// cannot fund itself and zero-lamport grants are refused.
func (m *Manager) DistributeSol(ctx context.Context, childID int, lamports uint64) (types.TransactionResult, error) {
	if childID == TreasuryID {
		return types.TransactionResult{}, fmt.Errorf("refusing to distribute to the treasury itself")
	}
	if lamports == 0 {
		return types.TransactionResult{}, fmt.Errorf("distribution amount must be positive")
	}
	return m.Transfer(ctx, TreasuryID, m.GetAgent(childID).Address, lamports)
}
