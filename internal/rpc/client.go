// Package rpc implements the Solana JSON-RPC client with retry,
// endpoint rotation, and a three-state resilience machine: normal,
// degraded (serving from a non-primary endpoint), and simulation
// (synthetic results after repeated connectivity loss, with a
// background health probe to recover).
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/internal/metrics"
	"github.com/autarch-dev/autarch/pkg/types"
)

// Mode is the client's connection mode.
type Mode string

const (
	// ModeNormal serves from the primary endpoint.
	ModeNormal Mode = "normal"
	// ModeDegraded serves from a non-primary endpoint after rotation.
	ModeDegraded Mode = "degraded"
	// ModeSimulation serves synthetic results without touching the
	// network. Entered after repeated connectivity failures, exited
	// when the health probe sees the primary endpoint recover.
	ModeSimulation Mode = "simulation"
)

const (
	// DefaultEndpoint is the public devnet endpoint.
	DefaultEndpoint = "https://api.devnet.solana.com"
	// DefaultMaxRetries is the retry count after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential backoff.
	DefaultBaseDelay = 1000 * time.Millisecond
	// DefaultHealthCheckInterval paces the simulation-mode probe.
	DefaultHealthCheckInterval = 30 * time.Second

	// simulationFailureThreshold is the consecutive network-failure
	// count that flips the client into simulation mode.
	simulationFailureThreshold = 3
	// retryBudget caps the cumulative backoff sleep within one call.
	retryBudget = 5000 * time.Millisecond

	requestTimeout = 10 * time.Second

	simulatedBlockhash = "11111111111111111111111111111111"
)

// ModeChangeFunc is notified when simulation mode is entered (active
// true) or exited (active false).
type ModeChangeFunc func(active bool, reason string)

// Config configures a Client. Zero-value duration and retry fields are
// replaced with defaults; use DefaultConfig as the starting point when
// the defaults are wanted explicitly (MaxRetries 0 is meaningful and
// therefore encoded as a negative sentinel in Config).
type Config struct {
	// Endpoints in priority order; the first is the primary.
	Endpoints []string
	// MaxRetries after the first attempt. Negative selects the
	// default; zero disables retries.
	MaxRetries int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration
	// HealthCheckInterval paces the simulation-mode recovery probe.
	HealthCheckInterval time.Duration
	// OnSimulationModeChange is invoked on simulation entry and exit.
	OnSimulationModeChange ModeChangeFunc
	Logger                 zerolog.Logger
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Endpoints:           []string{DefaultEndpoint},
		MaxRetries:          DefaultMaxRetries,
		BaseDelay:           DefaultBaseDelay,
		HealthCheckInterval: DefaultHealthCheckInterval,
	}
}

// Blockhash is a recent blockhash with its validity horizon.
type Blockhash struct {
	Value                string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Client is the resilient JSON-RPC client. Safe for concurrent use.
type Client struct {
	mu          sync.Mutex
	http        *resty.Client
	endpoints   []string
	endpointIdx int
	mode        Mode
	failures    int
	healthStop  context.CancelFunc

	maxRetries     int
	baseDelay      time.Duration
	healthInterval time.Duration
	onModeChange   ModeChangeFunc

	// balanceCache remembers the last confirmed balance per address so
	// simulation mode can serve a plausible value.
	balanceCache map[string]types.Balance

	log zerolog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	endpoints := make([]string, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	if len(endpoints) == 0 {
		endpoints = []string{DefaultEndpoint}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	healthInterval := cfg.HealthCheckInterval
	if healthInterval <= 0 {
		healthInterval = DefaultHealthCheckInterval
	}

	c := &Client{
		http:           resty.New().SetTimeout(requestTimeout),
		endpoints:      endpoints,
		mode:           ModeNormal,
		maxRetries:     maxRetries,
		baseDelay:      baseDelay,
		healthInterval: healthInterval,
		onModeChange:   cfg.OnSimulationModeChange,
		balanceCache:   make(map[string]types.Balance),
		log:            cfg.Logger.With().Str("component", "rpc").Logger(),
		sleep:          sleepFor,
	}
	metrics.RPCMode.Set(0)
	return c
}

func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mode returns the current connection mode.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Endpoint returns the endpoint currently in use.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.endpointIdx]
}

// SetOnSimulationModeChange installs the mode-change callback. Call
// it during wiring, before the first operation.
func (c *Client) SetOnSimulationModeChange(fn ModeChangeFunc) {
	c.mu.Lock()
	c.onModeChange = fn
	c.mu.Unlock()
}

// Cleanup stops the background health probe. Idempotent.
func (c *Client) Cleanup() {
	c.mu.Lock()
	stop := c.healthStop
	c.healthStop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// --- wire plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

// post performs one JSON-RPC exchange against endpoint and classifies
// any failure. submit marks transaction submission so chain rejections
// classify as transaction errors.
func (c *Client) post(ctx context.Context, endpoint, op, method string, params []any, submit bool) (json.RawMessage, error) {
	var env rpcEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}).
		SetResult(&env).
		Post(endpoint)
	if err != nil {
		return nil, classifyTransport(op, 0, err)
	}
	if resp.IsError() {
		return nil, classifyTransport(op, resp.StatusCode(), nil)
	}
	if env.Error != nil {
		return nil, classifyRPCError(op, submit, env.Error.Code, env.Error.Message)
	}
	return env.Result, nil
}

// withRetry runs call with rotation, exponential backoff, and the
// failure accounting that drives the mode machine. simulated supplies
// the synthetic result served in simulation mode.
func withRetry[T any](ctx context.Context, c *Client, op string, airdrop bool,
	call func(ctx context.Context, endpoint string) (T, error),
	simulated func() T) (T, error) {

	var zero T
	if c.Mode() == ModeSimulation {
		return simulated(), nil
	}

	var slept time.Duration
	var lastErr error
	for attempt := 0; ; attempt++ {
		endpoint := c.Endpoint()
		result, err := call(ctx, endpoint)
		if err == nil {
			c.onSuccess(op)
			return result, nil
		}
		lastErr = err

		kind := KindOf(err)
		metrics.RPCFailuresTotal.WithLabelValues(kind.tag()).Inc()
		c.log.Warn().
			Err(err).
			Str("op", op).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Msg("RPC call failed")

		// Faucet rate limiting is not a connectivity signal.
		if kind.CountsTowardSimulation() && !(airdrop && kind == KindRateLimit) {
			if c.recordFailure(op, err) {
				return simulated(), nil
			}
		}
		if !kind.Retryable() {
			return zero, err
		}
		if attempt >= c.maxRetries {
			break
		}

		c.rotate()

		delay := c.baseDelay << attempt
		if kind == KindRateLimit {
			delay *= 2
		}
		if slept+delay > retryBudget {
			delay = retryBudget - slept
		}
		if delay <= 0 {
			break
		}
		slept += delay
		if err := c.sleep(ctx, delay); err != nil {
			return zero, &Error{Kind: KindRequest, Op: op, Msg: "cancelled while backing off", Err: err}
		}
	}

	if airdrop && KindOf(lastErr) == KindRateLimit {
		return zero, &Error{Kind: KindAirdropRateLimited, Op: op, Msg: "retrying exhausted at the faucet", Err: lastErr}
	}
	return zero, &Error{Kind: KindOf(lastErr), Op: op, Msg: "retrying exhausted", Err: lastErr}
}

// rotate advances to the next endpoint in priority order.
func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.endpoints) < 2 {
		return
	}
	c.endpointIdx = (c.endpointIdx + 1) % len(c.endpoints)
	c.log.Info().Str("endpoint", c.endpoints[c.endpointIdx]).Msg("Rotated RPC endpoint")
}

// recordFailure advances the consecutive-failure counter and reports
// whether the client just entered simulation mode.
func (c *Client) recordFailure(op string, err error) bool {
	c.mu.Lock()
	if c.mode == ModeSimulation {
		c.mu.Unlock()
		return true
	}
	c.failures++
	if c.failures < simulationFailureThreshold {
		c.mu.Unlock()
		return false
	}
	c.mode = ModeSimulation
	failures := c.failures
	notify := c.onModeChange
	c.startHealthProbeLocked()
	c.mu.Unlock()

	metrics.RPCMode.Set(2)
	reason := fmt.Sprintf("%d consecutive network failures", failures)
	c.log.Error().Err(err).Str("op", op).Int("failures", failures).Msg("Entering simulation mode")
	if notify != nil {
		notify(true, reason)
	}
	return true
}

// onSuccess resets the failure counter and settles the mode from the
// serving endpoint's position.
func (c *Client) onSuccess(op string) {
	c.mu.Lock()
	c.failures = 0
	old := c.mode
	if c.endpointIdx == 0 {
		c.mode = ModeNormal
	} else {
		c.mode = ModeDegraded
	}
	mode := c.mode
	c.mu.Unlock()

	if mode == old {
		return
	}
	switch mode {
	case ModeNormal:
		metrics.RPCMode.Set(0)
	case ModeDegraded:
		metrics.RPCMode.Set(1)
	}
	c.log.Info().Str("op", op).Str("mode", string(mode)).Msg("RPC mode changed")
}

// --- health probe ---

// startHealthProbeLocked launches the recovery probe. Caller holds mu.
func (c *Client) startHealthProbeLocked() {
	if c.healthStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.healthStop = cancel
	go c.healthLoop(ctx)
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.GetHealth(ctx); err != nil {
				c.log.Debug().Err(err).Msg("Health probe failed, staying in simulation mode")
				continue
			}
			c.recoverFromProbe()
			return
		}
	}
}

// recoverFromProbe exits simulation mode after a successful probe.
func (c *Client) recoverFromProbe() {
	c.mu.Lock()
	if c.mode != ModeSimulation {
		c.mu.Unlock()
		return
	}
	c.mode = ModeNormal
	c.failures = 0
	c.endpointIdx = 0
	notify := c.onModeChange
	stop := c.healthStop
	c.healthStop = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	metrics.RPCMode.Set(0)
	c.log.Info().Msg("Health check succeeded, resuming normal RPC mode")
	if notify != nil {
		notify(false, "Health check succeeded")
	}
}

// GetHealth probes the primary endpoint directly, bypassing the retry
// loop and the mode machine.
func (c *Client) GetHealth(ctx context.Context) error {
	c.mu.Lock()
	primary := c.endpoints[0]
	c.mu.Unlock()

	raw, err := c.post(ctx, primary, "getHealth", "getHealth", nil, false)
	if err != nil {
		return err
	}
	var status string
	if err := json.Unmarshal(raw, &status); err != nil || status != "ok" {
		return &Error{Kind: KindNetwork, Op: "getHealth", Msg: "endpoint not healthy"}
	}
	return nil
}

// --- operations ---

// GetBalance fetches the balance for a base58 address. In simulation
// mode it serves the last confirmed balance, or zero when the address
// was never observed.
func (c *Client) GetBalance(ctx context.Context, address string) (types.Balance, error) {
	return withRetry(ctx, c, "getBalance", false,
		func(ctx context.Context, endpoint string) (types.Balance, error) {
			raw, err := c.post(ctx, endpoint, "getBalance", "getBalance", []any{address}, false)
			if err != nil {
				return types.Balance{}, err
			}
			var out struct {
				Value uint64 `json:"value"`
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return types.Balance{}, &Error{Kind: KindRequest, Op: "getBalance", Msg: "malformed balance response", Err: err}
			}
			bal := types.Balance{Lamports: out.Value, Sol: float64(out.Value) / types.LamportsPerSol}
			c.mu.Lock()
			c.balanceCache[address] = bal
			c.mu.Unlock()
			return bal, nil
		},
		func() types.Balance {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.balanceCache[address]
		})
}

// GetLatestBlockhash fetches a recent blockhash. The simulated value
// is a fixed all-ones hash with block height zero.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	return withRetry(ctx, c, "getLatestBlockhash", false,
		func(ctx context.Context, endpoint string) (Blockhash, error) {
			raw, err := c.post(ctx, endpoint, "getLatestBlockhash", "getLatestBlockhash", nil, false)
			if err != nil {
				return Blockhash{}, err
			}
			var out struct {
				Value Blockhash `json:"value"`
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return Blockhash{}, &Error{Kind: KindRequest, Op: "getLatestBlockhash", Msg: "malformed blockhash response", Err: err}
			}
			return out.Value, nil
		},
		func() Blockhash {
			return Blockhash{Value: simulatedBlockhash, LastValidBlockHeight: 0}
		})
}

// RequestAirdrop asks the faucet for lamports. Faucet rate limiting is
// surfaced as its own class and never drives simulation entry. The
// simulated signature carries the sim- prefix.
func (c *Client) RequestAirdrop(ctx context.Context, address string, lamports uint64) (string, error) {
	return withRetry(ctx, c, "requestAirdrop", true,
		func(ctx context.Context, endpoint string) (string, error) {
			raw, err := c.post(ctx, endpoint, "requestAirdrop", "requestAirdrop", []any{address, lamports}, false)
			if err != nil {
				return "", err
			}
			var sig string
			if err := json.Unmarshal(raw, &sig); err != nil {
				return "", &Error{Kind: KindRequest, Op: "requestAirdrop", Msg: "malformed airdrop response", Err: err}
			}
			return sig, nil
		},
		simSignature)
}

// SendAndConfirm submits a signed transaction produced by build. The
// factory runs once per attempt so each retry signs against a fresh
// blockhash. In simulation mode no transaction is built; a synthetic
// confirmed-as-simulated result is returned.
func (c *Client) SendAndConfirm(ctx context.Context, build func(ctx context.Context) (string, error)) (types.TransactionResult, error) {
	return withRetry(ctx, c, "sendTransaction", false,
		func(ctx context.Context, endpoint string) (types.TransactionResult, error) {
			signed, err := build(ctx)
			if err != nil {
				return types.TransactionResult{}, &Error{Kind: KindRequest, Op: "sendTransaction", Msg: "building transaction failed", Err: err}
			}
			raw, err := c.post(ctx, endpoint, "sendTransaction", "sendTransaction",
				[]any{signed, map[string]any{"encoding": "base64"}}, true)
			if err != nil {
				return types.TransactionResult{}, err
			}
			var sig string
			if err := json.Unmarshal(raw, &sig); err != nil {
				return types.TransactionResult{}, &Error{Kind: KindRequest, Op: "sendTransaction", Msg: "malformed send response", Err: err}
			}
			c.awaitConfirmation(ctx, endpoint, sig)
			return types.TransactionResult{
				Signature: sig,
				Status:    types.ExecutionConfirmed,
				Mode:      string(c.Mode()),
			}, nil
		},
		func() types.TransactionResult {
			return types.TransactionResult{
				Signature: simSignature(),
				Status:    types.ExecutionSimulated,
				Mode:      string(ModeSimulation),
			}
		})
}

// SendAndConfirmSigned submits an already-signed transaction. Retries
// reuse the same bytes; prefer SendAndConfirm with a factory when the
// blockhash should stay fresh across attempts.
func (c *Client) SendAndConfirmSigned(ctx context.Context, signed string) (types.TransactionResult, error) {
	return c.SendAndConfirm(ctx, func(context.Context) (string, error) {
		return signed, nil
	})
}

// awaitConfirmation polls signature status briefly. Confirmation is
// best effort: submission already succeeded, so polling failures are
// logged and swallowed.
func (c *Client) awaitConfirmation(ctx context.Context, endpoint, signature string) {
	for i := 0; i < 3; i++ {
		raw, err := c.post(ctx, endpoint, "getSignatureStatuses", "getSignatureStatuses",
			[]any{[]string{signature}}, false)
		if err == nil {
			var out struct {
				Value []*struct {
					ConfirmationStatus string `json:"confirmationStatus"`
				} `json:"value"`
			}
			if json.Unmarshal(raw, &out) == nil && len(out.Value) > 0 && out.Value[0] != nil {
				return
			}
		}
		if sleepErr := c.sleep(ctx, 400*time.Millisecond); sleepErr != nil {
			return
		}
	}
	c.log.Debug().Str("signature", signature).Msg("Transaction not yet confirmed after polling")
}

func simSignature() string {
	return "sim-" + uuid.NewString()
}
