package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an RPC failure. The class drives retry policy and
// whether the failure counts toward the simulation-mode threshold.
type Kind int

const (
	// KindNetwork covers connection failures, timeouts, and 5xx
	// responses. Retryable; counts toward simulation entry.
	KindNetwork Kind = iota
	// KindRateLimit is HTTP 429 on read calls. Retryable with doubled
	// backoff; counts toward simulation entry.
	KindRateLimit
	// KindTransaction is a chain-side rejection at submit time.
	// Not retryable; surfaces to the caller unchanged.
	KindTransaction
	// KindRequest is a malformed-parameter failure on a read call.
	// Not retryable.
	KindRequest
	// KindAirdropRateLimited is the faucet refusing an airdrop. Not a
	// connectivity problem: never counts toward simulation entry.
	KindAirdropRateLimited
)

func (k Kind) tag() string {
	switch k {
	case KindNetwork, KindRateLimit:
		return "[RPC_NETWORK_ERROR]"
	case KindTransaction:
		return "[RPC_TRANSACTION_ERROR]"
	case KindRequest:
		return "[RPC_REQUEST_ERROR]"
	case KindAirdropRateLimited:
		return "[RPC_AIRDROP_RATE_LIMITED]"
	}
	return "[RPC_ERROR]"
}

// Retryable reports whether the retry loop may try again.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimit
}

// CountsTowardSimulation reports whether the failure advances the
// consecutive-network-failure counter.
func (k Kind) CountsTowardSimulation() bool {
	return k == KindNetwork || k == KindRateLimit
}

// Error is a classified RPC failure. Its message carries the class tag
// so operators can grep logs by failure family.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind.tag(), e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind.tag(), e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from an error chain, defaulting
// unclassified errors to the network class.
func KindOf(err error) Kind {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return KindNetwork
}

// transactionErrorFragments are chain rejection messages produced at
// submit time.
var transactionErrorFragments = []string{
	"insufficient funds",
	"insufficient lamports",
	"program error",
	"custom program error",
	"transaction simulation failed",
	"blockhash not found",
	"already been processed",
	"signature verification failure",
}

// networkErrorFragments identify transport-level failures from the
// error text when no HTTP status is available.
var networkErrorFragments = []string{
	"econnrefused",
	"etimedout",
	"fetch failed",
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"eof",
	"broken pipe",
}

// classifyTransport classifies an error raised before any JSON-RPC
// response was decoded (transport failures and HTTP status errors).
func classifyTransport(op string, statusCode int, err error) *Error {
	if statusCode == 429 {
		return &Error{Kind: KindRateLimit, Op: op, Msg: "rate limited by endpoint", Err: err}
	}
	if statusCode >= 500 {
		return &Error{Kind: KindNetwork, Op: op, Msg: fmt.Sprintf("endpoint returned HTTP %d", statusCode), Err: err}
	}
	if err != nil {
		lower := strings.ToLower(err.Error())
		for _, frag := range networkErrorFragments {
			if strings.Contains(lower, frag) {
				return &Error{Kind: KindNetwork, Op: op, Msg: "network failure", Err: err}
			}
		}
		// Transport errors with unknown text are still connectivity
		// problems from the caller's point of view.
		return &Error{Kind: KindNetwork, Op: op, Msg: "transport failure", Err: err}
	}
	return &Error{Kind: KindRequest, Op: op, Msg: fmt.Sprintf("unexpected HTTP %d", statusCode)}
}

// classifyRPCError classifies a JSON-RPC level error. Submit-time
// failures are transaction errors when the message matches a known
// chain rejection; read-call failures are request errors.
func classifyRPCError(op string, submit bool, code int, message string) *Error {
	if submit {
		lower := strings.ToLower(message)
		for _, frag := range transactionErrorFragments {
			if strings.Contains(lower, frag) {
				return &Error{Kind: KindTransaction, Op: op, Msg: message}
			}
		}
		return &Error{Kind: KindTransaction, Op: op, Msg: fmt.Sprintf("submit rejected (code %d): %s", code, message)}
	}
	if strings.Contains(strings.ToLower(message), "airdrop") && strings.Contains(strings.ToLower(message), "limit") {
		return &Error{Kind: KindAirdropRateLimited, Op: op, Msg: message}
	}
	return &Error{Kind: KindRequest, Op: op, Msg: fmt.Sprintf("request rejected (code %d): %s", code, message)}
}
