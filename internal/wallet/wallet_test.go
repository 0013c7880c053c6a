package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/internal/rpc"
)

var testSeed = []byte("0123456789abcdef0123456789abcdef")

func testManager(t *testing.T, endpoint string) *Manager {
	t.Helper()
	client := rpc.NewClient(rpc.Config{
		Endpoints:  []string{endpoint},
		MaxRetries: 0,
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(client.Cleanup)
	m, err := NewManager(testSeed, client, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestDerivationIsDeterministic(t *testing.T) {
	a, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)
	b, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, a.GetAgent(1).Address, b.GetAgent(1).Address)
	assert.NotEqual(t, a.GetAgent(1).Address, a.GetAgent(2).Address)
	assert.Same(t, a.GetAgent(1), a.GetAgent(1), "agents are cached")
}

func TestSeedTooShortRejected(t *testing.T) {
	_, err := NewManager([]byte("abc123"), nil, zerolog.Nop())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "abc123", "seed bytes must not leak into errors")
}

func TestSignatureVerifiesAgainstAddress(t *testing.T) {
	m, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)

	agent := m.GetAgent(3)
	msg := []byte("tick")
	sig := agent.sign(msg)

	pub, err := base58.Decode(agent.Address)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), msg, sig))
}

func TestCompactU16Encoding(t *testing.T) {
	assert.Equal(t, []byte{0}, appendCompactU16(nil, 0))
	assert.Equal(t, []byte{0x7f}, appendCompactU16(nil, 0x7f))
	assert.Equal(t, []byte{0x80, 0x01}, appendCompactU16(nil, 0x80))
	assert.Equal(t, []byte{0xff, 0x7f}, appendCompactU16(nil, 0x3fff))
}

func TestTransferSubmitsVerifiableTransaction(t *testing.T) {
	var submitted string
	blockhash := base58.Encode(make([]byte, 32))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var result any
		switch req.Method {
		case "getLatestBlockhash":
			result = map[string]any{"value": map[string]any{"blockhash": blockhash, "lastValidBlockHeight": 100}}
		case "sendTransaction":
			require.NoError(t, json.Unmarshal(req.Params[0], &submitted))
			result = "TxSig"
		case "getSignatureStatuses":
			result = map[string]any{"value": []any{map[string]any{"confirmationStatus": "confirmed"}}}
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	defer srv.Close()

	m := testManager(t, srv.URL)
	recipient := m.GetAgent(2).Address

	res, err := m.Transfer(context.Background(), 1, recipient, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, "TxSig", res.Signature)

	raw, err := base64.StdEncoding.DecodeString(submitted)
	require.NoError(t, err)
	require.Equal(t, byte(1), raw[0], "one signature")
	sig := raw[1:65]
	msg := raw[65:]

	pub, err := base58.Decode(m.GetAgent(1).Address)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), msg, sig),
		"submitted transaction must be signed by the sender")

	// Header, then account table: sender, recipient, system program.
	assert.Equal(t, []byte{1, 0, 1, 3}, msg[:4])
	assert.Equal(t, pub, []byte(msg[4:36]))
	to, _ := base58.Decode(recipient)
	assert.Equal(t, to, []byte(msg[36:68]))
	assert.Equal(t, systemProgramID, []byte(msg[68:100]))
}

func TestTransferRejectsBadInput(t *testing.T) {
	m, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.Transfer(context.Background(), 1, m.GetAgent(2).Address, 0)
	assert.ErrorContains(t, err, "positive")

	_, err = m.Transfer(context.Background(), 1, m.GetAgent(1).Address, 10)
	assert.ErrorContains(t, err, "own address")

	_, err = m.Transfer(context.Background(), 1, "not-base58-0OIl", 10)
	assert.ErrorContains(t, err, "not a valid base58")
}

func TestDistributeSolGuards(t *testing.T) {
	m, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.DistributeSol(context.Background(), TreasuryID, 10)
	assert.ErrorContains(t, err, "treasury")

	_, err = m.DistributeSol(context.Background(), 1, 0)
	assert.ErrorContains(t, err, "positive")
}

func TestAirdropZeroRejected(t *testing.T) {
	m, err := NewManager(testSeed, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.RequestAirdrop(context.Background(), 1, 0)
	assert.ErrorContains(t, err, "positive")
}
