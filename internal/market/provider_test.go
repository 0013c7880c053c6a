package market

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/pkg/types"
)

func TestSimulatorSnapshotShape(t *testing.T) {
	s := NewSimulator(42)
	data := s.Snapshot()

	assert.Greater(t, data.Price, 0.0)
	assert.Equal(t, types.MarketSourceSimulated, data.Source)
	assert.NotZero(t, data.Timestamp)
}

func TestSimulatorDeterministicForSeed(t *testing.T) {
	a := NewSimulator(7)
	b := NewSimulator(7)
	now := time.Unix(5000, 0)
	a.now = func() time.Time { return now }
	b.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Snapshot().Price, b.Snapshot().Price)
	}
}

func TestInjectDipShowsNegativeChange(t *testing.T) {
	s := NewSimulator(1)
	now := time.Unix(5000, 0)
	s.now = func() time.Time { return now }

	before := s.Snapshot()
	s.InjectDip(10)
	now = now.Add(2 * time.Second)
	after := s.Snapshot()

	assert.Less(t, after.Price, before.Price)
	assert.Negative(t, after.PriceChange1m)
	assert.Greater(t, -after.PriceChange1m, 5.0, "10%% dip must read as a >5%% one-minute drop")
}

func TestInjectRallyShowsPositiveChange(t *testing.T) {
	s := NewSimulator(1)
	now := time.Unix(5000, 0)
	s.now = func() time.Time { return now }

	s.Snapshot()
	s.InjectRally(10)
	now = now.Add(2 * time.Second)
	after := s.Snapshot()

	assert.Positive(t, after.PriceChange1m)
}

func TestResetReturnsToBasePrice(t *testing.T) {
	s := NewSimulatorAt(1, 200)
	s.InjectDip(50)
	s.Reset()

	data := s.Snapshot()
	assert.InDelta(t, 200, data.Price, 200*0.02)
	assert.Zero(t, data.PriceChange5m, "history cleared on reset")
}

func TestSampleWindowLookback(t *testing.T) {
	var w sampleWindow
	t0 := time.Unix(1000, 0)
	w.push(t0, 100, 10)
	w.push(t0.Add(30*time.Second), 110, 11)
	w.push(t0.Add(70*time.Second), 120, 12)

	ref, ok := w.at(t0.Add(70*time.Second), time.Minute)
	require.True(t, ok)
	assert.Equal(t, 100.0, ref.price, "oldest sample at or before the 1m horizon")
}

func TestLiveSourceServesUpstreamPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"solana":{"usd":123.45}}`))
	}))
	defer srv.Close()

	l := NewLiveSource(srv.URL, NewSimulator(1), zerolog.Nop())
	data := l.Snapshot()

	assert.Equal(t, 123.45, data.Price)
	assert.Equal(t, types.MarketSourceLive, data.Source)
}

func TestLiveSourceFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	l := NewLiveSource(srv.URL, NewSimulator(1), zerolog.Nop())
	data := l.Snapshot()

	assert.Equal(t, types.MarketSourceSimulated, data.Source)
	assert.Greater(t, data.Price, 0.0)
}

func TestLiveSourceBreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	l := NewLiveSource(srv.URL, NewSimulator(1), zerolog.Nop())
	for i := 0; i < 10; i++ {
		l.Snapshot()
	}

	assert.Less(t, calls, 10, "open breaker stops hitting the upstream")
}
