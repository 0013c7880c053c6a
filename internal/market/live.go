package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/autarch-dev/autarch/pkg/types"
)

// Live price source settings. The breaker trips after a 60% failure
// ratio over at least 3 requests and retries after 30 seconds.
const (
	liveMinRequests  = 3
	liveFailureRatio = 0.6
	liveOpenTimeout  = 30 * time.Second
	liveFetchTimeout = 5 * time.Second

	defaultPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
)

// LiveSource serves live SOL prices, falling back to the simulated
// walk whenever the upstream fails or its circuit breaker is open.
// Dip/rally injection always applies to the fallback simulator, so
// market-control endpoints keep working in live mode too.
type LiveSource struct {
	mu       sync.Mutex
	client   *resty.Client
	breaker  *gobreaker.CircuitBreaker
	fallback *Simulator
	window   sampleWindow
	url      string
	log      zerolog.Logger
	now      func() time.Time
}

type priceResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// NewLiveSource creates a live provider over the given fallback
// simulator. An empty url selects the default upstream.
func NewLiveSource(url string, fallback *Simulator, log zerolog.Logger) *LiveSource {
	if url == "" {
		url = defaultPriceURL
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market_price",
		Timeout: liveOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= liveMinRequests && ratio >= liveFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Market price breaker state changed")
		},
	})
	return &LiveSource{
		client:   resty.New().SetTimeout(liveFetchTimeout),
		breaker:  breaker,
		fallback: fallback,
		url:      url,
		log:      log.With().Str("component", "market_live").Logger(),
		now:      time.Now,
	}
}

// Snapshot fetches the live price through the breaker; on any failure
// it returns a simulated snapshot instead.
func (l *LiveSource) Snapshot() types.MarketData {
	result, err := l.breaker.Execute(func() (interface{}, error) {
		return l.fetchPrice()
	})
	if err != nil {
		l.log.Debug().Err(err).Msg("Live price unavailable, serving simulated snapshot")
		return l.fallback.Snapshot()
	}

	price := result.(float64)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	// Live volume is not part of the upstream response; carry the
	// fallback's synthetic volume so volume fields stay populated.
	volume := l.fallback.currentVolume()
	l.window.push(now, price, volume)

	data := types.MarketData{
		Price:     price,
		Timestamp: now.UnixMilli(),
		Source:    types.MarketSourceLive,
	}
	if ref, ok := l.window.at(now, time.Minute); ok {
		data.PriceChange1m = percentChange(ref.price, price)
		data.VolumeChange1m = percentChange(ref.volume, volume)
	}
	if ref, ok := l.window.at(now, 5*time.Minute); ok {
		data.PriceChange5m = percentChange(ref.price, price)
	}
	return data
}

func (l *LiveSource) fetchPrice() (float64, error) {
	var out priceResponse
	resp, err := l.client.R().SetResult(&out).Get(l.url)
	if err != nil {
		return 0, fmt.Errorf("price fetch failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("price fetch returned HTTP %d", resp.StatusCode())
	}
	if out.Solana.USD <= 0 {
		return 0, fmt.Errorf("price fetch returned empty payload")
	}
	return out.Solana.USD, nil
}

// InjectDip applies the shock to the fallback simulator.
func (l *LiveSource) InjectDip(percent float64) { l.fallback.InjectDip(percent) }

// InjectRally applies the shock to the fallback simulator.
func (l *LiveSource) InjectRally(percent float64) { l.fallback.InjectRally(percent) }

// Reset resets the fallback simulator and the live sample window.
func (l *LiveSource) Reset() {
	l.fallback.Reset()
	l.mu.Lock()
	l.window = sampleWindow{}
	l.mu.Unlock()
}

// currentVolume exposes the simulator's volume to the live source.
func (s *Simulator) currentVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}
