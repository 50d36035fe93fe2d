// Package marketdata implements the MarketDataProvider external collaborator
// (§6): pair aggregator as primary source, price oracle as fallback. The TLS
// fingerprinting approach (session cookie jar, Chrome client profile,
// randomised extension order) is adapted from the teacher's GMGN client —
// aggregator endpoints of this kind fingerprint and rate-limit naive HTTP
// clients aggressively.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	http_client "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/fhttp/cookiejar"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"

	"github.com/nyxsignal/oracle/pkg/optional"
)

// Pair is the normalised response from fetchPair (§6).
type Pair struct {
	Price         float64
	MarketCap     float64
	Liquidity     float64
	Volume5m      float64
	Volume1h      float64
	Buys5m        int
	Sells5m       int
	PairCreatedAt optional.Value[time.Time]
	HasTwitter    bool
	Name          string
	Symbol        string
}

// Provider is the MarketDataProvider collaborator (§6).
type Provider interface {
	FetchPair(ctx context.Context, mint string) (*Pair, error)
	FetchPrice(ctx context.Context, mint string) (float64, bool, error)
}

// Config configures an HTTPProvider.
type Config struct {
	BaseURL        string
	PriceURL       string
	RequestTimeout time.Duration
	RateLimitDelay time.Duration
}

// DefaultConfig points at a DexScreener-compatible aggregator with a
// Jupiter-compatible price-oracle fallback (early_detector/collector.py's
// dual-source strategy).
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.dexscreener.com/latest/dex/tokens",
		PriceURL:       "https://price.jup.ag/v6/price",
		RequestTimeout: 10 * time.Second,
		RateLimitDelay: 150 * time.Millisecond,
	}
}

// HTTPProvider is a TLS-fingerprinted implementation of Provider.
type HTTPProvider struct {
	cfg         Config
	tlsClient   tls_client.HttpClient
	lastRequest time.Time
}

// NewHTTPProvider builds a Provider behind a Chrome-profile TLS client with a
// persistent cookie jar, mirroring how the aggregator's own dashboard
// browses it.
func NewHTTPProvider(cfg Config) (*HTTPProvider, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: cookie jar: %w", err)
	}

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(cfg.RequestTimeout.Seconds())),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithCookieJar(jar),
		tls_client.WithRandomTLSExtensionOrder(),
	}
	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("marketdata: tls client: %w", err)
	}

	return &HTTPProvider{cfg: cfg, tlsClient: client, lastRequest: time.Now().Add(-cfg.RateLimitDelay)}, nil
}

func (p *HTTPProvider) throttle() {
	elapsed := time.Since(p.lastRequest)
	if elapsed < p.cfg.RateLimitDelay {
		time.Sleep(p.cfg.RateLimitDelay - elapsed)
	}
	p.lastRequest = time.Now()
}

func (p *HTTPProvider) get(ctx context.Context, url string) ([]byte, error) {
	p.throttle()

	req, err := http_client.NewRequestWithContext(ctx, http_client.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: build request: %w", err)
	}
	req.Header = http_client.Header{
		"accept":     []string{"application/json"},
		"user-agent": []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	}

	resp, err := p.tlsClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("marketdata: read body: %w", err)
	}
	return body, nil
}

type dexScreenerResponse struct {
	Pairs []struct {
		PriceUsd  string `json:"priceUsd"`
		FDV       float64 `json:"fdv"`
		Liquidity struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
		Volume struct {
			M5 float64 `json:"m5"`
			H1 float64 `json:"h1"`
		} `json:"volume"`
		Txns struct {
			M5 struct {
				Buys  int `json:"buys"`
				Sells int `json:"sells"`
			} `json:"m5"`
		} `json:"txns"`
		PairCreatedAt int64 `json:"pairCreatedAt"`
		BaseToken     struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"baseToken"`
		Info struct {
			Socials []struct {
				Type string `json:"type"`
			} `json:"socials"`
		} `json:"info"`
	} `json:"pairs"`
}

// FetchPair fetches the aggregated pair view for a mint (§6 fetchPair).
// Returns nil, nil when the aggregator has no pair for the mint yet.
func (p *HTTPProvider) FetchPair(ctx context.Context, mint string) (*Pair, error) {
	body, err := p.get(ctx, fmt.Sprintf("%s/%s", p.cfg.BaseURL, mint))
	if err != nil {
		return nil, err
	}

	var resp dexScreenerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketdata: decode pair response: %w", err)
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}
	best := resp.Pairs[0]
	for _, pr := range resp.Pairs[1:] {
		if pr.Liquidity.Usd > best.Liquidity.Usd {
			best = pr
		}
	}

	var price float64
	fmt.Sscanf(best.PriceUsd, "%f", &price)

	hasTwitter := false
	for _, s := range best.Info.Socials {
		if s.Type == "twitter" {
			hasTwitter = true
		}
	}

	pair := &Pair{
		Price:      price,
		MarketCap:  best.FDV,
		Liquidity:  best.Liquidity.Usd,
		Volume5m:   best.Volume.M5,
		Volume1h:   best.Volume.H1,
		Buys5m:     best.Txns.M5.Buys,
		Sells5m:    best.Txns.M5.Sells,
		HasTwitter: hasTwitter,
		Name:       best.BaseToken.Name,
		Symbol:     best.BaseToken.Symbol,
	}
	if best.PairCreatedAt > 0 {
		pair.PairCreatedAt = optional.Known(time.UnixMilli(best.PairCreatedAt))
	}
	return pair, nil
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// FetchPrice fetches a fallback spot price when the aggregator has no pair
// yet (§6 fetchPrice).
func (p *HTTPProvider) FetchPrice(ctx context.Context, mint string) (float64, bool, error) {
	body, err := p.get(ctx, fmt.Sprintf("%s?ids=%s", p.cfg.PriceURL, mint))
	if err != nil {
		return 0, false, err
	}

	var resp jupiterPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, false, fmt.Errorf("marketdata: decode price response: %w", err)
	}
	entry, ok := resp.Data[mint]
	if !ok {
		return 0, false, nil
	}
	var price float64
	fmt.Sscanf(entry.Price, "%f", &price)
	return price, true, nil
}
