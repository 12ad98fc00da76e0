package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// HTTPConfig holds the HTTP transport configuration.
type HTTPConfig struct {
	// BaseURL is the brokerage API root (e.g. "https://api.kite.trade").
	BaseURL string

	// APIKey and AccessToken authenticate the session. Token refresh is
	// the login flow's concern, not the transport's.
	APIKey      string
	AccessToken string

	// Timeout bounds one physical call. Defaults to 30s.
	Timeout time.Duration

	// UserAgent identifies the collector to the upstream.
	UserAgent string
}

// HTTPTransport executes quote calls against the brokerage HTTP API.
type HTTPTransport struct {
	httpClient *http.Client
	cfg        HTTPConfig
	logger     zerolog.Logger
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "optionsfeed/1.0"
	}

	return &HTTPTransport{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.With().Str("component", "upstream").Logger(),
	}, nil
}

// quotePayload is the wire form of one instrument quote.
type quotePayload struct {
	LastPrice    float64 `json:"last_price"`
	AveragePrice float64 `json:"average_price"`
	Volume       int64   `json:"volume"`
	OI           int64   `json:"oi"`
	NetChange    float64 `json:"net_change"`
	Timestamp    string  `json:"timestamp"`
}

// quoteResponse is the envelope returned by the quote endpoint.
type quoteResponse struct {
	Status string                  `json:"status"`
	Data   map[string]quotePayload `json:"data"`
}

// Execute performs one GET /quote call for the given key set.
func (t *HTTPTransport) Execute(ctx context.Context, keys []string) (map[string]quote.Quote, error) {
	start := time.Now()

	req, err := t.buildRequest(ctx, keys)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		transportRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &Error{
			Kind:    KindNetwork,
			Message: "quote request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	transportRequestDuration.Observe(time.Since(start).Seconds())
	transportRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
	transportBatchKeys.Observe(float64(len(keys)))

	if resp.StatusCode != http.StatusOK {
		classified := classifyStatus(resp.StatusCode, resp.Status)
		t.logger.Warn().
			Int("status", resp.StatusCode).
			Int("keys", len(keys)).
			Str("kind", string(classified.Kind)).
			Msg("Quote request error")
		return nil, classified
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Kind:    KindNetwork,
			Message: "read quote response",
			Err:     err,
		}
	}

	var envelope quoteResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{
			Kind:       KindUpstream5xx,
			StatusCode: resp.StatusCode,
			Message:    "malformed quote response",
			Err:        err,
		}
	}

	results := make(map[string]quote.Quote, len(envelope.Data))
	for instrument, payload := range envelope.Data {
		key, err := instrumentToKey(instrument)
		if err != nil {
			t.logger.Debug().Str("instrument", instrument).Msg("Skipping unparseable instrument in response")
			continue
		}
		results[key] = quote.Quote{
			Symbol:       instrument,
			LastPrice:    payload.LastPrice,
			AveragePrice: payload.AveragePrice,
			Volume:       payload.Volume,
			OpenInterest: payload.OI,
			NetChange:    payload.NetChange,
			Timestamp:    parseTimestamp(payload.Timestamp),
		}
	}

	t.logger.Debug().
		Int("keys", len(keys)).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Quote batch fetched")

	return results, nil
}

// buildRequest assembles GET /quote?i=EXCHANGE:SYMBOL&i=... with auth
// headers.
func (t *HTTPTransport) buildRequest(ctx context.Context, keys []string) (*http.Request, error) {
	params := url.Values{}
	for _, k := range keys {
		key, err := quote.ParseKey(k)
		if err != nil {
			return nil, &Error{Kind: KindUpstream4xx, Message: "invalid key", Err: err}
		}
		params.Add("i", key.Instrument())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "token "+t.cfg.APIKey+":"+t.cfg.AccessToken)
	return req, nil
}

// classifyStatus maps an HTTP status to the dispatcher-facing error
// taxonomy. 429 is the explicit rate-limit signal.
func classifyStatus(code int, status string) *Error {
	switch {
	case code == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, StatusCode: code, Message: status}
	case code >= 400 && code < 500:
		return &Error{Kind: KindUpstream4xx, StatusCode: code, Message: status}
	case code >= 500:
		return &Error{Kind: KindUpstream5xx, StatusCode: code, Message: status}
	default:
		return &Error{Kind: KindUpstream5xx, StatusCode: code, Message: "unexpected status: " + status}
	}
}

// instrumentToKey converts the upstream's "EXCHANGE:SYMBOL" identifier back
// to the dispatcher's key form.
func instrumentToKey(instrument string) (string, error) {
	key, err := quote.ParseKey("quote:" + instrument)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// parseTimestamp parses the upstream's quote timestamp; zero time on
// failure since quotes are usable without it.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
