package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	defaultAlpacaBaseURL = "https://data.alpaca.markets"
	alpacaPageLimit      = 10000
	maxRetries           = 3
	initialBackoff       = time.Second
)

// AlpacaSource fetches daily stock bars from the Alpaca Data API. Requests
// run behind a circuit breaker so a flapping upstream trips fast instead
// of stalling a sweep's load phase, and 429 responses retry with
// exponential backoff.
type AlpacaSource struct {
	apiKey    string
	secretKey string
	baseURL   string
	feed      string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	logger    *logrus.Logger
}

// NewAlpacaSource creates a provider. baseURL and feed may be empty to use
// the defaults ("https://data.alpaca.markets", "iex").
func NewAlpacaSource(apiKey, secretKey, baseURL, feed string, logger *logrus.Logger) *AlpacaSource {
	if baseURL == "" {
		baseURL = defaultAlpacaBaseURL
	}
	if feed == "" {
		feed = "iex"
	}
	settings := gobreaker.Settings{
		Name:    "alpaca-data",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &AlpacaSource{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		feed:      feed,
		client:    &http.Client{Timeout: 30 * time.Second},
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}
}

type alpacaBar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type alpacaBarsResponse struct {
	Bars          []alpacaBar `json:"bars"`
	Symbol        string      `json:"symbol"`
	NextPageToken *string     `json:"next_page_token"`
}

// DailyCloses implements PriceSource, following pagination until the range
// is exhausted.
func (s *AlpacaSource) DailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	var bars []Bar
	pageToken := ""
	for {
		page, next, err := s.fetchPage(ctx, symbol, start, end, pageToken)
		if err != nil {
			return nil, err
		}
		bars = append(bars, page...)
		if next == "" {
			return bars, nil
		}
		pageToken = next
	}
}

func (s *AlpacaSource) fetchPage(ctx context.Context, symbol string, start, end time.Time, pageToken string) ([]Bar, string, error) {
	q := url.Values{}
	q.Set("timeframe", "1Day")
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("limit", fmt.Sprintf("%d", alpacaPageLimit))
	q.Set("adjustment", "split")
	q.Set("feed", s.feed)
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", s.baseURL, url.PathEscape(symbol), q.Encode())

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, retryable, err := s.doRequest(ctx, endpoint)
		if err != nil {
			lastErr = err
			if retryable {
				s.logger.WithField("symbol", symbol).Warnf("alpaca request retry: %v", err)
				continue
			}
			return nil, "", err
		}

		var resp alpacaBarsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, "", fmt.Errorf("decoding alpaca bars for %s: %w", symbol, err)
		}

		bars := make([]Bar, 0, len(resp.Bars))
		for _, b := range resp.Bars {
			bars = append(bars, Bar{Date: Day(b.Timestamp), Close: b.Close})
		}
		next := ""
		if resp.NextPageToken != nil {
			next = *resp.NextPageToken
		}
		return bars, next, nil
	}
	return nil, "", fmt.Errorf("alpaca bars for %s: retries exhausted: %w", symbol, lastErr)
}

// doRequest performs one HTTP round trip through the circuit breaker.
// retryable=true signals a rate-limit response worth backing off on.
func (s *AlpacaSource) doRequest(ctx context.Context, endpoint string) (body []byte, retryable bool, err error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("APCA-API-KEY-ID", s.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", s.secretKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("alpaca API %d: %s", resp.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		return nil, err == errRateLimited, err
	}
	return result.([]byte), false, nil
}

var errRateLimited = fmt.Errorf("rate limited (429)")
