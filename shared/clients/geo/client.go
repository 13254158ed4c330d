package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"cityfix/shared/config"
	"cityfix/shared/metricsx"
)

// Client resolves coordinates to a human-readable address through an external
// reverse geocoding service. Lookups are best effort: callers keep the raw
// coordinates either way.
type Client struct {
	baseURL  string
	timeout  time.Duration
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

type ReverseResult struct {
	Address  string `json:"address"`
	District string `json:"district,omitempty"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.GeocoderURL == "" {
		return nil, errors.New("GEOCODER_URL is required")
	}
	timeout := time.Duration(cfg.GeocoderTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.GeocoderURL,
		timeout:  timeout,
		retryMax: cfg.GeocoderRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (c *Client) Reverse(ctx context.Context, lat float64, lng float64) (ReverseResult, error) {
	if c == nil || c.http == nil {
		return ReverseResult{}, errors.New("geo client not initialized")
	}
	if c.breaker.Open() {
		return ReverseResult{}, errors.New("geocoder circuit open")
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	endpoint := c.baseURL + "/reverse?" + q.Encode()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		reqHTTP, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return ReverseResult{}, err
		}
		reqHTTP.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(reqHTTP)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("geocoder error: status %d", resp.StatusCode)
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			metricsx.IncGeocodeFailure()
			return ReverseResult{}, fmt.Errorf("geocode failed: status %d", resp.StatusCode)
		}
		var out ReverseResult
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncGeocodeFailure()
			return ReverseResult{}, err
		}
		c.breaker.Success()
		metricsx.IncGeocodeSuccess()
		metricsx.ObserveGeocodeLatency(time.Since(start))
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New("geocode failed")
	}
	metricsx.IncGeocodeFailure()
	return ReverseResult{}, lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
