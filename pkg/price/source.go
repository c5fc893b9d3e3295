package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Source is one upstream price provider. FetchAll returns prices for the
// symbols the provider can serve; the resolver backfills the rest. A
// provider that rate-limits or times out returns an error and the cascade
// moves on.
type Source interface {
	Name() string
	Tier() Tier
	FetchAll(ctx context.Context) (map[string]Point, error)
}

// httpSource carries the shared plumbing of the concrete providers: a
// bounded-timeout HTTP client and a per-provider rate limiter.
type httpSource struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(name, baseURL string, timeout time.Duration, rps float64) httpSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if rps <= 0 {
		rps = 2
	}
	return httpSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// getJSON performs a rate-limited GET and decodes the response into out.
// Non-2xx statuses are errors; 429 is reported distinctly so logs show the
// provider was rate limiting rather than down.
func (s *httpSource) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", s.name, err)
	}

	u := s.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s request: %w", s.name, err)
	}
	req.Header.Set("User-Agent", "otc-routing-engine/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s rate limited (429)", s.name)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", s.name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s malformed response: %w", s.name, err)
	}
	return nil
}
