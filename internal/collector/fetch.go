package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const maxBodyBytes = 10 << 20

type fetcher struct {
	hc        *http.Client
	userAgent string
}

func newFetcher(deps Deps) *fetcher {
	hc := deps.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	ua := deps.UserAgent
	if ua == "" {
		ua = "sourcefetch/1.0"
	}
	return &fetcher{hc: hc, userAgent: ua}
}

// get fetches url and classifies the HTTP status: 404/410 and 401/403 are
// semantic, 429 is a rate limit, 5xx and transport errors are retryable
// infrastructure failures.
func (f *fetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Semantic(CodeInvalidConfig, "bad url %q: %v", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	res, err := f.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, Semantic(CodeNotFound, "%s returned %d", url, res.StatusCode)
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, Semantic(CodeForbidden, "%s returned %d", url, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(res.Header.Get("Retry-After")), Message: url}
	case res.StatusCode >= 500:
		return nil, fmt.Errorf("get %s: upstream status %d", url, res.StatusCode)
	case res.StatusCode >= 400:
		return nil, Semantic("HTTP_"+strconv.Itoa(res.StatusCode), "%s returned %d", url, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
