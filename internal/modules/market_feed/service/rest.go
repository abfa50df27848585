package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

const defaultMaxAttempts = 5

// restClient is a rate-limited GET client retrying 429 and 5xx answers.
type restClient struct {
	exchange    string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	retry       Backoff
}

func newRESTClient(exchange, baseURL string, perSecond float64, burst int) *restClient {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &restClient{
		exchange:    exchange,
		baseURL:     baseURL,
		http:        &http.Client{Timeout: 10 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		maxAttempts: defaultMaxAttempts,
		retry:       Backoff{Base: 250 * time.Millisecond, Cap: 5 * time.Second},
	}
}

func (r *restClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u := r.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retry.Delay(attempt - 1)):
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		body, status, err := r.do(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &models.TransientFeedError{Exchange: r.exchange, Op: path, Err: err}
			logger.Warn("[%s] GET %s failed (attempt %d): %v", r.exchange, path, attempt+1, err)
			continue
		}
		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = &models.TransientFeedError{Exchange: r.exchange, Op: path, Status: status, Err: errors.New(truncate(body))}
			logger.Warn("[%s] GET %s http %d (attempt %d)", r.exchange, path, status, attempt+1)
			continue
		}
		if status/100 != 2 {
			return fmt.Errorf("%s %s: http %d: %s", r.exchange, path, status, truncate(body))
		}
		if err := sonic.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", r.exchange, path, err)
		}
		return nil
	}
	return lastErr
}

func (r *restClient) do(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func truncate(b []byte) string {
	if len(b) > 256 {
		return string(b[:256])
	}
	return string(b)
}
