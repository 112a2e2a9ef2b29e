package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrlokans/storesync/internal/entities"
)

const (
	maxAttempts        = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2
)

// Batch is one page of raw upstream records.
type Batch struct {
	Items      []json.RawMessage
	HasMore    bool
	NextCursor string
}

// FetcherConfig tunes retries. Zero values fall back to the defaults.
type FetcherConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher pages through the Admin API with bounded retries.
type Fetcher struct {
	client         *Client
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	log            zerolog.Logger
}

func NewFetcher(client *Client, cfg FetcherConfig, log zerolog.Logger) *Fetcher {
	f := &Fetcher{
		client:         client,
		maxAttempts:    cfg.MaxAttempts,
		baseDelay:      cfg.BaseDelay,
		maxDelay:       cfg.MaxDelay,
		attemptTimeout: cfg.AttemptTimeout,
		sleep:          cfg.Sleep,
		log:            log,
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = maxAttempts
	}
	if f.baseDelay <= 0 {
		f.baseDelay = initialRetryDelay
	}
	if f.maxDelay <= 0 {
		f.maxDelay = maxRetryDelay
	}
	if f.attemptTimeout <= 0 {
		f.attemptTimeout = defaultTimeout
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	return f
}

type pageData struct {
	Nodes    []json.RawMessage `json:"nodes"`
	PageInfo *struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
}

// Fetch returns the page after cursor; an empty cursor starts from the first page.
func (f *Fetcher) Fetch(ctx context.Context, rt entities.ResourceType, cursor string, opts FetchOptions) (*Batch, error) {
	field, query, err := connectionField(rt)
	if err != nil {
		return nil, &FatalFetchError{Attempts: 0, Err: err}
	}

	vars := map[string]any{"first": opts.pageSize()}
	if cursor != "" {
		vars["after"] = cursor
	}
	if q := opts.SearchQuery(); q != "" {
		vars["query"] = q
	}

	var batch *Batch
	err = f.withRetry(ctx, string(rt), func(attemptCtx context.Context) error {
		var data map[string]*pageData
		if err := f.client.Do(attemptCtx, query, vars, &data); err != nil {
			return err
		}
		page := data[field]
		if page == nil || page.PageInfo == nil {
			return fmt.Errorf("%w: missing %s connection", ErrMalformedResponse, field)
		}

		batch = &Batch{Items: page.Nodes, HasMore: page.PageInfo.HasNextPage}
		if page.PageInfo.EndCursor != nil {
			batch.NextCursor = *page.PageInfo.EndCursor
		}
		if batch.HasMore && batch.NextCursor == "" {
			return fmt.Errorf("%w: hasNextPage without endCursor", ErrMalformedResponse)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Count returns the number of records matching opts.
func (f *Fetcher) Count(ctx context.Context, rt entities.ResourceType, opts FetchOptions) (int, error) {
	field, query, err := countField(rt)
	if err != nil {
		return 0, &FatalFetchError{Attempts: 0, Err: err}
	}

	vars := map[string]any{}
	if q := opts.SearchQuery(); q != "" {
		vars["query"] = q
	}

	var count int
	err = f.withRetry(ctx, field, func(attemptCtx context.Context) error {
		var data map[string]*struct {
			Count *int `json:"count"`
		}
		if err := f.client.Do(attemptCtx, query, vars, &data); err != nil {
			return err
		}
		c := data[field]
		if c == nil || c.Count == nil {
			return fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
		}
		count = *c.Count
		return nil
	})
	return count, err
}

// withRetry runs fn with a per-attempt timeout until it succeeds, fails with a
// non-retryable error or the attempts run out. Parent cancellation is returned as is.
func (f *Fetcher) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.retryDelay(attempt - 1)
			f.log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("retrying upstream request")
			if err := f.sleep(ctx, delay); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Only retry on rate limits, throttling, timeouts and server or network errors
		if !isRetryableError(lastErr) {
			return &FatalFetchError{Attempts: attempt, Err: lastErr}
		}
	}

	return &FatalFetchError{Attempts: f.maxAttempts, Transient: true, Err: lastErr}
}

// retryDelay is the pause before the retry-th retry: base, 2·base, 4·base... capped.
func (f *Fetcher) retryDelay(retry int) time.Duration {
	delay := f.baseDelay
	for i := 1; i < retry; i++ {
		delay *= time.Duration(retryBackoffFactor)
		if delay >= f.maxDelay {
			return f.maxDelay
		}
	}
	if delay > f.maxDelay {
		delay = f.maxDelay
	}
	return delay
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrThrottled) {
		return true
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
