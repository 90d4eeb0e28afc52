package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/version"
)

// BaseSource provides common functionality for all provider adapters.
type BaseSource struct {
	name       string
	httpClient *http.Client
	lastUpdate time.Time
	updateMu   sync.RWMutex
	healthy    bool
	healthMu   sync.RWMutex
	logger     *logging.Logger
}

// NewBaseSource creates a new base source with a dedicated HTTP client.
func NewBaseSource(name string, timeout time.Duration, logger *logging.Logger) *BaseSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BaseSource{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		healthy:    true,
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthy = healthy
}

// LastUpdate returns the time of the last successful fetch
func (b *BaseSource) LastUpdate() time.Time {
	b.updateMu.RLock()
	defer b.updateMu.RUnlock()
	return b.lastUpdate
}

// SetLastUpdate sets the last update time
func (b *BaseSource) SetLastUpdate(t time.Time) {
	b.updateMu.Lock()
	defer b.updateMu.Unlock()
	b.lastUpdate = t
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// GetJSON performs a GET request and decodes the JSON body into out.
// Extra headers (API keys) are applied to the request.
func (b *BaseSource) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimitExceeded, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// FailureResponse builds a non-usable Response for the given error,
// classifying rate limits and timeouts, and marks the source unhealthy.
func (b *BaseSource) FailureResponse(err error) Response {
	b.SetHealthy(false)
	status := StatusFailed
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		status = StatusRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		status = StatusTimeout
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			status = StatusTimeout
		}
	}
	return Response{
		Source:    b.name,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Reason:    err.Error(),
	}
}

// SuccessResponse builds a usable Response from the collected quotes. The
// status is partial when fewer assets were covered than requested. An empty
// quote set is a failure: a provider answering with nothing contributes
// nothing to the merge.
func (b *BaseSource) SuccessResponse(quotes map[string]AssetQuote, requested int) Response {
	if len(quotes) == 0 {
		return b.FailureResponse(ErrNoQuotesInResponse)
	}

	now := time.Now().UTC()
	b.SetHealthy(true)
	b.SetLastUpdate(now)

	status := StatusSuccess
	if requested > 0 && len(quotes) < requested {
		status = StatusPartial
	}
	return Response{
		Source:    b.name,
		Timestamp: now,
		Status:    status,
		Quotes:    quotes,
	}
}
