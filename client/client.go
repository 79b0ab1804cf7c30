package client

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultBaseURL points at a local evaluation service.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the retry budget on top of the initial attempt.
	DefaultMaxRetries = 2
)

// Metadata carries rollout details for percentage decisions.
type Metadata struct {
	Percentage int `json:"percentage"`
	Bucket     int `json:"bucket"`
}

// Decision is one evaluated flag as returned by the service.
type Decision struct {
	FlagKey  string    `json:"flagKey"`
	UserID   string    `json:"userId"`
	Enabled  bool      `json:"enabled"`
	Reason   string    `json:"reason"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Client evaluates feature flags against the service, caching decisions
// locally. It is safe for concurrent use.
type Client struct {
	transport *transport
	cache     *decisionCache
	useCache  bool

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL         string
	timeout         time.Duration
	httpClient      *http.Client
	cacheTTL        time.Duration
	cleanupInterval time.Duration
	maxRetries      uint64
	disableCache    bool
}

// WithBaseURL sets the evaluation service address.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

// WithTimeout bounds each HTTP attempt. Ignored when a custom HTTP client
// is supplied.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) { c.timeout = timeout }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = httpClient }
}

// WithCacheTTL sets how long locally cached decisions stay valid.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *clientConfig) { c.cacheTTL = ttl }
}

// WithCleanupInterval sets the expired-entry sweep period. Zero disables
// the background sweeper; expired entries are still a miss on read.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *clientConfig) { c.cleanupInterval = interval }
}

// WithMaxRetries sets the retry budget for transient failures.
func WithMaxRetries(retries uint64) Option {
	return func(c *clientConfig) { c.maxRetries = retries }
}

// WithoutCache disables the local decision cache entirely.
func WithoutCache() Option {
	return func(c *clientConfig) { c.disableCache = true }
}

// New constructs a Client authenticated by the environment API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := clientConfig{
		baseURL:         DefaultBaseURL,
		timeout:         DefaultTimeout,
		cacheTTL:        DefaultCacheTTL,
		cleanupInterval: DefaultCleanupInterval,
		maxRetries:      DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}

	c := &Client{
		transport: &transport{
			baseURL:    cfg.baseURL,
			apiKey:     apiKey,
			httpClient: cfg.httpClient,
			maxRetries: cfg.maxRetries,
		},
		cache:    newDecisionCache(cfg.cacheTTL),
		useCache: !cfg.disableCache,
		done:     make(chan struct{}),
	}

	if c.useCache && cfg.cleanupInterval > 0 {
		go c.cleanupLoop(cfg.cleanupInterval)
	}
	return c, nil
}

func (c *Client) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cache.removeExpired()
		}
	}
}

type evaluateRequest struct {
	FlagKey string `json:"flagKey"`
	UserID  string `json:"userId"`
}

// Evaluate returns the decision for one flag, serving from the local cache
// when a fresh entry exists.
func (c *Client) Evaluate(ctx context.Context, flagKey, userID string) (Decision, error) {
	if c.useCache {
		if decision, ok := c.cache.get(flagKey, userID); ok {
			return decision, nil
		}
	}

	var decision Decision
	err := c.transport.post(ctx, "/evaluate", evaluateRequest{FlagKey: flagKey, UserID: userID}, &decision)
	if err != nil {
		return Decision{}, err
	}

	if c.useCache {
		c.cache.set(flagKey, userID, decision)
	}
	return decision, nil
}

// IsEnabled reports whether the flag is on for the user, returning
// defaultValue when the service cannot be reached. Application code should
// prefer this over Evaluate: a flag check must never take the caller down.
func (c *Client) IsEnabled(ctx context.Context, flagKey, userID string, defaultValue bool) bool {
	decision, err := c.Evaluate(ctx, flagKey, userID)
	if err != nil {
		return defaultValue
	}
	return decision.Enabled
}

type evaluateBatchRequest struct {
	FlagKeys []string `json:"flagKeys"`
	UserID   string   `json:"userId"`
}

type batchFlagResult struct {
	Enabled  bool      `json:"enabled"`
	Reason   string    `json:"reason"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type evaluateBatchResponse struct {
	UserID string                     `json:"userId"`
	Flags  map[string]batchFlagResult `json:"flags"`
}

// EvaluateBatch evaluates several flags for one user in a single round
// trip. Flags with a fresh cache entry are served locally; only the
// remainder is fetched, and freshly fetched decisions win on overlap.
func (c *Client) EvaluateBatch(ctx context.Context, flagKeys []string, userID string) (map[string]Decision, error) {
	results := make(map[string]Decision, len(flagKeys))

	var missing []string
	for _, flagKey := range flagKeys {
		if c.useCache {
			if decision, ok := c.cache.get(flagKey, userID); ok {
				results[flagKey] = decision
				continue
			}
		}
		missing = append(missing, flagKey)
	}

	if len(missing) == 0 {
		return results, nil
	}

	var resp evaluateBatchResponse
	err := c.transport.post(ctx, "/evaluate/batch", evaluateBatchRequest{FlagKeys: missing, UserID: userID}, &resp)
	if err != nil {
		return nil, err
	}

	for flagKey, result := range resp.Flags {
		decision := Decision{
			FlagKey:  flagKey,
			UserID:   userID,
			Enabled:  result.Enabled,
			Reason:   result.Reason,
			Metadata: result.Metadata,
		}
		results[flagKey] = decision
		if c.useCache {
			c.cache.set(flagKey, userID, decision)
		}
	}
	return results, nil
}

// AllFlags evaluates the given flags and collapses each decision to its
// enabled bit. On failure every flag reports false.
func (c *Client) AllFlags(ctx context.Context, flagKeys []string, userID string) map[string]bool {
	out := make(map[string]bool, len(flagKeys))
	for _, flagKey := range flagKeys {
		out[flagKey] = false
	}

	decisions, err := c.EvaluateBatch(ctx, flagKeys, userID)
	if err != nil {
		return out
	}
	for flagKey, decision := range decisions {
		out[flagKey] = decision.Enabled
	}
	return out
}

// ClearCache drops every locally cached decision. Call it after a known
// rule change when waiting out the TTL is not acceptable.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// Close stops the background cleanup goroutine. The client must not be
// used after Close.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
