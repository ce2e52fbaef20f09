// Package supplier is the CJ Dropshipping API client used for fulfillment.
package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropone-app/dropone-backend/pkg/config"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
)

const (
	requestBodyReadLimit int64 = 1024

	tokenCacheKey     = "supplier:cj:access_token"
	tokenLifetime     = 24 * time.Hour
	tokenRefreshEarly = time.Hour

	accessTokenHeader = "CJ-Access-Token"
)

// CJ business codes signalling an invalid or expired access token.
var tokenExpiredCodes = map[int]struct{}{
	1600001: {},
	1600003: {},
}

var errCredentialsRequired = errors.New("supplier email and api key are required")

// Cache persists values across stateless invocations. The KV cache satisfies it.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	GetFresh(ctx context.Context, key string, maxAge time.Duration, dest any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Client calls the CJ Dropshipping REST API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	email           string
	apiKey          string
	logisticName    string
	fromCountryCode string
	payType         int
	catalogTTL      time.Duration
	cache           Cache
	now             func() time.Time

	mu    sync.Mutex
	token cachedToken
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds the supplier client. cache may be nil, in which case the
// access token lives only in memory.
func NewClient(cfg config.SupplierConfig, cache Cache, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		email:           strings.TrimSpace(cfg.Email),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		logisticName:    strings.TrimSpace(cfg.LogisticName),
		fromCountryCode: strings.TrimSpace(cfg.FromCountryCode),
		payType:         cfg.PayType,
		catalogTTL:      cfg.CatalogCacheTTL,
		cache:           cache,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Result  bool            `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokenValid(c.token) {
		return c.token.AccessToken, nil
	}

	if c.cache != nil {
		var stored cachedToken
		found, err := c.cache.Get(ctx, tokenCacheKey, &stored)
		if err == nil && found && c.tokenValid(stored) {
			c.token = stored
			return stored.AccessToken, nil
		}
	}

	payload := map[string]string{"email": c.email, "password": c.apiKey}
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.send(ctx, "get access token", http.MethodPost, "authentication/getAccessToken", "", payload, &data); err != nil {
		return "", err
	}
	if data.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "supplier token response missing accessToken")
	}

	c.token = cachedToken{AccessToken: data.AccessToken, ExpiresAt: c.now().Add(tokenLifetime)}
	if c.cache != nil {
		// a failed write only costs an extra token request on the next cold start
		_ = c.cache.Put(ctx, tokenCacheKey, c.token)
	}
	return c.token.AccessToken, nil
}

func (c *Client) tokenValid(tok cachedToken) bool {
	return tok.AccessToken != "" && c.now().Before(tok.ExpiresAt.Add(-tokenRefreshEarly))
}

func (c *Client) invalidateToken(ctx context.Context) {
	c.mu.Lock()
	c.token = cachedToken{}
	c.mu.Unlock()
	if c.cache != nil {
		_ = c.cache.Delete(ctx, tokenCacheKey)
	}
}

// call performs an authenticated request.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	err = c.send(ctx, op, method, path, token, in, out)
	if errors.Is(err, ErrTokenExpired) {
		c.invalidateToken(ctx)
	}
	return err
}

func (c *Client) send(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal supplier "+op+" request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build supplier "+op+" request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(accessTokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return &TransientError{Op: op, Err: ErrTokenExpired}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &TransientError{Op: op, Err: apiErr}
		}
		return apiErr
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode supplier "+op+" response")
	}
	if !env.Result {
		if _, expired := tokenExpiredCodes[env.Code]; expired {
			return &TransientError{Op: op, Err: ErrTokenExpired}
		}
		return &APIError{Op: op, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode supplier "+op+" data")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
