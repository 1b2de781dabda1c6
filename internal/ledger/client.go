// Package ledger is a client for the Stacks node and indexer HTTP APIs:
// read-only contract calls and paginated contract event logs.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/agent-ledger-indexer/internal/clarity"
	perrors "github.com/p-blackswan/agent-ledger-indexer/internal/errors"
	"github.com/p-blackswan/agent-ledger-indexer/internal/metrics"
	"github.com/p-blackswan/agent-ledger-indexer/internal/retry"
)

// DefaultPageSize is the event page size used when none is configured.
const DefaultPageSize = 50

const serviceName = "ledger"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	Contracts   Contracts
	PageSize    int
	Timeout     time.Duration
	ReadRetries int
	Metrics     *metrics.Metrics
}

// Client talks to the ledger API.
type Client struct {
	baseURL    string
	contracts  Contracts
	pageSize   int
	retry      retry.Config
	httpClient HTTPClient
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewClient creates a new ledger API client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		contracts:  opts.Contracts,
		pageSize:   opts.PageSize,
		retry:      retry.WithRetries(opts.ReadRetries),
		httpClient: &http.Client{Timeout: opts.Timeout},
		metrics:    opts.Metrics,
		logger:     logger.With().Str("component", "ledger").Logger(),
	}
	c.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying ledger call")
	}
	return c
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetRetry replaces the retry policy for read-only calls.
func (c *Client) SetRetry(cfg retry.Config) {
	c.retry = cfg
}

// Contracts returns the contract names this client reads.
func (c *Client) Contracts() Contracts {
	return c.contracts
}

// PageSize returns the event page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

type callRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type callResponse struct {
	Okay   okayFlag `json:"okay"`
	Result string   `json:"result"`
	Cause  string   `json:"cause"`
}

// okayFlag accepts both true and "true"; some node versions quote it.
type okayFlag bool

func (o *okayFlag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*o = okayFlag(s == "true")
	return nil
}

// Call invokes a read-only function on one of the deployer's contracts and
// decodes the result. Arguments are hex-encoded Clarity values.
//
// A rejected call returns ErrCallRejected, an undecodable result ErrDecode,
// and transport failures an *errors.APIError or ErrUnavailable. Transient
// failures are retried per the client's retry policy.
func (c *Client) Call(ctx context.Context, contract, fn string, args ...string) (*clarity.Value, error) {
	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(callRequest{Sender: c.contracts.Deployer, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encoding call body: %w", err)
	}
	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s", c.contracts.Deployer, contract, fn)

	var out callResponse
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		out = callResponse{}
		return c.doJSON(ctx, http.MethodPost, path, body, &out)
	})
	if err != nil {
		c.metrics.RecordLedgerRequest("call_read", "error")
		return nil, fmt.Errorf("%s.%s: %w", contract, fn, err)
	}
	if !out.Okay {
		c.metrics.RecordLedgerRequest("call_read", "rejected")
		return nil, fmt.Errorf("%s.%s: %w: %s", contract, fn, perrors.ErrCallRejected, out.Cause)
	}

	v, err := clarity.DecodeHex(out.Result)
	if err != nil {
		c.metrics.RecordLedgerRequest("call_read", "undecodable")
		return nil, fmt.Errorf("%s.%s: %w", contract, fn, err)
	}
	c.metrics.RecordLedgerRequest("call_read", "ok")
	return &v, nil
}

// CallReadOnly is Call with every failure absorbed into a nil result.
func (c *Client) CallReadOnly(ctx context.Context, contract, fn string, args ...string) *clarity.Value {
	v, err := c.Call(ctx, contract, fn, args...)
	if err != nil {
		c.logger.Debug().Err(err).Str("contract", contract).Str("fn", fn).Msg("read-only call failed")
		return nil
	}
	return v
}

// Ping checks the node is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var info map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/v2/info", nil, &info); err != nil {
		c.metrics.RecordLedgerRequest("info", "error")
		return err
	}
	c.metrics.RecordLedgerRequest("info", "ok")
	return nil
}

// doJSON executes one request and decodes a JSON response into v.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, v any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %v", perrors.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return perrors.NewAPIError(serviceName, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding response: %v", perrors.ErrUnavailable, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
