package dns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"anagolay/internal/verification/strategy"
)

// DNS response codes of interest.
const (
	rcodeNoError  = 0
	rcodeServFail = 2
	rcodeNXDomain = 3
	rcodeRefused  = 5

	typeTXT = 16

	maxResponseBytes = 1 << 20
)

// Answer is one resource record of a JSON DoH response.
type Answer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

// Response is the application/dns-json body returned by DoH resolvers.
type Response struct {
	Status int      `json:"Status"`
	Answer []Answer `json:"Answer"`
}

// Client queries a DNS-over-HTTPS resolver speaking the JSON API.
type Client struct {
	http     *http.Client
	endpoint string
	timeout  time.Duration
}

// NewClient returns a client bound to endpoint with a per-query deadline.
func NewClient(endpoint string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{http: httpClient, endpoint: endpoint, timeout: timeout}
}

// LookupTXT fetches the TXT records of host. Errors are *strategy.Error.
func (c *Client) LookupTXT(ctx context.Context, host string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, strategy.NewError(strategy.ErrorInternal, StrategyID, "invalid resolver endpoint", err)
	}
	q := u.Query()
	q.Set("name", host)
	q.Set("type", "TXT")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, strategy.NewError(strategy.ErrorInternal, StrategyID, "build resolver request", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, strategy.NewError(strategy.ErrorTimeout, StrategyID, "resolver timed out", err)
		}
		return nil, strategy.NewError(strategy.ErrorOutage, StrategyID, "resolver unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, strategy.NewError(strategy.ErrorOutage, StrategyID,
			fmt.Sprintf("resolver returned HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, strategy.NewError(strategy.ErrorTimeout, StrategyID, "resolver timed out", err)
		}
		return nil, strategy.NewError(strategy.ErrorOutage, StrategyID, "read resolver response", err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, strategy.NewError(strategy.ErrorBadData, StrategyID, "unparseable resolver response", err)
	}

	switch out.Status {
	case rcodeNoError, rcodeNXDomain:
		return &out, nil
	case rcodeServFail, rcodeRefused:
		return nil, strategy.NewError(strategy.ErrorOutage, StrategyID,
			fmt.Sprintf("resolver answered rcode %d", out.Status), nil)
	default:
		return nil, strategy.NewError(strategy.ErrorBadData, StrategyID,
			fmt.Sprintf("unexpected rcode %d", out.Status), nil)
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
