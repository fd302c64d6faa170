package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/Cheese-Checkers/pkg/checkersdto"
)

// ErrNoMatch is returned when the relay has not paired two players yet.
var ErrNoMatch = errors.New("no match yet")

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (*checkersdto.Health, error) {
	var h checkersdto.Health
	if err := c.getJSON(ctx, PathHealth, &h, false); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Match(ctx context.Context) (*checkersdto.MatchState, error) {
	var m checkersdto.MatchState
	if err := c.getJSON(ctx, PathMatch, &m, true); err != nil {
		return nil, err
	}
	return &m, nil
}

// Board returns the snapshot text of the current match.
func (c *Client) Board(ctx context.Context) (string, error) {
	body, err := c.get(ctx, PathBoard, true)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) BoardPNG(ctx context.Context) ([]byte, error) {
	return c.get(ctx, PathBoardPNG, true)
}

func (c *Client) getJSON(ctx context.Context, path string, out any, retry bool) error {
	body, err := c.get(ctx, path, retry)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// get performs a GET, retrying transport errors and 5xx responses with
// backoff when retry is set.
func (c *Client) get(ctx context.Context, path string, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)

	attempts := 1
	if retry && c.retryMax > 0 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return nil, lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status >= 200 && status < 300 {
			return append([]byte(nil), resp.Body()...), nil
		}
		err = apiError(status, resp.Body())
		if attempt == attempts || !shouldRetryStatus(status) {
			return nil, err
		}
		lastErr = err
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func apiError(status int, body []byte) error {
	var e checkersdto.Error
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		if e.Code == codeNoMatch {
			return ErrNoMatch
		}
		return fmt.Errorf("status api error: status=%d: %w", status, e)
	}
	return fmt.Errorf("status api error: status=%d body=%s", status, truncate(string(body), 512))
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
