package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	maxBodyBytes  = 1 << 20
	throttleTries = 20
)

// client is a thin JSON client for the points API.
type client struct {
	base string
	http *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

// statusError carries a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrStatus }

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// do sends one request and decodes a 2xx body into out when out is non-nil.
func (c *client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

// submit posts an award, backing off while the service reports a full
// queue. Other failures are returned at once.
func (c *client) submit(ctx context.Context, a award, onThrottle func()) (ack, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.Retry(ctx, func() (ack, error) {
		var res ack
		_, err := c.do(ctx, http.MethodPost, "/awards", a, &res)
		if statusOf(err) == http.StatusTooManyRequests {
			onThrottle()
			return ack{}, err
		}
		if err != nil {
			return ack{}, backoff.Permanent(err)
		}
		return res, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(throttleTries))
}

func (c *client) health(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

func (c *client) register(ctx context.Context, u user) (user, error) {
	var out user
	_, err := c.do(ctx, http.MethodPost, "/users", registration{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
	}, &out)
	return out, err
}

func (c *client) rank(ctx context.Context, id string) (boardEntry, error) {
	var out boardEntry
	_, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id)+"/rank", nil, &out)
	return out, err
}

func (c *client) global(ctx context.Context, limit int) ([]boardEntry, error) {
	var out []boardEntry
	_, err := c.do(ctx, http.MethodGet, "/leaderboard/global?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}
