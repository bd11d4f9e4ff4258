package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

const (
	maxAttempts  = 5
	retryBackoff = 200 * time.Millisecond
)

// client is a small JSON client for the scoring API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: base, http: &http.Client{Timeout: timeout}}
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out, http.StatusOK)
}

func (c *client) post(ctx context.Context, path string, body, out any, accept ...int) error {
	if len(accept) == 0 {
		accept = []int{http.StatusOK, http.StatusCreated}
	}
	return c.do(ctx, http.MethodPost, path, body, out, accept...)
}

func (c *client) do(ctx context.Context, method, path string, body, out any, accept ...int) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		payload = b
	}

	var (
		status int
		raw    []byte
		err    error
	)
	for attempt := 1; ; attempt++ {
		status, raw, err = c.roundTrip(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if status != http.StatusTooManyRequests || attempt >= maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	if !slices.Contains(accept, status) {
		return fmt.Errorf("%s %s: %w: %d %s", method, path, ErrUnexpectedStatus, status, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return resp.StatusCode, raw, nil
}
