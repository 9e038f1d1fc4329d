package durablestream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	headerNextOffset = "Stream-Next-Offset"
	contentTypeJSON  = "application/json"
	maxBackoff       = 2 * time.Second
)

// stream is one durable-streams log addressed by URL. Records are JSON
// arrays, one element per bus change.
type stream struct {
	url *url.URL
	cfg *config
}

// page is one GET response: the records after the requested offset and the
// offset to resume from
type page struct {
	body []byte
	next string
}

// create makes the stream if it is missing. The server answers 200 or 204
// for an existing stream, so every process of a domain may call it.
func (s *stream) create(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodPut, s.url.String(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusNoContent:
		return nil
	}
	return statusError("create", resp)
}

// append posts a batch of records and returns the offset after them
func (s *stream) append(ctx context.Context, records []byte) (string, error) {
	resp, err := s.do(ctx, http.MethodPost, s.url.String(), records)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", statusError("append", resp)
	}
	next := resp.Header.Get(headerNextOffset)
	if next == "" {
		return "", fmt.Errorf("append: response has no %s", headerNextOffset)
	}
	return next, nil
}

// read fetches up to limit records after offset; limit <= 0 leaves the page
// size to the server
func (s *stream) read(ctx context.Context, offset string, limit int) (*page, error) {
	u := *s.url
	q := u.Query()
	q.Set("offset", offset)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	resp, err := s.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("stream %s not found", s.url.Path)
	default:
		return nil, statusError("read", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &page{body: body, next: resp.Header.Get(headerNextOffset)}, nil
}

// do sends one request, retrying transport errors, 429 and 5xx answers with
// doubling backoff. The request is rebuilt for every attempt so a POST body
// is never half consumed.
func (s *stream) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.requestTimeout)

	var lastErr error
	for attempt := 0; attempt <= s.cfg.retryAttempts; attempt++ {
		if attempt > 0 {
			if s.cfg.logger != nil {
				s.cfg.logger.Debugw("retrying stream request", "method", method, "url", target, "attempt", attempt, "error", lastErr)
			}
			select {
			case <-ctx.Done():
				cancel()
				return nil, ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil || method == http.MethodPut {
			req.Header.Set("Content-Type", contentTypeJSON)
		}

		resp, err := s.cfg.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if retryable(resp.StatusCode) && attempt < s.cfg.retryAttempts {
			resp.Body.Close()
			lastErr = fmt.Errorf("server answered %d", resp.StatusCode)
			continue
		}

		// The caller closes the body, which releases the deadline
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	cancel()
	return nil, fmt.Errorf("after %d retries: %w", s.cfg.retryAttempts, lastErr)
}

func (s *stream) backoff(attempt int) time.Duration {
	d := s.cfg.retryBackoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
