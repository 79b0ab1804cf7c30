package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	apiKeyHeader = "X-API-Key"

	retryBaseDelay = 100 * time.Millisecond
	retryCapDelay  = 1000 * time.Millisecond
)

// transport issues authenticated JSON requests with retry on transient
// failures. Network errors and 5xx responses are retried with exponential
// backoff; 4xx responses are returned immediately.
type transport struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends the request body and decodes the response into out, retrying
// per the transport's policy.
func (t *transport) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	backoff := retry.WithMaxRetries(t.maxRetries,
		retry.WithCappedDuration(retryCapDelay,
			retry.NewExponential(retryBaseDelay)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return t.postOnce(ctx, path, payload, out)
	})
	if err != nil {
		var netErr *retryExhaustedError
		if errors.As(err, &netErr) {
			return errors.Join(ErrUnavailable, netErr.cause)
		}
		return err
	}
	return nil
}

// retryExhaustedError marks failures eligible for retry so that, once the
// budget is spent, they surface as ErrUnavailable instead of a raw
// transport error.
type retryExhaustedError struct{ cause error }

func (e *retryExhaustedError) Error() string { return e.cause.Error() }
func (e *retryExhaustedError) Unwrap() error { return e.cause }

func (t *transport) postOnce(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(&retryExhaustedError{cause: err})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return retry.RetryableError(&retryExhaustedError{
			cause: fmt.Errorf("server error: %s", resp.Status),
		})
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		var body apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.Error.Message != "" {
			return fmt.Errorf("%w: %s: %s", ErrRequestFailed, body.Error.Code, body.Error.Message)
		}
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
