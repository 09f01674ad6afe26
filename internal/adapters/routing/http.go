package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"fleet-route-planner/internal/ports"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Body)
}

func do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors and 429, 500,
// 502, 503 and 504 responses) with exponential backoff while respecting context
// cancellation. Terminal failures are classified into the gateway error
// taxonomy so the matrix builder can pick a fallback strategy.
func doWithRetry(
	ctx context.Context,
	client *http.Client,
	attempts int,
	initialDelay time.Duration,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := initialDelay
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, classifyTransportError(err)
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := do(client, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts {
			return nil, classifyTransportError(lastErr)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, classifyTransportError(ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, classifyTransportError(lastErr)
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// classifyTransportError maps low-level failures onto the gateway error
// taxonomy. Oversized requests surface as ErrRequestTooLarge so the
// builder can re-chunk; everything transport-shaped becomes
// ErrProviderUnavailable.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusRequestURITooLong, http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %v", ports.ErrRequestTooLarge, err)
		}
		if he.Code >= 500 {
			return fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, err)
	}

	return err
}
