package search

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"slices"
	"strings"
	"time"

	"fitspot/placesearch/internal/domain"
)

// RetryConfig shapes the backoff between attempts of one upstream call.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig tries three times, pausing about 500ms and then 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// pause returns the jittered wait before the given retry (1-based).
func (c RetryConfig) pause(retry int) time.Duration {
	base := float64(c.InitialDelay)
	growth := max(c.Multiplier, 1)
	for i := 1; i < retry; i++ {
		base *= growth
		if c.MaxDelay > 0 && base >= float64(c.MaxDelay) {
			break
		}
	}
	wait := time.Duration(base * (0.75 + rand.Float64()*0.5))
	if c.MaxDelay > 0 && wait > c.MaxDelay {
		wait = c.MaxDelay
	}
	return wait
}

// RetryWithBackoff calls fn until it succeeds, fails permanently or runs out
// of attempts. When the context deadline would pass during the next pause the
// last upstream error is returned right away.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= attempts || !isTransientError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := cfg.pause(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Statuses the Places web services put into their error messages. Quota and
// internal errors clear up on their own; the rest will not.
var (
	retryableStatuses = []string{"OVER_QUERY_LIMIT", "UNKNOWN_ERROR", "RESOURCE_EXHAUSTED"}
	permanentStatuses = []string{"REQUEST_DENIED", "INVALID_REQUEST", "MAX_ELEMENTS_EXCEEDED", "MAX_DIMENSIONS_EXCEEDED", "OVER_DAILY_LIMIT"}
)

func upstreamStatus(err error) string {
	message := err.Error()
	for _, status := range slices.Concat(permanentStatuses, retryableStatuses) {
		if strings.Contains(message, status) {
			return status
		}
	}
	return ""
}

// isTransientError reports whether another attempt of the same request can
// succeed. Answers without data are never retried.
func isTransientError(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, domain.ErrDistanceUnknown),
		errors.Is(err, domain.ErrPlaceNotFound),
		errors.Is(err, domain.ErrPhotoUnavailable),
		errors.Is(err, domain.ErrDecodeFailure):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	if status := upstreamStatus(err); status != "" {
		return slices.Contains(retryableStatuses, status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused")
}
