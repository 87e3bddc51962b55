package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/metrics"
)

const (
	providerFailureThreshold = 3
	providerBlockBase        = 2 * time.Minute
	providerBlockMax         = 15 * time.Minute
)

// operationHealth is the breaker state of one upstream operation.
type operationHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

func (h *operationHealth) blockedAt(now time.Time) bool {
	return !h.blockedUntil.IsZero() && now.Before(h.blockedUntil)
}

// observe folds one call result into the state and returns the outcome label
// used for metrics.
func (h *operationHealth) observe(err error, latency time.Duration, now time.Time, breaker bool) string {
	h.totalRequests++
	if latency > 0 {
		h.lastLatency = latency
	}
	h.lastTimeout = isTimeoutLikeError(err)
	if h.lastTimeout {
		h.timeoutCount++
	}

	if !countsAsFailure(err) {
		h.consecutiveFailures = 0
		h.blockedUntil = time.Time{}
		h.lastError = ""
		h.lastSuccessAt = now
		if err != nil {
			return "empty"
		}
		return "ok"
	}

	h.consecutiveFailures++
	h.totalFailures++
	h.lastFailureAt = now
	h.lastError = err.Error()
	if breaker && h.consecutiveFailures >= providerFailureThreshold {
		h.blockedUntil = now.Add(blockDuration(h.consecutiveFailures))
	}
	if h.lastTimeout {
		return "timeout"
	}
	return "error"
}

func (h *operationHealth) report(operation string) domain.ProviderDiagnostics {
	return domain.ProviderDiagnostics{
		Operation:           operation,
		ConsecutiveFailures: h.consecutiveFailures,
		LastError:           h.lastError,
		LastLatencyMS:       h.lastLatency.Milliseconds(),
		LastTimeout:         h.lastTimeout,
		TotalRequests:       h.totalRequests,
		TotalFailures:       h.totalFailures,
		TimeoutCount:        h.timeoutCount,
		BlockedUntil:        timePtr(h.blockedUntil),
		LastSuccessAt:       timePtr(h.lastSuccessAt),
		LastFailureAt:       timePtr(h.lastFailureAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// healthBoard tracks every operation of one provider. With the breaker off it
// still records diagnostics but never blocks.
type healthBoard struct {
	mu      sync.Mutex
	breaker bool
	ops     map[string]*operationHealth
}

func newHealthBoard(breaker bool, operations []string) *healthBoard {
	board := &healthBoard{breaker: breaker, ops: make(map[string]*operationHealth, len(operations))}
	for _, operation := range operations {
		board.ops[operation] = &operationHealth{}
	}
	return board
}

func (b *healthBoard) entry(operation string) *operationHealth {
	h := b.ops[operation]
	if h == nil {
		h = &operationHealth{}
		b.ops[operation] = h
	}
	return h
}

// admit fails fast with ErrProviderUnavailable while the operation is blocked.
func (b *healthBoard) admit(operation string, now time.Time) error {
	if !b.breaker {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.entry(operation)
	if !h.blockedAt(now) {
		return nil
	}
	return fmt.Errorf("%w: %s temporarily unhealthy until %s: %s",
		domain.ErrProviderUnavailable, operation, h.blockedUntil.UTC().Format(time.RFC3339), h.lastError)
}

func (b *healthBoard) record(operation string, err error, latency time.Duration, now time.Time) {
	b.mu.Lock()
	h := b.entry(operation)
	outcome := h.observe(err, latency, now, b.breaker)
	blocked := h.blockedAt(now)
	b.mu.Unlock()

	if latency > 0 {
		metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(latency.Seconds())
	}
	metrics.ProviderRequestsTotal.WithLabelValues(operation, outcome).Inc()
	if blocked {
		metrics.ProviderAvailable.WithLabelValues(operation).Set(0)
	} else {
		metrics.ProviderAvailable.WithLabelValues(operation).Set(1)
	}
}

func (b *healthBoard) snapshot() []domain.ProviderDiagnostics {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]domain.ProviderDiagnostics, 0, len(b.ops))
	for _, operation := range slices.Sorted(maps.Keys(b.ops)) {
		items = append(items, b.ops[operation].report(operation))
	}
	return items
}

// countsAsFailure separates upstream trouble from answers that merely carry no data.
func countsAsFailure(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, domain.ErrDistanceUnknown),
		errors.Is(err, domain.ErrPlaceNotFound),
		errors.Is(err, domain.ErrPhotoUnavailable),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// blockDuration doubles the base block for every failure past the threshold,
// up to providerBlockMax.
func blockDuration(consecutiveFailures int) time.Duration {
	extra := max(consecutiveFailures-providerFailureThreshold, 0)
	if extra >= 4 {
		return providerBlockMax
	}
	return min(providerBlockBase<<extra, providerBlockMax)
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
