package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleep    func(context.Context, time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 5, base: time.Second, max: 10 * time.Second, sleep: sleepContext}
}

// do runs call until it succeeds, fails permanently or attempts run out.
func (p retryPolicy) do(ctx context.Context, call func() error) error {
	attempts := max(p.attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		wait, ok := p.delay(err, attempt)
		if !ok {
			return err
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if attempts > 1 {
		return fmt.Errorf("llm: giving up after %d attempts: %w", attempts, err)
	}
	return err
}

// delay reports how long to wait before retrying err, or false when err is
// permanent.
func (p retryPolicy) delay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return p.backoff(attempt), true
	}
	var status *statusError
	if errors.As(err, &status) {
		if status.Code != http.StatusRequestTimeout && status.Code != http.StatusTooManyRequests && status.Code < 500 {
			return 0, false
		}
		if status.RetryAfter > 0 {
			return min(status.RetryAfter, p.max), true
		}
		return p.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles base per attempt, capped at max.
func (p retryPolicy) backoff(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	d := p.base
	for i := 1; i < attempt && d < p.max; i++ {
		d *= 2
	}
	if p.max > 0 && d > p.max {
		d = p.max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
