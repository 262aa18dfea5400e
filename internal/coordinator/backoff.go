package coordinator

import (
	"context"
	"time"
)

// backoffDelay returns the delay before the given retry (attempt is
// 1-based: the delay after attempt n). Exponential, factor 2, capped. No
// jitter: duplicate concurrent deliveries are already safe under
// overwrite-by-deterministic-key, so herd smoothing buys nothing here.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
