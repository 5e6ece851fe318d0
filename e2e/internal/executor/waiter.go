package executor

import (
	"context"
	"time"
)

// ScaledDelay converts seconds on the scenario timeline to wall time
func ScaledDelay(seconds, timeScale int) time.Duration {
	if timeScale < 1 {
		timeScale = 1 // Default to no scaling
	}
	return time.Duration(seconds) * time.Second / time.Duration(timeScale)
}

// sleepContext sleeps for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
