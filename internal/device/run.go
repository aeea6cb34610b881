package device

import (
	"context"
	"errors"
	"time"
)

// run calls tick every interval until ctx is done. Only a cancelled context
// stops the loop; a tick reports everything else through its logger.
func run(ctx context.Context, interval time.Duration, tick func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
