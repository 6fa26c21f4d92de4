package cli

import (
	"context"
	"time"
)

// watchSession logs the user out once the session's expiry has passed; the
// user is warned through onSession. It returns nil when ctx is done.
func (a *App) watchSession(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if a.session.CheckExpiry(ctx, now) {
				a.log.Debug(ctx, "session expired", "at", now)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
