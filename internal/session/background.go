package session

import (
	"context"
	"time"
)

// ReapInterval is the coarse background sweep interval for Reap and
// CleanupOldMessages.
const ReapInterval = time.Minute

// Run drives the background reaper/offline-cleanup loop until ctx is
// cancelled. App launches it under an errgroup.Group so it can join it
// deterministically on shutdown. Reap/CleanupOldMessages return no errors; a
// panic during a tick is recovered and logged, and the loop continues with
// the next tick.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("session reaper tick panicked, continuing", "panic", r)
					}
				}()
				now := uint64(time.Now().UnixMilli())
				m.Reap(now)
				m.CleanupOldMessages()
			}()
		}
	}
}
