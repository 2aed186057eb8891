package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/pietrosul/MyBusApp/internal/logging"
)

const refreshTimeout = 5 * time.Minute

// StartRefresh starts the periodic reload goroutine when RefreshInterval is
// set. Calling it more than once has no effect. Call Shutdown to stop it.
func (manager *Manager) StartRefresh() {
	if manager.config.RefreshInterval <= 0 {
		return
	}
	manager.refreshOnce.Do(func() {
		manager.wg.Add(1)
		go manager.refreshPeriodically()
	})
}

func (manager *Manager) refreshPeriodically() {
	defer manager.wg.Done()

	logger := manager.logger.With(slog.String("task", "refresh"))
	ticker := time.NewTicker(manager.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			err := manager.ForceUpdate(ctx)
			cancel()
			if err != nil {
				logging.LogError(logger, "Error refreshing catalog", err)
			}
		case <-manager.shutdownChan:
			logging.LogOperation(logger, "shutting_down_catalog_refresh")
			return
		}
	}
}

// ForceUpdate reloads the network and hot-swaps it under the write lock.
// On failure the previous data keeps being served.
func (manager *Manager) ForceUpdate(ctx context.Context) error {
	manager.updateMu.Lock()
	defer manager.updateMu.Unlock()

	started := time.Now()
	lines, stations, err := manager.fetch(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	manager.swap(lines, stations, manager.IsRemote())
	logging.LogOperation(manager.logger, "catalog_data_updated_hot_swap",
		slog.Int("lines", len(lines)),
		slog.Int("stations", len(stations)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// Shutdown stops the refresh goroutine and waits for it to exit.
// Safe to call multiple times.
func (manager *Manager) Shutdown() {
	manager.shutdownOnce.Do(func() {
		close(manager.shutdownChan)
	})
	manager.wg.Wait()
}
