package history

import (
	"context"
	"sync"
	"time"
)

type logger interface {
	Info(message string, fields ...map[string]interface{})
	Error(message string, fields ...map[string]interface{})
}

// RetentionConfig defines how long runs are kept and how often old ones
// are pruned.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// RetentionStats tracks prune passes.
type RetentionStats struct {
	LastPruneTime     time.Time
	LastPruneDuration time.Duration
	TotalPruned       int64
	Passes            int64
}

// Retention prunes a store in the background.
type Retention struct {
	cfg   RetentionConfig
	store Store
	log   logger
	now   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats RetentionStats
}

// NewRetention creates a retention manager. Interval defaults to an hour.
func NewRetention(cfg RetentionConfig, store Store, log logger) *Retention {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Retention{cfg: cfg, store: store, log: log, now: time.Now}
}

// Start prunes once and then every Interval until Stop.
func (r *Retention) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.log.Info("starting history retention", map[string]interface{}{
		"max_age":  r.cfg.MaxAge.String(),
		"interval": r.cfg.Interval.String(),
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.PruneNow()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.PruneNow()
			}
		}
	}()
}

// Stop ends the background loop and waits for a running pass.
func (r *Retention) Stop(context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

// PruneNow deletes runs older than MaxAge.
func (r *Retention) PruneNow() (int, error) {
	start := r.now()
	n, err := r.store.Prune(start.Add(-r.cfg.MaxAge))
	if err != nil {
		r.log.Error("history prune failed", map[string]interface{}{"error": err.Error()})
		return 0, err
	}

	r.mu.Lock()
	r.stats.LastPruneTime = start
	r.stats.LastPruneDuration = time.Since(start)
	r.stats.TotalPruned += int64(n)
	r.stats.Passes++
	r.mu.Unlock()

	if n > 0 {
		r.log.Info("history pruned", map[string]interface{}{"runs": n})
	}
	return n, nil
}

// Stats returns the current retention statistics.
func (r *Retention) Stats() RetentionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
