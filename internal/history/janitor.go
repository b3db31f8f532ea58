package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner removes conversations that have not been touched since the
// cutoff. Both stores implement it.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) int
}

// Janitor periodically prunes stale conversations. It runs as a
// background goroutine and respects context cancellation for graceful
// shutdown.
type Janitor struct {
	pruner    Pruner
	interval  time.Duration
	retention time.Duration
}

// NewJanitor creates a janitor that removes conversations idle longer
// than retention, checking every interval.
func NewJanitor(p Pruner, interval, retention time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{pruner: p, interval: interval, retention: retention}
}

// Start runs the prune loop until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.RunOnce(ctx)
			}
		}
	}()
	log.Info().Dur("retention", j.retention).Dur("interval", j.interval).Msg("conversation janitor started")
}

// RunOnce executes a single prune cycle.
func (j *Janitor) RunOnce(ctx context.Context) int {
	cutoff := time.Now().Add(-j.retention)
	pruned := j.pruner.Prune(ctx, cutoff)
	if pruned > 0 {
		log.Info().Int("pruned", pruned).Time("cutoff", cutoff).Msg("stale conversations pruned")
	}
	return pruned
}

// Prune removes conversation files last written before olderThan.
func (s *FileStore) Prune(ctx context.Context, olderThan time.Time) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Msg("failed to scan conversation directory")
		return 0
	}
	pruned := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("failed to prune conversation file")
			continue
		}
		s.mu.Lock()
		delete(s.cache, strings.TrimSuffix(e.Name(), ".json"))
		s.mu.Unlock()
		pruned++
	}
	return pruned
}
