// evictor.go houses the eviction loop for Store.  Every interval it scans
// the map and removes:
//
//   - forms idle longer than idleTTL
//   - least-recently-used forms when the map holds more than maxEntries
//
// Each eviction is logged and counted.
package session

import (
	"context"
	"sort"
	"time"

	"github.com/yanizio/adept-users/internal/metrics"
)

// Run sweeps on a ticker until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now().UnixNano()
	var live []*entry

	// Idle pass
	s.m.Range(func(_, v any) bool {
		ent := v.(*entry)
		idle := time.Duration(now - ent.lastSeen.Load())
		if idle > s.idleTTL || ent.form.Closed() {
			s.remove(ent)
			s.log.Debugw("form evicted", "reason", "idle", "role", ent.form.Role(),
				"idle", idle.Truncate(time.Second))
			metrics.FormsEvictedTotal.WithLabelValues("idle").Inc()
			return true
		}
		live = append(live, ent)
		return true
	})

	// LRU pass
	if over := len(live) - s.maxEntries; over > 0 {
		sort.Slice(live, func(i, j int) bool {
			return live[i].lastSeen.Load() < live[j].lastSeen.Load()
		})
		for _, ent := range live[:over] {
			s.remove(ent)
			s.log.Debugw("form evicted", "reason", "lru", "role", ent.form.Role())
			metrics.FormsEvictedTotal.WithLabelValues("lru").Inc()
		}
	}
}
