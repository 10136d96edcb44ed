package query

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smileynet/eventdeck/internal/logging"
)

// DefaultGCSchedule is the cron spec StartGC uses when given "".
const DefaultGCSchedule = "@every 1m"

// GC drops entries that nobody subscribes to, that have no fetch in flight,
// and that were last accessed more than the GC time before now. It returns
// the number of entries removed.
func (c *Client) GC(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if len(e.subs) > 0 || e.flight != nil {
			continue
		}
		if now.Sub(e.lastAccess) < c.gcTime {
			continue
		}
		delete(c.entries, k)
		removed++
	}
	return removed
}

// StartGC runs GC on a cron schedule until Close.
func (c *Client) StartGC(spec string) error {
	if spec == "" {
		spec = DefaultGCSchedule
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() {
		if n := c.GC(c.now()); n > 0 {
			c.log.Debug("query: gc", logging.Fields{"removed": n})
		}
	}); err != nil {
		return fmt.Errorf("query: gc schedule %q: %w", spec, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sched != nil {
		c.sched.Stop()
	}
	c.sched = sched
	c.mu.Unlock()

	sched.Start()
	return nil
}
