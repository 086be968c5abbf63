package engine

import (
	"sync"
	"time"

	"sensorlog/internal/model"
)

// Cooldown suppresses repeats of the same key within a period.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

// AllowEvent keys on device, type and flag so a gateway repeating the same
// alert is only relayed once per period.
func (c *Cooldown) AllowEvent(ev model.Event, now time.Time, cooldown time.Duration) bool {
	key := ev.DeviceName + "|" + ev.Type.String() + "|" + ev.Flag
	return c.AllowKey(key, now, cooldown)
}

func (c *Cooldown) AllowKey(key string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[key] = now
	if len(c.last) > 10000 {
		for k, ts := range c.last {
			if now.Sub(ts) >= cooldown {
				delete(c.last, k)
			}
		}
	}
	return true
}
