package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"sensorlog/internal/model"
)

type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now, ttl)
	}
	return false
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}

// messageKey identifies a post by channel and message id. Sources that do
// not carry a message id fall back to a content hash.
func messageKey(msg model.ChannelMessage) string {
	if msg.MessageID != 0 {
		return strconv.FormatInt(msg.ChannelID, 10) + "|" + strconv.FormatInt(msg.MessageID, 10)
	}
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(msg.ChannelID, 10)))
	h.Write([]byte{0})
	h.Write([]byte(msg.Date.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(msg.Text))
	return "h|" + hex.EncodeToString(h.Sum(nil))
}
