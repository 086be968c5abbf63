package metrics

import (
	"sort"
	"sync"
	"time"

	"sensorlog/internal/model"
)

// Store keeps the latest telemetry snapshot per device.
type Store struct {
	mu        sync.RWMutex
	byDevice  map[string]model.Values
	updatedAt map[string]time.Time
	limit     int
	now       func() time.Time
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byDevice:  make(map[string]model.Values),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Update records v unless a newer snapshot for the same device is already held.
func (s *Store) Update(v model.Values) bool {
	if v.DeviceName == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.byDevice[v.DeviceName]; ok && cur.Time.After(v.Time) {
		return false
	}
	s.byDevice[v.DeviceName] = v
	s.updatedAt[v.DeviceName] = s.now()
	if len(s.byDevice) > s.limit {
		s.evictOldest()
	}
	return true
}

func (s *Store) Get(device string) (model.Values, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byDevice[device]
	if !ok {
		return model.Values{}, time.Time{}, false
	}
	return v, s.updatedAt[device], true
}

func (s *Store) GetAll() map[string]model.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Values, len(s.byDevice))
	for device, v := range s.byDevice {
		out[device] = v
	}
	return out
}

func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byDevice))
	for device := range s.byDevice {
		out = append(out, device)
	}
	sort.Strings(out)
	return out
}

func (s *Store) evictOldest() {
	var oldestDevice string
	var oldest time.Time
	for device, ts := range s.updatedAt {
		if oldestDevice == "" || ts.Before(oldest) {
			oldestDevice = device
			oldest = ts
		}
	}
	if oldestDevice != "" {
		delete(s.byDevice, oldestDevice)
		delete(s.updatedAt, oldestDevice)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice = make(map[string]model.Values)
	s.updatedAt = make(map[string]time.Time)
}
