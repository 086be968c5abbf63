package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorlog/internal/model"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func snapshot(device string, at time.Time, level float64) model.Values {
	v := model.Values{Identification: model.Identification{Time: at, DeviceName: device}}
	_ = v.SetDecimal(model.FieldLevel, level)
	return v
}

func TestStoreKeepsLatestPerDevice(t *testing.T) {
	s := NewStore(10)
	assert.True(t, s.Update(snapshot("P1", base, 1)))
	assert.True(t, s.Update(snapshot("P1", base.Add(time.Minute), 2)))
	assert.False(t, s.Update(snapshot("P1", base, 3)), "older snapshot must not replace newer")
	assert.False(t, s.Update(snapshot("", base, 1)))

	v, _, ok := s.Get("P1")
	require.True(t, ok)
	assert.Equal(t, 2.0, *v.Level)
	_, _, ok = s.Get("P2")
	assert.False(t, ok)
}

func TestStoreEvictsLeastRecentlyUpdated(t *testing.T) {
	s := NewStore(2)
	tick := base
	s.now = func() time.Time { tick = tick.Add(time.Second); return tick }
	s.Update(snapshot("A", base, 1))
	s.Update(snapshot("B", base, 1))
	s.Update(snapshot("C", base, 1))
	assert.Equal(t, []string{"B", "C"}, s.Devices())
	assert.Len(t, s.GetAll(), 2)

	s.Clear()
	assert.Empty(t, s.Devices())
}

func TestCollectorExportsDeviceValues(t *testing.T) {
	c := NewCollector()
	v := snapshot("P1", base, 3.2)
	require.NoError(t, v.SetInteger(model.FieldRSSI, -90))
	c.ObserveValues(v)

	assert.Equal(t, 3.2, testutil.ToFloat64(c.deviceValue.WithLabelValues("P1", "level")))
	assert.Equal(t, -90.0, testutil.ToFloat64(c.deviceValue.WithLabelValues("P1", "rssi")))
	assert.Equal(t, float64(base.Unix()), testutil.ToFloat64(c.deviceSeenTS.WithLabelValues("P1")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.deviceValue))

	c.ResetDevices()
	assert.Equal(t, 0, testutil.CollectAndCount(c.deviceValue))
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.ObserveMessage("telegram", "values")
	c.ObserveMessage("telegram", "values")
	c.ObserveMessage("", "none")
	c.ObserveRelay("http", nil)
	c.ObserveRelay("http", errors.New("boom"))
	c.ObserveStoreError(model.KindEvent)
	c.ObserveEvent(model.Event{Identification: model.Identification{DeviceName: "P1"}, Type: model.EventCommunication})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messages.WithLabelValues("telegram", "values")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("unknown", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relaySends.WithLabelValues("http", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeErrors.WithLabelValues("event")))

	expected := `
# HELP sensorlog_events_total Decoded gateway events by device and type
# TYPE sensorlog_events_total counter
sensorlog_events_total{device="P1",type="communication"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c.events, strings.NewReader(expected)))
}
