package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sensorlog/internal/model"
)

func event(id int64, at time.Time) model.Event {
	return model.Event{
		Identification: model.Identification{Time: at, MessageID: id, DeviceName: "P1"},
		Type:           model.EventLevel,
		Flag:           "⚠",
	}
}

func messageIDs(events []model.Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.MessageID)
	}
	return out
}

func TestStoreKeepsNewestWithinLimit(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s := NewStore(3)
	for i := int64(1); i <= 5; i++ {
		s.Add(event(i, base.Add(time.Duration(i)*time.Minute)))
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []int64{5, 4, 3}, messageIDs(s.List(0)))
	assert.Equal(t, []int64{5, 4}, messageIDs(s.List(2)))
	assert.Equal(t, []int64{5, 4}, messageIDs(s.Since(base.Add(4*time.Minute), 0)))
	assert.Equal(t, []int64{5}, messageIDs(s.Since(base, 1)))

	s.Clear()
	assert.Empty(t, s.List(10))
}
