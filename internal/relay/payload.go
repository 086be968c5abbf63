package relay

import (
	"encoding/json"
	"time"

	"sensorlog/internal/model"
)

type identPayload struct {
	Kind           string  `json:"kind,omitempty"`
	Time           float64 `json:"time"`
	TimezoneOffset float64 `json:"timezone_offset"`
	ChannelID      int64   `json:"channel_id"`
	ChannelName    string  `json:"channel_name"`
	MessageID      int64   `json:"message_id"`
	BotName        string  `json:"bot_name"`
	DeviceName     string  `json:"device_name"`
}

type eventPayload struct {
	identPayload
	Type int    `json:"type"`
	Flag string `json:"flag"`
	Text string `json:"text"`
}

type valuesPayload struct {
	identPayload
	Level        *float64 `json:"level"`
	RawLevel     *float64 `json:"raw_level"`
	Distance     *float64 `json:"distance"`
	T0           *float64 `json:"t0"`
	T1           *float64 `json:"t1"`
	V0           *float64 `json:"v0"`
	V1           *float64 `json:"v1"`
	SNR          *int64   `json:"snr"`
	RSSI         *int64   `json:"rssi"`
	SNRGateway   *int64   `json:"snr_gw"`
	RSSIGateway  *int64   `json:"rssi_gw"`
	Speed1       *int64   `json:"speed1"`
	Speed2       *int64   `json:"speed2"`
	Counter      *int64   `json:"counter"`
	DigitalInput *int64   `json:"digital_input"`
}

func newIdent(id model.Identification, kind string) identPayload {
	return identPayload{
		Kind:           kind,
		Time:           float64(id.Time.UnixNano()) / float64(time.Second),
		TimezoneOffset: id.TimezoneOffset.Seconds(),
		ChannelID:      id.ChannelID,
		ChannelName:    id.ChannelName,
		MessageID:      id.MessageID,
		BotName:        id.BotName,
		DeviceName:     id.DeviceName,
	}
}

// Encode renders rec as the flat JSON document downstream consumers expect:
// epoch seconds for time, seconds for the offset, null for unobserved values.
// withKind adds a "kind" discriminator for mixed streams.
func Encode(rec model.Record, withKind bool) ([]byte, error) {
	kind := ""
	if withKind {
		kind = rec.Kind.String()
	}
	switch rec.Kind {
	case model.KindEvent:
		ev := rec.Event
		return json.Marshal(eventPayload{
			identPayload: newIdent(ev.Identification, kind),
			Type:         int(ev.Type),
			Flag:         ev.Flag,
			Text:         ev.Text,
		})
	case model.KindValues:
		v := rec.Values
		return json.Marshal(valuesPayload{
			identPayload: newIdent(v.Identification, kind),
			Level:        v.Level,
			RawLevel:     v.RawLevel,
			Distance:     v.Distance,
			T0:           v.T0,
			T1:           v.T1,
			V0:           v.V0,
			V1:           v.V1,
			SNR:          v.SNR,
			RSSI:         v.RSSI,
			SNRGateway:   v.SNRGateway,
			RSSIGateway:  v.RSSIGateway,
			Speed1:       v.Speed1,
			Speed2:       v.Speed2,
			Counter:      v.Counter,
			DigitalInput: v.DigitalInput,
		})
	default:
		return nil, ErrNoRecord
	}
}
