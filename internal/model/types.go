package model

import (
	"fmt"
	"time"
)

// ChannelMessage is one raw post delivered by a transport, before decoding.
type ChannelMessage struct {
	Text        string    `json:"text"`
	Date        time.Time `json:"date"`
	ChannelID   int64     `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	MessageID   int64     `json:"message_id"`
	Signature   string    `json:"signature"`
	Source      string    `json:"source,omitempty"`
}

// Identification is the provenance shared by every decoded record.
// Time is always an absolute UTC instant.
type Identification struct {
	Time           time.Time     `json:"time"`
	TimezoneOffset time.Duration `json:"timezone_offset"`
	ChannelID      int64         `json:"channel_id"`
	ChannelName    string        `json:"channel_name"`
	MessageID      int64         `json:"message_id"`
	BotID          *int64        `json:"bot_id"`
	BotName        string        `json:"bot_name"`
	DeviceID       *int64        `json:"device_id"`
	DeviceName     string        `json:"device_name"`
}

type EventType int

const (
	EventUnknown       EventType = 0
	EventLevel         EventType = 1
	EventCommunication EventType = 2
)

func (t EventType) String() string {
	switch t {
	case EventLevel:
		return "level"
	case EventCommunication:
		return "communication"
	default:
		return "unknown"
	}
}

// Event is an alert line pair posted by a gateway.
type Event struct {
	Identification
	Type EventType `json:"type"`
	Flag string    `json:"flag"`
	Text string    `json:"text"`
}

// Values is a telemetry snapshot. A nil field was not observed.
type Values struct {
	Identification
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

type RecordKind int

const (
	KindNone RecordKind = iota
	KindValues
	KindEvent
)

func (k RecordKind) String() string {
	switch k {
	case KindValues:
		return "values"
	case KindEvent:
		return "event"
	default:
		return "none"
	}
}

// Record is the decoder's result: exactly one of Values or Event is set
// according to Kind, or neither when Kind is KindNone.
type Record struct {
	Kind   RecordKind
	Values *Values
	Event  *Event
}

func ValuesRecord(v *Values) Record { return Record{Kind: KindValues, Values: v} }

func EventRecord(e *Event) Record { return Record{Kind: KindEvent, Event: e} }

func (r Record) IsNone() bool { return r.Kind == KindNone }

// Ident returns the identification of whichever variant is set.
func (r Record) Ident() Identification {
	switch r.Kind {
	case KindValues:
		return r.Values.Identification
	case KindEvent:
		return r.Event.Identification
	default:
		return Identification{}
	}
}

func (r Record) String() string {
	id := r.Ident()
	return fmt.Sprintf("%s device=%q channel=%d message=%d", r.Kind, id.DeviceName, id.ChannelID, id.MessageID)
}
