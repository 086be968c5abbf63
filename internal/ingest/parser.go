package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
	"sensorlog/internal/normalize"
)

var (
	ErrNotEnvelope = errors.New("not a message envelope")
	ErrMissingText = errors.New("envelope has no text")
)

// Parser decodes the JSON envelopes accepted by the non-Telegram sources:
//
//	{"text": "...", "date": "2024-05-10T12:30:00Z", "channel_id": -100123,
//	 "channel_name": "...", "message_id": 42, "signature": "gw-01"}
//
// Naive dates are read in the configured ingest timezone.
type Parser struct {
	cfg *config.Manager
}

func NewParser(cfg *config.Manager) *Parser {
	return &Parser{cfg: cfg}
}

func (p *Parser) location() *time.Location {
	if p == nil || p.cfg == nil {
		return time.UTC
	}
	return config.Location(p.cfg.Get().Ingest.Timezone)
}

// ParseLine returns nil, nil for blank lines.
func (p *Parser) ParseLine(line string) (*model.ChannelMessage, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if trim[0] != '{' {
		return nil, ErrNotEnvelope
	}
	return p.ParseBytes([]byte(trim))
}

func (p *Parser) ParseBytes(data []byte) (*model.ChannelMessage, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	return p.ParseMap(obj)
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	return obj, nil
}

func (p *Parser) ParseMap(obj map[string]any) (*model.ChannelMessage, error) {
	fields := make(map[string]any, len(obj))
	for key, val := range obj {
		fields[strings.ToLower(key)] = val
	}
	textVal, ok := firstPresent(fields, "text", "message", "body")
	if !ok {
		return nil, ErrMissingText
	}
	text, ok := textVal.(string)
	if !ok {
		return nil, fmt.Errorf("%w: text is %T", ErrNotEnvelope, textVal)
	}
	dateVal, _ := firstPresent(fields, "date", "timestamp", "time", "ts")
	date, err := normalize.ParseTimestampValue(numberValue(dateVal), p.location())
	if err != nil {
		return nil, err
	}
	msg := &model.ChannelMessage{
		Text:        text,
		Date:        date,
		ChannelName: stringValue(fields, "channel_name", "channel", "chat_title"),
		Signature:   stringValue(fields, "signature", "author_signature", "author"),
	}
	if msg.ChannelID, err = intValue(fields, "channel_id", "chat_id"); err != nil {
		return nil, err
	}
	if msg.MessageID, err = intValue(fields, "message_id", "id"); err != nil {
		return nil, err
	}
	return msg, nil
}

func firstPresent(fields map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if val, ok := fields[key]; ok && val != nil {
			return val, true
		}
	}
	return nil, false
}

func stringValue(fields map[string]any, keys ...string) string {
	val, ok := firstPresent(fields, keys...)
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(val)
}

func intValue(fields map[string]any, keys ...string) (int64, error) {
	val, ok := firstPresent(fields, keys...)
	if !ok {
		return 0, nil
	}
	var raw string
	switch v := val.(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = strings.TrimSpace(v)
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrNotEnvelope, keys[0], val)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s %q is not an integer", ErrNotEnvelope, keys[0], raw)
}

// numberValue maps json.Number onto the types ParseTimestampValue knows.
func numberValue(val any) any {
	n, ok := val.(json.Number)
	if !ok {
		return val
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
