package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorlog/internal/model"
)

var (
	ErrMissingTimestamp = errors.New("message has no timestamp")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Identify builds the identification block for a decoded record. The only
// hard requirement is an absolute send time.
func Identify(msg model.ChannelMessage, deviceName string) (model.Identification, error) {
	if msg.Date.IsZero() {
		return model.Identification{}, ErrMissingTimestamp
	}
	return model.Identification{
		Time:        msg.Date.UTC(),
		ChannelID:   msg.ChannelID,
		ChannelName: msg.ChannelName,
		MessageID:   msg.MessageID,
		BotName:     msg.Signature,
		DeviceName:  deviceName,
	}, nil
}

// FromUnix converts a transport epoch (seconds) to an absolute time.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"02/01/2006 15:04:05",
}

// ParseTimestamp accepts RFC3339, a handful of local layouts (interpreted in
// loc), and unix seconds or milliseconds.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidTimestamp, value)
}

// ParseTimestampValue handles the loosely typed "date" of a JSON envelope.
func ParseTimestampValue(value any, loc *time.Location) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, ErrMissingTimestamp
	case string:
		return ParseTimestamp(v, loc)
	case float64:
		if v <= 0 {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, v)
		}
		return ParseTimestamp(strconv.FormatInt(int64(v), 10), loc)
	case int64:
		return ParseTimestamp(strconv.FormatInt(v, 10), loc)
	case int:
		return ParseTimestamp(strconv.Itoa(v), loc)
	default:
		return time.Time{}, fmt.Errorf("%w: unexpected type %T", ErrInvalidTimestamp, value)
	}
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return FromUnix(sec), nil
}
