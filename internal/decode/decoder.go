// Package decode turns the free-form status posts of sensor gateways into
// typed records.
//
// Two shapes are recognised. A telemetry post starts with a line carrying
// Nome:"<device>" and continues with one "<label>: <value>" line per reading.
// An alert post is two lines: "<device>: <text with glyphs>" followed by a
// description naming either the level or the communication link. Anything
// else yields no record.
package decode

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"sensorlog/internal/model"
	"sensorlog/internal/normalize"
)

const (
	SymbolCheck     = '\u2705'
	SymbolWarning   = '\u26a0'
	SymbolDownArrow = '\u2b07'
	SymbolUpArrow   = '\u2b06'

	variationSelector = '\ufe0f'

	keywordLevel         = "n\u00edvel"
	keywordCommunication = "comunica\u00e7\u00e3o"
)

var (
	reDeviceName = regexp.MustCompile(`Nome:\s*"([^"]+)"`)
	reNumeral    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	lineBreaks   = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Decoder is stateless and safe for concurrent use.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode classifies msg and returns at most one record. Content problems
// never produce an error; only unusable metadata does.
func (d *Decoder) Decode(msg model.ChannelMessage) (model.Record, error) {
	if msg.Date.IsZero() {
		return model.Record{}, fmt.Errorf("decode message %d: %w", msg.MessageID, normalize.ErrMissingTimestamp)
	}
	lines := splitLines(msg.Text)
	if len(lines) == 0 {
		return model.Record{}, nil
	}
	values, err := parseValues(lines, msg)
	if err != nil {
		return model.Record{}, err
	}
	if values != nil {
		return model.ValuesRecord(values), nil
	}
	ev, err := parseEvent(lines, msg)
	if err != nil || ev == nil {
		return model.Record{}, err
	}
	return model.EventRecord(ev), nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(lineBreaks.Replace(text), "\n")
}

func parseValues(lines []string, msg model.ChannelMessage) (*model.Values, error) {
	m := reDeviceName.FindStringSubmatch(lines[0])
	if m == nil {
		return nil, nil
	}
	id, err := normalize.Identify(msg, strings.TrimSpace(m[1]))
	if err != nil {
		return nil, err
	}
	values := &model.Values{Identification: id}
	for _, line := range lines[1:] {
		label, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		entry, ok := Lookup(label)
		if !ok {
			continue
		}
		// A malformed numeral only drops this field.
		_ = entry.Apply(values, extractNumeral(raw))
	}
	return values, nil
}

func extractNumeral(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := reNumeral.FindString(raw); m != "" {
		return m
	}
	return raw
}

func parseEvent(lines []string, msg model.ChannelMessage) (*model.Event, error) {
	if len(lines) < 2 {
		return nil, nil
	}
	device, alert, ok := strings.Cut(lines[0], ":")
	if !ok {
		return nil, nil
	}
	device = strings.TrimSpace(device)
	alert = strings.TrimSpace(alert)
	if device == "" || alert == "" {
		return nil, nil
	}
	flag := extractFlag(alert)
	if flag == "" {
		return nil, nil
	}
	kind := classify(lines[1])
	if kind == model.EventUnknown {
		return nil, nil
	}
	id, err := normalize.Identify(msg, device)
	if err != nil {
		return nil, err
	}
	return &model.Event{
		Identification: id,
		Type:           kind,
		Flag:           flag,
		Text:           lines[0] + "\n" + lines[1],
	}, nil
}

// extractFlag concatenates the alert glyphs in order of appearance. A glyph
// keeps the emoji presentation selector that follows it.
func extractFlag(text string) string {
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		if !isGlyph(r) {
			continue
		}
		b.WriteRune(r)
		if i+1 < len(runes) && runes[i+1] == variationSelector {
			b.WriteRune(variationSelector)
		}
	}
	return b.String()
}

func isGlyph(r rune) bool {
	switch r {
	case SymbolCheck, SymbolWarning, SymbolDownArrow, SymbolUpArrow:
		return true
	}
	return false
}

func classify(line string) model.EventType {
	text := strings.ToLower(norm.NFC.String(line))
	switch {
	case strings.Contains(text, keywordLevel):
		return model.EventLevel
	case strings.Contains(text, keywordCommunication):
		return model.EventCommunication
	default:
		return model.EventUnknown
	}
}
