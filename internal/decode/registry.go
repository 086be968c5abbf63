package decode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"sensorlog/internal/model"
)

// Coercion selects how a raw numeral is turned into a field value.
type Coercion int

const (
	Decimal Coercion = iota
	Integer
	Binary
)

func (c Coercion) String() string {
	switch c {
	case Decimal:
		return "decimal"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Entry binds a source label to the field it fills.
type Entry struct {
	Field    model.Field
	Coercion Coercion
}

// registry is keyed by the NFC form of the label as the gateways print it.
// Extend it here; it is never mutated at runtime.
var registry = buildRegistry(map[string]Entry{
	"Nível":           {model.FieldLevel, Decimal},
	"Nível*":          {model.FieldRawLevel, Decimal},
	"Dist₍₀₎":         {model.FieldDistance, Decimal},
	"T0":              {model.FieldT0, Decimal},
	"T1":              {model.FieldT1, Decimal},
	"V0":              {model.FieldV0, Decimal},
	"V1":              {model.FieldV1, Decimal},
	"SNR":             {model.FieldSNR, Integer},
	"RSSI":            {model.FieldRSSI, Integer},
	"SNR(gw)":         {model.FieldSNRGateway, Integer},
	"RSSI(gw)":        {model.FieldRSSIGateway, Integer},
	"Δd/Δt₍₋₁₎":       {model.FieldSpeed1, Integer},
	"Δd/Δt₍₋₂₎":       {model.FieldSpeed2, Integer},
	"Contador":        {model.FieldCounter, Integer},
	"Entrada Digital": {model.FieldDigitalInput, Binary},
})

func buildRegistry(src map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(src))
	for label, entry := range src {
		out[norm.NFC.String(label)] = entry
	}
	return out
}

// Lookup finds the registry entry for a label. Surrounding whitespace and
// Unicode composition differences are ignored.
func Lookup(label string) (Entry, bool) {
	entry, ok := registry[norm.NFC.String(strings.TrimSpace(label))]
	return entry, ok
}

// Labels returns a copy of the label table.
func Labels() map[string]Entry {
	out := make(map[string]Entry, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}

var ErrMalformed = errors.New("malformed numeral")

// Apply coerces raw and stores it in the entry's field.
func (e Entry) Apply(v *model.Values, raw string) error {
	switch e.Coercion {
	case Decimal:
		x, err := ParseDecimal(raw)
		if err != nil {
			return err
		}
		return v.SetDecimal(e.Field, x)
	case Integer:
		n, err := ParseInteger(raw)
		if err != nil {
			return err
		}
		return v.SetInteger(e.Field, n)
	case Binary:
		n, err := ParseBinary(raw)
		if err != nil {
			return err
		}
		return v.SetInteger(e.Field, n)
	default:
		return fmt.Errorf("unsupported coercion %d", int(e.Coercion))
	}
}

// ParseDecimal parses a finite float.
func ParseDecimal(raw string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return x, nil
}

// ParseInteger accepts decimal-formatted integers ("12.0") and truncates
// toward zero.
func ParseInteger(raw string) (int64, error) {
	x, err := ParseDecimal(raw)
	if err != nil {
		return 0, err
	}
	x = math.Trunc(x)
	if x < math.MinInt64 || x >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformed, raw)
	}
	return int64(x), nil
}

// ParseBinary decodes the open/closed state of a digital input:
// Aberta -> 1, Fechada -> 0, anything else must be an integer.
func ParseBinary(raw string) (int64, error) {
	state := strings.TrimSpace(raw)
	if state == "" {
		return 0, fmt.Errorf("%w: empty state", ErrMalformed)
	}
	first, _ := utf8.DecodeRuneInString(state)
	switch unicode.ToLower(first) {
	case 'a':
		return 1, nil
	case 'f':
		return 0, nil
	}
	return ParseInteger(state)
}
