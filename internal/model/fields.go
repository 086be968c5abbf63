package model

import "fmt"

// Field names one optional measurement slot of Values.
type Field int

const (
	FieldLevel Field = iota
	FieldRawLevel
	FieldDistance
	FieldT0
	FieldT1
	FieldV0
	FieldV1
	FieldSNR
	FieldRSSI
	FieldSNRGateway
	FieldRSSIGateway
	FieldSpeed1
	FieldSpeed2
	FieldCounter
	FieldDigitalInput
)

var fieldNames = [...]string{
	FieldLevel:        "level",
	FieldRawLevel:     "raw_level",
	FieldDistance:     "distance",
	FieldT0:           "t0",
	FieldT1:           "t1",
	FieldV0:           "v0",
	FieldV1:           "v1",
	FieldSNR:          "snr",
	FieldRSSI:         "rssi",
	FieldSNRGateway:   "snr_gw",
	FieldRSSIGateway:  "rssi_gw",
	FieldSpeed1:       "speed1",
	FieldSpeed2:       "speed2",
	FieldCounter:      "counter",
	FieldDigitalInput: "digital_input",
}

// Fields lists every value field in column order.
func Fields() []Field {
	out := make([]Field, len(fieldNames))
	for i := range fieldNames {
		out[i] = Field(i)
	}
	return out
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// IsDecimal reports whether the field holds a float.
func (f Field) IsDecimal() bool {
	return f >= FieldLevel && f <= FieldV1
}

func (v *Values) decimalSlot(f Field) **float64 {
	switch f {
	case FieldLevel:
		return &v.Level
	case FieldRawLevel:
		return &v.RawLevel
	case FieldDistance:
		return &v.Distance
	case FieldT0:
		return &v.T0
	case FieldT1:
		return &v.T1
	case FieldV0:
		return &v.V0
	case FieldV1:
		return &v.V1
	}
	return nil
}

func (v *Values) integerSlot(f Field) **int64 {
	switch f {
	case FieldSNR:
		return &v.SNR
	case FieldRSSI:
		return &v.RSSI
	case FieldSNRGateway:
		return &v.SNRGateway
	case FieldRSSIGateway:
		return &v.RSSIGateway
	case FieldSpeed1:
		return &v.Speed1
	case FieldSpeed2:
		return &v.Speed2
	case FieldCounter:
		return &v.Counter
	case FieldDigitalInput:
		return &v.DigitalInput
	}
	return nil
}

// SetDecimal stores x into a decimal field.
func (v *Values) SetDecimal(f Field, x float64) error {
	slot := v.decimalSlot(f)
	if slot == nil {
		return fmt.Errorf("%s is not a decimal field", f)
	}
	*slot = &x
	return nil
}

// SetInteger stores n into an integer field.
func (v *Values) SetInteger(f Field, n int64) error {
	slot := v.integerSlot(f)
	if slot == nil {
		return fmt.Errorf("%s is not an integer field", f)
	}
	*slot = &n
	return nil
}

// Get returns the field as float64 or int64, or nil when absent.
func (v *Values) Get(f Field) any {
	if slot := v.decimalSlot(f); slot != nil {
		if *slot == nil {
			return nil
		}
		return **slot
	}
	if slot := v.integerSlot(f); slot != nil {
		if *slot == nil {
			return nil
		}
		return **slot
	}
	return nil
}
