package model

import (
	"encoding/json"
	"time"
)

// Records encode timezone_offset as whole seconds, matching storage and
// the relay payloads.

func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	return json.Marshal(struct {
		plain
		TimezoneOffset int64 `json:"timezone_offset"`
	}{plain(e), offsetSeconds(e.TimezoneOffset)})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	aux := struct {
		*plain
		TimezoneOffset int64 `json:"timezone_offset"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.TimezoneOffset = time.Duration(aux.TimezoneOffset) * time.Second
	return nil
}

func (v Values) MarshalJSON() ([]byte, error) {
	type plain Values
	return json.Marshal(struct {
		plain
		TimezoneOffset int64 `json:"timezone_offset"`
	}{plain(v), offsetSeconds(v.TimezoneOffset)})
}

func (v *Values) UnmarshalJSON(data []byte) error {
	type plain Values
	aux := struct {
		*plain
		TimezoneOffset int64 `json:"timezone_offset"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.TimezoneOffset = time.Duration(aux.TimezoneOffset) * time.Second
	return nil
}

func offsetSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
