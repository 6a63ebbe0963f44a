package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// timestampLayouts are tried in order. Backends running without time zone
// support send naive values; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// timestamp decodes server timestamps leniently. A value in no known layout
// decodes to the zero time instead of failing the whole response.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(raw []byte) error {
	t.Time = time.Time{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil
	}
	t.Time = parseTimestamp(s)
	return nil
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
