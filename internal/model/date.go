package model

import (
	"fmt"
	"strings"
	"time"
)

// stringTime is a time.Time that marshals as an RFC3339 string, used for
// the Start/End/DueDate fields of Event/Task content variants so they read
// naturally in content_data_json rather than Go's default object shape.
type stringTime struct {
	time.Time
}

// NewDate wraps t as a stringTime.
func NewDate(t time.Time) stringTime { return stringTime{Time: t} }

func (d stringTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.UTC().Format(time.RFC3339) + `"`), nil
}

func (d *stringTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("model: parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}
