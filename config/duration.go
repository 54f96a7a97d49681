package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration stored as a string such as "2.5s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case float64:
		// Bare numbers are milliseconds.
		*d = Duration(time.Duration(x * float64(time.Millisecond)))
	default:
		return fmt.Errorf("invalid duration: %s", data)
	}
	return nil
}
