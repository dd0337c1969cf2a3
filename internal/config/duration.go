package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is written as a Go duration string ("1500ms", "2s") or a number of
// milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		parsed, err := time.ParseDuration(raw[1 : len(raw)-1])
		if err != nil {
			return fmt.Errorf("invalid duration %s: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", raw)
	}
	*d = Duration(time.Duration(ms * float64(time.Millisecond)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// or returns fallback when the duration is unset.
func (d Duration) or(fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return time.Duration(d)
}
