package policy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so policy files can spell periods as
// human-readable strings ("90s", "10m", "168h"). Bare numbers are accepted
// as nanoseconds, matching encoding/json's default for time.Duration.
type Duration time.Duration

// Std returns the wrapped stdlib duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
	return nil
}
