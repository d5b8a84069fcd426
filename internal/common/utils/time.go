// Package utils holds small helpers shared by the gateway packages: duration
// parsing for configuration and bounded retry with exponential backoff.
package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseDuration parses a duration string, accepting the standard Go units
// plus "d" (days) and "w" (weeks), e.g. "15m", "1h", "1d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	if n, err := fmt.Sscanf(s, "%dd", &days); err == nil && n == 1 && strings.HasSuffix(s, "d") {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	var weeks int
	if n, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && n == 1 && strings.HasSuffix(s, "w") {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}

// CeilSeconds rounds d up to whole seconds. Durations below one second
// (including zero and negatives) become one second, the smallest TTL the
// store accepts.
func CeilSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
