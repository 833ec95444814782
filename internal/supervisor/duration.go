package supervisor

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// parseDuration accepts a bare integer (seconds) or a value suffixed with
// ms|s|m|min|h.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	for _, suffix := range []string{"ms", "min", "m", "s", "h"} {
		if rest, ok := strings.CutSuffix(s, suffix); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				continue
			}
			switch suffix {
			case "ms":
				return time.Duration(n) * time.Millisecond, nil
			case "s":
				return time.Duration(n) * time.Second, nil
			case "m", "min":
				return time.Duration(n) * time.Minute, nil
			case "h":
				return time.Duration(n) * time.Hour, nil
			}
		}
	}
	return 0, errors.Errorf("supervisor: invalid duration %q", s)
}

// parseMemorySize accepts a bare integer (bytes) or a value suffixed with
// K|M|G|T.
func parseMemorySize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	units := map[string]uint64{
		"K": 1024,
		"M": 1024 * 1024,
		"G": 1024 * 1024 * 1024,
		"T": 1024 * 1024 * 1024 * 1024,
	}
	for suffix, mult := range units {
		if rest, ok := strings.CutSuffix(s, suffix); ok {
			n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				continue
			}
			return n * mult, nil
		}
	}
	return 0, errors.Errorf("supervisor: invalid memory size %q", s)
}
