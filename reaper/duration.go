package reaper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^([0-9]+)([smhd])$`)

// ParseMaxInactive parses the max-inactive configuration string, an integer
// followed by a unit in {s, m, h, d}, case-insensitive ("30m", "12h", "3d").
// Anything else is a configuration error the caller must treat as fatal.
func ParseMaxInactive(s string) (time.Duration, error) {
	match := durationPattern.FindStringSubmatch(strings.ToLower(s))
	if match == nil {
		return 0, fmt.Errorf("invalid duration %q, expected <integer><s|m|h|d>", s)
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch match[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}
