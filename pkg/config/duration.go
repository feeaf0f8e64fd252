package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)(m|h|d|w)$`)

// ParseDuration parses the compact duration shape wait actions and
// run_timeout defaults use: a non-negative integer followed by one of
// m(inutes), h(ours), d(ays), or w(eeks). It intentionally does not accept
// Go's own time.ParseDuration syntax ("1h30m", fractional units) — unit
// compilation is meant to be writable by the NL compiler and by hand
// without surprises.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q (want <n>(m|h|d|w))", ErrInvalidDuration, s)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	var unit time.Duration
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}

	return time.Duration(n) * unit, nil
}
