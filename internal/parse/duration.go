package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	bareRe  = regexp.MustCompile(`^\d+$`)
	hourRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*h(?:ours?)?`)
	minRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*m(?:in(?:utes?)?)?\s*$`)
	clockRe = regexp.MustCompile(`^(\d+):([0-5]\d)$`)
)

// DurationMinutes converts a human downtime estimate into whole minutes.
// Supervisors type these on tablets, so the accepted forms are loose:
// "90", "90m", "45 min", "1.5h", "1h30m", "2 hours", "1:30".
func DurationMinutes(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	// Bare number means minutes.
	if bareRe.MatchString(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("unable to parse duration %q: %w", raw, err)
		}
		return n, nil
	}

	// Clock form H:MM.
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return hours*60 + mins, nil
	}

	total := 0.0
	matched := false

	if loc := hourRe.FindStringSubmatchIndex(s); loc != nil {
		hours, err := strconv.ParseFloat(s[loc[2]:loc[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("unable to parse duration %q: %w", raw, err)
		}
		total += hours * 60
		matched = true
		// Strip the hour part so a trailing "30m" can be picked up.
		s = strings.TrimSpace(s[:loc[0]] + s[loc[1]:])
	}

	if s != "" {
		if m := minRe.FindStringSubmatch(s); m != nil {
			mins, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, fmt.Errorf("unable to parse duration %q: %w", raw, err)
			}
			total += mins
			matched = true
		} else if matched {
			return 0, fmt.Errorf("unable to parse duration %q: trailing %q", raw, s)
		}
	}

	if !matched {
		return 0, fmt.Errorf("unable to parse duration %q", raw)
	}
	if total < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return int(total + 0.5), nil
}
