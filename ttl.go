package docq

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// TTL is a cache expiration policy. The zero value never expires.
type TTL struct {
	bypass bool
	d      time.Duration
	months int
}

var (
	// Forever stores entries that never expire.
	Forever = TTL{}
	// Bypass skips the cache entirely: nothing is read and nothing is written.
	Bypass = TTL{bypass: true}
)

// Seconds returns a TTL of n seconds. Zero means Forever and a negative
// count means Bypass.
func Seconds(n int64) TTL {
	return For(time.Duration(n) * time.Second)
}

// For returns a TTL of d. Zero means Forever and a negative duration means
// Bypass.
func For(d time.Duration) TTL {
	if d < 0 {
		return Bypass
	}
	return TTL{d: d}
}

// Cacheable reports whether the policy reads from and writes to a cache.
func (t TTL) Cacheable() bool { return !t.bypass }

// IsForever reports whether entries stored under t never expire.
func (t TTL) IsForever() bool { return !t.bypass && t.d == 0 && t.months == 0 }

// ExpiresAt resolves the policy against now. It returns the zero time for
// Forever and Bypass.
func (t TTL) ExpiresAt(now time.Time) time.Time {
	if t.bypass || t.IsForever() {
		return time.Time{}
	}
	return now.AddDate(0, t.months, 0).Add(t.d)
}

func (t TTL) String() string {
	switch {
	case t.bypass:
		return "bypass"
	case t.IsForever():
		return "forever"
	case t.months == 0:
		return t.d.String()
	}
	return fmt.Sprintf("%dmo%s", t.months, t.d)
}

// ParseTTL parses a cache expression. It accepts integers ("0" forever,
// "-1" bypass, positive seconds), Go durations ("90s", "1h30m") and
// phrases such as "10 minutes", "1 hour 30 minutes", "+2 days",
// "next week" or "tomorrow". A leading minus on a phrase is ignored:
// expirations always lie in the future.
func ParseTTL(expr string) (TTL, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return TTL{}, Errorf(EINVALID, "empty cache expression")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch {
		case n == -1:
			return Bypass, nil
		case n < 0:
			return TTL{}, Errorf(EINVALID, "invalid cache expression %q", expr)
		}
		return Seconds(n), nil
	}

	s = strings.TrimLeft(s, "+-")
	if d, err := time.ParseDuration(s); err == nil {
		return For(d), nil
	}

	t, ok := parsePhrase(strings.ToLower(s))
	if !ok {
		return TTL{}, Errorf(EINVALID, "invalid cache expression %q", expr)
	}
	return t, nil
}

type unit struct {
	d      time.Duration
	months int
}

var units = map[string]unit{}

func init() {
	for _, u := range []struct {
		names []string
		unit  unit
	}{
		{[]string{"s", "sec", "secs", "second", "seconds"}, unit{d: time.Second}},
		{[]string{"min", "mins", "minute", "minutes"}, unit{d: time.Minute}},
		{[]string{"h", "hr", "hrs", "hour", "hours"}, unit{d: time.Hour}},
		{[]string{"d", "day", "days"}, unit{d: 24 * time.Hour}},
		{[]string{"w", "wk", "wks", "week", "weeks"}, unit{d: 7 * 24 * time.Hour}},
		{[]string{"mo", "mon", "mons", "month", "months"}, unit{months: 1}},
		{[]string{"y", "yr", "yrs", "year", "years"}, unit{months: 12}},
	} {
		for _, name := range u.names {
			units[name] = u.unit
		}
	}
	units["fortnight"] = unit{d: 14 * 24 * time.Hour}
}

func parsePhrase(s string) (TTL, bool) {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return TTL{}, false
	}

	var t TTL
	n, haveN := 0, false
	for _, tok := range tokens {
		switch tok {
		case "and", ",":
			continue
		case "tomorrow":
			if haveN {
				return TTL{}, false
			}
			t.d += 24 * time.Hour
			continue
		case "next", "last", "a", "an":
			if haveN {
				return TTL{}, false
			}
			n, haveN = 1, true
			continue
		}
		if v, err := strconv.Atoi(tok); err == nil {
			if haveN || v < 0 {
				return TTL{}, false
			}
			n, haveN = v, true
			continue
		}
		u, ok := units[tok]
		if !ok || !haveN {
			return TTL{}, false
		}
		t.d += time.Duration(n) * u.d
		t.months += n * u.months
		haveN = false
	}
	if haveN {
		return TTL{}, false
	}
	return t, true
}

// tokenize splits s into words and numbers, so "10min" and "10 min" read
// the same.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	var digits bool
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == ',':
			flush()
			tokens = append(tokens, ",")
		case unicode.IsDigit(r):
			if !digits {
				flush()
			}
			digits = true
			cur.WriteRune(r)
		default:
			if digits {
				flush()
			}
			digits = false
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
