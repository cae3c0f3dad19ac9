package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ID prefixes for the three plan kinds.
const (
	ProjectPrefix    = "PJ"
	WorkstreamPrefix = "WS"
	JobPrefix        = "WI"
)

// DateStamp formats t as the YYYYMMDD segment used in identifiers.
func DateStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

// NextID allocates the next identifier for a prefix and date given the
// identifiers already taken that day: PREFIX-YYYYMMDD-NNN with NNN counting
// up from 001.
func NextID(prefix, date string, existing []string) string {
	max := 0
	lead := prefix + "-" + date + "-"
	for _, id := range existing {
		if !strings.HasPrefix(id, lead) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, lead))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", lead, max+1)
}

// ParseID splits an identifier into prefix and the rest, reporting whether
// it matches the PREFIX-YYYYMMDD-NNN shape.
func ParseID(id string) (prefix string, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return "", false
	}
	prefix = parts[0]
	if prefix != ProjectPrefix && prefix != WorkstreamPrefix && prefix != JobPrefix {
		return "", false
	}
	if len(parts[1]) != 8 {
		return "", false
	}
	for _, r := range parts[1] + parts[2] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if len(parts[2]) < 3 {
		return "", false
	}
	return prefix, true
}

// Kebab lowercases s and collapses runs of non-alphanumerics into single
// hyphens, for use as a directory slug.
func Kebab(s string) string {
	var sb strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			prevDash = false
		} else if !prevDash {
			sb.WriteByte('-')
			prevDash = true
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		out = "item"
	}
	return out
}
