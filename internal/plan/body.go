package plan

import "strings"

// Marker comments delimiting generated tables inside plan bodies. Text
// between a start/end pair is owned by the tool; everything else in the body
// belongs to the author.
const (
	WorkstreamTableStart = "<!-- PLANFORGE:WORKSTREAM_TABLE_START -->"
	WorkstreamTableEnd   = "<!-- PLANFORGE:WORKSTREAM_TABLE_END -->"
	JobTableStart        = "<!-- PLANFORGE:JOB_TABLE_START -->"
	JobTableEnd          = "<!-- PLANFORGE:JOB_TABLE_END -->"
)

// ReplaceMarkerBlock swaps the content between start and end markers for the
// given lines. When the markers are missing the body is returned unchanged.
func ReplaceMarkerBlock(body, start, end string, content []string) string {
	lines := strings.Split(body, "\n")
	si, ei := -1, -1
	for i, ln := range lines {
		switch strings.TrimSpace(ln) {
		case start:
			if si < 0 {
				si = i
			}
		case end:
			if si >= 0 && ei < 0 {
				ei = i
			}
		}
	}
	if si < 0 || ei < 0 {
		return body
	}
	out := make([]string, 0, len(lines)+len(content))
	out = append(out, lines[:si+1]...)
	out = append(out, content...)
	out = append(out, lines[ei:]...)
	return strings.Join(out, "\n")
}

// AppendToSection adds a line at the end of the named "# " section, creating
// the section at the end of the body when it does not exist yet.
func AppendToSection(body, heading, line string) string {
	lines := strings.Split(body, "\n")
	start := -1
	for i, ln := range lines {
		if strings.TrimSpace(ln) == heading {
			start = i
			break
		}
	}
	if start < 0 {
		b := strings.TrimRight(body, "\n")
		if b != "" {
			b += "\n"
		}
		return b + "\n" + heading + "\n\n" + line + "\n"
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "# ") {
			end = i
			break
		}
	}
	// insert before trailing blank lines of the section
	insert := end
	for insert > start+1 && strings.TrimSpace(lines[insert-1]) == "" {
		insert--
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insert]...)
	out = append(out, line)
	out = append(out, lines[insert:]...)
	return strings.Join(out, "\n")
}

// Section returns the lines of the named "# " section without the heading,
// or nil when the section is absent.
func Section(body, heading string) []string {
	lines := strings.Split(body, "\n")
	start := -1
	for i, ln := range lines {
		if strings.TrimSpace(ln) == heading {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	var out []string
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "# ") {
			break
		}
		out = append(out, lines[i])
	}
	return out
}
