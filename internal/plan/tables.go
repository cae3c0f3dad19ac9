package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RenderWorkstreamTable builds the generated table for the project body.
func RenderWorkstreamTable(workstreams []WorkstreamEntry) []string {
	out := []string{
		"| Workstream | Status | Title | Depends On | Jobs |",
		"| --- | --- | --- | --- | --- |",
	}
	if len(workstreams) == 0 {
		return append(out, "| (none) |  |  |  |  |")
	}
	for _, ws := range workstreams {
		out = append(out, fmt.Sprintf("| %s | %s | %s | %s | %d |",
			ws.ID, ws.Status, cell(ws.Title), strings.Join(ws.DependsOn, ", "), len(ws.Jobs)))
	}
	return out
}

// RenderJobTable builds the generated table for a workstream body.
func RenderJobTable(jobs []JobEntry) []string {
	out := []string{
		"| Work Item | Status | Title | Depends On | Stakes | Reward |",
		"| --- | --- | --- | --- | --- | --- |",
	}
	if len(jobs) == 0 {
		return append(out, "| (none) |  |  |  |  |  |")
	}
	for _, j := range jobs {
		reward := ""
		if j.RewardLastScore != nil {
			reward = strconv.FormatFloat(*j.RewardLastScore, 'f', -1, 64)
		}
		out = append(out, fmt.Sprintf("| %s | %s | %s | %s | %s | %s |",
			j.ID, j.Status, cell(j.Title), strings.Join(j.DependsOn, ", "), j.Stakes, reward))
	}
	return out
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// WriteIndex rewrites workstreams/index.md from the scanned tree.
func (s Store) WriteIndex(t *Tree, ts string) error {
	dir := filepath.Join(s.Root, "workstreams")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	lines := []string{
		"# Workstreams",
		"",
		"Generated " + ts + ". Do not edit by hand.",
		"",
	}
	if len(t.Workstreams) == 0 {
		lines = append(lines, "- (none)")
	}
	for _, ws := range t.Workstreams {
		rel, _ := filepath.Rel(dir, filepath.Join(ws.Dir, "plan.md"))
		lines = append(lines, fmt.Sprintf("- [%s](%s) %s (%s, %d jobs)",
			ws.ID, rel, cell(ws.Title), ws.Status, len(ws.Jobs)))
	}
	content := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(filepath.Join(dir, "index.md"), []byte(content), 0o644)
}
