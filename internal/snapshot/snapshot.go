// Package snapshot records fingerprints of the dependency outputs a job
// consumed, so later runs can tell whether those inputs changed underneath
// it.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Schema marks snapshot files on disk.
const Schema = "planforge.inputsnapshot.v1"

// Output is the fingerprint of one declared dependency output.
type Output struct {
	DependencyID   string `json:"dependency_work_item_id"`
	DeclaredOutput string `json:"declared_output"`
	Path           string `json:"output_path"`
	Exists         bool   `json:"exists"`
	SHA256         string `json:"sha256"`
	MTime          string `json:"mtime_iso,omitempty"`
	SizeBytes      int64  `json:"size_bytes"`
}

// Dependency groups the fingerprints captured for one upstream job.
type Dependency struct {
	WorkItemID      string   `json:"work_item_id"`
	JobFound        bool     `json:"job_found"`
	PlanPath        string   `json:"job_plan_path,omitempty"`
	OutputsDeclared []string `json:"outputs_declared"`
	Outputs         []Output `json:"outputs"`
}

// Snapshot is the full input snapshot of a job.
type Snapshot struct {
	Schema          string       `json:"schema"`
	GeneratedAt     string       `json:"generated_at"`
	WorkItemID      string       `json:"work_item_id"`
	DependencyCount int          `json:"dependency_count"`
	InputCount      int          `json:"input_count"`
	Dependencies    []Dependency `json:"dependencies"`
}

// DepInput is the resolved view of one dependency handed to Capture.
type DepInput struct {
	ID       string
	Found    bool
	PlanPath string
	Dir      string
	Outputs  []string
}

// Capture fingerprints every declared output of every dependency.
// displayPath rewrites absolute paths for storage; nil keeps them as is.
func Capture(workItemID string, deps []DepInput, displayPath func(string) string, now time.Time) *Snapshot {
	if displayPath == nil {
		displayPath = func(p string) string { return p }
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })
	snap := &Snapshot{
		Schema:      Schema,
		GeneratedAt: now.UTC().Format(time.RFC3339),
		WorkItemID:  workItemID,
	}
	for _, dep := range deps {
		d := Dependency{
			WorkItemID:      dep.ID,
			JobFound:        dep.Found,
			PlanPath:        dep.PlanPath,
			OutputsDeclared: dep.Outputs,
		}
		if d.OutputsDeclared == nil {
			d.OutputsDeclared = []string{}
		}
		d.Outputs = []Output{}
		if dep.Found {
			for _, rel := range dep.Outputs {
				d.Outputs = append(d.Outputs, fingerprint(dep.ID, rel, filepath.Join(dep.Dir, rel), displayPath))
				snap.InputCount++
			}
		}
		snap.Dependencies = append(snap.Dependencies, d)
	}
	snap.DependencyCount = len(snap.Dependencies)
	return snap
}

func fingerprint(depID, rel, path string, displayPath func(string) string) Output {
	out := Output{
		DependencyID:   depID,
		DeclaredOutput: rel,
		Path:           displayPath(path),
	}
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return out
	}
	out.Exists = true
	out.SizeBytes = st.Size()
	out.MTime = st.ModTime().UTC().Truncate(time.Second).Format(time.RFC3339)
	if sum, err := hashFile(path); err == nil {
		out.SHA256 = sum
	}
	return out
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write stores the snapshot as indented JSON, creating parent directories.
func Write(path string, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Load reads a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Change describes one stale input.
type Change struct {
	DependencyID   string `json:"dependency_work_item_id"`
	DeclaredOutput string `json:"declared_output"`
	Reason         string `json:"reason"`
}

// Diff compares a recorded snapshot against a freshly captured one, keyed by
// dependency and declared output. Content identity is what matters: a
// changed mtime with an identical hash is not a change.
func Diff(recorded, current *Snapshot) []Change {
	key := func(o Output) string { return o.DependencyID + "::" + o.DeclaredOutput }
	old := map[string]Output{}
	for _, d := range recorded.Dependencies {
		for _, o := range d.Outputs {
			old[key(o)] = o
		}
	}
	var changes []Change
	seen := map[string]bool{}
	for _, d := range current.Dependencies {
		for _, o := range d.Outputs {
			k := key(o)
			seen[k] = true
			prev, ok := old[k]
			switch {
			case !ok:
				changes = append(changes, Change{o.DependencyID, o.DeclaredOutput, "output added since snapshot"})
			case prev.Exists != o.Exists:
				if o.Exists {
					changes = append(changes, Change{o.DependencyID, o.DeclaredOutput, "output appeared since snapshot"})
				} else {
					changes = append(changes, Change{o.DependencyID, o.DeclaredOutput, "output removed since snapshot"})
				}
			case prev.SHA256 != o.SHA256:
				changes = append(changes, Change{o.DependencyID, o.DeclaredOutput, "output content changed since snapshot"})
			}
		}
	}
	for _, d := range recorded.Dependencies {
		for _, o := range d.Outputs {
			if !seen[key(o)] {
				changes = append(changes, Change{o.DependencyID, o.DeclaredOutput, "output no longer declared"})
			}
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].DependencyID != changes[j].DependencyID {
			return changes[i].DependencyID < changes[j].DependencyID
		}
		return changes[i].DeclaredOutput < changes[j].DeclaredOutput
	})
	return changes
}
