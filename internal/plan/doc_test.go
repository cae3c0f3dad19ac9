package plan

import (
	"strings"
	"testing"
)

const sampleDoc = `---
schema: planforge.plan.v1
kind: job
id: WI-20260301-001
custom_field: keep me
tags:
  - one
  - two
---
# Objective

Do the thing.
`

func TestParseRenderRoundTrip(t *testing.T) {
	doc, err := Parse("plan.md", []byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := doc.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != sampleDoc {
		t.Fatalf("round trip changed the document:\n%s", out)
	}
}

func TestUnknownFieldsSurviveEdits(t *testing.T) {
	doc, err := Parse("plan.md", []byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	doc.FM.Set("status", "planned")
	doc.FM.Set("id", "WI-20260301-002")
	out, err := doc.Render()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	if !strings.Contains(text, "custom_field: keep me") {
		t.Fatal("unknown field dropped")
	}
	keys := doc.FM.Keys()
	want := []string{"schema", "kind", "id", "custom_field", "tags", "status"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key order changed: %v", keys)
		}
	}
	if doc.FM.String("id") != "WI-20260301-002" {
		t.Fatal("in-place update failed")
	}
}

func TestFrontmatterAccessors(t *testing.T) {
	doc, err := Parse("plan.md", []byte("---\nn: 7\nf: 2.5\nsolo: alone\nlist:\n  - a\n  - a b\nempty: \"\"\n---\n"))
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := doc.FM.Int("n"); !ok || n != 7 {
		t.Fatalf("Int = %d %v", n, ok)
	}
	if f, ok := doc.FM.Float("f"); !ok || f != 2.5 {
		t.Fatalf("Float = %v %v", f, ok)
	}
	// a lone scalar reads as a one-element list
	if got := doc.FM.StringList("solo"); len(got) != 1 || got[0] != "alone" {
		t.Fatalf("StringList(solo) = %v", got)
	}
	if got := doc.FM.StringList("list"); len(got) != 2 || got[1] != "a b" {
		t.Fatalf("StringList(list) = %v", got)
	}
	if doc.FM.String("empty") != "" || !doc.FM.Has("empty") {
		t.Fatal("empty scalar handling")
	}
	if doc.FM.Has("missing") {
		t.Fatal("Has(missing)")
	}
}

func TestEmptyListRendersFlow(t *testing.T) {
	doc := &Doc{FM: NewFrontmatter(), Body: ""}
	doc.FM.Set("truth_last_failures", []string{})
	out, err := doc.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "truth_last_failures: []") {
		t.Fatalf("empty list rendering:\n%s", out)
	}
}

func TestParseRejectsRestrictedSyntax(t *testing.T) {
	cases := map[string]string{
		"literal scalar": "---\nnotes: |\n  line\n---\n",
		"folded scalar":  "---\nnotes: >\n  line\n---\n",
		"flow sequence":  "---\ntags: [a, b]\n---\n",
		"flow mapping":   "---\nmeta: {a: b}\n---\n",
		"anchor alias":   "---\na: &x v\nb: *x\n---\n",
		"no fence":       "no frontmatter here\n",
		"unterminated":   "---\nid: x\n",
		"non-mapping":    "---\n- a\n- b\n---\n",
	}
	for name, input := range cases {
		if _, err := Parse("plan.md", []byte(input)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestParseAllowsEmptyFlowList(t *testing.T) {
	doc, err := Parse("plan.md", []byte("---\ntags: []\n---\nbody\n"))
	if err != nil {
		t.Fatalf("empty flow list should parse: %v", err)
	}
	if got := doc.FM.StringList("tags"); len(got) != 0 {
		t.Fatalf("StringList = %v", got)
	}
	if doc.Body != "body\n" {
		t.Fatalf("body = %q", doc.Body)
	}
}
