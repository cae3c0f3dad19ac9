package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Doc is one plan document: a YAML frontmatter block between --- fences
// followed by a markdown body. Frontmatter keys keep their file order and
// unknown keys survive a read/write round trip untouched.
type Doc struct {
	FM   *Frontmatter
	Body string
}

// Frontmatter wraps the parsed mapping node so field order and fields this
// tool does not know about are preserved verbatim.
type Frontmatter struct {
	node *yaml.Node
}

// NewFrontmatter returns an empty frontmatter mapping.
func NewFrontmatter() *Frontmatter {
	return &Frontmatter{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// Parse splits a plan document into frontmatter and body. The frontmatter
// accepts only a restricted YAML subset: plain scalars, lists and maps.
// Multi-line scalars, anchors, aliases and non-empty flow collections are
// rejected so every plan file stays diffable line by line.
func Parse(path string, data []byte) (*Doc, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return nil, fmt.Errorf("%s: missing frontmatter fence", path)
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	var fmText, body string
	if end >= 0 {
		fmText = rest[:end+1]
		body = rest[end+len("\n---\n"):]
	} else if strings.HasSuffix(rest, "\n---") {
		fmText = rest[:len(rest)-len("---")]
		body = ""
	} else {
		return nil, fmt.Errorf("%s: unterminated frontmatter fence", path)
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(fmText), &root); err != nil {
		return nil, fmt.Errorf("%s: frontmatter: %w", path, err)
	}
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if len(root.Content) > 0 {
		node = root.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: frontmatter must be a mapping", path)
	}
	if err := validateNode(path, "", node); err != nil {
		return nil, err
	}
	return &Doc{FM: &Frontmatter{node: node}, Body: body}, nil
}

func validateNode(path, key string, n *yaml.Node) error {
	if n.Kind == yaml.AliasNode || n.Anchor != "" {
		return fmt.Errorf("%s: frontmatter key %q: anchors and aliases not supported", path, key)
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Style == yaml.LiteralStyle || n.Style == yaml.FoldedStyle {
			return fmt.Errorf("%s: frontmatter key %q: multi-line scalars not supported", path, key)
		}
	case yaml.SequenceNode, yaml.MappingNode:
		if n.Style == yaml.FlowStyle && len(n.Content) > 0 {
			return fmt.Errorf("%s: frontmatter key %q: flow collections not supported", path, key)
		}
	}
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			if key != "" {
				k = key + "." + k
			}
			if err := validateNode(path, k, n.Content[i+1]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range n.Content {
		if err := validateNode(path, key, c); err != nil {
			return err
		}
	}
	return nil
}

// Render serializes the document back to bytes.
func (d *Doc) Render() ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("---\n")
	if d.FM != nil && len(d.FM.node.Content) > 0 {
		enc := yaml.NewEncoder(&sb)
		enc.SetIndent(2)
		if err := enc.Encode(d.FM.node); err != nil {
			return nil, fmt.Errorf("render frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	sb.WriteString("---\n")
	sb.WriteString(d.Body)
	return []byte(sb.String()), nil
}

func (f *Frontmatter) value(key string) *yaml.Node {
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		if f.node.Content[i].Value == key {
			return f.node.Content[i+1]
		}
	}
	return nil
}

// Has reports whether the key is present.
func (f *Frontmatter) Has(key string) bool {
	return f.value(key) != nil
}

// Keys returns frontmatter keys in file order.
func (f *Frontmatter) Keys() []string {
	var out []string
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		out = append(out, f.node.Content[i].Value)
	}
	return out
}

// String returns the key's scalar value, or "" when absent or not a scalar.
func (f *Frontmatter) String(key string) string {
	v := f.value(key)
	if v == nil || v.Kind != yaml.ScalarNode {
		return ""
	}
	if v.Tag == "!!null" {
		return ""
	}
	return v.Value
}

// StringList normalizes the key into a list of trimmed non-empty strings.
// A lone scalar counts as a one-element list.
func (f *Frontmatter) StringList(key string) []string {
	v := f.value(key)
	if v == nil {
		return nil
	}
	var out []string
	switch v.Kind {
	case yaml.ScalarNode:
		if s := strings.TrimSpace(v.Value); s != "" && v.Tag != "!!null" {
			out = append(out, s)
		}
	case yaml.SequenceNode:
		for _, c := range v.Content {
			if c.Kind != yaml.ScalarNode {
				continue
			}
			if s := strings.TrimSpace(c.Value); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Int returns the key parsed as an integer.
func (f *Frontmatter) Int(key string) (int, bool) {
	s := f.String(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Float returns the key parsed as a float.
func (f *Frontmatter) Float(key string) (float64, bool) {
	s := f.String(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Set writes the key, replacing an existing value in place or appending the
// key at the end of the mapping when new.
func (f *Frontmatter) Set(key string, value any) {
	vn := buildNode(value)
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		if f.node.Content[i].Value == key {
			f.node.Content[i+1] = vn
			return
		}
	}
	kn := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	f.node.Content = append(f.node.Content, kn, vn)
}

// Delete removes the key if present.
func (f *Frontmatter) Delete(key string) {
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		if f.node.Content[i].Value == key {
			f.node.Content = append(f.node.Content[:i], f.node.Content[i+2:]...)
			return
		}
	}
}

// Map decodes the whole frontmatter into a generic map, mainly for JSON
// output paths.
func (f *Frontmatter) Map() map[string]any {
	out := map[string]any{}
	_ = f.node.Decode(&out)
	return out
}

func buildNode(value any) *yaml.Node {
	switch v := value.(type) {
	case string:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
		if v == "" || needsQuoting(v) {
			n.Style = yaml.DoubleQuotedStyle
		}
		return n
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v, 'f', -1, 64)}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case []string:
		if len(v) == 0 {
			return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		}
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range v {
			n.Content = append(n.Content, buildNode(s))
		}
		return n
	case map[string]string:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n.Content = append(n.Content, buildNode(k), buildNode(v[k]))
		}
		return n
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(v)}
	}
}

func needsQuoting(s string) bool {
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") {
		return true
	}
	return strings.TrimSpace(s) != s
}
