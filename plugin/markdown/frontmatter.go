// Package markdown reads and rewrites markdown notes whose metadata lives in a leading YAML block.
package markdown

import (
	"bytes"

	"github.com/adrg/frontmatter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML metadata block of a note. Key order is kept as read.
type FrontMatter struct {
	node *yaml.Node
}

// NewFrontMatter returns an empty front matter block.
func NewFrontMatter() *FrontMatter {
	return &FrontMatter{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

var utf8BOM = []byte("\ufeff")

// yamlFormat matches only "---" delimited YAML, the block editors write.
func yamlFormat(unmarshal frontmatter.UnmarshalFunc) *frontmatter.Format {
	return &frontmatter.Format{Start: "---", End: "---", Unmarshal: unmarshal}
}

// Parse splits a note into front matter and body. A note without front matter
// yields an empty block and the whole content as body.
func Parse(content []byte) (*FrontMatter, []byte, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	var root yaml.Node
	found := false
	format := yamlFormat(func(data []byte, v any) error {
		found = true
		return yaml.Unmarshal(data, v)
	})

	body, err := frontmatter.Parse(bytes.NewReader(content), &root, format)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse front matter")
	}
	if !found {
		return NewFrontMatter(), content, nil
	}

	fm, err := fromNode(&root)
	if err != nil {
		return nil, nil, err
	}
	return fm, body, nil
}

func fromNode(root *yaml.Node) (*FrontMatter, error) {
	node := root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return NewFrontMatter(), nil
		}
		node = node.Content[0]
	}
	switch {
	case node.Kind == 0:
		return NewFrontMatter(), nil
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return NewFrontMatter(), nil
	case node.Kind != yaml.MappingNode:
		return nil, errors.Errorf("front matter must be a mapping, got %s", kindName(node.Kind))
	}
	return &FrontMatter{node: node}, nil
}

// Keys returns the top-level keys in document order.
func (f *FrontMatter) Keys() []string {
	keys := make([]string, 0, len(f.node.Content)/2)
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		keys = append(keys, f.node.Content[i].Value)
	}
	return keys
}

// Len returns the number of top-level keys.
func (f *FrontMatter) Len() int {
	return len(f.node.Content) / 2
}

// Get returns the decoded value stored under key.
func (f *FrontMatter) Get(key string) (any, bool) {
	n := f.lookup(key)
	if n == nil {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func (f *FrontMatter) lookup(key string) *yaml.Node {
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		if f.node.Content[i].Value == key {
			return f.node.Content[i+1]
		}
	}
	return nil
}

// Set replaces or appends key with value. Value must be a string or []string.
func (f *FrontMatter) Set(key string, value any) error {
	n, err := valueNode(value)
	if err != nil {
		return err
	}
	f.put(key, n)
	return nil
}

// Insert applies the merge policy used for generated fields.
// With overwrite the value replaces what is there. Without it an absent or null
// key takes the value, a list gets the value appended, and a scalar becomes
// a list of the old and new values.
func (f *FrontMatter) Insert(key string, value any, overwrite bool) error {
	n, err := valueNode(value)
	if err != nil {
		return err
	}
	existing := f.lookup(key)
	if overwrite || existing == nil || isNull(existing) {
		f.put(key, n)
		return nil
	}

	additions := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		additions = n.Content
	}
	if existing.Kind == yaml.SequenceNode {
		existing.Content = append(existing.Content, additions...)
		return nil
	}
	merged := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	merged.Content = append([]*yaml.Node{existing}, additions...)
	f.put(key, merged)
	return nil
}

func (f *FrontMatter) put(key string, value *yaml.Node) {
	for i := 0; i+1 < len(f.node.Content); i += 2 {
		if f.node.Content[i].Value == key {
			f.node.Content[i+1] = value
			return
		}
	}
	f.node.Content = append(f.node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

// Marshal renders the block without delimiters.
func (f *FrontMatter) Marshal() ([]byte, error) {
	if f.Len() == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f.node); err != nil {
		return nil, errors.Wrap(err, "failed to encode front matter")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode front matter")
	}
	return buf.Bytes(), nil
}

// Render joins front matter and body into a note. An empty block is omitted.
func Render(fm *FrontMatter, body []byte) ([]byte, error) {
	if fm == nil || fm.Len() == 0 {
		return body, nil
	}
	meta, err := fm.Marshal()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(meta) + len(body) + 8)
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func valueNode(value any) (*yaml.Node, error) {
	switch v := value.(type) {
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}, nil
	case []string:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return seq, nil
	default:
		return nil, errors.Errorf("unsupported front matter value type %T", value)
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
