package parser

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/refdeck/internal/models"
)

// ErrFrontmatterShape is returned when the existing frontmatter cannot be
// rewritten safely (invalid YAML or not a mapping).
var ErrFrontmatterShape = errors.New("parser: frontmatter is not a YAML mapping")

// Rewrite applies patch to the frontmatter of data and returns the new file
// content. Keys outside the patch keep their order, values and comments; the
// body is left byte for byte as it was.
func Rewrite(data []byte, patch models.Patch) ([]byte, error) {
	b, hasFM := locate(data)

	var doc yaml.Node
	if hasFM {
		if err := yaml.Unmarshal(b.yamlBlock, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFrontmatterShape, err)
		}
	}
	mapping, err := rootMapping(&doc)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changed := false
	for _, k := range keys {
		v := patch[k]
		if v.Delete {
			changed = deleteKey(mapping, k) || changed
			continue
		}
		setKey(mapping, k, sequenceNode(v.Entries))
		changed = true
	}
	if !changed {
		return data, nil
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(mapping.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
		}
	}
	buf.WriteString(delim)
	if hasFM {
		buf.Write(b.rest)
	} else {
		buf.WriteString("\n")
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func rootMapping(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if doc.Kind != yaml.DocumentNode {
		return nil, ErrFrontmatterShape
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrFrontmatterShape
	}
	return root, nil
}

func deleteKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return true
		}
	}
	return false
}

func setKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			value.HeadComment = mapping.Content[i+1].HeadComment
			value.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func sequenceNode(entries []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, e := range entries {
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e}
		// Unquoted [[link]] would read back as a nested sequence.
		if strings.HasPrefix(e, "[") {
			n.Style = yaml.DoubleQuotedStyle
		}
		seq.Content = append(seq.Content, n)
	}
	return seq
}
