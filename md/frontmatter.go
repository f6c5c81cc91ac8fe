package md

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-yaml"
)

const fmSep = "---\n"

// Frontmatter is the optional YAML header of an outline.
type Frontmatter struct {
	// Cover title, overrides the level 1 heading
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	// Cover subtitle
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
	// Whether to emit a table of contents, defaults to true
	Contents *bool `yaml:"contents,omitempty" json:"contents,omitempty"`
	// Whether to emit an end slide, defaults to true
	End *bool `yaml:"end,omitempty" json:"end,omitempty"`
	// Variables available to {{expr}} expressions as vars.xxx
	Vars map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// splitFrontmatter separates the frontmatter from the outline body.
// Content without a valid frontmatter is returned unchanged with a nil Frontmatter.
func splitFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte(fmSep)) {
		return nil, content, nil
	}
	stuffs := bytes.SplitN(content, []byte(fmSep), 3)
	if len(stuffs) != 3 {
		return nil, content, nil
	}
	fm := &Frontmatter{}
	if len(bytes.TrimSpace(stuffs[1])) == 0 {
		return fm, stuffs[2], nil
	}
	if err := yaml.Unmarshal(stuffs[1], fm); err != nil {
		return nil, nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	return fm, stuffs[2], nil
}
