// Package codec encodes catalog items as markdown files with a YAML frontmatter header.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/shelf/internal/domain"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// ErrNoFrontmatter indicates the content does not start with a frontmatter block
var ErrNoFrontmatter = errors.New("missing frontmatter")

// Markdown implements domain.Codec
type Markdown struct{}

// Parse splits content into frontmatter metadata and the review body
func (Markdown) Parse(content []byte) (*domain.Item, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, ErrNoFrontmatter
	}
	rest := text[len(delimiter)+1:]

	var header, body string
	switch {
	case strings.HasPrefix(rest, delimiter+"\n"), rest == delimiter:
		body = strings.TrimPrefix(strings.TrimPrefix(rest, delimiter), "\n")
	default:
		end := strings.Index(rest, "\n"+delimiter)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated header", ErrNoFrontmatter)
		}
		header = rest[:end]
		body = rest[end+len(delimiter)+1:]
		body = strings.TrimPrefix(body, "\n")
	}

	var item domain.Item
	if err := yaml.Unmarshal([]byte(header), &item); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	item.Review = strings.TrimSpace(body)
	return &item, nil
}

// Generate renders item as frontmatter followed by its review
func (Markdown) Generate(item *domain.Item) ([]byte, error) {
	header, err := yaml.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(header)
	buf.WriteString(delimiter + "\n")
	if review := strings.TrimSpace(item.Review); review != "" {
		buf.WriteString("\n")
		buf.WriteString(review)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}
