// ABOUTME: Typed message content segments and their JSON wire format
// ABOUTME: Closed tagged union with an unknown-variant passthrough for forward compatibility

package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Part type discriminators as stored in the parts JSON.
const (
	PartTypeText      = "text"
	PartTypeReasoning = "reasoning"
	PartTypeFile      = "file"
	PartTypeSource    = "source"
)

// Part is one typed content segment of a message. Exactly the fields for the
// segment's type are populated; unrecognized types round-trip through Raw so
// newer clients' segments survive a pass through an older server.
type Part struct {
	Type string

	// text, reasoning
	Text string

	// file
	MediaType string
	Filename  string

	// file, source
	URL string

	// source
	DocumentID string
	Title      string

	// Raw holds the original JSON for unknown part types.
	Raw json.RawMessage
}

// partJSON is the wire representation of a Part.
type partJSON struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	Filename   string `json:"filename,omitempty"`
	URL        string `json:"url,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Title      string `json:"title,omitempty"`
}

// TextPart builds a text segment.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// ReasoningPart builds a reasoning segment.
func ReasoningPart(text string) Part {
	return Part{Type: PartTypeReasoning, Text: text}
}

// IsKnown reports whether the part type is one this server understands.
func (p Part) IsKnown() bool {
	switch p.Type {
	case PartTypeText, PartTypeReasoning, PartTypeFile, PartTypeSource:
		return true
	}
	return false
}

// MarshalJSON writes the wire form, or the preserved raw JSON for unknown types.
func (p Part) MarshalJSON() ([]byte, error) {
	if !p.IsKnown() && len(p.Raw) > 0 {
		return p.Raw, nil
	}
	return json.Marshal(partJSON{
		Type:       p.Type,
		Text:       p.Text,
		MediaType:  p.MediaType,
		Filename:   p.Filename,
		URL:        p.URL,
		DocumentID: p.DocumentID,
		Title:      p.Title,
	})
}

// UnmarshalJSON reads the wire form, keeping raw JSON for unknown types.
func (p *Part) UnmarshalJSON(data []byte) error {
	var wire partJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("parsing part: %w", err)
	}
	*p = Part{
		Type:       wire.Type,
		Text:       wire.Text,
		MediaType:  wire.MediaType,
		Filename:   wire.Filename,
		URL:        wire.URL,
		DocumentID: wire.DocumentID,
		Title:      wire.Title,
	}
	if !p.IsKnown() {
		p.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// Parts is the ordered segment list of a message.
type Parts []Part

// TextContent joins the text segments, skipping reasoning and attachments.
// Used for sidebar previews.
func (ps Parts) TextContent() string {
	var b strings.Builder
	for _, p := range ps {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Empty reports whether the list carries no segments.
func (ps Parts) Empty() bool {
	return len(ps) == 0
}

// EncodeParts serializes parts to the JSON stored in the messages table.
func EncodeParts(ps Parts) (string, error) {
	if ps == nil {
		ps = Parts{}
	}
	data, err := json.Marshal(ps)
	if err != nil {
		return "", fmt.Errorf("encoding parts: %w", err)
	}
	return string(data), nil
}

// DecodeParts parses the stored JSON back into parts.
func DecodeParts(data string) (Parts, error) {
	var ps Parts
	if err := json.Unmarshal([]byte(data), &ps); err != nil {
		return nil, fmt.Errorf("decoding parts: %w", err)
	}
	return ps, nil
}
