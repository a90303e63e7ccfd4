package model

import "strings"

// OCRFragment is a single recognized text span. BBox is nil when the text
// source does not report positions.
type OCRFragment struct {
	Text string       `json:"text"`
	BBox *BoundingBox `json:"bbox,omitempty"`
}

// OCRPage is the ordered sequence of fragments for one physical page.
// Supplied by the OCR collaborator; treated as immutable input.
type OCRPage struct {
	Fragments []OCRFragment `json:"fragments"`
}

// Text joins the page's fragment texts with single spaces, in fragment order.
func (p OCRPage) Text() string {
	parts := make([]string, 0, len(p.Fragments))
	for _, f := range p.Fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}

// ConcatPages joins the text of all pages with single spaces.
func ConcatPages(pages []OCRPage) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text())
	}
	return strings.Join(parts, " ")
}
