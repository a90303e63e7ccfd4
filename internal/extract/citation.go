package extract

import (
	"strings"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// ResolveCitation finds the strongest OCR fragment supporting a candidate's
// claimed source and builds a citation for it.
//
// No claimed page, or a page outside the document, yields no citation. A
// claimed page whose fragments don't contain the source text still yields a
// citation without a bounding box: an unresolved location is valid
// provenance, not an extraction failure.
func ResolveCitation(c model.CandidateFact, pages []model.OCRPage) *model.SourceCitation {
	if c.SourcePage == nil {
		return nil
	}
	pageIdx := *c.SourcePage - 1
	if pageIdx < 0 || pageIdx >= len(pages) {
		return nil
	}
	if c.SourceText == "" {
		return nil
	}

	for _, frag := range pages[pageIdx].Fragments {
		if strings.Contains(frag.Text, c.SourceText) {
			var bbox *model.BoundingBox
			if frag.BBox != nil {
				b := *frag.BBox
				bbox = &b
			}
			return &model.SourceCitation{
				DocumentPage: *c.SourcePage,
				Text:         c.SourceText,
				BBox:         bbox,
			}
		}
	}

	return &model.SourceCitation{
		DocumentPage: *c.SourcePage,
		Text:         c.SourceText,
	}
}

// Validate resolves citations for a batch of candidates. Order is preserved.
func Validate(candidates []model.CandidateFact, pages []model.OCRPage) []model.ValidatedFact {
	validated := make([]model.ValidatedFact, 0, len(candidates))
	for _, c := range candidates {
		validated = append(validated, model.ValidatedFact{
			CandidateFact: c,
			Citation:      ResolveCitation(c, pages),
		})
	}
	return validated
}
