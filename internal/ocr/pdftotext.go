package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool. It yields
// one fragment per line without bounding boxes, so citations resolved over
// its output carry page and text but no position.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText provider. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext -layout on the given PDF and splits stdout on
// form feeds, pdftotext's page separator.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]model.OCRPage, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return pagesFromText(stdout.String(), "\f"), nil
}

// pagesFromText splits raw text into pages on the separator, then each page
// into per-line fragments. Blank lines are dropped.
func pagesFromText(text, pageSep string) []model.OCRPage {
	rawPages := strings.Split(text, pageSep)
	pages := make([]model.OCRPage, 0, len(rawPages))
	for _, rawPage := range rawPages {
		var fragments []model.OCRFragment
		for _, line := range strings.Split(rawPage, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fragments = append(fragments, model.OCRFragment{Text: line})
		}
		pages = append(pages, model.OCRPage{Fragments: fragments})
	}
	// Trailing separator produces an empty last page.
	for len(pages) > 0 && len(pages[len(pages)-1].Fragments) == 0 {
		pages = pages[:len(pages)-1]
	}
	return pages
}
