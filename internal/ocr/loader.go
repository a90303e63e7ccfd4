package ocr

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// sidecarFragment mirrors one OCR service result: a text run and its
// position on the page.
type sidecarFragment struct {
	Text string `json:"text"`
	BBox *struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"bbox"`
}

// LoadPages reads an OCR sidecar file: a JSON array of pages, each an array
// of text fragments with bounding boxes. This is the format the upstream
// OCR service writes next to each processed document.
func LoadPages(path string) ([]model.OCRPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read sidecar %s", path)
	}
	return ParsePages(data)
}

// ParsePages decodes sidecar JSON into pages.
func ParsePages(data []byte) ([]model.OCRPage, error) {
	var raw [][]sidecarFragment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "ocr: parse sidecar JSON")
	}

	pages := make([]model.OCRPage, len(raw))
	for i, rawPage := range raw {
		fragments := make([]model.OCRFragment, 0, len(rawPage))
		for _, f := range rawPage {
			frag := model.OCRFragment{Text: f.Text}
			if f.BBox != nil {
				frag.BBox = &model.BoundingBox{
					Left:   f.BBox.X,
					Top:    f.BBox.Y,
					Width:  f.BBox.Width,
					Height: f.BBox.Height,
				}
			}
			fragments = append(fragments, frag)
		}
		pages[i] = model.OCRPage{Fragments: fragments}
	}
	return pages, nil
}
