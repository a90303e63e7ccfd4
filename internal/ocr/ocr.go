// Package ocr is the boundary to OCR output. Pages either come from a
// sidecar JSON file produced by an OCR service (with positioned fragments)
// or from a text extraction provider (without positions).
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealdesk-cli/internal/config"
	"github.com/sells-group/dealdesk-cli/internal/model"
)

// Provider extracts page text from PDF files.
type Provider interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]model.OCRPage, error)
}

// NewProvider creates a Provider based on config.
func NewProvider(cfg config.OCRConfig, mistralKey string) (Provider, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(mistralKey, ""), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
