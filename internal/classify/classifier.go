// Package classify assigns a document type to uploaded deal documents using
// filename heuristics, OCR keyword heuristics, and an AI fallback.
package classify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// classifyPreviewPages is how many leading pages feed the AI fallback.
const classifyPreviewPages = 3

// classifyPreviewChars caps the OCR preview sent to the AI fallback.
const classifyPreviewChars = 2000

// TextClassifier is the external AI classification collaborator, consulted
// only when the heuristics are inconclusive.
type TextClassifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Classifier classifies documents. The AI collaborator is optional; with a
// nil collaborator unresolved documents classify as Other.
type Classifier struct {
	ai TextClassifier
}

// New creates a Classifier with an optional AI fallback collaborator.
func New(ai TextClassifier) *Classifier {
	return &Classifier{ai: ai}
}

// filenameRule maps filename substrings to a document type. All listed
// substrings must be present.
type filenameRule struct {
	all     []string
	any     []string
	docType model.DocumentType
}

// Filename rules are checked in order; the first match wins.
var filenameRules = []filenameRule{
	{all: []string{"rent", "roll"}, docType: model.DocTypeRentRoll},
	{any: []string{"p&l", "profit", "loss"}, docType: model.DocTypeProfitAndLoss},
	{any: []string{"mortgage", "loan"}, docType: model.DocTypeMortgageStatement},
	{any: []string{"tax", "1099", "1098"}, docType: model.DocTypeTaxDocument},
	{any: []string{"bank", "statement"}, docType: model.DocTypeBankStatement},
}

func (r filenameRule) matches(name string) bool {
	for _, s := range r.all {
		if !strings.Contains(name, s) {
			return false
		}
	}
	if len(r.all) > 0 {
		return true
	}
	for _, s := range r.any {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// ClassifyDocument assigns a document type. Precedence is strict: filename
// rules, then OCR keyword rules over all pages, then the AI fallback over a
// truncated preview. Classification never fails; anything unresolved is
// DocTypeOther.
func (c *Classifier) ClassifyDocument(ctx context.Context, fileName string, pages []model.OCRPage) model.DocumentType {
	name := strings.ToLower(fileName)
	for _, rule := range filenameRules {
		if rule.matches(name) {
			return rule.docType
		}
	}

	text := strings.ToLower(model.ConcatPages(pages))
	if dt, ok := classifyByKeywords(text); ok {
		return dt
	}

	if c.ai == nil {
		return model.DocTypeOther
	}
	return c.classifyAI(ctx, fileName, pages)
}

// classifyByKeywords applies OCR-text keyword rules in order.
func classifyByKeywords(text string) (model.DocumentType, bool) {
	switch {
	case strings.Contains(text, "rent roll"),
		strings.Contains(text, "unit") && strings.Contains(text, "tenant"):
		return model.DocTypeRentRoll, true
	case strings.Contains(text, "net operating income"), strings.Contains(text, "noi"):
		return model.DocTypeProfitAndLoss, true
	case strings.Contains(text, "mortgage"),
		strings.Contains(text, "principal") && strings.Contains(text, "interest"):
		return model.DocTypeMortgageStatement, true
	case strings.Contains(text, "tax"),
		strings.Contains(text, "form 1099"),
		strings.Contains(text, "form 1098"):
		return model.DocTypeTaxDocument, true
	}
	return "", false
}

// aiLabelMap maps collaborator answer substrings to document types. Checked
// in order so the more specific labels win.
var aiLabelMap = []struct {
	substr  string
	docType model.DocumentType
}{
	{"RENT_ROLL", model.DocTypeRentRoll},
	{"PROFIT_AND_LOSS", model.DocTypeProfitAndLoss},
	{"MORTGAGE", model.DocTypeMortgageStatement},
	{"TAX", model.DocTypeTaxDocument},
	{"BANK", model.DocTypeBankStatement},
	{"DEED", model.DocTypePropertyDeed},
	{"INSURANCE", model.DocTypeInsurancePolicy},
}

func (c *Classifier) classifyAI(ctx context.Context, fileName string, pages []model.OCRPage) model.DocumentType {
	preview := buildPreview(pages)

	prompt := fmt.Sprintf("File name: %s\n\nContent preview:\n%s", fileName, preview)
	answer, err := c.ai.Classify(ctx, prompt)
	if err != nil {
		zap.L().Warn("classify: ai fallback failed",
			zap.String("file_name", fileName),
			zap.Error(err),
		)
		return model.DocTypeOther
	}

	upper := strings.ToUpper(answer)
	for _, m := range aiLabelMap {
		if strings.Contains(upper, m.substr) {
			return m.docType
		}
	}
	return model.DocTypeOther
}

// buildPreview concatenates the first few pages and truncates to the
// classification budget, backing off to a rune boundary so OCR text with
// multi-byte characters stays valid UTF-8.
func buildPreview(pages []model.OCRPage) string {
	n := len(pages)
	if n > classifyPreviewPages {
		n = classifyPreviewPages
	}
	text := model.ConcatPages(pages[:n])
	if len(text) > classifyPreviewChars {
		cut := classifyPreviewChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
