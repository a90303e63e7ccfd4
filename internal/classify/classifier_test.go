package classify

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

type stubAI struct {
	answer string
	err    error
	prompt string
	calls  int
}

func (s *stubAI) Classify(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.answer, s.err
}

func pages(texts ...string) []model.OCRPage {
	out := make([]model.OCRPage, 0, len(texts))
	for _, t := range texts {
		out = append(out, model.OCRPage{Fragments: []model.OCRFragment{{Text: t}}})
	}
	return out
}

func TestClassifyByFilename(t *testing.T) {
	tests := []struct {
		fileName string
		want     model.DocumentType
	}{
		{"Rent_Roll_2024.pdf", model.DocTypeRentRoll},
		{"annual_profit_and_loss.pdf", model.DocTypeProfitAndLoss},
		{"P&L Statement.pdf", model.DocTypeProfitAndLoss},
		{"mortgage_jan.pdf", model.DocTypeMortgageStatement},
		{"loan_statement_2024.pdf", model.DocTypeMortgageStatement},
		{"form_1098.pdf", model.DocTypeTaxDocument},
		{"bank_statement_march.pdf", model.DocTypeBankStatement},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			got := c.ClassifyDocument(context.Background(), tt.fileName, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFilenameRentRollNeedsBothWords(t *testing.T) {
	c := New(nil)
	// "roll" alone should not classify as rent roll
	got := c.ClassifyDocument(context.Background(), "payroll.pdf", nil)
	assert.NotEqual(t, model.DocTypeRentRoll, got)
}

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want model.DocumentType
	}{
		{"rent roll phrase", "RENT ROLL as of January 2024", model.DocTypeRentRoll},
		{"unit and tenant", "Unit 101 Tenant: Smith Lease expires", model.DocTypeRentRoll},
		{"noi", "Total NOI: $69,000", model.DocTypeProfitAndLoss},
		{"mortgage", "Your mortgage account summary", model.DocTypeMortgageStatement},
		{"principal and interest", "Principal paid: $2,000 Interest paid: $1,500", model.DocTypeMortgageStatement},
		{"tax", "Property tax bill for parcel 42", model.DocTypeTaxDocument},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyDocument(context.Background(), "scan_001.pdf", pages(tt.text))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFilenameBeatsKeywords(t *testing.T) {
	c := New(nil)
	// Filename says rent roll even though the text mentions a mortgage
	got := c.ClassifyDocument(context.Background(), "rent_roll.pdf", pages("mortgage statement"))
	assert.Equal(t, model.DocTypeRentRoll, got)
}

func TestClassifyAIFallback(t *testing.T) {
	ai := &stubAI{answer: "RENT_ROLL"}
	c := New(ai)

	got := c.ClassifyDocument(context.Background(), "scan_001.pdf", pages("illegible content"))
	assert.Equal(t, model.DocTypeRentRoll, got)
	assert.Equal(t, 1, ai.calls)
	assert.Contains(t, ai.prompt, "scan_001.pdf")
	assert.Contains(t, ai.prompt, "illegible content")
}

func TestClassifyAINotConsultedWhenHeuristicsMatch(t *testing.T) {
	ai := &stubAI{answer: "TAX"}
	c := New(ai)

	got := c.ClassifyDocument(context.Background(), "rent_roll.pdf", nil)
	assert.Equal(t, model.DocTypeRentRoll, got)
	assert.Zero(t, ai.calls)
}

func TestClassifyAIAnswerMapping(t *testing.T) {
	tests := []struct {
		answer string
		want   model.DocumentType
	}{
		{"RENT_ROLL", model.DocTypeRentRoll},
		{"This looks like a PROFIT_AND_LOSS statement.", model.DocTypeProfitAndLoss},
		{"mortgage", model.DocTypeMortgageStatement},
		{"DEED", model.DocTypePropertyDeed},
		{"INSURANCE", model.DocTypeInsurancePolicy},
		{"no idea", model.DocTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			c := New(&stubAI{answer: tt.answer})
			got := c.ClassifyDocument(context.Background(), "scan.pdf", pages("unreadable"))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyAIErrorFallsBackToOther(t *testing.T) {
	c := New(&stubAI{err: eris.New("rate limited")})
	got := c.ClassifyDocument(context.Background(), "scan.pdf", pages("unreadable"))
	assert.Equal(t, model.DocTypeOther, got)
}

func TestClassifyNilAIFallsBackToOther(t *testing.T) {
	c := New(nil)
	got := c.ClassifyDocument(context.Background(), "scan.pdf", pages("unreadable"))
	assert.Equal(t, model.DocTypeOther, got)
}

func TestBuildPreviewTruncates(t *testing.T) {
	long := make([]byte, classifyPreviewChars*2)
	for i := range long {
		long[i] = 'a'
	}
	preview := buildPreview(pages(string(long)))
	assert.Len(t, preview, classifyPreviewChars)
}

func TestBuildPreviewTruncatesOnRuneBoundary(t *testing.T) {
	// The leading ASCII byte shifts every two-byte "é" so the budget
	// offset lands mid-rune.
	text := "a" + strings.Repeat("é", classifyPreviewChars)
	preview := buildPreview(pages(text))

	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, classifyPreviewChars-1, len(preview))
}
