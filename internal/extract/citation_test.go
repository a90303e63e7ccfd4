package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

func intPtr(n int) *int { return &n }

func TestResolveCitationWithBBox(t *testing.T) {
	pages := []model.OCRPage{
		{Fragments: []model.OCRFragment{
			{Text: "Rent Roll Summary"},
			{
				Text: "Collected Rent: $114,000",
				BBox: &model.BoundingBox{Left: 72, Top: 340, Width: 210, Height: 14},
			},
		}},
	}
	c := model.CandidateFact{
		FactType:   model.FactCollectedRent,
		SourcePage: intPtr(1),
		SourceText: "Collected Rent: $114,000",
	}

	citation := ResolveCitation(c, pages)
	require.NotNil(t, citation)
	assert.Equal(t, 1, citation.DocumentPage)
	assert.Equal(t, "Collected Rent: $114,000", citation.Text)
	require.NotNil(t, citation.BBox)
	assert.InDelta(t, 72.0, citation.BBox.Left, 0.001)
	assert.InDelta(t, 340.0, citation.BBox.Top, 0.001)
}

func TestResolveCitationFragmentWithoutBBox(t *testing.T) {
	pages := []model.OCRPage{
		{Fragments: []model.OCRFragment{{Text: "Collected Rent: $114,000"}}},
	}
	c := model.CandidateFact{
		SourcePage: intPtr(1),
		SourceText: "Collected Rent: $114,000",
	}

	citation := ResolveCitation(c, pages)
	require.NotNil(t, citation)
	assert.Nil(t, citation.BBox)
}

func TestResolveCitationTextNotFound(t *testing.T) {
	pages := []model.OCRPage{
		{Fragments: []model.OCRFragment{{Text: "unrelated content"}}},
	}
	c := model.CandidateFact{
		SourcePage: intPtr(1),
		SourceText: "Collected Rent: $114,000",
	}

	// Page exists but the text does not: citation without location
	citation := ResolveCitation(c, pages)
	require.NotNil(t, citation)
	assert.Equal(t, 1, citation.DocumentPage)
	assert.Equal(t, "Collected Rent: $114,000", citation.Text)
	assert.Nil(t, citation.BBox)
}

func TestResolveCitationNoPage(t *testing.T) {
	pages := []model.OCRPage{{Fragments: []model.OCRFragment{{Text: "x"}}}}

	assert.Nil(t, ResolveCitation(model.CandidateFact{SourceText: "x"}, pages))
	assert.Nil(t, ResolveCitation(model.CandidateFact{SourcePage: intPtr(0), SourceText: "x"}, pages))
	assert.Nil(t, ResolveCitation(model.CandidateFact{SourcePage: intPtr(2), SourceText: "x"}, pages))
	assert.Nil(t, ResolveCitation(model.CandidateFact{SourcePage: intPtr(1)}, pages))
}

func TestValidatePreservesOrder(t *testing.T) {
	pages := []model.OCRPage{
		{Fragments: []model.OCRFragment{{Text: "Collected Rent: $114,000"}}},
	}
	candidates := []model.CandidateFact{
		{FactType: model.FactCollectedRent, SourcePage: intPtr(1), SourceText: "Collected Rent: $114,000"},
		{FactType: model.FactUnitCount},
	}

	validated := Validate(candidates, pages)
	require.Len(t, validated, 2)
	assert.Equal(t, model.FactCollectedRent, validated[0].FactType)
	assert.NotNil(t, validated[0].Citation)
	assert.Equal(t, model.FactUnitCount, validated[1].FactType)
	assert.Nil(t, validated[1].Citation)
}
