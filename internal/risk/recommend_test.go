package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

func lockedFact(ft model.FactType, confidence float64) model.Fact {
	return model.Fact{
		FactID:     "f-" + string(ft),
		FactType:   ft,
		Value:      "1",
		Confidence: confidence,
		Status:     model.StatusApproved,
		Locked:     true,
	}
}

// completeFacts covers every type the missing-data checks look for.
func completeFacts() []model.Fact {
	return []model.Fact{
		lockedFact(model.FactCollectedRent, 0.95),
		lockedFact(model.FactOperatingExpenses, 0.95),
		lockedFact(model.FactDebtService, 0.95),
		lockedFact(model.FactPropertyValue, 0.95),
		lockedFact(model.FactUnitCount, 0.95),
		lockedFact(model.FactOccupancyRate, 0.95),
	}
}

func ptr(v float64) *float64 { return &v }

func findByCategory(recs []Recommendation, category string) []Recommendation {
	var out []Recommendation
	for _, r := range recs {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

func TestAnalyzeMissingCollectedRent(t *testing.T) {
	facts := []model.Fact{
		lockedFact(model.FactOperatingExpenses, 0.95),
		lockedFact(model.FactDebtService, 0.95),
		lockedFact(model.FactPropertyValue, 0.95),
		lockedFact(model.FactUnitCount, 0.95),
		lockedFact(model.FactOccupancyRate, 0.95),
	}

	recs := Analyze(facts, nil)

	missing := findByCategory(recs, "Missing Data")
	require.Len(t, missing, 1)
	assert.Equal(t, SeverityCritical, missing[0].Severity)
	assert.Equal(t, "No rental income data found", missing[0].Message)
	assert.Equal(t, "Upload rent roll or P&L statement showing collected rent", missing[0].RecommendedAction)
}

func TestAnalyzeMissingDataSeverities(t *testing.T) {
	recs := Analyze(nil, nil)

	missing := findByCategory(recs, "Missing Data")
	require.Len(t, missing, 6)
	assert.Equal(t, SeverityCritical, missing[0].Severity) // collected rent
	assert.Equal(t, SeverityCritical, missing[1].Severity) // operating expenses
	assert.Equal(t, SeverityWarning, missing[2].Severity)  // mortgage / debt service
	assert.Equal(t, SeverityInfo, missing[3].Severity)     // property value
	assert.Equal(t, SeverityInfo, missing[4].Severity)     // unit count
	assert.Equal(t, SeverityInfo, missing[5].Severity)     // occupancy rate
}

func TestAnalyzeDebtServiceSatisfiesMortgageCheck(t *testing.T) {
	facts := completeFacts()
	recs := Analyze(facts, nil)
	assert.Empty(t, findByCategory(recs, "Missing Data"))
}

func TestAnalyzeLowDSCR(t *testing.T) {
	uw := &underwrite.UnderwritingResult{NOI: 15000, DSCR: ptr(0.75)}

	recs := Analyze(completeFacts(), uw)

	coverage := findByCategory(recs, "Debt Coverage")
	require.Len(t, coverage, 1)
	assert.Equal(t, SeverityCritical, coverage[0].Severity)
	assert.Equal(t, "DSCR of 0.75 is below 1.0 - property cannot cover debt service", coverage[0].Message)
}

func TestAnalyzeDSCRBands(t *testing.T) {
	tests := []struct {
		name     string
		dscr     float64
		severity Severity
		count    int
	}{
		{"critical below one", 0.9, SeverityCritical, 1},
		{"warning below recommended", 1.1, SeverityWarning, 1},
		{"no finding in middle band", 1.3, "", 0},
		{"info when strong", 1.6, SeverityInfo, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uw := &underwrite.UnderwritingResult{NOI: 50000, DSCR: ptr(tt.dscr)}
			coverage := findByCategory(Analyze(completeFacts(), uw), "Debt Coverage")
			require.Len(t, coverage, tt.count)
			if tt.count > 0 {
				assert.Equal(t, tt.severity, coverage[0].Severity)
			}
		})
	}
}

func TestAnalyzeNegativeNOI(t *testing.T) {
	uw := &underwrite.UnderwritingResult{NOI: -12500.50}

	recs := Analyze(completeFacts(), uw)

	perf := findByCategory(recs, "Operating Performance")
	require.Len(t, perf, 1)
	assert.Equal(t, SeverityCritical, perf[0].Severity)
	assert.Equal(t, "Negative NOI of $12500.50 indicates operating loss", perf[0].Message)
}

func TestAnalyzeCashFlow(t *testing.T) {
	t.Run("negative is critical", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 10000, CashFlowAfterDebt: ptr(-3000)}
		cf := findByCategory(Analyze(completeFacts(), uw), "Cash Flow")
		require.Len(t, cf, 1)
		assert.Equal(t, SeverityCritical, cf[0].Severity)
		assert.Equal(t, "Negative cash flow of $3000.00 per year", cf[0].Message)
	})

	t.Run("thin margin is warning", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 10000, CashFlowAfterDebt: ptr(2500)}
		cf := findByCategory(Analyze(completeFacts(), uw), "Cash Flow")
		require.Len(t, cf, 1)
		assert.Equal(t, SeverityWarning, cf[0].Severity)
		assert.Equal(t, "Low cash flow provides minimal safety margin", cf[0].Message)
	})

	t.Run("healthy cash flow has no finding", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 50000, CashFlowAfterDebt: ptr(19000)}
		assert.Empty(t, findByCategory(Analyze(completeFacts(), uw), "Cash Flow"))
	})
}

func TestAnalyzeCapRateBands(t *testing.T) {
	t.Run("very low", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 20000, CapRate: ptr(2.5)}
		returns := findByCategory(Analyze(completeFacts(), uw), "Returns")
		require.Len(t, returns, 1)
		assert.Equal(t, SeverityWarning, returns[0].Severity)
		assert.Equal(t, "Low cap rate of 2.50% suggests limited income potential", returns[0].Message)
	})

	t.Run("very high", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 150000, CapRate: ptr(12.5)}
		returns := findByCategory(Analyze(completeFacts(), uw), "Returns")
		require.Len(t, returns, 1)
		assert.Equal(t, "High cap rate of 12.50% may indicate higher risk", returns[0].Message)
	})

	t.Run("normal", func(t *testing.T) {
		uw := &underwrite.UnderwritingResult{NOI: 69000, CapRate: ptr(6.9)}
		assert.Empty(t, findByCategory(Analyze(completeFacts(), uw), "Returns"))
	})
}

func TestAnalyzeLeverageBands(t *testing.T) {
	tests := []struct {
		name     string
		ltv      float64
		severity Severity
		message  string
	}{
		{"above 85", 90.0, SeverityWarning, "LTV of 90.00% exceeds 85% threshold"},
		{"above 80", 82.0, SeverityInfo, "LTV of 82.00% is above 80%"},
		{"conservative", 55.0, SeverityInfo, "Conservative LTV of 55.00%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uw := &underwrite.UnderwritingResult{NOI: 69000, LTV: ptr(tt.ltv)}
			leverage := findByCategory(Analyze(completeFacts(), uw), "Leverage")
			require.Len(t, leverage, 1)
			assert.Equal(t, tt.severity, leverage[0].Severity)
			assert.Equal(t, tt.message, leverage[0].Message)
		})
	}
}

func TestAnalyzeLeverageMiddleBand(t *testing.T) {
	uw := &underwrite.UnderwritingResult{NOI: 69000, LTV: ptr(70.0)}
	assert.Empty(t, findByCategory(Analyze(completeFacts(), uw), "Leverage"))
}

func TestAnalyzeFactQuality(t *testing.T) {
	facts := completeFacts()
	facts[0].Locked = false
	facts[0].Status = model.StatusPendingApproval
	facts[1].Locked = false
	facts[1].Status = model.StatusPendingApproval
	facts[2].Confidence = 0.55

	recs := Analyze(facts, nil)

	quality := findByCategory(recs, "Data Quality")
	require.Len(t, quality, 2)
	assert.Equal(t, SeverityWarning, quality[0].Severity)
	assert.Equal(t, "2 facts pending approval", quality[0].Message)
	assert.Equal(t, SeverityInfo, quality[1].Severity)
	assert.Equal(t, "1 facts have low confidence scores", quality[1].Message)
}

func TestAnalyzeOrderAndDeterminism(t *testing.T) {
	facts := completeFacts()
	facts[0].Locked = false
	uw := &underwrite.UnderwritingResult{
		NOI:  69000,
		DSCR: ptr(1.6),
		LTV:  ptr(90.0),
	}

	a := Analyze(facts, uw)
	b := Analyze(facts, uw)
	assert.Equal(t, a, b)

	categories := make([]string, 0, len(a))
	for _, r := range a {
		categories = append(categories, r.Category)
	}
	assert.Equal(t, []string{"Debt Coverage", "Leverage", "Data Quality"}, categories)
}

func TestAnalyzeNilUnderwriting(t *testing.T) {
	recs := Analyze(completeFacts(), nil)
	assert.Empty(t, findByCategory(recs, "Debt Coverage"))
	assert.Empty(t, findByCategory(recs, "Leverage"))
}
