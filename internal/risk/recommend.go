// Package risk turns facts and underwriting metrics into a graded list of
// recommendations an analyst can act on.
package risk

import (
	"fmt"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

// Severity grades a recommendation. Ordered so callers can sort or filter.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Recommendation is one finding with an optional suggested action and
// supporting detail.
type Recommendation struct {
	Severity          Severity `json:"severity"`
	Category          string   `json:"category"`
	Message           string   `json:"message"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
	Details           string   `json:"details,omitempty"`
}

// Analyze evaluates the deal's facts and, when available, its underwriting
// metrics. The output order is fixed: missing-data checks, metric checks,
// leverage checks, then fact-quality checks. Running twice on the same
// input yields the same list.
func Analyze(facts []model.Fact, uw *underwrite.UnderwritingResult) []Recommendation {
	recs := checkMissingData(facts)
	if uw != nil {
		recs = append(recs, analyzeMetrics(*uw)...)
		recs = append(recs, analyzeLeverage(*uw)...)
	}
	return append(recs, checkFactQuality(facts)...)
}

func hasFactType(facts []model.Fact, types ...model.FactType) bool {
	for _, f := range facts {
		for _, t := range types {
			if f.FactType == t {
				return true
			}
		}
	}
	return false
}

func checkMissingData(facts []model.Fact) []Recommendation {
	var recs []Recommendation

	if !hasFactType(facts, model.FactCollectedRent) {
		recs = append(recs, Recommendation{
			Severity:          SeverityCritical,
			Category:          "Missing Data",
			Message:           "No rental income data found",
			RecommendedAction: "Upload rent roll or P&L statement showing collected rent",
			Details:           "Collected rent is essential for calculating NOI and evaluating property performance",
		})
	}
	if !hasFactType(facts, model.FactOperatingExpenses) {
		recs = append(recs, Recommendation{
			Severity:          SeverityCritical,
			Category:          "Missing Data",
			Message:           "No operating expenses data found",
			RecommendedAction: "Upload P&L statement with operating expenses breakdown",
			Details:           "Operating expenses are required to calculate NOI and understand property profitability",
		})
	}
	if !hasFactType(facts, model.FactMortgageBalance, model.FactDebtService) {
		recs = append(recs, Recommendation{
			Severity:          SeverityWarning,
			Category:          "Missing Data",
			Message:           "No mortgage or debt service information found",
			RecommendedAction: "Upload mortgage statement to enable DSCR calculation",
			Details:           "Debt service coverage ratio (DSCR) cannot be calculated without mortgage information",
		})
	}
	if !hasFactType(facts, model.FactPropertyValue) {
		recs = append(recs, Recommendation{
			Severity:          SeverityInfo,
			Category:          "Missing Data",
			Message:           "No property value found",
			RecommendedAction: "Upload tax assessment or appraisal document",
			Details:           "Property value enables calculation of Cap Rate and LTV",
		})
	}
	if !hasFactType(facts, model.FactUnitCount) {
		recs = append(recs, Recommendation{
			Severity:          SeverityInfo,
			Category:          "Missing Data",
			Message:           "No unit count information found",
			RecommendedAction: "Ensure rent roll includes total unit count",
			Details:           "Unit count helps assess property size and per-unit economics",
		})
	}
	if !hasFactType(facts, model.FactOccupancyRate) {
		recs = append(recs, Recommendation{
			Severity:          SeverityInfo,
			Category:          "Missing Data",
			Message:           "No occupancy rate found",
			RecommendedAction: "Include occupancy percentage in rent roll",
			Details:           "Occupancy rate is important for understanding property performance and risk",
		})
	}

	return recs
}

func analyzeMetrics(uw underwrite.UnderwritingResult) []Recommendation {
	var recs []Recommendation

	if uw.DSCR != nil {
		dscr := *uw.DSCR
		switch {
		case dscr < 1.0:
			recs = append(recs, Recommendation{
				Severity:          SeverityCritical,
				Category:          "Debt Coverage",
				Message:           fmt.Sprintf("DSCR of %.2f is below 1.0 - property cannot cover debt service", dscr),
				RecommendedAction: "Consider higher coupon rate, lower leverage, or refinancing options",
				Details:           "DSCR below 1.0 means the property generates insufficient income to cover debt payments",
			})
		case dscr < 1.25:
			recs = append(recs, Recommendation{
				Severity:          SeverityWarning,
				Category:          "Debt Coverage",
				Message:           fmt.Sprintf("DSCR of %.2f is below recommended 1.25 threshold", dscr),
				RecommendedAction: "Consider increasing down payment or negotiating better loan terms",
				Details:           "Most lenders require DSCR of 1.25 or higher for comfortable debt service coverage",
			})
		case dscr >= 1.5:
			recs = append(recs, Recommendation{
				Severity: SeverityInfo,
				Category: "Debt Coverage",
				Message:  fmt.Sprintf("Strong DSCR of %.2f provides good safety margin", dscr),
				Details:  "Property has healthy cash flow to cover debt service with room for unexpected expenses",
			})
		}
	}

	if uw.NOI < 0 {
		recs = append(recs, Recommendation{
			Severity:          SeverityCritical,
			Category:          "Operating Performance",
			Message:           fmt.Sprintf("Negative NOI of $%.2f indicates operating loss", -uw.NOI),
			RecommendedAction: "Review operating expenses for reduction opportunities or increase rents",
			Details:           "Property is not generating positive operating income after expenses",
		})
	}

	if uw.CashFlowAfterDebt != nil {
		cf := *uw.CashFlowAfterDebt
		if cf < 0 {
			recs = append(recs, Recommendation{
				Severity:          SeverityCritical,
				Category:          "Cash Flow",
				Message:           fmt.Sprintf("Negative cash flow of $%.2f per year", -cf),
				RecommendedAction: "Property requires capital injection. Consider debt restructuring or operational improvements",
				Details:           "Negative cash flow means owner must contribute additional capital to cover shortfall",
			})
		} else if cf < 5000 {
			recs = append(recs, Recommendation{
				Severity:          SeverityWarning,
				Category:          "Cash Flow",
				Message:           "Low cash flow provides minimal safety margin",
				RecommendedAction: "Consider stress testing for rent decreases or expense increases",
				Details:           "Low cash flow leaves little buffer for unexpected expenses or vacancies",
			})
		}
	}

	if uw.CapRate != nil {
		rate := *uw.CapRate
		if rate < 3.0 {
			recs = append(recs, Recommendation{
				Severity:          SeverityWarning,
				Category:          "Returns",
				Message:           fmt.Sprintf("Low cap rate of %.2f%% suggests limited income potential", rate),
				RecommendedAction: "Verify property value is accurate and consider if appreciation potential justifies low yield",
				Details:           "Cap rates below 3% are typically seen in premium locations with strong appreciation potential",
			})
		} else if rate > 10.0 {
			recs = append(recs, Recommendation{
				Severity:          SeverityWarning,
				Category:          "Returns",
				Message:           fmt.Sprintf("High cap rate of %.2f%% may indicate higher risk", rate),
				RecommendedAction: "Investigate property condition, location, and tenant quality",
				Details:           "Cap rates above 10% often reflect higher risk properties or markets",
			})
		}
	}

	return recs
}

func analyzeLeverage(uw underwrite.UnderwritingResult) []Recommendation {
	if uw.LTV == nil {
		return nil
	}
	ltv := *uw.LTV
	switch {
	case ltv > 85.0:
		return []Recommendation{{
			Severity:          SeverityWarning,
			Category:          "Leverage",
			Message:           fmt.Sprintf("LTV of %.2f%% exceeds 85%% threshold", ltv),
			RecommendedAction: "Consider increasing equity contribution to reduce leverage risk",
			Details:           "High LTV limits equity buffer and increases sensitivity to property value declines",
		}}
	case ltv > 80.0:
		return []Recommendation{{
			Severity:          SeverityInfo,
			Category:          "Leverage",
			Message:           fmt.Sprintf("LTV of %.2f%% is above 80%%", ltv),
			RecommendedAction: "Monitor property value and maintain cash reserves",
			Details:           "LTV above 80% may require PMI or higher interest rates",
		}}
	case ltv < 60.0:
		return []Recommendation{{
			Severity:          SeverityInfo,
			Category:          "Leverage",
			Message:           fmt.Sprintf("Conservative LTV of %.2f%%", ltv),
			RecommendedAction: "Consider if higher leverage could improve returns without excessive risk",
			Details:           "Low LTV provides strong equity position but may limit returns on equity",
		}}
	}
	return nil
}

func checkFactQuality(facts []model.Fact) []Recommendation {
	var recs []Recommendation

	unlocked := 0
	lowConfidence := 0
	for _, f := range facts {
		if !f.Locked {
			unlocked++
		}
		if f.Confidence < 0.7 {
			lowConfidence++
		}
	}

	if unlocked > 0 {
		recs = append(recs, Recommendation{
			Severity:          SeverityWarning,
			Category:          "Data Quality",
			Message:           fmt.Sprintf("%d facts pending approval", unlocked),
			RecommendedAction: "Review and approve all facts before finalizing underwriting",
			Details:           "Unlocked facts may change, affecting underwriting calculations",
		})
	}
	if lowConfidence > 0 {
		recs = append(recs, Recommendation{
			Severity:          SeverityInfo,
			Category:          "Data Quality",
			Message:           fmt.Sprintf("%d facts have low confidence scores", lowConfidence),
			RecommendedAction: "Manually verify facts with confidence below 70%",
			Details:           "Low confidence scores may indicate OCR errors or ambiguous source data",
		})
	}

	return recs
}
