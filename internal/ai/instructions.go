package ai

import "github.com/sells-group/dealdesk-cli/internal/model"

// docTypeInstructions steers extraction toward the facts each document type
// is expected to yield.
var docTypeInstructions = map[model.DocumentType]string{
	model.DocTypeRentRoll: "Focus on unit_count, occupancy_rate, gross_scheduled_rent, and collected_rent. " +
		"Totals matter; per-unit rows do not.",
	model.DocTypeProfitAndLoss: "Focus on collected_rent, operating_expenses, and net_operating_income. " +
		"Use annual totals when both monthly and annual figures appear.",
	model.DocTypeMortgageStatement: "Focus on mortgage_balance, interest_rate, and debt_service. " +
		"Report debt_service with unit USD/month when the statement shows a monthly payment.",
	model.DocTypeTaxDocument: "Focus on property_value from assessed, market, or appraised value lines.",
}

// InstructionsFor returns the extraction guidance for a document type, or
// empty when none is defined.
func InstructionsFor(docType model.DocumentType) string {
	return docTypeInstructions[docType]
}
