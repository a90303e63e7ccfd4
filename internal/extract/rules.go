package extract

import (
	"regexp"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// Rule describes one single-fact pattern extractor. Confidence is a property
// of the rule, not of the match: each rule carries a fixed, hand-tuned score.
type Rule struct {
	FactType   model.FactType
	Label      string
	Unit       string
	Confidence float64
	Pattern    *regexp.Regexp
	ValueGroup int // capture group holding the raw value
}

// builtinRules is the per-document-type rule battery. Rules within a battery
// are independent and non-overlapping in which fact they look for, except
// that profit-and-loss documents may emit collected_rent via "rental income"
// in addition to the rent-roll path. Both survive review separately.
var builtinRules = map[model.DocumentType][]Rule{
	model.DocTypeRentRoll: {
		{
			FactType:   model.FactUnitCount,
			Label:      "Unit Count",
			Unit:       "units",
			Confidence: 0.8,
			Pattern:    regexp.MustCompile(`(?i)(total\s+units?|unit\s+count)[:\s]+(\d+)`),
			ValueGroup: 2,
		},
		{
			FactType:   model.FactOccupancyRate,
			Label:      "Occupancy Rate",
			Unit:       "%",
			Confidence: 0.85,
			Pattern:    regexp.MustCompile(`(?i)occupancy[:\s]+(\d+\.?\d*)%`),
			ValueGroup: 1,
		},
		{
			FactType:   model.FactGrossScheduledRent,
			Label:      "Gross Scheduled Rent",
			Unit:       "USD/year",
			Confidence: 0.9,
			Pattern:    regexp.MustCompile(`(?i)gross\s+scheduled\s+rent[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 1,
		},
		{
			FactType:   model.FactCollectedRent,
			Label:      "Collected Rent",
			Unit:       "USD/year",
			Confidence: 0.9,
			Pattern:    regexp.MustCompile(`(?i)collected\s+rent[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 1,
		},
	},
	model.DocTypeProfitAndLoss: {
		{
			FactType:   model.FactOperatingExpenses,
			Label:      "Operating Expenses",
			Unit:       "USD/year",
			Confidence: 0.85,
			Pattern:    regexp.MustCompile(`(?i)(operating\s+expenses?|total\s+expenses?)[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 2,
		},
		{
			FactType:   model.FactNetOperatingIncome,
			Label:      "Net Operating Income",
			Unit:       "USD/year",
			Confidence: 0.95,
			Pattern:    regexp.MustCompile(`(?i)(net\s+operating\s+income|noi)[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 2,
		},
		// Collected rent often appears in a P&L as "rental income".
		{
			FactType:   model.FactCollectedRent,
			Label:      "Collected Rent",
			Unit:       "USD/year",
			Confidence: 0.85,
			Pattern:    regexp.MustCompile(`(?i)rental\s+income[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 1,
		},
	},
	model.DocTypeMortgageStatement: {
		{
			FactType:   model.FactMortgageBalance,
			Label:      "Mortgage Balance",
			Unit:       "USD",
			Confidence: 0.9,
			Pattern:    regexp.MustCompile(`(?i)(principal\s+balance|outstanding\s+balance|loan\s+balance)[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 2,
		},
		{
			FactType:   model.FactInterestRate,
			Label:      "Interest Rate",
			Unit:       "%",
			Confidence: 0.95,
			Pattern:    regexp.MustCompile(`(?i)interest\s+rate[:\s]+(\d+\.?\d*)%`),
			ValueGroup: 1,
		},
		{
			FactType:   model.FactDebtService,
			Label:      "Debt Service",
			Unit:       "USD/month",
			Confidence: 0.9,
			Pattern:    regexp.MustCompile(`(?i)(monthly\s+payment|debt\s+service)[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 2,
		},
	},
	model.DocTypeTaxDocument: {
		{
			FactType:   model.FactPropertyValue,
			Label:      "Property Value",
			Unit:       "USD",
			Confidence: 0.8,
			Pattern:    regexp.MustCompile(`(?i)(assessed\s+value|property\s+value|market\s+value)[:\s]+\$?([\d,]+\.?\d*)`),
			ValueGroup: 2,
		},
	},
}

// RulesFor returns the built-in rule battery for a document type. Types with
// no battery (bank statements, deeds, insurance, other) return nil.
func RulesFor(docType model.DocumentType) []Rule {
	return builtinRules[docType]
}
