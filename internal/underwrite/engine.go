// Package underwrite computes deal underwriting metrics (NOI, DSCR, cap
// rate, LTV, GRM) from approved facts, with a step-by-step audit trail.
package underwrite

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// UnderwritingInput holds the curated numbers the engine computes from.
// CollectedRent and OperatingExpenses are mandatory; every optional field
// gates whether its dependent metrics are computable. FactIDs binds input
// field names to the facts they came from, for audit-trail provenance.
type UnderwritingInput struct {
	UnitCount          *int     `json:"unit_count,omitempty"`
	OccupancyRate      *float64 `json:"occupancy_rate,omitempty"`
	GrossScheduledRent *float64 `json:"gross_scheduled_rent,omitempty"`
	CollectedRent      float64  `json:"collected_rent"`
	OperatingExpenses  float64  `json:"operating_expenses"`
	DebtService        *float64 `json:"debt_service,omitempty"`
	PropertyValue      *float64 `json:"property_value,omitempty"`
	MortgageBalance    *float64 `json:"mortgage_balance,omitempty"`
	InterestRate       *float64 `json:"interest_rate,omitempty"`

	FactIDs map[model.FactType][]string `json:"fact_ids,omitempty"`
}

// NamedInput is one labeled input of a calculation step.
type NamedInput struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CalculationStep is one append-only audit record: which metric was derived,
// from which named inputs, with which formula, and which facts contributed.
type CalculationStep struct {
	Metric        string       `json:"metric"`
	Formula       string       `json:"formula"`
	Inputs        []NamedInput `json:"inputs"`
	Result        float64      `json:"result"`
	SourceFactIDs []string     `json:"source_fact_ids"`
}

// UnderwritingResult is the engine output: computed metrics, the audit trail
// in derivation order, and threshold warnings.
type UnderwritingResult struct {
	NOI                 float64           `json:"noi"`
	DSCR                *float64          `json:"dscr,omitempty"`
	CashFlowAfterDebt   *float64          `json:"cash_flow_after_debt,omitempty"`
	CapRate             *float64          `json:"cap_rate,omitempty"`
	LTV                 *float64          `json:"ltv,omitempty"`
	GrossRentMultiplier *float64          `json:"gross_rent_multiplier,omitempty"`
	AuditTrail          []CalculationStep `json:"audit_trail"`
	Warnings            []string          `json:"warnings"`
}

// Audit-trail input labels. The stress-test fallback recovers base inputs by
// these exact strings, so they are constants rather than inline literals.
const (
	labelCollectedRent      = "Collected Rent"
	labelOperatingExpenses  = "Operating Expenses"
	labelNOI                = "NOI"
	labelAnnualDebtService  = "Annual Debt Service"
	labelPropertyValue      = "Property Value"
	labelMortgageBalance    = "Mortgage Balance"
	labelGrossScheduledRent = "Gross Scheduled Rent"
)

// Calculate derives underwriting metrics from the input. Pure and
// deterministic: identical input yields identical output, including audit
// trail order and content. NOI is always the first step; every other metric
// is appended only when its inputs are present.
func Calculate(input UnderwritingInput) UnderwritingResult {
	var trail []CalculationStep
	var warnings []string

	noi := input.CollectedRent - input.OperatingExpenses
	trail = append(trail, CalculationStep{
		Metric:  "NOI (Net Operating Income)",
		Formula: "Collected Rent - Operating Expenses",
		Inputs: []NamedInput{
			{Name: labelCollectedRent, Value: input.CollectedRent},
			{Name: labelOperatingExpenses, Value: input.OperatingExpenses},
		},
		Result:        noi,
		SourceFactIDs: input.factIDs(model.FactCollectedRent, model.FactOperatingExpenses),
	})

	var dscr *float64
	if input.DebtService != nil {
		ds := *input.DebtService
		ratio := 0.0
		if ds > 0 {
			ratio = noi / ds
		}
		trail = append(trail, CalculationStep{
			Metric:  "DSCR (Debt Service Coverage Ratio)",
			Formula: "NOI / Annual Debt Service",
			Inputs: []NamedInput{
				{Name: labelNOI, Value: noi},
				{Name: labelAnnualDebtService, Value: ds},
			},
			Result:        ratio,
			SourceFactIDs: input.factIDs(model.FactDebtService),
		})
		if ratio < 1.0 {
			warnings = append(warnings, fmt.Sprintf(
				"Critical: DSCR of %.2f is below 1.0 - property cannot cover debt service", ratio))
		} else if ratio < 1.25 {
			warnings = append(warnings, fmt.Sprintf(
				"Warning: DSCR of %.2f is below recommended 1.25 threshold", ratio))
		}
		dscr = &ratio
	}

	var cashFlow *float64
	if input.DebtService != nil {
		ds := *input.DebtService
		cf := noi - ds
		trail = append(trail, CalculationStep{
			Metric:  "Cash Flow After Debt",
			Formula: "NOI - Annual Debt Service",
			Inputs: []NamedInput{
				{Name: labelNOI, Value: noi},
				{Name: labelAnnualDebtService, Value: ds},
			},
			Result:        cf,
			SourceFactIDs: input.factIDs(model.FactDebtService),
		})
		if cf < 0 {
			warnings = append(warnings, fmt.Sprintf("Critical: Negative cash flow of $%.2f", -cf))
		}
		cashFlow = &cf
	}

	var capRate *float64
	if input.PropertyValue != nil {
		value := *input.PropertyValue
		rate := 0.0
		if value > 0 {
			rate = (noi / value) * 100
		}
		trail = append(trail, CalculationStep{
			Metric:  "Cap Rate",
			Formula: "(NOI / Property Value) * 100",
			Inputs: []NamedInput{
				{Name: labelNOI, Value: noi},
				{Name: labelPropertyValue, Value: value},
			},
			Result:        rate,
			SourceFactIDs: input.factIDs(model.FactPropertyValue),
		})
		if rate < 4.0 {
			warnings = append(warnings, fmt.Sprintf("Note: Cap rate of %.2f%% is relatively low", rate))
		} else if rate > 12.0 {
			warnings = append(warnings, fmt.Sprintf(
				"Note: Cap rate of %.2f%% is relatively high - may indicate higher risk", rate))
		}
		capRate = &rate
	}

	var ltv *float64
	if input.MortgageBalance != nil && input.PropertyValue != nil && *input.PropertyValue > 0 {
		mortgage, value := *input.MortgageBalance, *input.PropertyValue
		ratio := (mortgage / value) * 100
		trail = append(trail, CalculationStep{
			Metric:  "LTV (Loan-to-Value)",
			Formula: "(Mortgage Balance / Property Value) * 100",
			Inputs: []NamedInput{
				{Name: labelMortgageBalance, Value: mortgage},
				{Name: labelPropertyValue, Value: value},
			},
			Result:        ratio,
			SourceFactIDs: input.factIDs(model.FactMortgageBalance, model.FactPropertyValue),
		})
		if ratio > 80.0 {
			warnings = append(warnings, fmt.Sprintf("Warning: LTV of %.2f%% is above 80%%", ratio))
		}
		ltv = &ratio
	}

	var grm *float64
	if input.GrossScheduledRent != nil && input.PropertyValue != nil && *input.GrossScheduledRent > 0 {
		gsr, value := *input.GrossScheduledRent, *input.PropertyValue
		mult := value / gsr
		trail = append(trail, CalculationStep{
			Metric:  "Gross Rent Multiplier",
			Formula: "Property Value / Gross Scheduled Rent",
			Inputs: []NamedInput{
				{Name: labelPropertyValue, Value: value},
				{Name: labelGrossScheduledRent, Value: gsr},
			},
			Result:        mult,
			SourceFactIDs: input.factIDs(model.FactGrossScheduledRent, model.FactPropertyValue),
		})
		grm = &mult
	}

	if input.DebtService == nil {
		warnings = append(warnings, "Note: Debt service not provided - DSCR cannot be calculated")
	}
	if input.PropertyValue == nil {
		warnings = append(warnings, "Note: Property value not provided - Cap Rate and LTV cannot be calculated")
	}

	return UnderwritingResult{
		NOI:                 noi,
		DSCR:                dscr,
		CashFlowAfterDebt:   cashFlow,
		CapRate:             capRate,
		LTV:                 ltv,
		GrossRentMultiplier: grm,
		AuditTrail:          trail,
		Warnings:            warnings,
	}
}

// factIDs collects the bound fact IDs for the given fact types, in argument
// order. Returns an empty (non-nil) slice so audit steps serialize with a
// stable shape.
func (in UnderwritingInput) factIDs(types ...model.FactType) []string {
	ids := []string{}
	for _, ft := range types {
		ids = append(ids, in.FactIDs[ft]...)
	}
	return ids
}

// InputFromFacts builds an UnderwritingInput from persisted facts, binding
// each consumed fact's ID for audit provenance. Facts with unparseable
// values are skipped. Missing collected rent or operating expenses is the
// caller-side precondition failure surfaced here, before the engine runs.
func InputFromFacts(facts []model.Fact) (UnderwritingInput, error) {
	input := UnderwritingInput{FactIDs: make(map[model.FactType][]string)}

	var haveRent, haveExpenses bool
	for _, f := range facts {
		v, err := strconv.ParseFloat(f.Value, 64)
		if err != nil {
			continue
		}
		switch f.FactType {
		case model.FactCollectedRent:
			input.CollectedRent = v
			haveRent = true
		case model.FactOperatingExpenses:
			input.OperatingExpenses = v
			haveExpenses = true
		case model.FactUnitCount:
			n := int(v)
			input.UnitCount = &n
			continue
		case model.FactOccupancyRate:
			input.OccupancyRate = ptr(v)
		case model.FactGrossScheduledRent:
			input.GrossScheduledRent = ptr(v)
		case model.FactDebtService:
			// Monthly debt service facts are annualized for the engine.
			if f.Unit == "USD/month" {
				v *= 12
			}
			input.DebtService = ptr(v)
		case model.FactPropertyValue:
			input.PropertyValue = ptr(v)
		case model.FactMortgageBalance:
			input.MortgageBalance = ptr(v)
		case model.FactInterestRate:
			input.InterestRate = ptr(v)
		default:
			continue
		}
		input.FactIDs[f.FactType] = append(input.FactIDs[f.FactType], f.FactID)
	}

	if !haveRent || !haveExpenses {
		var missing []string
		if !haveRent {
			missing = append(missing, string(model.FactCollectedRent))
		}
		if !haveExpenses {
			missing = append(missing, string(model.FactOperatingExpenses))
		}
		return UnderwritingInput{}, eris.Errorf("underwrite: missing required facts: %v", missing)
	}
	return input, nil
}

func ptr(v float64) *float64 { return &v }
