package underwrite

// StressScenario describes the adjustments of one stress run. Rent and
// expense adjustments are percentages (-10 means rent drops 10%); the
// interest adjustment is in basis points applied proportionally to debt
// service, a simplification that avoids needing loan balance and term.
type StressScenario struct {
	RentAdjustmentPct    *float64 `json:"rent_adjustment_pct,omitempty"`
	ExpenseAdjustmentPct *float64 `json:"expense_adjustment_pct,omitempty"`
	InterestAdjustmentBP *float64 `json:"interest_adjustment_bp,omitempty"`

	// OccupancyAdjustmentPct is accepted but does not change the
	// computation: collected rent already reflects occupancy, so applying
	// both would double-count vacancy.
	OccupancyAdjustmentPct *float64 `json:"occupancy_adjustment_pct,omitempty"`
}

// StressTestInput couples the scenario with the explicit base numbers it
// perturbs. Callers that only hold an UnderwritingResult can recover the
// base via StressInputFromResult.
type StressTestInput struct {
	Base     UnderwritingInput `json:"base"`
	Scenario StressScenario    `json:"scenario"`
}

// StressComparison reports deltas between stressed and base metrics.
// Pointer deltas are nil when the metric is not computable on either side.
type StressComparison struct {
	NOIChange      float64  `json:"noi_change"`
	NOIChangePct   float64  `json:"noi_change_pct"`
	DSCRChange     *float64 `json:"dscr_change,omitempty"`
	CashFlowChange *float64 `json:"cash_flow_change,omitempty"`
}

// StressTestResult holds the stressed metrics and their comparison to base.
type StressTestResult struct {
	StressedNOI      float64          `json:"stressed_noi"`
	StressedDSCR     *float64         `json:"stressed_dscr,omitempty"`
	StressedCashFlow *float64         `json:"stressed_cash_flow,omitempty"`
	Comparison       StressComparison `json:"comparison"`
}

// ApplyStress perturbs the base inputs by the scenario, recomputes NOI,
// DSCR, and cash flow, and compares against the unstressed metrics. The
// base result is recomputed here rather than passed in, so the comparison
// always reflects the same engine version on both sides.
func ApplyStress(input StressTestInput) StressTestResult {
	base := Calculate(input.Base)

	rent := input.Base.CollectedRent
	expenses := input.Base.OperatingExpenses
	var debtService float64
	if input.Base.DebtService != nil {
		debtService = *input.Base.DebtService
	}

	if adj := input.Scenario.RentAdjustmentPct; adj != nil {
		rent *= 1 + (*adj / 100)
	}
	if adj := input.Scenario.ExpenseAdjustmentPct; adj != nil {
		expenses *= 1 + (*adj / 100)
	}
	if adj := input.Scenario.InterestAdjustmentBP; adj != nil {
		debtService *= 1 + (*adj / 10000)
	}

	stressedNOI := rent - expenses
	var stressedDSCR *float64
	if debtService > 0 {
		stressedDSCR = ptr(stressedNOI / debtService)
	}
	stressedCashFlow := ptr(stressedNOI - debtService)

	noiChange := stressedNOI - base.NOI
	noiChangePct := 0.0
	if base.NOI != 0 {
		noiChangePct = (noiChange / base.NOI) * 100
	}

	var dscrChange *float64
	if stressedDSCR != nil && base.DSCR != nil {
		dscrChange = ptr(*stressedDSCR - *base.DSCR)
	}
	var cashFlowChange *float64
	if base.CashFlowAfterDebt != nil {
		cashFlowChange = ptr(*stressedCashFlow - *base.CashFlowAfterDebt)
	}

	return StressTestResult{
		StressedNOI:      stressedNOI,
		StressedDSCR:     stressedDSCR,
		StressedCashFlow: stressedCashFlow,
		Comparison: StressComparison{
			NOIChange:      noiChange,
			NOIChangePct:   noiChangePct,
			DSCRChange:     dscrChange,
			CashFlowChange: cashFlowChange,
		},
	}
}

// StressInputFromResult reconstructs base inputs from a result's audit
// trail by scanning for the labeled inputs. Lossy: only rent, expenses,
// and debt service survive the round trip, which is all stress runs need.
func StressInputFromResult(base UnderwritingResult) UnderwritingInput {
	var input UnderwritingInput
	for _, step := range base.AuditTrail {
		for _, in := range step.Inputs {
			switch in.Name {
			case labelCollectedRent:
				input.CollectedRent = in.Value
			case labelOperatingExpenses:
				input.OperatingExpenses = in.Value
			case labelAnnualDebtService:
				input.DebtService = ptr(in.Value)
			}
		}
	}
	return input
}
