package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/store"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

var (
	stressDeal         string
	stressRentPct      float64
	stressExpensePct   float64
	stressInterestBP   float64
	stressOccupancyPct float64
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Stress test a deal's underwriting under adjusted assumptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		base, err := stressBase(ctx, st, stressDeal)
		if err != nil {
			return err
		}

		var scenario underwrite.StressScenario
		if cmd.Flags().Changed("rent-pct") {
			scenario.RentAdjustmentPct = &stressRentPct
		}
		if cmd.Flags().Changed("expense-pct") {
			scenario.ExpenseAdjustmentPct = &stressExpensePct
		}
		if cmd.Flags().Changed("interest-bp") {
			scenario.InterestAdjustmentBP = &stressInterestBP
		}
		if cmd.Flags().Changed("occupancy-pct") {
			scenario.OccupancyAdjustmentPct = &stressOccupancyPct
		}

		result := underwrite.ApplyStress(underwrite.StressTestInput{
			Base:     base,
			Scenario: scenario,
		})

		zap.L().Info("stress test complete",
			zap.String("deal_id", stressDeal),
			zap.Float64("stressed_noi", result.StressedNOI),
			zap.Float64("noi_change", result.Comparison.NOIChange),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// stressBase prefers rebuilding inputs from approved facts; when a deal has
// no usable facts it falls back to recovering them from the stored
// underwriting audit trail.
func stressBase(ctx context.Context, st store.Store, dealID string) (underwrite.UnderwritingInput, error) {
	facts, err := st.ListFacts(ctx, store.FactFilter{
		DealID: dealID,
		Status: model.StatusApproved,
	})
	if err != nil {
		return underwrite.UnderwritingInput{}, err
	}

	input, factsErr := underwrite.InputFromFacts(facts)
	if factsErr == nil {
		return input, nil
	}

	uw, err := st.GetUnderwriting(ctx, dealID)
	if err != nil {
		return underwrite.UnderwritingInput{}, err
	}
	if uw == nil {
		return underwrite.UnderwritingInput{}, factsErr
	}

	zap.L().Debug("recovering stress base from stored underwriting",
		zap.String("deal_id", dealID))
	return underwrite.StressInputFromResult(*uw), nil
}

func init() {
	stressCmd.Flags().StringVar(&stressDeal, "deal", "", "deal ID (required)")
	stressCmd.Flags().Float64Var(&stressRentPct, "rent-pct", 0, "rent adjustment in percent, e.g. -10")
	stressCmd.Flags().Float64Var(&stressExpensePct, "expense-pct", 0, "expense adjustment in percent, e.g. 15")
	stressCmd.Flags().Float64Var(&stressInterestBP, "interest-bp", 0, "debt service adjustment in basis points, e.g. 200")
	stressCmd.Flags().Float64Var(&stressOccupancyPct, "occupancy-pct", 0, "occupancy adjustment in percent (recorded, not applied)")
	_ = stressCmd.MarkFlagRequired("deal")
	rootCmd.AddCommand(stressCmd)
}
