package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/risk"
	"github.com/sells-group/dealdesk-cli/internal/store"
)

var analyzeDeal string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Generate risk recommendations for a deal",
	Long:  "Combines the deal's facts with stored underwriting results to flag missing data, weak metrics, leverage concerns, and fact-quality issues.",
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

		facts, err := st.ListFacts(ctx, store.FactFilter{DealID: analyzeDeal})
		if err != nil {
			return err
		}

		uw, err := st.GetUnderwriting(ctx, analyzeDeal)
		if err != nil {
			return err
		}

		recs := risk.Analyze(facts, uw)

		zap.L().Info("risk analysis complete",
			zap.String("deal_id", analyzeDeal),
			zap.Int("recommendations", len(recs)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDeal, "deal", "", "deal ID (required)")
	_ = analyzeCmd.MarkFlagRequired("deal")
	rootCmd.AddCommand(analyzeCmd)
}
