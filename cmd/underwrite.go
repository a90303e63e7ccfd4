package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/store"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

var underwriteDeal string

var underwriteCmd = &cobra.Command{
	Use:   "underwrite",
	Short: "Run underwriting calculations over a deal's approved facts",
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

		facts, err := st.ListFacts(ctx, store.FactFilter{
			DealID: underwriteDeal,
			Status: model.StatusApproved,
		})
		if err != nil {
			return err
		}

		input, err := underwrite.InputFromFacts(facts)
		if err != nil {
			return err
		}

		result := underwrite.Calculate(input)

		if err := st.SaveUnderwriting(ctx, underwriteDeal, &result); err != nil {
			return err
		}

		zap.L().Info("underwriting complete",
			zap.String("deal_id", underwriteDeal),
			zap.Float64("noi", result.NOI),
			zap.Int("warnings", len(result.Warnings)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	underwriteCmd.Flags().StringVar(&underwriteDeal, "deal", "", "deal ID (required)")
	_ = underwriteCmd.MarkFlagRequired("deal")
	rootCmd.AddCommand(underwriteCmd)
}
