package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/export"
	"github.com/sells-group/dealdesk-cli/internal/store"
)

var (
	exportDeal string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a deal's facts and underwriting to an xlsx workbook",
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

		facts, err := st.ListFacts(ctx, store.FactFilter{DealID: exportDeal})
		if err != nil {
			return err
		}

		uw, err := st.GetUnderwriting(ctx, exportDeal)
		if err != nil {
			return err
		}

		if err := export.WriteWorkbook(exportOut, facts, uw); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("deal_id", exportDeal),
			zap.String("path", exportOut),
			zap.Int("facts", len(facts)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDeal, "deal", "", "deal ID (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "deal.xlsx", "output xlsx path")
	_ = exportCmd.MarkFlagRequired("deal")
	rootCmd.AddCommand(exportCmd)
}
