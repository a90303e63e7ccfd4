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
)

var (
	factsListDeal     string
	factsListDocument string
	factsListStatus   string
	factsListType     string

	factsApproveIDs []string
	factsApprovedBy string

	factsRejectID string
	factsUnlockID string

	factsSetID    string
	factsSetValue string
	factsSetUnit  string
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Review and manage extracted facts",
}

var factsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List facts for a deal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initFactsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.FactFilter{
			DealID:     factsListDeal,
			DocumentID: factsListDocument,
		}
		if factsListStatus != "" {
			status, err := model.ParseFactStatus(factsListStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}
		if factsListType != "" {
			factType, err := model.ParseFactType(factsListType)
			if err != nil {
				return err
			}
			filter.FactType = factType
		}

		facts, err := st.ListFacts(ctx, filter)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(facts)
	},
}

var factsApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve facts, locking them against edits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initFactsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.ApproveFacts(ctx, factsApproveIDs, factsApprovedBy); err != nil {
			return err
		}

		zap.L().Info("facts approved",
			zap.Int("count", len(factsApproveIDs)),
			zap.String("approved_by", factsApprovedBy),
		)
		return nil
	},
}

var factsRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject a fact, excluding it from underwriting",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initFactsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RejectFact(ctx, factsRejectID); err != nil {
			return err
		}

		zap.L().Info("fact rejected", zap.String("fact_id", factsRejectID))
		return nil
	},
}

var factsUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock an approved fact for re-review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initFactsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UnlockFact(ctx, factsUnlockID); err != nil {
			return err
		}

		zap.L().Info("fact unlocked", zap.String("fact_id", factsUnlockID))
		return nil
	},
}

var factsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Correct an unlocked fact's value",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initFactsStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UpdateFactValue(ctx, factsSetID, factsSetValue, factsSetUnit); err != nil {
			return err
		}

		zap.L().Info("fact updated",
			zap.String("fact_id", factsSetID),
			zap.String("value", factsSetValue),
		)
		return nil
	},
}

func initFactsStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func init() {
	factsListCmd.Flags().StringVar(&factsListDeal, "deal", "", "deal ID (required)")
	factsListCmd.Flags().StringVar(&factsListDocument, "document", "", "filter by document ID")
	factsListCmd.Flags().StringVar(&factsListStatus, "status", "", "filter by status (pending_approval, approved, rejected)")
	factsListCmd.Flags().StringVar(&factsListType, "type", "", "filter by fact type")
	_ = factsListCmd.MarkFlagRequired("deal")

	factsApproveCmd.Flags().StringSliceVar(&factsApproveIDs, "ids", nil, "fact IDs to approve (required)")
	factsApproveCmd.Flags().StringVar(&factsApprovedBy, "by", "", "reviewer name (required)")
	_ = factsApproveCmd.MarkFlagRequired("ids")
	_ = factsApproveCmd.MarkFlagRequired("by")

	factsRejectCmd.Flags().StringVar(&factsRejectID, "id", "", "fact ID (required)")
	_ = factsRejectCmd.MarkFlagRequired("id")

	factsUnlockCmd.Flags().StringVar(&factsUnlockID, "id", "", "fact ID (required)")
	_ = factsUnlockCmd.MarkFlagRequired("id")

	factsSetCmd.Flags().StringVar(&factsSetID, "id", "", "fact ID (required)")
	factsSetCmd.Flags().StringVar(&factsSetValue, "value", "", "new value (required)")
	factsSetCmd.Flags().StringVar(&factsSetUnit, "unit", "", "new unit")
	_ = factsSetCmd.MarkFlagRequired("id")
	_ = factsSetCmd.MarkFlagRequired("value")

	factsCmd.AddCommand(factsListCmd, factsApproveCmd, factsRejectCmd, factsUnlockCmd, factsSetCmd)
	rootCmd.AddCommand(factsCmd)
}
