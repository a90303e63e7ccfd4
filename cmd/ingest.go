package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/ocr"
)

var (
	ingestDeal string
	ingestFile string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a deal document and extract facts",
	Long:  "Accepts a PDF (OCR'd via the configured provider) or a pre-OCR'd JSON sidecar, classifies the document, and extracts candidate facts for review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pages, err := loadPages(ctx, env.OCR, ingestFile)
		if err != nil {
			return err
		}
		if len(pages) == 0 {
			return eris.Errorf("no pages extracted from %s", ingestFile)
		}

		doc := model.Document{
			DocumentID:   uuid.New().String(),
			DealID:       ingestDeal,
			FileName:     filepath.Base(ingestFile),
			DocumentType: model.DocTypeOther,
			Status:       model.ExtractionPending,
			PageCount:    len(pages),
			CreatedAt:    time.Now().UTC(),
		}
		if err := env.Store.CreateDocument(ctx, doc); err != nil {
			return err
		}

		result, err := env.Pipeline.ProcessDocument(ctx, doc, pages)
		if err != nil {
			return eris.Wrap(err, "process document")
		}

		zap.L().Info("ingestion complete",
			zap.String("document_id", doc.DocumentID),
			zap.String("document_type", string(result.DocumentType)),
			zap.Int("facts", len(result.FactIDs)),
			zap.Bool("ai_degraded", result.AIDegraded),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// loadPages routes by extension: JSON sidecars carry OCR output with
// positions, anything else goes through the configured OCR provider.
func loadPages(ctx context.Context, provider ocr.Provider, path string) ([]model.OCRPage, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ocr.LoadPages(path)
	}
	return provider.ExtractPages(ctx, path)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDeal, "deal", "", "deal ID the document belongs to (required)")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a PDF or OCR sidecar JSON (required)")
	_ = ingestCmd.MarkFlagRequired("deal")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
