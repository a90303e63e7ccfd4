package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/risk"
	"github.com/sells-group/dealdesk-cli/internal/store"
	"github.com/sells-group/dealdesk-cli/internal/underwrite"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deal review HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return eris.Wrap(err, "validate config")
		}

		env, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/documents/{documentID}/extract", handleExtract(env))
		r.Get("/deals/{dealID}/facts", handleListFacts(env.Store))
		r.Post("/facts/approve", handleApproveFacts(env.Store))
		r.Post("/deals/{dealID}/underwrite", handleUnderwrite(env.Store))
		r.Post("/underwrite/stress", handleStress(env.Store))
		r.Get("/deals/{dealID}/recommendations", handleRecommendations(env.Store))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func handleExtract(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		documentID := chi.URLParam(req, "documentID")

		var body struct {
			DealID   string          `json:"deal_id"`
			FileName string          `json:"file_name"`
			Pages    []model.OCRPage `json:"pages"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.DealID == "" {
			writeError(w, http.StatusBadRequest, "deal_id is required")
			return
		}
		if len(body.Pages) == 0 {
			writeError(w, http.StatusBadRequest, "pages are required")
			return
		}
		if documentID == "" {
			documentID = uuid.New().String()
		}

		doc := model.Document{
			DocumentID:   documentID,
			DealID:       body.DealID,
			FileName:     body.FileName,
			DocumentType: model.DocTypeOther,
			Status:       model.ExtractionPending,
			PageCount:    len(body.Pages),
			CreatedAt:    time.Now().UTC(),
		}
		if err := env.Store.CreateDocument(req.Context(), doc); err != nil {
			zap.L().Error("create document failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create document failed")
			return
		}

		result, err := env.Pipeline.ProcessDocument(req.Context(), doc, body.Pages)
		if err != nil {
			zap.L().Error("extraction failed",
				zap.String("document_id", documentID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "extraction failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleListFacts(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		filter := store.FactFilter{
			DealID:     chi.URLParam(req, "dealID"),
			DocumentID: req.URL.Query().Get("document"),
		}
		if s := req.URL.Query().Get("status"); s != "" {
			status, err := model.ParseFactStatus(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Status = status
		}
		if t := req.URL.Query().Get("type"); t != "" {
			factType, err := model.ParseFactType(t)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.FactType = factType
		}

		facts, err := st.ListFacts(req.Context(), filter)
		if err != nil {
			zap.L().Error("list facts failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list facts failed")
			return
		}

		writeJSON(w, http.StatusOK, facts)
	}
}

func handleApproveFacts(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			FactIDs    []string `json:"fact_ids"`
			ApprovedBy string   `json:"approved_by"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.FactIDs) == 0 {
			writeError(w, http.StatusBadRequest, "fact_ids are required")
			return
		}
		if body.ApprovedBy == "" {
			writeError(w, http.StatusBadRequest, "approved_by is required")
			return
		}

		if err := st.ApproveFacts(req.Context(), body.FactIDs, body.ApprovedBy); err != nil {
			zap.L().Error("approve facts failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "approve facts failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"approved": len(body.FactIDs)})
	}
}

func handleUnderwrite(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		dealID := chi.URLParam(req, "dealID")

		facts, err := st.ListFacts(req.Context(), store.FactFilter{
			DealID: dealID,
			Status: model.StatusApproved,
		})
		if err != nil {
			zap.L().Error("list facts failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list facts failed")
			return
		}

		input, err := underwrite.InputFromFacts(facts)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		result := underwrite.Calculate(input)

		if err := st.SaveUnderwriting(req.Context(), dealID, &result); err != nil {
			zap.L().Error("save underwriting failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save underwriting failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleStress(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DealID   string                    `json:"deal_id"`
			Scenario underwrite.StressScenario `json:"scenario"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.DealID == "" {
			writeError(w, http.StatusBadRequest, "deal_id is required")
			return
		}

		base, err := stressBase(req.Context(), st, body.DealID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		result := underwrite.ApplyStress(underwrite.StressTestInput{
			Base:     base,
			Scenario: body.Scenario,
		})

		writeJSON(w, http.StatusOK, result)
	}
}

func handleRecommendations(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		dealID := chi.URLParam(req, "dealID")

		facts, err := st.ListFacts(req.Context(), store.FactFilter{DealID: dealID})
		if err != nil {
			zap.L().Error("list facts failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list facts failed")
			return
		}

		uw, err := st.GetUnderwriting(req.Context(), dealID)
		if err != nil {
			zap.L().Error("get underwriting failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get underwriting failed")
			return
		}

		writeJSON(w, http.StatusOK, risk.Analyze(facts, uw))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
