// Package pipeline runs documents through classification, fact extraction,
// citation resolution, and persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealdesk-cli/internal/classify"
	"github.com/sells-group/dealdesk-cli/internal/extract"
	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/store"
)

// Pipeline wires the document processing stages together. The AI extractor
// is optional; when absent or failing, pattern extraction still runs and
// the result is flagged degraded.
type Pipeline struct {
	store      store.Store
	classifier *classify.Classifier
	patterns   *extract.PatternExtractor
	ai         extract.AIExtractor
	aiHints    func(model.DocumentType) string
	maxPages   int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAIExtractor enables AI fact extraction alongside the pattern battery.
// hints supplies per-document-type extraction guidance and may be nil.
func WithAIExtractor(ai extract.AIExtractor, hints func(model.DocumentType) string) Option {
	return func(p *Pipeline) {
		p.ai = ai
		p.aiHints = hints
	}
}

// WithMaxConcurrentPages bounds parallel per-page pattern extraction.
func WithMaxConcurrentPages(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// New creates a Pipeline.
func New(st store.Store, classifier *classify.Classifier, patterns *extract.PatternExtractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		classifier: classifier,
		patterns:   patterns,
		maxPages:   4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessResult summarizes one document run.
type ProcessResult struct {
	DocumentType model.DocumentType `json:"document_type"`
	FactIDs      []string           `json:"fact_ids"`
	AIDegraded   bool               `json:"ai_degraded"`
}

// ProcessDocument classifies the document, extracts candidate facts,
// resolves citations, and persists the resulting facts in pending review
// state. The document must already exist in the store; its status moves
// running -> completed, or failed when persistence breaks. An AI extractor
// failure does not fail the run.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc model.Document, pages []model.OCRPage) (*ProcessResult, error) {
	log := zap.L().With(
		zap.String("document_id", doc.DocumentID),
		zap.String("deal_id", doc.DealID),
		zap.String("file_name", doc.FileName),
	)

	if err := p.store.UpdateDocumentStatus(ctx, doc.DocumentID, model.ExtractionRunning, doc.DocumentType); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark document running")
	}

	docType := p.classifier.ClassifyDocument(ctx, doc.FileName, pages)
	log.Info("document classified", zap.String("document_type", string(docType)))

	candidates, err := p.extractPatterns(ctx, docType, pages)
	if err != nil {
		p.markFailed(ctx, doc, docType)
		return nil, err
	}

	result := &ProcessResult{DocumentType: docType}

	if p.ai != nil {
		aiCandidates, err := p.extractAI(ctx, docType, pages)
		if err != nil {
			log.Warn("ai extraction degraded", zap.Error(err))
			result.AIDegraded = true
		} else {
			candidates = mergeCandidates(candidates, aiCandidates)
		}
	}

	validated := extract.Validate(candidates, pages)
	facts := buildFacts(doc, validated)

	if err := p.store.CreateFacts(ctx, facts); err != nil {
		p.markFailed(ctx, doc, docType)
		return nil, eris.Wrap(err, "pipeline: persist facts")
	}
	if err := p.store.UpdateDocumentStatus(ctx, doc.DocumentID, model.ExtractionCompleted, docType); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark document completed")
	}

	for _, f := range facts {
		result.FactIDs = append(result.FactIDs, f.FactID)
	}
	log.Info("document processed",
		zap.Int("facts", len(facts)),
		zap.Bool("ai_degraded", result.AIDegraded))
	return result, nil
}

// extractPatterns runs the pattern battery over pages in parallel and
// merges per-page results keeping the earliest page per fact.
func (p *Pipeline) extractPatterns(ctx context.Context, docType model.DocumentType, pages []model.OCRPage) ([]model.CandidateFact, error) {
	perPage := make([][]model.CandidateFact, len(pages))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.maxPages)
	for i, page := range pages {
		g.Go(func() error {
			perPage[i] = p.patterns.ExtractPage(docType, page, i+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: pattern extraction")
	}

	return extract.MergeEarliest(perPage...), nil
}

func (p *Pipeline) extractAI(ctx context.Context, docType model.DocumentType, pages []model.OCRPage) ([]model.CandidateFact, error) {
	var hints string
	if p.aiHints != nil {
		hints = p.aiHints(docType)
	}
	return p.ai.ExtractFacts(ctx, docType, model.ConcatPages(pages), hints)
}

// mergeCandidates appends AI candidates that do not collide with a pattern
// candidate on (fact type, label). Pattern results win collisions.
func mergeCandidates(patterns, ai []model.CandidateFact) []model.CandidateFact {
	type key struct {
		ft    model.FactType
		label string
	}
	seen := make(map[key]bool, len(patterns))
	for _, c := range patterns {
		seen[key{c.FactType, c.Label}] = true
	}

	merged := patterns
	for _, c := range ai {
		k := key{c.FactType, c.Label}
		if seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, c)
	}
	return merged
}

func buildFacts(doc model.Document, validated []model.ValidatedFact) []model.Fact {
	now := time.Now().UTC()
	facts := make([]model.Fact, 0, len(validated))
	for _, v := range validated {
		facts = append(facts, model.Fact{
			FactID:     uuid.New().String(),
			DocumentID: doc.DocumentID,
			DealID:     doc.DealID,
			FactType:   v.FactType,
			Label:      v.Label,
			Value:      v.Value,
			Unit:       v.Unit,
			Citation:   v.Citation,
			Confidence: v.Confidence,
			Status:     model.StatusPendingApproval,
			Locked:     false,
			CreatedAt:  now,
		})
	}
	return facts
}

func (p *Pipeline) markFailed(ctx context.Context, doc model.Document, docType model.DocumentType) {
	if err := p.store.UpdateDocumentStatus(ctx, doc.DocumentID, model.ExtractionFailed, docType); err != nil {
		zap.L().Error("failed to mark document failed",
			zap.String("document_id", doc.DocumentID),
			zap.Error(err))
	}
}
