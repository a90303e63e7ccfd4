package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealdesk-cli/internal/ai"
	"github.com/sells-group/dealdesk-cli/internal/classify"
	"github.com/sells-group/dealdesk-cli/internal/extract"
	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/internal/ocr"
	"github.com/sells-group/dealdesk-cli/internal/pipeline"
	"github.com/sells-group/dealdesk-cli/internal/store"
	anthropicpkg "github.com/sells-group/dealdesk-cli/pkg/anthropic"
)

// pipelineEnv bundles everything an extraction command needs.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	OCR      ocr.Provider
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, eris.Wrap(err, "validate config")
	}
	return buildPipeline(ctx)
}

// buildPipeline assembles the extraction pipeline without mode validation.
// The serve command validates separately and degrades to pattern-only
// extraction when no Anthropic key is configured.
func buildPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var extra map[model.DocumentType][]extract.Rule
	if cfg.Extract.RulesPath != "" {
		extra, err = extract.LoadRules(cfg.Extract.RulesPath)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "load extraction rules")
		}
	}
	patterns := extract.NewPatternExtractor(extra)

	opts := []pipeline.Option{
		pipeline.WithMaxConcurrentPages(cfg.Pipeline.MaxConcurrentPages),
	}

	var classifier *classify.Classifier
	if cfg.Extract.UseAI && cfg.Anthropic.Key != "" {
		var aiOpts []ai.Option
		if cfg.Anthropic.Model != "" {
			aiOpts = append(aiOpts, ai.WithModel(cfg.Anthropic.Model))
		}
		if cfg.Anthropic.RequestsPerSec > 0 {
			aiOpts = append(aiOpts, ai.WithLimiter(rate.NewLimiter(
				rate.Limit(cfg.Anthropic.RequestsPerSec),
				int(cfg.Anthropic.RequestsPerSec)+1,
			)))
		}
		aiClient := ai.New(anthropicpkg.NewClient(cfg.Anthropic.Key), aiOpts...)
		classifier = classify.New(aiClient)
		opts = append(opts, pipeline.WithAIExtractor(aiClient, ai.InstructionsFor))
	} else {
		classifier = classify.New(nil)
	}

	provider, err := ocr.NewProvider(cfg.OCR, cfg.OCR.MistralKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(st, classifier, patterns, opts...),
		OCR:      provider,
	}, nil
}
