// Package extract turns OCR page text into candidate financial facts, either
// through the built-in regex rule batteries or an AI collaborator behind the
// same candidate shape.
package extract

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// AIExtractor is the external structured-extraction collaborator. A failure
// is a recoverable error distinct from "no facts found"; callers must not
// conflate the two.
type AIExtractor interface {
	ExtractFacts(ctx context.Context, docType model.DocumentType, fullText, instructions string) ([]model.CandidateFact, error)
}

// PatternExtractor applies a document type's rule battery over per-page text.
type PatternExtractor struct {
	rules map[model.DocumentType][]Rule
}

// NewPatternExtractor creates an extractor with the built-in batteries plus
// any extra rules (e.g. loaded from a rules file).
func NewPatternExtractor(extra map[model.DocumentType][]Rule) *PatternExtractor {
	rules := make(map[model.DocumentType][]Rule, len(builtinRules))
	for dt, battery := range builtinRules {
		rules[dt] = battery
	}
	for dt, battery := range extra {
		rules[dt] = append(append([]Rule{}, rules[dt]...), battery...)
	}
	return &PatternExtractor{rules: rules}
}

// Extract runs the battery for docType over the pages and returns the
// candidates, in rule order. Each rule scans pages front to back and takes
// the FIRST page that matches; this earliest-match policy keeps extraction
// reproducible regardless of any parallel page evaluation upstream.
func (e *PatternExtractor) Extract(docType model.DocumentType, pages []model.OCRPage) []model.CandidateFact {
	battery := e.rules[docType]
	if len(battery) == 0 {
		return nil
	}

	pageTexts := make([]string, len(pages))
	for i, p := range pages {
		pageTexts[i] = p.Text()
	}

	var candidates []model.CandidateFact
	for _, rule := range battery {
		if c, ok := applyRule(rule, pageTexts); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// applyRule scans pages in order and returns the candidate from the first
// matching page, or ok=false when no page matches or the value is unusable.
func applyRule(rule Rule, pageTexts []string) (model.CandidateFact, bool) {
	for i, text := range pageTexts {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil || rule.ValueGroup >= len(m) {
			continue
		}

		value := strings.ReplaceAll(m[rule.ValueGroup], ",", "")
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			// Unparseable value: drop this candidate, keep the batch.
			zap.L().Warn("extract: dropping unparseable candidate",
				zap.String("fact_type", string(rule.FactType)),
				zap.String("value", m[rule.ValueGroup]),
				zap.Int("page", i+1),
			)
			return model.CandidateFact{}, false
		}

		page := i + 1
		return model.CandidateFact{
			FactType:   rule.FactType,
			Label:      rule.Label,
			Value:      value,
			Unit:       rule.Unit,
			Confidence: rule.Confidence,
			SourcePage: &page,
			SourceText: m[0],
		}, true
	}
	return model.CandidateFact{}, false
}

// ExtractPage runs the battery against a single page, reporting candidates
// with the given 1-indexed page number. Used by callers that evaluate pages
// concurrently; results must be merged with MergeEarliest to restore the
// earliest-page-wins policy.
func (e *PatternExtractor) ExtractPage(docType model.DocumentType, page model.OCRPage, pageNum int) []model.CandidateFact {
	battery := e.rules[docType]
	if len(battery) == 0 {
		return nil
	}

	text := page.Text()
	var candidates []model.CandidateFact
	for _, rule := range battery {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil || rule.ValueGroup >= len(m) {
			continue
		}
		value := strings.ReplaceAll(m[rule.ValueGroup], ",", "")
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			continue
		}
		page := pageNum
		candidates = append(candidates, model.CandidateFact{
			FactType:   rule.FactType,
			Label:      rule.Label,
			Value:      value,
			Unit:       rule.Unit,
			Confidence: rule.Confidence,
			SourcePage: &page,
			SourceText: m[0],
		})
	}
	return candidates
}

// MergeEarliest merges per-page candidate lists produced by ExtractPage,
// keeping for each (fact type, label) pair only the candidate from the
// lowest-numbered page. Candidates without a source page are kept as-is.
func MergeEarliest(perPage ...[]model.CandidateFact) []model.CandidateFact {
	type key struct {
		ft    model.FactType
		label string
	}
	best := make(map[key]model.CandidateFact)
	var order []key
	var pageless []model.CandidateFact

	for _, candidates := range perPage {
		for _, c := range candidates {
			if c.SourcePage == nil {
				pageless = append(pageless, c)
				continue
			}
			k := key{c.FactType, c.Label}
			prev, seen := best[k]
			if !seen {
				best[k] = c
				order = append(order, k)
				continue
			}
			if *c.SourcePage < *prev.SourcePage {
				best[k] = c
			}
		}
	}

	merged := make([]model.CandidateFact, 0, len(order)+len(pageless))
	for _, k := range order {
		merged = append(merged, best[k])
	}
	return append(merged, pageless...)
}
