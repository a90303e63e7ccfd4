package extract

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dealdesk-cli/internal/model"
)

// ruleSpec is the YAML form of an extraction rule.
type ruleSpec struct {
	FactType   string  `yaml:"fact_type"`
	Label      string  `yaml:"label"`
	Pattern    string  `yaml:"pattern"`
	Unit       string  `yaml:"unit"`
	Confidence float64 `yaml:"confidence"`
	ValueGroup int     `yaml:"value_group"`
}

// rulesFile is the top-level YAML document: batteries keyed by document type.
type rulesFile struct {
	Rules map[string][]ruleSpec `yaml:"rules"`
}

// LoadRules reads additional extraction rules from a YAML file. Returned
// batteries are keyed by document type and meant to be appended to the
// built-in ones via NewPatternExtractor.
func LoadRules(path string) (map[model.DocumentType][]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read rules file %s", path)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "extract: parse rules file")
	}

	out := make(map[model.DocumentType][]Rule, len(f.Rules))
	for docType, specs := range f.Rules {
		dt, ok := model.ParseDocumentType(docType)
		if !ok {
			return nil, eris.Errorf("extract: rules file references unknown document type %q", docType)
		}
		for _, spec := range specs {
			ft, err := model.ParseFactType(spec.FactType)
			if err != nil {
				return nil, eris.Wrap(err, "extract: rules file")
			}
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, eris.Wrapf(err, "extract: rules file pattern %q", spec.Pattern)
			}
			group := spec.ValueGroup
			if group == 0 {
				group = 1
			}
			conf := spec.Confidence
			if conf <= 0 || conf > 1 {
				return nil, eris.Errorf("extract: rules file confidence %v out of range for %s", spec.Confidence, spec.FactType)
			}
			out[dt] = append(out[dt], Rule{
				FactType:   ft,
				Label:      spec.Label,
				Unit:       spec.Unit,
				Confidence: conf,
				Pattern:    re,
				ValueGroup: group,
			})
		}
	}
	return out, nil
}
