package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/category"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// Tables is the versioned keyword and mapping data.
type Tables struct {
	Version          int      `yaml:"version"`
	DocumentKeywords []string `yaml:"documentKeywords"`
	FactHeader       string   `yaml:"factHeader"`
	FactKeywords     []string `yaml:"factLineKeywords"`
	Mappings         struct {
		Level2 category.Mapping `yaml:"level2"`
		Level3 category.Mapping `yaml:"level3"`
		Level4 category.Mapping `yaml:"level4"`
	} `yaml:"mappings"`
	InferenceRules struct {
		Level2 []category.InferenceRule `yaml:"level2"`
		Level3 []category.InferenceRule `yaml:"level3"`
		Level4 []category.InferenceRule `yaml:"level4"`
	} `yaml:"inferenceRules"`
}

// LoadTables reads the tables from path, or the embedded defaults when path is
// empty.
func LoadTables(path string) (*Tables, error) {
	data := defaultTables
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tables file: %w", err)
		}
		data = b
	}
	return ParseTables(data)
}

// ParseTables parses YAML table data.
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}
	return &t, nil
}

// Scorer returns a scorer using the document keywords.
func (t *Tables) Scorer() *analysis.Scorer {
	return analysis.NewScorer(nilIfEmpty(t.DocumentKeywords))
}

// FactExtractor returns a fact extractor using the fact keywords and header.
func (t *Tables) FactExtractor() *analysis.FactExtractor {
	return analysis.NewFactExtractor(nilIfEmpty(t.FactKeywords), t.FactHeader)
}

// CategoryTables returns the per-level mappings and rules for the resolver.
func (t *Tables) CategoryTables() category.Tables {
	return category.Tables{
		Mappings: map[int]category.Mapping{
			2: t.Mappings.Level2,
			3: t.Mappings.Level3,
			4: t.Mappings.Level4,
		},
		Rules: map[int][]category.InferenceRule{
			2: t.InferenceRules.Level2,
			3: t.InferenceRules.Level3,
			4: t.InferenceRules.Level4,
		},
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
