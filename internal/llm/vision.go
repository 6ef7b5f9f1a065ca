package llm

import (
	"context"

	"github.com/raine/marktplatz-bot/internal/analysis"
)

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add returns the sum of two usages.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
		CostUSD:      u.CostUSD + other.CostUSD,
	}
}

// Result contains the structured analysis of one image and usage information.
type Result struct {
	Analysis *analysis.AnalysisResult
	Usage    Usage
	Cached   bool
}

// Analyzer turns a single image into a structured analysis.
type Analyzer interface {
	// AnalyzeImage analyzes one image. Implementations must be safe for
	// concurrent use; the pipeline calls them in parallel.
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Result, error)
}
