package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/llm"
	"github.com/raine/marktplatz-bot/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type analyzeOutput struct {
	Listing        analysis.AnalysisResult `json:"listing"`
	BaseIndex      int                     `json:"base_index"`
	Facts          []string                `json:"facts,omitempty"`
	CategoryID     string                  `json:"category_id,omitempty"`
	CategoryPath   string                  `json:"category_path,omitempty"`
	CategoryStatus string                  `json:"category_status"`
	Failures       []string                `json:"failures,omitempty"`
	ItemID         string                  `json:"item_id,omitempty"`
	Usage          llm.Usage               `json:"usage"`
}

func newAnalyzeCmd() *cobra.Command {
	var noCache, save bool

	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Analyze photos of one item and print the merged listing as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := current.cfg
			if cfg.GeminiAPIKey == "" {
				return errors.New("GEMINI_API_KEY is not set")
			}

			images := make([]pipeline.Image, len(args))
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				images[i] = pipeline.Image{Data: data, MIMEType: mimeTypeFor(path, data)}
			}

			gemini, err := llm.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return err
			}
			var analyzer llm.Analyzer = gemini
			if !noCache {
				analyzer = llm.NewCachedAnalyzer(gemini, current.store)
			}

			source, err := current.categorySource(ctx)
			if err != nil {
				return err
			}

			p := pipeline.New(analyzer, source, pipeline.Options{
				Scorer:         current.tables.Scorer(),
				Facts:          current.tables.FactExtractor(),
				CategoryTables: current.tables.CategoryTables(),
				Locale:         cfg.Locale,
				MaxParallel:    cfg.MaxParallelAnalyses,
			})

			res, err := p.Run(ctx, images)
			if err != nil {
				return err
			}

			out := analyzeOutput{
				Listing:        res.Merged.AnalysisResult,
				BaseIndex:      res.Merged.BaseIndex,
				Facts:          res.Merged.Facts,
				CategoryPath:   res.CategoryPath(p.Locale()),
				CategoryStatus: res.Resolution.Status.String(),
				Usage:          res.Usage,
			}
			if id, ok := res.Resolution.Selection.CategoryID(); ok {
				out.CategoryID = id
			}
			for _, f := range res.Failures {
				out.Failures = append(out.Failures, fmt.Sprintf("%s: %v", args[f.Index], f.Err))
			}

			if save {
				item, err := pipeline.Persist(current.store, res)
				if err != nil {
					return err
				}
				out.ItemID = item.ID
				log.Info().Str("itemId", item.ID).Msg("item saved")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "always call the vision model")
	cmd.Flags().BoolVar(&save, "save", false, "save the merged listing as an item")
	return cmd
}

// mimeTypeFor guesses the image type from the extension, then from the content.
func mimeTypeFor(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return http.DetectContentType(data)
}
