package llm

import (
	"context"
	"encoding/hex"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// VisionCache persists analyses keyed by image digest.
type VisionCache interface {
	// GetVisionCache returns nil, nil when there is no entry.
	GetVisionCache(imageHash string) (*analysis.AnalysisResult, error)
	SetVisionCache(imageHash string, a *analysis.AnalysisResult) error
}

// CachedAnalyzer wraps an Analyzer with a persistent cache.
type CachedAnalyzer struct {
	inner Analyzer
	store VisionCache
}

// NewCachedAnalyzer creates a cached analyzer.
func NewCachedAnalyzer(inner Analyzer, store VisionCache) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, store: store}
}

// HashImage returns the hex BLAKE2b-256 digest of the image and its MIME type.
func HashImage(imageData []byte, mimeType string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(mimeType))
	h.Write([]byte{0})
	h.Write(imageData)
	return hex.EncodeToString(h.Sum(nil))
}

// AnalyzeImage implements the Analyzer interface with caching. Cache failures
// are logged and never fail the analysis.
func (c *CachedAnalyzer) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	hash := HashImage(imageData, mimeType)

	if c.store != nil {
		cached, err := c.store.GetVisionCache(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check vision cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("vision cache hit")
			return &Result{Analysis: cached, Cached: true}, nil
		}
	}

	result, err := c.inner.AnalyzeImage(ctx, imageData, mimeType)
	if err != nil {
		return nil, err
	}

	if c.store != nil && result.Analysis != nil {
		if err := c.store.SetVisionCache(hash, result.Analysis); err != nil {
			log.Warn().Err(err).Msg("failed to cache vision result")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached vision result")
		}
	}

	return result, nil
}
