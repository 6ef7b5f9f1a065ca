package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"title": "x"}`, `{"title": "x"}`, false},
		{"markdown fence", "```json\n{\"title\": \"x\"}\n```", `{"title": "x"}`, false},
		{"leading text", `Hier: {"a": {"b": 1}} fertig`, `{"a": {"b": 1}}`, false},
		{"no object", "keine Antwort", "", true},
		{"reversed braces", "} {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	a, err := parseAnalysis("```json\n" + `{
		"title": "BMW 320d Touring",
		"description": "Gepflegter Kombi",
		"price": 12000,
		"category": "Fahrzeuge",
		"subcategory": "Autos",
		"brand": "BMW",
		"features": ["Navi", "AHK"],
		"vehicle_year": "2016",
		"dimensions": {"length": "4,6 m"}
	}` + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "BMW 320d Touring", a.Title)
	assert.Equal(t, 12000.0, a.PriceValue())
	assert.Equal(t, []string{"Navi", "AHK"}, a.Features)
	assert.Equal(t, "2016", a.VehicleYear)
	require.NotNil(t, a.Dimensions)
	assert.Equal(t, "4,6 m", a.Dimensions.Length)
}

func TestParseAnalysis_MissingPrice(t *testing.T) {
	_, err := parseAnalysis(`{"title": "Teller", "description": "Sechs Stück"}`)
	require.Error(t, err)

	var verr *analysis.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "price", verr.Field)
}

func TestParseAnalysis_EmptyDescriptionIsAccepted(t *testing.T) {
	a, err := parseAnalysis(`{"title": "Innenraum", "description": "", "price": 0, "features": ["Sitzheizung"]}`)
	require.NoError(t, err)
	assert.Equal(t, "", a.Description)
	assert.Equal(t, []string{"Sitzheizung"}, a.Features)
}

func TestParseAnalysis_MissingDescriptionKey(t *testing.T) {
	_, err := parseAnalysis(`{"title": "Teller", "price": 10}`)
	require.Error(t, err)

	var verr *analysis.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "description", verr.Field)
}

func TestParseAnalysis_InvalidJSON(t *testing.T) {
	_, err := parseAnalysis(`{"title": }`)
	assert.Error(t, err)
}

func TestCalculateGeminiCost(t *testing.T) {
	cost := calculateGeminiCost(1_000_000, 500_000, 0.30, 2.50)
	assert.InDelta(t, 1.55, cost, 1e-9)
}

func TestUsage_Add(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.1}
	sum := u.Add(Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3, CostUSD: 0.2})
	assert.Equal(t, int64(11), sum.InputTokens)
	assert.Equal(t, int64(18), sum.TotalTokens)
	assert.InDelta(t, 0.3, sum.CostUSD, 1e-9)
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingAnalyzer) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	p := 10.0
	return &Result{
		Analysis: &analysis.AnalysisResult{Title: string(imageData), Description: "d", Price: &p},
		Usage:    Usage{InputTokens: 100},
	}, nil
}

type memoryCache struct {
	entries map[string]*analysis.AnalysisResult
	getErr  error
}

func (m *memoryCache) GetVisionCache(hash string) (*analysis.AnalysisResult, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[hash], nil
}

func (m *memoryCache) SetVisionCache(hash string, a *analysis.AnalysisResult) error {
	m.entries[hash] = a
	return nil
}

func TestCachedAnalyzer_HitAvoidsSecondCall(t *testing.T) {
	inner := &countingAnalyzer{}
	cache := &memoryCache{entries: map[string]*analysis.AnalysisResult{}}
	a := NewCachedAnalyzer(inner, cache)

	first, err := a.AnalyzeImage(context.Background(), []byte("foto"), "image/jpeg")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := a.AnalyzeImage(context.Background(), []byte("foto"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "foto", second.Analysis.Title)
	assert.Zero(t, second.Usage.InputTokens)
	assert.Equal(t, 1, inner.calls)

	_, err = a.AnalyzeImage(context.Background(), []byte("anderes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedAnalyzer_CacheErrorFallsThrough(t *testing.T) {
	inner := &countingAnalyzer{}
	cache := &memoryCache{entries: map[string]*analysis.AnalysisResult{}, getErr: errors.New("disk full")}

	res, err := NewCachedAnalyzer(inner, cache).AnalyzeImage(context.Background(), []byte("foto"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "foto", res.Analysis.Title)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedAnalyzer_PropagatesErrors(t *testing.T) {
	inner := &countingAnalyzer{err: errors.New("quota exceeded")}
	cache := &memoryCache{entries: map[string]*analysis.AnalysisResult{}}

	_, err := NewCachedAnalyzer(inner, cache).AnalyzeImage(context.Background(), []byte("foto"), "image/jpeg")
	assert.EqualError(t, err, "quota exceeded")
	assert.Empty(t, cache.entries)
}

func TestHashImage(t *testing.T) {
	h := HashImage([]byte("foto"), "image/jpeg")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashImage([]byte("foto"), "image/jpeg"))
	assert.NotEqual(t, h, HashImage([]byte("foto"), "image/png"))
}
