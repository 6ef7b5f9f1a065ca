package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30
	geminiOutputPricePerMillion = 2.50
)

const geminiPrompt = `Analysiere dieses Foto für eine Kleinanzeige auf einem Gebrauchtwaren-Marktplatz.

Das Foto kann den Artikel selbst zeigen oder ein Dokument dazu (z.B. Fahrzeugschein, Rechnung, Zertifikat).
Wenn es ein Dokument ist, nenne das Dokument im Titel (z.B. "Fahrzeugschein") und übernimm alle
lesbaren Angaben zeilenweise in die Beschreibung (z.B. "Erstzulassung: 03/2015", "TÜV bis 2026", "Kilometerstand 120.000 km").

Antworte als JSON-Objekt mit diesen Feldern:
- title: kurzer Anzeigentitel auf Deutsch, mit Marke und Modell falls sichtbar
- description: Beschreibung auf Deutsch (2-4 Sätze) mit Zustand und Besonderheiten
- price: geschätzter Gebrauchtpreis in Euro als Zahl
- category: Hauptkategorie auf Deutsch (z.B. "Fahrzeuge", "Elektronik", "Haushalt")
- subcategory: Unterkategorie auf Deutsch (z.B. "Autos", "Handys", "Geschirr"), leer falls unklar
- condition: Zustand (z.B. "neu", "gebraucht", "defekt")
- brand: Marke, leer falls unbekannt
- colors, features, accessories, tags: Listen kurzer Begriffe
- vehicle_brand, vehicle_year, vehicle_mileage, vehicle_fuel_type, vehicle_color, vehicle_power,
  vehicle_first_registration, vehicle_inspection_due: nur bei Fahrzeugen, sonst weglassen
- dimensions: {"length", "width", "height"} falls erkennbar
- size, weight, material, style, serialNumber: falls erkennbar

Beispiel:
{"title": "VW Golf VII 1.6 TDI Comfortline", "description": "Gepflegter Golf in Silber, unfallfrei, scheckheftgepflegt.", "price": 9500, "category": "Fahrzeuge", "subcategory": "Autos", "condition": "gebraucht", "brand": "Volkswagen", "colors": ["silber"], "features": ["Klimaanlage", "Navi"], "accessories": [], "tags": ["golf", "diesel"], "vehicle_brand": "Volkswagen", "vehicle_year": "2015", "vehicle_fuel_type": "Diesel"}

Antworte NUR mit dem JSON-Objekt, ohne Markdown oder anderen Text.`

// GeminiAnalyzer uses Google's Gemini API for image analysis.
type GeminiAnalyzer struct {
	client *genai.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer authenticated with apiKey.
func NewGeminiAnalyzer(ctx context.Context, apiKey string) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client}, nil
}

// AnalyzeImage implements the Analyzer interface using Gemini.
func (g *GeminiAnalyzer) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*Result, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("no image data provided")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(geminiPrompt),
		{InlineData: &genai.Blob{Data: imageData, MIMEType: mimeType}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	a, err := parseAnalysis(result.Text())
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	}

	log.Info().
		Str("model", geminiModel).
		Str("title", a.Title).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("vision llm call")

	return &Result{Analysis: a, Usage: usage}, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting. Returns the extracted JSON string or an error.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

// parseAnalysis decodes a model reply into a validated AnalysisResult.
func parseAnalysis(text string) (*analysis.AnalysisResult, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}
	// Empty strings are fine, absent keys are not.
	for _, key := range []string{"title", "description"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("incomplete analysis from model: %w", &analysis.ValidationError{Index: -1, Field: key})
		}
	}

	var a analysis.AnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}

	if err := analysis.Validate(&a); err != nil {
		return nil, fmt.Errorf("incomplete analysis from model: %w", err)
	}

	return &a, nil
}
