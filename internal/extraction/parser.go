package extraction

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/finance-reconciler/internal/domain"
	"github.com/dvloznov/finance-reconciler/internal/gcs"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

// DefaultModelName is the default Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

// ContentGenerator is the part of the genai client the extractor uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ImageFetcher loads images referenced by gs:// URIs.
type ImageFetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// GeminiConfig configures NewGeminiExtractor.
type GeminiConfig struct {
	Model      string
	APIVersion string
}

// GeminiExtractor is the Extractor backed by Gemini.
type GeminiExtractor struct {
	models  ContentGenerator
	model   string
	fetcher ImageFetcher
}

// NewGeminiExtractor creates a genai client from the environment
// (GOOGLE_API_KEY or Vertex AI settings). fetcher may be nil when images
// are always passed inline.
func NewGeminiExtractor(ctx context.Context, cfg GeminiConfig, fetcher ImageFetcher) (*GeminiExtractor, error) {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v1"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: apiVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	return NewGeminiExtractorWithGenerator(client.Models, cfg.Model, fetcher), nil
}

// NewGeminiExtractorWithGenerator builds an extractor over any content
// generator.
func NewGeminiExtractorWithGenerator(models ContentGenerator, model string, fetcher ImageFetcher) *GeminiExtractor {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{models: models, model: model, fetcher: fetcher}
}

// Extract sends the input to the model and validates its answer.
func (g *GeminiExtractor) Extract(ctx context.Context, in Input, ec Context) ([]domain.CandidateEvent, error) {
	log := logger.FromContext(ctx)
	if in.Empty() {
		return nil, fmt.Errorf("Extract: %w", domain.Invalid("input", "text or image is required"))
	}

	parts := []*genai.Part{{Text: buildExtractionPrompt(ec)}}
	if text := strings.TrimSpace(in.Text); text != "" {
		parts = append(parts, &genai.Part{Text: "Source text:\n" + text})
	}

	image, mime, err := g.image(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(image) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: image}})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Extract: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Extract: empty response from model")
	}

	candidates, err := Finish([]byte(rawText), ec)
	if err != nil {
		log.Debug().Str("raw_response", rawText).Msg("model output rejected")
		return nil, fmt.Errorf("Extract: %w", err)
	}
	log.Info().Str("model", g.model).Int("candidates", len(candidates)).Bool("image", len(image) > 0).Msg("extraction finished")
	return candidates, nil
}

func (g *GeminiExtractor) image(ctx context.Context, in Input) ([]byte, string, error) {
	data := in.Image
	if len(data) == 0 && in.ImageURI != "" {
		if g.fetcher == nil {
			return nil, "", fmt.Errorf("Extract: no image fetcher configured for %s", in.ImageURI)
		}
		var err error
		if data, err = g.fetcher.FetchFromGCS(ctx, in.ImageURI); err != nil {
			return nil, "", fmt.Errorf("Extract: fetching %s: %w", gcs.FilenameFromURI(in.ImageURI), err)
		}
	}
	if len(data) == 0 {
		return nil, "", nil
	}
	mime := in.ImageMIMEType
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there's still junk around the JSON array, keep only from the
	// first '[' to the last ']'.
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
