package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Scanner using Google Gemini with structured output
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini scanner. categories is the closed set the
// model is hinted to choose from.
func NewGemini(apiKey string, modelName string, categories []string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Constrain the response to a single JSON object with the five
	// receipt fields; date, merchant, total and category are required.
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = responseSchema(categories)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Extract sends the image and the fixed instruction to Gemini and parses
// the structured response
func (g *Gemini) Extract(ctx context.Context, img EncodedImage) (Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// genai wants the format suffix, not the full MIME type
	format := strings.TrimPrefix(img.MIME, "image/")
	parts := []genai.Part{
		genai.ImageData(format, img.Data),
		genai.Text(extractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return Fields{}, fmt.Errorf("generating content: %w", err)
	}

	var responseText strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				responseText.WriteString(string(text))
			}
		}
	}

	fields, err := parseExtraction(responseText.String())
	if err != nil {
		return Fields{}, fmt.Errorf("parsing extraction response: %w", err)
	}
	return fields, nil
}

// Close closes the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}
