package extractor

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"

	"github.com/heartmarshall/docflow-backend/internal/adapter/gemini"
)

const visionSystemPrompt = "You are a document parser. Return the full text content of the document " +
	"you are given as plain text, preserving reading order. Describe images briefly in brackets. " +
	"Ignore page numbers, running headers and footers. Return only the text."

// GeminiVision implements Vision with a Gemini model.
type GeminiVision struct {
	client *gemini.Client
}

// NewGeminiVision wraps client.
func NewGeminiVision(client *gemini.Client) *GeminiVision {
	return &GeminiVision{client: client}
}

func (v *GeminiVision) ExtractPDF(ctx context.Context, data []byte) (string, error) {
	return v.extract(ctx, data, "application/pdf")
}

func (v *GeminiVision) ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	return v.extract(ctx, data, mimeType)
}

func (v *GeminiVision) extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	out, err := v.client.Generate(ctx, gemini.Request{
		System: visionSystemPrompt,
		Parts: []genai.Part{
			genai.Blob{MIMEType: mimeType, Data: data},
			genai.Text("Extract the text of this document."),
		},
	})
	if err != nil {
		return "", fmt.Errorf("extractor: vision %s: %w", mimeType, err)
	}
	return out, nil
}
