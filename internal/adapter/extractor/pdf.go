package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdf validates the file structure and hands text recognition to the
// vision backend.
func (e *Extractor) pdf(ctx context.Context, data []byte) (string, error) {
	pages, err := pdfPageCount(data)
	if err != nil {
		return "", err
	}
	if e.vision == nil {
		return "", fmt.Errorf("extractor: pdf text needs the vision backend: %w", errUnsupported)
	}

	e.log.DebugContext(ctx, "extracting pdf", slog.Int("pages", pages), slog.Int("bytes", len(data)))
	return e.vision.ExtractPDF(ctx, data)
}

// pdfPageCount validates data in relaxed mode and returns its page count.
func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return 0, fmt.Errorf("extractor: invalid pdf: %v: %w", err, errCorrupt)
	}
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("extractor: pdf page count: %v: %w", err, errCorrupt)
	}
	if n == 0 {
		return 0, fmt.Errorf("extractor: pdf has no pages: %w", errCorrupt)
	}
	return n, nil
}
