// Package extractor turns uploaded bytes into plain text. It is stateless;
// the orchestrator fetches the bytes and persists the result.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Vision reads text out of formats that need a multimodal model.
type Vision interface {
	ExtractPDF(ctx context.Context, data []byte) (string, error)
	ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Config holds extraction limits.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

// Extractor dispatches on content type.
type Extractor struct {
	log    *slog.Logger
	cfg    Config
	vision Vision
}

// New creates an extractor. vision may be nil, in which case PDFs and
// images are unsupported.
func New(log *slog.Logger, cfg Config, vision Vision) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	return &Extractor{
		log:    log.With("adapter", "extractor"),
		cfg:    cfg,
		vision: vision,
	}
}

// Extract returns the text content of data. Errors wrap
// domain.ErrUnsupportedFormat, ErrCorruptFile, ErrExtractionTimeout or
// ErrContentTooLarge.
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	if int64(len(data)) > e.cfg.MaxBytes {
		return "", fmt.Errorf("extractor: %d bytes exceeds limit %d: %w", len(data), e.cfg.MaxBytes, errContentTooLarge)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.extract(ctx, data, MediaType(contentType, filename), filename, 0)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("extractor: %s: %w", filename, errTimeout)
		}
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("extractor: %s after %s: %w", filename, e.cfg.Timeout, errTimeout)
		}
		return "", ctx.Err()
	}
}

func (e *Extractor) extract(ctx context.Context, data []byte, mediaType, filename string, depth int) (string, error) {
	switch {
	case mediaType == "text/plain", mediaType == "text/csv", mediaType == "application/json":
		return plainText(data)
	case mediaType == "text/markdown":
		return markdownText(data)
	case mediaType == "text/html":
		return htmlText(data)
	case mediaType == "application/pdf":
		return e.pdf(ctx, data)
	case strings.HasPrefix(mediaType, "image/"):
		if e.vision == nil {
			return "", fmt.Errorf("extractor: %s needs the vision backend: %w", mediaType, errUnsupported)
		}
		return e.vision.ExtractImage(ctx, data, mediaType)
	case mediaType == "application/gzip", mediaType == "application/zstd":
		if depth > 0 {
			return "", fmt.Errorf("extractor: nested archive %s: %w", filename, errUnsupported)
		}
		inner, err := decompress(data, mediaType, e.cfg.MaxBytes)
		if err != nil {
			return "", err
		}
		innerName := innerFilename(filename)
		return e.extract(ctx, inner, MediaType("", innerName), innerName, depth+1)
	}
	return "", fmt.Errorf("extractor: content type %q: %w", mediaType, errUnsupported)
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extractor: text is not valid UTF-8: %w", errCorrupt)
	}
	return strings.TrimSpace(string(data)), nil
}

var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".json":     "application/json",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".gz":       "application/gzip",
	".zst":      "application/zstd",
}

// MediaType normalizes a declared content type, falling back to the file
// extension when the declaration is missing or generic.
func MediaType(contentType, filename string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = ""
	}
	mt = strings.ToLower(mt)
	switch mt {
	case "", "application/octet-stream", "binary/octet-stream":
		if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return t
		}
		return mt
	case "application/x-gzip":
		return "application/gzip"
	case "text/x-markdown":
		return "text/markdown"
	case "application/xhtml+xml":
		return "text/html"
	}
	return mt
}

func innerFilename(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".gz" || ext == ".zst" {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
