package extractor

import "github.com/heartmarshall/docflow-backend/internal/domain"

var (
	errUnsupported     = domain.ErrUnsupportedFormat
	errCorrupt         = domain.ErrCorruptFile
	errTimeout         = domain.ErrExtractionTimeout
	errContentTooLarge = domain.ErrContentTooLarge
)
