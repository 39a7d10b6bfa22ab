package extractor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decompress inflates a gzip or zstd payload, refusing output larger than
// limit.
func decompress(data []byte, mediaType string, limit int64) ([]byte, error) {
	var r io.Reader
	switch mediaType {
	case "application/gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("extractor: gzip header: %v: %w", err, errCorrupt)
		}
		defer zr.Close()
		r = zr
	case "application/zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("extractor: zstd header: %v: %w", err, errCorrupt)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("extractor: %s is not an archive: %w", mediaType, errUnsupported)
	}

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("extractor: decompress: %v: %w", err, errCorrupt)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("extractor: decompressed size exceeds %d bytes: %w", limit, errContentTooLarge)
	}
	return out, nil
}
