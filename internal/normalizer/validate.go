package normalizer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	maxUploadBytes = 15 * 1024 * 1024
)

// allowedFormats are the source formats Normalize accepts, detected from
// magic bytes rather than the caller-supplied Content-Type.
var allowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
}

// ValidationResult is ValidateImage's outcome.
type ValidationResult struct {
	Valid        bool
	Width        int
	Height       int
	Format       string
	ContentHash  string
	OriginalSize int64
}

// DetectFormat identifies a format from magic bytes, independent of any
// Content-Type header the upload carried.
func DetectFormat(data []byte) string {
	if len(data) < 12 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46, 0x38}):
		return "gif"
	case bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp"
	default:
		return ""
	}
}

// ValidateImage rejects uploads over the byte budget or in a disallowed
// format, before Normalize ever decodes them. It does not cap dimensions or
// pixel count — the ImageNormalizer's dimension clamp handles oversize
// photos unconditionally, so a legitimate, decodable image is never
// rejected outright for being large. The result carries the
// ComputeContentHash digest, which analysis passes through as
// Result.ContentHash; the duplicate tools do not use it.
func ValidateImage(data []byte) (ValidationResult, error) {
	result := ValidationResult{OriginalSize: int64(len(data))}

	if result.OriginalSize > maxUploadBytes {
		return result, fmt.Errorf("file size %d exceeds maximum %d bytes", result.OriginalSize, maxUploadBytes)
	}

	format := DetectFormat(data)
	if format == "" || !allowedFormats[format] {
		return result, fmt.Errorf("unrecognized or disallowed image format")
	}
	result.Format = format

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return result, fmt.Errorf("failed to decode image: %w", err)
	}
	result.Width, result.Height = cfg.Width, cfg.Height

	result.ContentHash = ComputeContentHash(data)
	result.Valid = true
	return result, nil
}

// ComputeContentHash returns the SHA-256 hex digest of data. The duplicate
// tools group records by source image key and do not compare these digests.
func ComputeContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
