// Package normalizer implements the two-stage image transform from spec
// §4.4: a dimension clamp for oversize photos, then a byte-budget pass that
// trades JPEG quality for size until the payload fits what vision APIs
// accept. Grounded on the teacher's internal/imaging processor (resize via
// disintegration/imaging, Lanczos filter) and validator (format sniffing).
package normalizer

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	maxLongSide   = 2200
	dimensionJPEGQuality = 90
	byteBudget    = 5 * 1024 * 1024 // 5 MiB
	startQuality  = 85
	qualityStep   = 10
	minQuality    = 10
)

// Result is the outcome of Normalize: the transformed bytes, the format
// they're encoded in, and whether either stage actually ran.
type Result struct {
	Bytes           []byte
	MimeType        string
	DimensionClamped bool
	SizeReduced     bool
	Warning         string
}

// Normalize applies the dimension clamp and byte-budget passes to data.
// On unreadable metadata it passes the original bytes through with a
// warning rather than failing, per spec §4.4.
func Normalize(data []byte) Result {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("normalizer: unreadable image metadata, passing through original", "error", err)
		return Result{Bytes: data, MimeType: "application/octet-stream", Warning: "unreadable metadata, original passed through"}
	}

	clampedImg, clamped := clampDimensions(img)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, clampedImg, &jpeg.Options{Quality: dimensionJPEGQuality}); err != nil {
		slog.Warn("normalizer: re-encode after dimension clamp failed, passing through original", "error", err)
		return Result{Bytes: data, MimeType: "application/octet-stream", Warning: "re-encode failed, original passed through"}
	}

	out := buf.Bytes()
	reduced := false
	if len(out) > byteBudget {
		out, reduced = reduceToByteBudget(clampedImg)
	}

	return Result{
		Bytes:            out,
		MimeType:         "image/jpeg",
		DimensionClamped: clamped,
		SizeReduced:      reduced,
	}
}

// clampDimensions scales the long side to maxLongSide when it exceeds it,
// preserving aspect ratio (square images scale to maxLongSide×maxLongSide).
func clampDimensions(img image.Image) (image.Image, bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	d := w
	if h > d {
		d = h
	}
	if d <= maxLongSide {
		return img, false
	}

	if w >= h {
		return imaging.Resize(img, maxLongSide, 0, imaging.Lanczos), true
	}
	return imaging.Resize(img, 0, maxLongSide, imaging.Lanczos), true
}

// reduceToByteBudget re-encodes img at decreasing JPEG quality until the
// result fits byteBudget or quality bottoms out at minQuality, per spec
// §4.4's termination guarantee — the final attempt is kept even if still
// over budget.
func reduceToByteBudget(img image.Image) ([]byte, bool) {
	var last []byte
	for quality := startQuality; quality >= minQuality; quality -= qualityStep {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			continue
		}
		last = buf.Bytes()
		if len(last) <= byteBudget {
			return last, true
		}
	}
	return last, true
}
