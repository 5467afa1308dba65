package tileflat

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/google/uuid"
)

// encodeRaster encodes img in the requested format. quality in [0, 1] maps
// to the JPEG quality; PNG output is lossless and trades quality for
// compression effort instead.
func encodeRaster(img image.Image, format string, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		q := int(math.Round(quality * 100))
		q = min(max(q, 1), 100)
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: pngCompression(quality)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func pngCompression(quality float64) png.CompressionLevel {
	switch {
	case quality >= 0.95:
		return png.BestSpeed
	case quality <= 0.5:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}

// extension returns the file extension for a format.
func extension(format string) string {
	if format == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// assetName builds a unique file name: <name>-<id><suffix><ext>.
func assetName(name, suffix, format string) string {
	return sanitizeName(name) + "-" + uuid.NewString() + suffix + extension(format)
}

// sanitizeName replaces characters that are unsafe in file names with
// underscores and falls back to "flattened" for empty strings.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "flattened"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
