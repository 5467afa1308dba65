package tileflat

import (
	"fmt"
	"strings"
)

// Raster formats accepted by Options.Format.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// PPI limits.
const (
	MinPPI = 50
	MaxPPI = 1000
)

// ChunkThresholds steer automatic chunking, in pixels.
type ChunkThresholds struct {
	// PreferredMin is the smallest chunk the resolver will trade down to when
	// a chunk would otherwise exceed PreferredMax.
	PreferredMin int `mapstructure:"preferred_min" json:"preferredMin"`
	// PreferredMax is the chunk size above which more, smaller chunks are
	// considered.
	PreferredMax int `mapstructure:"preferred_max" json:"preferredMax"`
	// HardMax is the largest single capture before chunking kicks in. It is
	// clamped to the pipeline's max texture size.
	HardMax int `mapstructure:"hard_max" json:"hardMax"`
}

// DefaultChunkThresholds returns the thresholds used when Options leaves
// them zero.
func DefaultChunkThresholds() ChunkThresholds {
	return ChunkThresholds{PreferredMin: 2600, PreferredMax: 3400, HardMax: 4000}
}

// ChunkMode selects how a large capture is split. Auto chunking applies the
// thresholds; WidthSquares/HeightSquares or PixelSize force a chunk size and
// take precedence over Auto.
type ChunkMode struct {
	Auto bool `mapstructure:"auto" json:"auto"`
	// WidthSquares and HeightSquares give the chunk size in grid squares.
	WidthSquares  float64 `mapstructure:"width_squares" json:"widthSquares,omitempty"`
	HeightSquares float64 `mapstructure:"height_squares" json:"heightSquares,omitempty"`
	// PadToChunkGrid grows the render bounds to a whole number of chunks.
	PadToChunkGrid bool `mapstructure:"pad_to_chunk_grid" json:"padToChunkGrid,omitempty"`
	// PixelSize gives a square chunk size in pixels.
	PixelSize int `mapstructure:"pixel_size" json:"pixelSize,omitempty"`
}

// Manual reports whether an explicit chunk size was requested.
func (m ChunkMode) Manual() bool {
	return m.PixelSize > 0 || m.WidthSquares > 0 || m.HeightSquares > 0
}

// Options are the caller-facing parameters of a flatten or export.
type Options struct {
	// PPI is the number of pixels captured per grid square.
	PPI float64 `mapstructure:"ppi"`
	// Quality is the raster compression quality in [0, 1]. Used by JPEG.
	Quality float64 `mapstructure:"quality"`
	// Format is FormatPNG or FormatJPEG.
	Format string `mapstructure:"format"`
	// PaddingSnap aligns the render bounds to the grid.
	PaddingSnap string `mapstructure:"padding_snap"`
	// PaddingExtra pads the render bounds by this fraction of a grid square
	// on every side. May be negative.
	PaddingExtra float64         `mapstructure:"padding_extra"`
	Chunk        ChunkMode       `mapstructure:"chunk"`
	Thresholds   ChunkThresholds `mapstructure:"thresholds"`

	// KeepBackground and KeepForeground leave the matching scene layers
	// visible during the capture.
	KeepBackground bool `mapstructure:"keep_background"`
	KeepForeground bool `mapstructure:"keep_foreground"`

	// TargetPath is the asset directory rasters are uploaded to.
	TargetPath string `mapstructure:"target_path"`
	// Name prefixes the generated file names.
	Name string `mapstructure:"name"`

	// SplitBands makes an export produce separate background and foreground
	// rasters, divided at BandElevation.
	SplitBands    bool    `mapstructure:"split_bands"`
	BandElevation float64 `mapstructure:"band_elevation"`
}

// DefaultOptions returns options for a 100 PPI PNG capture with automatic
// chunking.
func DefaultOptions() Options {
	return Options{
		PPI:         100,
		Quality:     0.92,
		Format:      FormatPNG,
		PaddingSnap: "none",
		Chunk:       ChunkMode{Auto: true},
		Thresholds:  DefaultChunkThresholds(),
		TargetPath:  "flattened",
		Name:        "flattened",
	}
}

// Validate checks ranges and fills zero thresholds with defaults.
func (o *Options) Validate() error {
	if o.PPI < MinPPI || o.PPI > MaxPPI {
		return fmt.Errorf("tileflat: ppi %v out of range [%d, %d]", o.PPI, MinPPI, MaxPPI)
	}
	if o.Quality < 0 || o.Quality > 1 {
		return fmt.Errorf("tileflat: quality %v out of range [0, 1]", o.Quality)
	}
	switch strings.ToLower(o.Format) {
	case "", FormatPNG:
		o.Format = FormatPNG
	case FormatJPEG, "jpg":
		o.Format = FormatJPEG
	default:
		return fmt.Errorf("tileflat: unknown format %q", o.Format)
	}
	if _, ok := ParseSnapMode(o.PaddingSnap); !ok {
		return fmt.Errorf("tileflat: unknown padding snap %q", o.PaddingSnap)
	}
	if o.Chunk.PixelSize < 0 || o.Chunk.WidthSquares < 0 || o.Chunk.HeightSquares < 0 {
		return fmt.Errorf("tileflat: chunk size must not be negative")
	}
	d := DefaultChunkThresholds()
	if o.Thresholds.PreferredMin <= 0 {
		o.Thresholds.PreferredMin = d.PreferredMin
	}
	if o.Thresholds.PreferredMax <= 0 {
		o.Thresholds.PreferredMax = d.PreferredMax
	}
	if o.Thresholds.HardMax <= 0 {
		o.Thresholds.HardMax = d.HardMax
	}
	if o.Thresholds.PreferredMin > o.Thresholds.PreferredMax {
		return fmt.Errorf("tileflat: preferred chunk min %d exceeds max %d",
			o.Thresholds.PreferredMin, o.Thresholds.PreferredMax)
	}
	if o.Name == "" {
		o.Name = "flattened"
	}
	return nil
}

// Snap returns the parsed PaddingSnap.
func (o Options) Snap() SnapMode {
	m, _ := ParseSnapMode(o.PaddingSnap)
	return m
}

// Resolution returns the pixels per world unit for a scene grid size.
func (o Options) Resolution(gridSize float64) float64 {
	if gridSize <= 0 {
		return 1
	}
	return o.PPI / gridSize
}
