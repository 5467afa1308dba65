package tileflat

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// settleYields is the number of host frames to wait before each render call
// so the host's transform cache reflects the new view.
const settleYields = 2

// capturer drives the render pipeline for one capture.
type capturer struct {
	pipeline RenderPipeline
	settle   SettleFunc
}

// ChunkFunc receives one cropped chunk. index is zero-based.
type ChunkFunc func(entry ChunkEntry, raster *image.NRGBA, index, total int) error

// checkPipeline fails fast, before anything is mutated, when the pipeline is
// missing or a surface of w x h pixels would exceed its cap.
func (c *capturer) checkPipeline(op string, w, h int) error {
	if c.pipeline == nil || !c.pipeline.Available() {
		return newError(KindPipelineUnavailable, op, nil)
	}
	if w <= 0 || h <= 0 {
		return newErrorf(KindNoBounds, op, "surface %dx%d", w, h)
	}
	if limit := c.pipeline.MaxTextureSize(); w > limit || h > limit {
		return newErrorf(KindDimensionExceedsCap, op, "surface %dx%d exceeds max texture size %d", w, h, limit)
	}
	return nil
}

// captureSingle renders bounds into one surface of
// round(width*resolution) x round(height*resolution) pixels.
func (c *capturer) captureSingle(bounds Rect, resolution float64) (*image.NRGBA, error) {
	const op = "capture"
	w := pixelSize(bounds.Width, resolution)
	h := pixelSize(bounds.Height, resolution)
	if err := c.checkPipeline(op, w, h); err != nil {
		return nil, err
	}
	return c.renderRegion(op, bounds.X, bounds.Y, w, h, resolution)
}

// renderRegion renders the w x h pixel region whose top-left corner is the
// world point (x, y). The view state is restored on every path.
func (c *capturer) renderRegion(op string, x, y float64, w, h int, resolution float64) (*image.NRGBA, error) {
	saved := c.pipeline.View()
	defer c.pipeline.SetView(saved)

	c.pipeline.SetView(ViewState{
		Scale:           resolution,
		X:               -x * resolution,
		Y:               -y * resolution,
		BackgroundAlpha: 0,
	})

	surface, err := c.pipeline.CreateSurface(w, h)
	if err != nil {
		return nil, newError(KindPipelineUnavailable, op, err)
	}
	defer surface.Destroy()

	for i := 0; i < settleYields; i++ {
		if c.settle == nil {
			break
		}
		if err := c.settle(); err != nil {
			return nil, newError(KindPipelineUnavailable, op, err)
		}
	}

	if err := c.pipeline.Render(surface, true); err != nil {
		return nil, newError(KindPipelineUnavailable, op, err)
	}
	img, err := c.pipeline.ExtractPixels(surface)
	if err != nil {
		return nil, newError(KindPipelineUnavailable, op, err)
	}
	return img, nil
}

// captureChunked renders the layout's cells one after another. Each cell is
// rendered with overlapWorld extra world units on every side, then cropped
// back to its own rectangle before onChunk sees it. The first failing chunk
// aborts the loop; chunks already handed to onChunk are not revisited.
func (c *capturer) captureChunked(l ChunkLayout, bounds Rect, resolution, overlapWorld float64, onChunk ChunkFunc) error {
	const op = "capture chunk"
	pixelW := pixelSize(bounds.Width, resolution)
	pixelH := pixelSize(bounds.Height, resolution)
	cells := ChunkCells(l, bounds, pixelW, pixelH, resolution)

	maxCell := 0
	for _, cell := range cells {
		maxCell = max(maxCell, cell.PixelWidth, cell.PixelHeight)
	}
	if err := c.checkPipeline(op, maxCell, maxCell); err != nil {
		return err
	}
	overlap := overlapPixels(overlapWorld, resolution, maxCell, c.pipeline.MaxTextureSize())

	for i, cell := range cells {
		w := cell.PixelWidth + 2*overlap
		h := cell.PixelHeight + 2*overlap
		originX := bounds.X + float64(cell.px-overlap)/resolution
		originY := bounds.Y + float64(cell.py-overlap)/resolution

		full, err := c.renderRegion(op, originX, originY, w, h, resolution)
		if err != nil {
			return newError(KindPartialChunkFailure, op, err)
		}
		raster := cropOverlap(full, overlap, cell.PixelWidth, cell.PixelHeight)
		if err := onChunk(cell, raster, i, len(cells)); err != nil {
			return err
		}
	}
	return nil
}

// overlapPixels converts the seam overlap to pixels, shrinking it when the
// padded surface would exceed the texture cap.
func overlapPixels(overlapWorld, resolution float64, maxCell, limit int) int {
	if overlapWorld <= 0 {
		return 0
	}
	o := int(math.Ceil(overlapWorld * resolution))
	if room := (limit - maxCell) / 2; o > room {
		o = max(room, 0)
	}
	return o
}

// cropOverlap copies the w x h center of src, skipping overlap pixels on
// each side. The copy lets the full surface readback be released.
func cropOverlap(src *image.NRGBA, overlap, w, h int) *image.NRGBA {
	if overlap == 0 && src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	sr := image.Rect(sb.Min.X+overlap, sb.Min.Y+overlap, sb.Min.X+overlap+w, sb.Min.Y+overlap+h)
	xdraw.Copy(dst, image.Point{}, src, sr, xdraw.Src, nil)
	return dst
}

// scalePreview returns a copy of src whose longest side is at most maxSide.
func scalePreview(src *image.NRGBA, maxSide int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}
	scale := float64(maxSide) / float64(max(w, h))
	dw := max(1, int(math.Round(float64(w)*scale)))
	dh := max(1, int(math.Round(float64(h)*scale)))
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
