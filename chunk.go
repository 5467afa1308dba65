package tileflat

import "math"

// ChunkRequest is the input of ResolveChunkLayout.
type ChunkRequest struct {
	// PixelWidth and PixelHeight are the planned size of the whole capture.
	PixelWidth, PixelHeight int
	MaxTextureSize          int
	Thresholds              ChunkThresholds
	Mode                    ChunkMode
	// Resolution is pixels per world unit; GridSize is world units per grid
	// square. Both are needed to convert chunk sizes between spaces.
	Resolution float64
	GridSize   float64
}

// ChunkLayout describes how a capture is split. PixelWidth and PixelHeight
// are the size of one full chunk and never exceed the max texture size.
type ChunkLayout struct {
	Enabled        bool    `json:"enabled"`
	Columns        int     `json:"columns"`
	Rows           int     `json:"rows"`
	WidthWorld     float64 `json:"widthWorld"`
	HeightWorld    float64 `json:"heightWorld"`
	PixelWidth     int     `json:"pixelWidth"`
	PixelHeight    int     `json:"pixelHeight"`
	PadToChunkGrid bool    `json:"padToChunkGrid,omitempty"`
}

// ChunkEntry places one captured chunk. X and Y are relative to the render
// bounds origin, in world units.
type ChunkEntry struct {
	AssetRef    string  `json:"assetRef"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	PixelWidth  int     `json:"pixelWidth"`
	PixelHeight int     `json:"pixelHeight"`
	Row         int     `json:"row"`
	Col         int     `json:"col"`

	// pixel offset of the chunk inside the whole capture
	px, py int
}

// ResolveChunkLayout decides whether and how to split a capture into chunks.
//
// Without a manual chunk size, captures within Thresholds.HardMax (clamped
// to the max texture size) are taken in one piece. Larger dimensions are
// divided into ceil(size/hardMax) chunks; when those chunks would still be
// larger than PreferredMax, ceil(size/PreferredMax) chunks are used instead,
// but only if that keeps each chunk at least PreferredMin.
//
// A manual chunk size wins over the thresholds and is rejected with
// ErrDimensionExceedsCap when a single chunk would exceed the texture cap.
// Without Auto or a manual size, an oversized capture is rejected the same
// way.
func ResolveChunkLayout(req ChunkRequest) (ChunkLayout, error) {
	const op = "resolve chunk layout"
	if req.PixelWidth <= 0 || req.PixelHeight <= 0 {
		return ChunkLayout{}, newErrorf(KindNoBounds, op, "planned size %dx%d", req.PixelWidth, req.PixelHeight)
	}
	if req.MaxTextureSize <= 0 {
		return ChunkLayout{}, newErrorf(KindPipelineUnavailable, op, "max texture size %d", req.MaxTextureSize)
	}
	res := req.Resolution
	if res <= 0 {
		res = 1
	}

	if req.Mode.Manual() {
		cw, ch := manualChunkPixels(req, res)
		if cw > req.MaxTextureSize || ch > req.MaxTextureSize {
			return ChunkLayout{}, newErrorf(KindDimensionExceedsCap, op,
				"requested chunk %dx%d exceeds max texture size %d", cw, ch, req.MaxTextureSize)
		}
		return buildLayout(req, cw, ch, res), nil
	}

	if !req.Mode.Auto {
		if req.PixelWidth > req.MaxTextureSize || req.PixelHeight > req.MaxTextureSize {
			return ChunkLayout{}, newErrorf(KindDimensionExceedsCap, op,
				"capture %dx%d exceeds max texture size %d; raise the threshold or enable chunking",
				req.PixelWidth, req.PixelHeight, req.MaxTextureSize)
		}
		return singleLayout(req, res), nil
	}

	th := req.Thresholds
	if th == (ChunkThresholds{}) {
		th = DefaultChunkThresholds()
	}
	hardMax := min(th.HardMax, req.MaxTextureSize)
	if hardMax <= 0 {
		hardMax = req.MaxTextureSize
	}
	if req.PixelWidth <= hardMax && req.PixelHeight <= hardMax {
		return singleLayout(req, res), nil
	}

	cw := autoChunkSize(req.PixelWidth, hardMax, th.PreferredMin, th.PreferredMax)
	ch := autoChunkSize(req.PixelHeight, hardMax, th.PreferredMin, th.PreferredMax)
	return buildLayout(req, cw, ch, res), nil
}

// autoChunkSize picks the chunk size for one dimension.
func autoChunkSize(size, hardMax, preferredMin, preferredMax int) int {
	count := ceilDiv(size, hardMax)
	chunk := float64(size) / float64(count)
	if preferredMax > 0 && chunk > float64(preferredMax) {
		alt := ceilDiv(size, preferredMax)
		altChunk := float64(size) / float64(alt)
		if altChunk >= float64(preferredMin) {
			count = alt
		}
	}
	return ceilDiv(size, count)
}

// manualChunkPixels converts a manual chunk request into pixel dimensions.
func manualChunkPixels(req ChunkRequest, res float64) (int, int) {
	if req.Mode.PixelSize > 0 {
		return req.Mode.PixelSize, req.Mode.PixelSize
	}
	ws, hs := req.Mode.WidthSquares, req.Mode.HeightSquares
	if ws <= 0 {
		ws = hs
	}
	if hs <= 0 {
		hs = ws
	}
	grid := req.GridSize
	if grid <= 0 {
		grid = 1
	}
	cw := max(1, int(math.Round(ws*grid*res)))
	ch := max(1, int(math.Round(hs*grid*res)))
	return cw, ch
}

func singleLayout(req ChunkRequest, res float64) ChunkLayout {
	return ChunkLayout{
		Columns:     1,
		Rows:        1,
		PixelWidth:  req.PixelWidth,
		PixelHeight: req.PixelHeight,
		WidthWorld:  float64(req.PixelWidth) / res,
		HeightWorld: float64(req.PixelHeight) / res,
	}
}

func buildLayout(req ChunkRequest, cw, ch int, res float64) ChunkLayout {
	cw = min(cw, req.PixelWidth)
	ch = min(ch, req.PixelHeight)
	l := ChunkLayout{
		Columns:        ceilDiv(req.PixelWidth, cw),
		Rows:           ceilDiv(req.PixelHeight, ch),
		PixelWidth:     cw,
		PixelHeight:    ch,
		WidthWorld:     float64(cw) / res,
		HeightWorld:    float64(ch) / res,
		PadToChunkGrid: req.Mode.PadToChunkGrid,
	}
	l.Enabled = l.Columns*l.Rows > 1
	if !l.Enabled {
		l.PadToChunkGrid = false
	}
	return l
}

// PadToChunkGrid grows r to the right and bottom so it spans exactly
// Columns x Rows full chunks. Layouts without the flag return r unchanged.
func PadToChunkGrid(r Rect, l ChunkLayout) Rect {
	if !l.Enabled || !l.PadToChunkGrid {
		return r
	}
	return Rect{
		X:      r.X,
		Y:      r.Y,
		Width:  math.Max(r.Width, float64(l.Columns)*l.WidthWorld),
		Height: math.Max(r.Height, float64(l.Rows)*l.HeightWorld),
	}
}

// ChunkCells lists the chunk rectangles of a capture in row-major order.
// Pixel edges are the source of truth; world edges are derived from them,
// and the last column and row end exactly on the render bounds.
func ChunkCells(l ChunkLayout, bounds Rect, pixelW, pixelH int, resolution float64) []ChunkEntry {
	cols, rows := max(l.Columns, 1), max(l.Rows, 1)
	cw, ch := l.PixelWidth, l.PixelHeight
	if cw <= 0 || cols == 1 {
		cw = pixelW
	}
	if ch <= 0 || rows == 1 {
		ch = pixelH
	}
	cells := make([]ChunkEntry, 0, cols*rows)
	for row := 0; row < rows; row++ {
		py0 := row * ch
		py1 := min(py0+ch, pixelH)
		y0 := float64(py0) / resolution
		y1 := float64(py1) / resolution
		if row == rows-1 {
			y1 = bounds.Height
		}
		for col := 0; col < cols; col++ {
			px0 := col * cw
			px1 := min(px0+cw, pixelW)
			x0 := float64(px0) / resolution
			x1 := float64(px1) / resolution
			if col == cols-1 {
				x1 = bounds.Width
			}
			cells = append(cells, ChunkEntry{
				X:           x0,
				Y:           y0,
				Width:       x1 - x0,
				Height:      y1 - y0,
				PixelWidth:  px1 - px0,
				PixelHeight: py1 - py0,
				Row:         row,
				Col:         col,
				px:          px0,
				py:          py0,
			})
		}
	}
	return cells
}

// ceilDiv returns ceil(a/b) for positive integers.
func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
