package tileflat

import "math"

// BoundsOf returns the axis-aligned bounding box of the union of the
// entities' rotated rectangles. It reports false for an empty slice or when
// no entity has a positive area.
func BoundsOf(entities []Entity) (Rect, bool) {
	var r Rect
	first := true
	for _, e := range entities {
		if e.Width <= 0 || e.Height <= 0 {
			continue
		}
		aabb := entityAABB(e)
		if first {
			r = aabb
			first = false
			continue
		}
		r = rectUnion(r, aabb)
	}
	return r, !first
}

// blurMargin is the distance a blur of strength b spreads beyond the
// silhouette. An unblurred shadow still needs one unit for its
// antialiased edge.
func blurMargin(b float64) float64 {
	return math.Ceil(2*math.Max(0, b) + 1)
}

// ShadowMarginsOf returns how much room the entity's drop shadow needs beyond
// its rotated bounding box. Margins are zero when the entity has no shadow,
// the shadow is disabled or transparent, or shadows are globally disabled.
func ShadowMarginsOf(e Entity, shadowsEnabled bool) ShadowMargins {
	if !shadowsEnabled {
		return ShadowMargins{}
	}
	s, ok := ShadowOf(e)
	if !ok || !s.Active() {
		return ShadowMargins{}
	}
	extra := math.Max(0, s.Dilation) + blurMargin(s.Blur)
	off := s.Offset()
	return ShadowMargins{
		Left:   math.Max(0, extra-off.X),
		Right:  math.Max(0, extra+off.X),
		Top:    math.Max(0, extra-off.Y),
		Bottom: math.Max(0, extra+off.Y),
	}
}

// ShadowBoundsOf is BoundsOf with every entity's box grown by its shadow
// margins.
func ShadowBoundsOf(entities []Entity, shadowsEnabled bool) (Rect, bool) {
	var r Rect
	first := true
	for _, e := range entities {
		if e.Width <= 0 || e.Height <= 0 {
			continue
		}
		aabb := expandByMargins(entityAABB(e), ShadowMarginsOf(e, shadowsEnabled))
		if first {
			r = aabb
			first = false
			continue
		}
		r = rectUnion(r, aabb)
	}
	return r, !first
}

// maxShadowMargin returns the largest single margin across all entities.
func maxShadowMargin(entities []Entity, shadowsEnabled bool) float64 {
	var m float64
	for _, e := range entities {
		m = math.Max(m, ShadowMarginsOf(e, shadowsEnabled).Max())
	}
	return m
}

func expandByMargins(r Rect, m ShadowMargins) Rect {
	return Rect{
		X:      r.X - m.Left,
		Y:      r.Y - m.Top,
		Width:  r.Width + m.Left + m.Right,
		Height: r.Height + m.Top + m.Bottom,
	}
}

// ApplyPadding grows r by extra world units on every side. A negative extra
// shrinks it. The input is returned unchanged if the result would be 1 unit
// or less in either dimension.
func ApplyPadding(r Rect, extra float64) Rect {
	if extra == 0 {
		return r
	}
	out := Rect{
		X:      r.X - extra,
		Y:      r.Y - extra,
		Width:  r.Width + 2*extra,
		Height: r.Height + 2*extra,
	}
	if out.Width <= 1 || out.Height <= 1 {
		return r
	}
	return out
}

// SnapToGrid floors the min corner and ceils the max corner of r to
// multiples of gridSize (SnapFull) or gridSize/2 (SnapHalf). SnapNone and a
// non-positive gridSize return r unchanged.
func SnapToGrid(r Rect, gridSize float64, mode SnapMode) Rect {
	if gridSize <= 0 {
		return r
	}
	var step float64
	switch mode {
	case SnapFull:
		step = gridSize
	case SnapHalf:
		step = gridSize / 2
	default:
		return r
	}
	minX := math.Floor(r.X/step) * step
	minY := math.Floor(r.Y/step) * step
	maxX := math.Ceil(r.Right()/step) * step
	maxY := math.Ceil(r.Bottom()/step) * step
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ComputeInsets returns how far each side of expanded lies outside base.
// Sides where expanded lies inside base report zero.
func ComputeInsets(base, expanded Rect) Insets {
	return Insets{
		Left:   math.Max(0, base.X-expanded.X),
		Right:  math.Max(0, expanded.Right()-base.Right()),
		Top:    math.Max(0, base.Y-expanded.Y),
		Bottom: math.Max(0, expanded.Bottom()-base.Bottom()),
	}
}

// pixelSize converts a world extent into whole pixels at resolution.
func pixelSize(world, resolution float64) int {
	return int(math.Round(world * resolution))
}
