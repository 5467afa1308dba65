package tileflat

import "math"

// entityTransform computes the affine matrix that maps an entity's local
// rectangle (0,0)-(w,h) into world space. Returns [a, b, c, d, tx, ty].
//
// Composition order:
//
//	Translate(-w/2, -h/2) -> Rotate -> Translate(X + w/2, Y + h/2)
func entityTransform(e Entity) [6]float64 {
	if e.Rotation == 0 {
		return [6]float64{1, 0, 0, 1, e.X, e.Y}
	}
	sin, cos := math.Sincos(e.Rotation * math.Pi / 180)

	px := e.Width / 2
	py := e.Height / 2

	// Rotate the pivot offset, then move the pivot back to the center.
	rtx := -(cos*px - sin*py)
	rty := -(sin*px + cos*py)
	return [6]float64{cos, sin, -sin, cos, rtx + e.X + px, rty + e.Y + py}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// worldAABB transforms the four corners of a (w x h) local rectangle and
// returns their axis-aligned bounding box.
func worldAABB(transform [6]float64, w, h float64) Rect {
	x0, y0 := transformPoint(transform, 0, 0)
	x1, y1 := transformPoint(transform, w, 0)
	x2, y2 := transformPoint(transform, w, h)
	x3, y3 := transformPoint(transform, 0, h)

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// entityAABB returns the world-space bounding box of an entity's rotated
// rectangle.
func entityAABB(e Entity) Rect {
	if e.Rotation == 0 {
		return e.Rect()
	}
	return worldAABB(entityTransform(e), e.Width, e.Height)
}
