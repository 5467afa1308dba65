package stage

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/tileflat"
)

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// tileTransform maps a tile's local rectangle (0,0)-(w,h) into world space.
// Returns [a, b, c, d, tx, ty].
//
//	Translate(-w/2, -h/2) -> Rotate -> Translate(X + w/2, Y + h/2)
func tileTransform(e tileflat.Entity) [6]float64 {
	if e.Rotation == 0 {
		return [6]float64{1, 0, 0, 1, e.X, e.Y}
	}
	sin, cos := math.Sincos(e.Rotation * math.Pi / 180)
	px := e.Width / 2
	py := e.Height / 2
	return [6]float64{
		cos, sin, -sin, cos,
		-(cos*px - sin*py) + e.X + px,
		-(sin*px + cos*py) + e.Y + py,
	}
}

// multiplyAffine returns p * c, i.e. c applied first.
func multiplyAffine(p, c [6]float64) [6]float64 {
	return [6]float64{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// invertAffine computes the inverse of a 2D affine matrix.
// Returns the identity matrix if the matrix is singular.
func invertAffine(m [6]float64) [6]float64 {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return identityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return [6]float64{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// rectTransform maps the unit square onto r.
func rectTransform(r tileflat.Rect) [6]float64 {
	return [6]float64{r.Width, 0, 0, r.Height, r.X, r.Y}
}

// geoM converts a [6]float64 transform into an ebiten.GeoM.
func geoM(m [6]float64) ebiten.GeoM {
	var g ebiten.GeoM
	g.SetElement(0, 0, m[0])
	g.SetElement(1, 0, m[1])
	g.SetElement(0, 1, m[2])
	g.SetElement(1, 1, m[3])
	g.SetElement(0, 2, m[4])
	g.SetElement(1, 2, m[5])
	return g
}
