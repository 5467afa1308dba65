package tileflat

import "math"

// Vec2 is a 2D vector used for positions and offsets in world units.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in world units. The origin is the top-left
// corner with Y increasing downward.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the X coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the Y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rectangle has no positive area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// rectUnion returns the smallest Rect containing both a and b.
func rectUnion(a, b Rect) Rect {
	minX := math.Min(a.X, b.X)
	minY := math.Min(a.Y, b.Y)
	maxX := math.Max(a.X+a.Width, b.X+b.Width)
	maxY := math.Max(a.Y+a.Height, b.Y+b.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// ShadowMargins is the extra room a drop shadow needs on each side of an
// entity, in world units. All fields are >= 0.
type ShadowMargins struct {
	Left, Right, Top, Bottom float64
}

// Max returns the largest of the four margins.
func (m ShadowMargins) Max() float64 {
	return math.Max(math.Max(m.Left, m.Right), math.Max(m.Top, m.Bottom))
}

// IsZero reports whether every margin is zero.
func (m ShadowMargins) IsZero() bool {
	return m == ShadowMargins{}
}

// Insets records how far each side of an expanded rectangle lies outside a
// base rectangle. All fields are >= 0.
type Insets struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// SnapMode selects how render bounds are aligned to the scene grid.
type SnapMode uint8

const (
	SnapNone SnapMode = iota // leave bounds unchanged
	SnapHalf                 // align to half grid squares
	SnapFull                 // align to whole grid squares
)

// String returns the configuration name of the mode.
func (m SnapMode) String() string {
	switch m {
	case SnapHalf:
		return "half"
	case SnapFull:
		return "full"
	default:
		return "none"
	}
}

// ParseSnapMode converts a configuration name into a SnapMode. Unknown names
// report false.
func ParseSnapMode(s string) (SnapMode, bool) {
	switch s {
	case "", "none":
		return SnapNone, true
	case "half":
		return SnapHalf, true
	case "full":
		return SnapFull, true
	}
	return SnapNone, false
}

// Well-known attribute namespaces and keys.
const (
	NamespaceCore    = "core"     // general tile attributes
	NamespaceShadow  = "shadow"   // drop shadow settings
	NamespaceStorage = "storage"  // storage-only identifiers, never snapshotted
	NamespaceFlatten = "tileflat" // flatten marker namespace

	KeyTexture   = "texture"   // image path or asset ref of a tile
	KeyFlattened = "flattened" // FlattenMetadata record of a composite
)
