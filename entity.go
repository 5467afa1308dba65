package tileflat

import "math"

// Entity is a positioned, rotatable rectangular tile owned by the host
// EntityStore. X and Y are the top-left corner of the unrotated rectangle;
// Rotation is in degrees about the rectangle center.
type Entity struct {
	ID         string
	X, Y       float64
	Width      float64
	Height     float64
	Rotation   float64
	Elevation  float64
	Alpha      float64
	Attributes Attributes
}

// Rect returns the unrotated rectangle of the entity.
func (e Entity) Rect() Rect {
	return Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// Clone returns a copy with its own attribute bag.
func (e Entity) Clone() Entity {
	out := e
	out.Attributes = e.Attributes.Clone()
	return out
}

// Texture returns the entity's image path or asset ref, if any.
func (e Entity) Texture() (string, bool) {
	return e.Attributes.String(NamespaceCore, KeyTexture)
}

// IsComposite reports whether the entity carries a flatten record.
func (e Entity) IsComposite() bool {
	return e.Attributes.Has(NamespaceFlatten, KeyFlattened)
}

// ShadowSettings is the drop-shadow configuration read from an entity's
// shadow namespace.
type ShadowSettings struct {
	Enabled  bool
	Alpha    float64
	Dilation float64
	Blur     float64
	// Offset is either given explicitly (HasOffset) or derived from
	// Distance and Angle.
	OffsetX, OffsetY float64
	HasOffset        bool
	Distance         float64
	Angle            float64
}

// ShadowOf reads the shadow settings of e. It reports false when the entity
// carries no shadow attributes at all. A missing "enabled" key means enabled
// and a missing "alpha" means fully opaque.
func ShadowOf(e Entity) (ShadowSettings, bool) {
	ns, ok := e.Attributes.Namespace(NamespaceShadow)
	if !ok || len(ns) == 0 {
		return ShadowSettings{}, false
	}
	s := ShadowSettings{Enabled: true, Alpha: 1}
	if v, ok := e.Attributes.Bool(NamespaceShadow, "enabled"); ok {
		s.Enabled = v
	}
	if v, ok := e.Attributes.Number(NamespaceShadow, "alpha"); ok {
		s.Alpha = v
	}
	s.Dilation, _ = e.Attributes.Number(NamespaceShadow, "dilation")
	s.Blur, _ = e.Attributes.Number(NamespaceShadow, "blur")
	ox, okX := e.Attributes.Number(NamespaceShadow, "offsetX")
	oy, okY := e.Attributes.Number(NamespaceShadow, "offsetY")
	if okX || okY {
		s.OffsetX, s.OffsetY, s.HasOffset = ox, oy, true
	}
	s.Distance, _ = e.Attributes.Number(NamespaceShadow, "distance")
	s.Angle, _ = e.Attributes.Number(NamespaceShadow, "angle")
	return s, true
}

// Active reports whether the shadow would actually be drawn.
func (s ShadowSettings) Active() bool {
	return s.Enabled && s.Alpha > 0
}

// Offset resolves the shadow offset vector. An explicit (x, y) pair wins;
// otherwise the vector is built from Distance and Angle, with the angle
// normalized into [0, 360) degrees.
func (s ShadowSettings) Offset() Vec2 {
	if s.HasOffset {
		return Vec2{X: s.OffsetX, Y: s.OffsetY}
	}
	if s.Distance == 0 {
		return Vec2{}
	}
	angle := math.Mod(s.Angle, 360)
	if angle < 0 {
		angle += 360
	}
	sin, cos := math.Sincos(angle * math.Pi / 180)
	return Vec2{X: s.Distance * cos, Y: s.Distance * sin}
}
