package stage

import (
	"github.com/phanxgames/tileflat"
)

// part is one textured piece of a tile, placed in the tile's local space.
// Plain tiles have one part covering the whole tile; chunked composites have
// one part per chunk.
type part struct {
	ref  string
	rect tileflat.Rect
}

// tileNode is the stage's cached view of one entity.
type tileNode struct {
	entity    tileflat.Entity
	visible   bool
	order     int
	transform [6]float64
	parts     []part
	shadow    tileflat.ShadowSettings
	hasShadow bool
}

func newTileNode(e tileflat.Entity, order int) *tileNode {
	n := &tileNode{visible: true, order: order}
	n.set(e)
	return n
}

// set replaces the node's entity and rebuilds everything derived from it.
func (n *tileNode) set(e tileflat.Entity) {
	n.entity = e.Clone()
	n.transform = tileTransform(e)
	n.parts = tileParts(e)
	n.shadow, n.hasShadow = tileflat.ShadowOf(e)
}

// castsShadow reports whether the node contributes to its shadow band.
func (n *tileNode) castsShadow() bool {
	return n.visible && n.hasShadow && n.shadow.Active()
}

// tileParts resolves the textures of e. A composite whose raster was split
// into chunks draws each chunk at its recorded offset, scaled by however
// much the composite was resized since it was flattened.
func tileParts(e tileflat.Entity) []part {
	if e.IsComposite() {
		if md, err := tileflat.MetadataOf(e); err == nil && len(md.Chunks) > 0 {
			sx, sy := 1.0, 1.0
			if md.RenderBounds.Width > 0 && md.RenderBounds.Height > 0 {
				sx = e.Width / md.RenderBounds.Width
				sy = e.Height / md.RenderBounds.Height
			}
			parts := make([]part, 0, len(md.Chunks))
			for _, c := range md.Chunks {
				parts = append(parts, part{
					ref:  c.AssetRef,
					rect: tileflat.Rect{X: c.X * sx, Y: c.Y * sy, Width: c.Width * sx, Height: c.Height * sy},
				})
			}
			return parts
		}
	}
	ref, _ := e.Texture()
	return []part{{ref: ref, rect: tileflat.Rect{Width: e.Width, Height: e.Height}}}
}
