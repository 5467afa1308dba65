package stage

import (
	"image/color"
	"math"
	"sort"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/tileflat"
)

var (
	gridColor      = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x28}
	selectionColor = color.NRGBA{R: 0x3d, G: 0x9b, B: 0xff, A: 0xff}
)

// drawLocked draws every visible layer into target through view. s.mu must
// be held.
func (s *Stage) drawLocked(target *ebiten.Image, view [6]float64) {
	for _, l := range s.Layers() {
		if s.hiddenLayers[l.Name] {
			continue
		}
		switch l.Name {
		case LayerBackground:
			if s.cfg.Background != "" {
				s.drawOverBounds(target, view, s.cfg.Background)
			} else if !s.cfg.Bounds.IsEmpty() {
				s.fillRect(target, view, s.cfg.Bounds, s.cfg.BackgroundColor)
			}
		case LayerTiles:
			s.drawTiles(target, view)
		case LayerForeground:
			if s.cfg.Foreground != "" {
				s.drawOverBounds(target, view, s.cfg.Foreground)
			}
		case LayerGrid:
			s.drawGrid(target, view)
		case LayerSelection:
			s.drawSelection(target, view)
		}
	}
}

// sortedNodes returns the visible tiles by elevation, then insertion order.
func (s *Stage) sortedNodes() []*tileNode {
	nodes := make([]*tileNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.visible {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].entity.Elevation != nodes[j].entity.Elevation {
			return nodes[i].entity.Elevation < nodes[j].entity.Elevation
		}
		return nodes[i].order < nodes[j].order
	})
	return nodes
}

// drawTiles draws each elevation's shadow band under that elevation's tiles.
func (s *Stage) drawTiles(target *ebiten.Image, view [6]float64) {
	nodes := s.sortedNodes()
	for i, n := range nodes {
		if i == 0 || n.entity.Elevation != nodes[i-1].entity.Elevation {
			s.drawShadowBand(target, view, n.entity.Elevation)
		}
		s.drawNode(target, view, n)
	}
}

func (s *Stage) drawShadowBand(target *ebiten.Image, view [6]float64, elevation float64) {
	img, bounds, scale, ok := s.shadows.band(elevation)
	if !ok {
		return
	}
	m := [6]float64{1 / scale, 0, 0, 1 / scale, bounds.X, bounds.Y}
	op := &s.op
	op.GeoM = geoM(multiplyAffine(view, m))
	op.ColorScale.Reset()
	op.Filter = ebiten.FilterLinear
	target.DrawImage(img, op)
}

func (s *Stage) drawNode(target *ebiten.Image, view [6]float64, n *tileNode) {
	world := multiplyAffine(view, n.transform)
	op := &s.op
	for _, p := range n.parts {
		img := s.texture(p.ref)
		ib := img.Bounds()
		local := [6]float64{
			p.rect.Width / float64(ib.Dx()), 0, 0, p.rect.Height / float64(ib.Dy()),
			p.rect.X, p.rect.Y,
		}
		op.GeoM = geoM(multiplyAffine(world, local))
		op.ColorScale.Reset()
		op.ColorScale.ScaleAlpha(float32(n.entity.Alpha))
		op.Filter = ebiten.FilterLinear
		target.DrawImage(img, op)
	}
}

// drawOverBounds stretches a texture over the scene bounds.
func (s *Stage) drawOverBounds(target *ebiten.Image, view [6]float64, ref string) {
	if s.cfg.Bounds.IsEmpty() {
		return
	}
	img := s.texture(ref)
	ib := img.Bounds()
	b := s.cfg.Bounds
	m := [6]float64{b.Width / float64(ib.Dx()), 0, 0, b.Height / float64(ib.Dy()), b.X, b.Y}
	op := &s.op
	op.GeoM = geoM(multiplyAffine(view, m))
	op.ColorScale.Reset()
	op.Filter = ebiten.FilterLinear
	target.DrawImage(img, op)
}

// drawGrid draws one-pixel grid lines across the scene bounds.
func (s *Stage) drawGrid(target *ebiten.Image, view [6]float64) {
	b := s.cfg.Bounds
	g := s.cfg.GridSize
	if b.IsEmpty() || g <= 0 {
		return
	}
	scale := math.Hypot(view[0], view[1])
	if scale <= 0 || g*scale < 4 {
		return
	}
	px := 1 / scale
	for x := math.Ceil(b.X/g) * g; x <= b.Right(); x += g {
		s.fillRect(target, view, tileflat.Rect{X: x, Y: b.Y, Width: px, Height: b.Height}, gridColor)
	}
	for y := math.Ceil(b.Y/g) * g; y <= b.Bottom(); y += g {
		s.fillRect(target, view, tileflat.Rect{X: b.X, Y: y, Width: b.Width, Height: px}, gridColor)
	}
}

// drawSelection outlines the bounding box of the selected tiles.
func (s *Stage) drawSelection(target *ebiten.Image, view [6]float64) {
	if len(s.selection) == 0 {
		return
	}
	var sel []tileflat.Entity
	for id := range s.selection {
		if n, ok := s.nodes[id]; ok && n.visible {
			sel = append(sel, n.entity)
		}
	}
	r, ok := tileflat.BoundsOf(sel)
	if !ok {
		return
	}
	scale := math.Hypot(view[0], view[1])
	if scale <= 0 {
		return
	}
	w := 2 / scale
	s.fillRect(target, view, tileflat.Rect{X: r.X - w, Y: r.Y - w, Width: r.Width + 2*w, Height: w}, selectionColor)
	s.fillRect(target, view, tileflat.Rect{X: r.X - w, Y: r.Bottom(), Width: r.Width + 2*w, Height: w}, selectionColor)
	s.fillRect(target, view, tileflat.Rect{X: r.X - w, Y: r.Y, Width: w, Height: r.Height}, selectionColor)
	s.fillRect(target, view, tileflat.Rect{X: r.Right(), Y: r.Y, Width: w, Height: r.Height}, selectionColor)
}

// fillRect fills a world rectangle with a solid color.
func (s *Stage) fillRect(target *ebiten.Image, view [6]float64, r tileflat.Rect, c color.Color) {
	op := &s.op
	op.GeoM = geoM(multiplyAffine(view, rectTransform(r)))
	op.ColorScale.Reset()
	op.ColorScale.ScaleWithColor(c)
	op.Filter = ebiten.FilterNearest
	target.DrawImage(s.white, op)
}

func (s *Stage) texture(ref string) *ebiten.Image {
	if s.cfg.Textures == nil {
		return s.white
	}
	return s.cfg.Textures.Get(ref)
}
