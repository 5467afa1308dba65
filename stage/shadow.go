package stage

import (
	"math"
	"slices"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/tileflat"
)

// DefaultShadowDebounce is the number of frames a change waits before its
// shadow band is rebuilt. Further changes to the same tile restart the wait.
const DefaultShadowDebounce = 2

// shadowBand is the pre-rendered shadow of every caster at one elevation.
type shadowBand struct {
	img    *ebiten.Image
	bounds tileflat.Rect
	// scale is pixels per world unit; below 1 when the band would exceed the
	// texture cap.
	scale float64
	dirty bool
}

// pendingRebuild is a debounced rebuild scheduled by a change to one tile.
type pendingRebuild struct {
	elevations []float64
	due        uint64
}

// ShadowLayer draws the drop shadows of a Stage, one band per elevation.
// Changes are debounced per tile; a band is converged when it is neither
// dirty nor waiting on a pending rebuild.
//
// ShadowLayer has its own lock and never calls back into the Stage, so the
// Stage may hold its lock while calling in.
type ShadowLayer struct {
	mu       sync.Mutex
	enabled  bool
	debounce uint64
	maxTex   int
	frame    uint64

	bands     map[float64]*shadowBand
	suspended map[string]struct{}
	pending   map[string]*pendingRebuild
	elevOf    map[string]float64

	blur blurFilter
}

var _ tileflat.ShadowLayer = (*ShadowLayer)(nil)

func newShadowLayer(debounce uint64, maxTex int) *ShadowLayer {
	return &ShadowLayer{
		enabled:   true,
		debounce:  debounce,
		maxTex:    maxTex,
		bands:     make(map[float64]*shadowBand),
		suspended: make(map[string]struct{}),
		pending:   make(map[string]*pendingRebuild),
		elevOf:    make(map[string]float64),
	}
}

// Enabled reports whether shadows are drawn at all.
func (l *ShadowLayer) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SetEnabled turns shadow drawing on or off. Turning it on rebuilds every
// band.
func (l *ShadowLayer) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enabled == on {
		return
	}
	l.enabled = on
	if on {
		for _, elev := range l.elevOf {
			l.markDirtyLocked(elev)
		}
	}
}

// Suspend stops the tile from casting a shadow. It reports false if the
// tile was already suspended.
func (l *ShadowLayer) Suspend(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.suspended[id]; ok {
		return false
	}
	l.suspended[id] = struct{}{}
	if elev, ok := l.elevOf[id]; ok {
		l.scheduleLocked(id, elev)
	}
	return true
}

// Resume undoes Suspend. It reports false if the tile was not suspended.
func (l *ShadowLayer) Resume(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.suspended[id]; !ok {
		return false
	}
	delete(l.suspended, id)
	if elev, ok := l.elevOf[id]; ok {
		l.scheduleLocked(id, elev)
	}
	return true
}

// Suspended reports whether the tile's shadow is suspended.
func (l *ShadowLayer) Suspended(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.suspended[id]
	return ok
}

// IsConvergedFor reports whether the bands at the given elevations are
// neither dirty nor waiting on a pending rebuild.
func (l *ShadowLayer) IsConvergedFor(elevations []float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, elev := range elevations {
		if b, ok := l.bands[elev]; ok && b.dirty {
			return false
		}
		for _, p := range l.pending {
			if slices.Contains(p.elevations, elev) {
				return false
			}
		}
	}
	return true
}

// track records that a tile was added or changed. A tile moving between
// elevations dirties both bands.
func (l *ShadowLayer) track(id string, elevation float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.elevOf[id]; ok && old != elevation {
		l.scheduleLocked(id, old)
	}
	l.elevOf[id] = elevation
	l.scheduleLocked(id, elevation)
}

// forget drops a removed tile. Its pending rebuild is cancelled and its band
// is rebuilt on the next frame instead.
func (l *ShadowLayer) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pending[id]; ok {
		for _, elev := range p.elevations {
			l.markDirtyLocked(elev)
		}
		delete(l.pending, id)
	}
	if elev, ok := l.elevOf[id]; ok {
		l.markDirtyLocked(elev)
	}
	delete(l.elevOf, id)
	delete(l.suspended, id)
}

func (l *ShadowLayer) scheduleLocked(id string, elevation float64) {
	p, ok := l.pending[id]
	if !ok {
		p = &pendingRebuild{}
		l.pending[id] = p
	}
	if !slices.Contains(p.elevations, elevation) {
		p.elevations = append(p.elevations, elevation)
	}
	p.due = l.frame + l.debounce
}

func (l *ShadowLayer) markDirtyLocked(elevation float64) {
	b, ok := l.bands[elevation]
	if !ok {
		b = &shadowBand{scale: 1}
		l.bands[elevation] = b
	}
	b.dirty = true
}

// step advances one frame, promotes due rebuilds to dirty bands and returns
// the dirty elevations in ascending order.
func (l *ShadowLayer) step() []float64 {
	l.frame++
	for id, p := range l.pending {
		if l.frame < p.due {
			continue
		}
		for _, elev := range p.elevations {
			l.markDirtyLocked(elev)
		}
		delete(l.pending, id)
	}
	var dirty []float64
	for elev, b := range l.bands {
		if b.dirty {
			dirty = append(dirty, elev)
		}
	}
	slices.Sort(dirty)
	return dirty
}

// update runs one frame: due bands are rebuilt from the casters at their
// elevation. While shadows are disabled bands stay dirty.
func (l *ShadowLayer) update(casters map[float64][]*tileNode, texture func(ref string) *ebiten.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dirty := l.step()
	if !l.enabled {
		return
	}
	for _, elev := range dirty {
		b := l.bands[elev]
		l.rebuildLocked(b, casters[elev], texture)
		b.dirty = false
	}
}

// band returns the drawable band at elevation, if any.
func (l *ShadowLayer) band(elevation float64) (*ebiten.Image, tileflat.Rect, float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return nil, tileflat.Rect{}, 0, false
	}
	b, ok := l.bands[elevation]
	if !ok || b.img == nil {
		return nil, tileflat.Rect{}, 0, false
	}
	return b.img, b.bounds, b.scale, true
}

// rebuildLocked draws the silhouettes of the active, unsuspended casters in
// black, dilated and offset per caster, then blurs the band by its largest
// blur.
func (l *ShadowLayer) rebuildLocked(b *shadowBand, casters []*tileNode, texture func(ref string) *ebiten.Image) {
	var active []*tileNode
	var ents []tileflat.Entity
	var radius float64
	for _, n := range casters {
		if _, ok := l.suspended[n.entity.ID]; ok || !n.castsShadow() {
			continue
		}
		active = append(active, n)
		ents = append(ents, n.entity)
		radius = math.Max(radius, n.shadow.Blur)
	}
	bounds, ok := tileflat.ShadowBoundsOf(ents, true)
	if !ok {
		if b.img != nil {
			b.img.Deallocate()
			b.img = nil
		}
		b.bounds = tileflat.Rect{}
		return
	}

	b.scale = bandScale(bounds, l.maxTex)
	pw := max(int(math.Ceil(bounds.Width*b.scale)), 1)
	ph := max(int(math.Ceil(bounds.Height*b.scale)), 1)
	if b.img == nil || b.img.Bounds().Dx() != pw || b.img.Bounds().Dy() != ph {
		if b.img != nil {
			b.img.Deallocate()
		}
		b.img = ebiten.NewImage(pw, ph)
	} else {
		b.img.Clear()
	}
	b.bounds = bounds

	scratch := ebiten.NewImage(pw, ph)
	defer scratch.Deallocate()
	toBand := [6]float64{b.scale, 0, 0, b.scale, -bounds.X * b.scale, -bounds.Y * b.scale}
	var op ebiten.DrawImageOptions
	for _, n := range active {
		world := multiplyAffine(toBand, silhouetteTransform(n))
		for _, p := range n.parts {
			img := texture(p.ref)
			ib := img.Bounds()
			local := [6]float64{
				p.rect.Width / float64(ib.Dx()), 0, 0, p.rect.Height / float64(ib.Dy()),
				p.rect.X, p.rect.Y,
			}
			op.GeoM = geoM(multiplyAffine(world, local))
			op.ColorScale.Reset()
			op.ColorScale.Scale(0, 0, 0, float32(n.shadow.Alpha*n.entity.Alpha))
			op.Filter = ebiten.FilterLinear
			scratch.DrawImage(img, &op)
		}
	}
	l.blur.apply(scratch, b.img, radius*b.scale)
}

// silhouetteTransform maps a tile's local space to the world position of its
// shadow: grown about the center by the dilation, then offset.
func silhouetteTransform(n *tileNode) [6]float64 {
	e := n.entity
	d := math.Max(0, n.shadow.Dilation)
	sx, sy := 1.0, 1.0
	if e.Width > 0 && e.Height > 0 {
		sx = (e.Width + 2*d) / e.Width
		sy = (e.Height + 2*d) / e.Height
	}
	cx, cy := e.Width/2, e.Height/2
	grow := [6]float64{sx, 0, 0, sy, cx - sx*cx, cy - sy*cy}
	off := n.shadow.Offset()
	m := multiplyAffine(n.transform, grow)
	m[4] += off.X
	m[5] += off.Y
	return m
}

// bandScale returns the pixels per world unit that keep a band within the
// texture cap.
func bandScale(bounds tileflat.Rect, maxTex int) float64 {
	longest := math.Max(bounds.Width, bounds.Height)
	if maxTex <= 0 || longest <= float64(maxTex) {
		return 1
	}
	return float64(maxTex) / longest
}

// dispose frees every band image.
func (l *ShadowLayer) dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.bands {
		if b.img != nil {
			b.img.Deallocate()
			b.img = nil
		}
	}
	l.blur.dispose()
}
