package stage

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"

	"github.com/phanxgames/tileflat"
)

// scrollAnim holds active scroll-to tweens for camera X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// Camera controls the on-screen view of the stage. It does not affect
// offscreen captures, which use the pipeline view instead.
type Camera struct {
	// X and Y are the world-space position the camera centers on.
	X, Y float64
	// Zoom is the scale factor (1.0 = no zoom, >1 = zoom in, <1 = zoom out).
	Zoom float64
	// Viewport is the screen-space rectangle the camera renders into.
	Viewport tileflat.Rect

	// BoundsEnabled clamps the camera position so the visible area stays
	// within Bounds.
	BoundsEnabled bool
	Bounds        tileflat.Rect

	viewMatrix    [6]float64
	invViewMatrix [6]float64
	dirty         bool

	scrollTween *scrollAnim
}

func newCamera(viewport tileflat.Rect) *Camera {
	return &Camera{
		Zoom:     1.0,
		Viewport: viewport,
		dirty:    true,
	}
}

// ScrollTo animates the camera to the given world position over duration seconds.
func (c *Camera) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	c.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(c.X), float32(x), duration, easeFn),
		tweenY: gween.New(float32(c.Y), float32(y), duration, easeFn),
	}
}

// Focus scrolls to the center of r.
func (c *Camera) Focus(r tileflat.Rect, duration float32) {
	c.ScrollTo(r.X+r.Width/2, r.Y+r.Height/2, duration, ease.OutCubic)
}

// Scrolling reports whether a scroll animation is running.
func (c *Camera) Scrolling() bool {
	return c.scrollTween != nil
}

// SetBounds enables camera bounds clamping.
func (c *Camera) SetBounds(bounds tileflat.Rect) {
	c.BoundsEnabled = true
	c.Bounds = bounds
}

// update advances scrolling and bounds clamping. Called from Stage.Update.
func (c *Camera) update(dt float32) {
	prevX, prevY, prevZoom := c.X, c.Y, c.Zoom

	if c.scrollTween != nil {
		if !c.scrollTween.doneX {
			val, done := c.scrollTween.tweenX.Update(dt)
			c.X = float64(val)
			c.scrollTween.doneX = done
		}
		if !c.scrollTween.doneY {
			val, done := c.scrollTween.tweenY.Update(dt)
			c.Y = float64(val)
			c.scrollTween.doneY = done
		}
		if c.scrollTween.doneX && c.scrollTween.doneY {
			c.scrollTween = nil
		}
	}

	if c.BoundsEnabled {
		c.clampToBounds()
	}

	if c.X != prevX || c.Y != prevY || c.Zoom != prevZoom {
		c.dirty = true
	}
}

// clampToBounds restricts camera position so the visible area stays within Bounds.
func (c *Camera) clampToBounds() {
	halfW := c.Viewport.Width / (2 * c.Zoom)
	halfH := c.Viewport.Height / (2 * c.Zoom)

	minX := c.Bounds.X + halfW
	maxX := c.Bounds.X + c.Bounds.Width - halfW
	minY := c.Bounds.Y + halfH
	maxY := c.Bounds.Y + c.Bounds.Height - halfH

	// If bounds are smaller than visible area, center the camera.
	if minX > maxX {
		c.X = c.Bounds.X + c.Bounds.Width/2
	} else {
		c.X = math.Max(minX, math.Min(c.X, maxX))
	}
	if minY > maxY {
		c.Y = c.Bounds.Y + c.Bounds.Height/2
	} else {
		c.Y = math.Max(minY, math.Min(c.Y, maxY))
	}
}

// computeViewMatrix recomputes the cached view matrix if dirty.
//
// viewMatrix = Translate(cx, cy) * Scale(zoom) * Translate(-X, -Y)
// where cx, cy = viewport center.
func (c *Camera) computeViewMatrix() [6]float64 {
	if !c.dirty {
		return c.viewMatrix
	}
	c.dirty = false

	cx := c.Viewport.X + c.Viewport.Width/2
	cy := c.Viewport.Y + c.Viewport.Height/2
	z := c.Zoom

	c.viewMatrix = [6]float64{z, 0, 0, z, cx - z*c.X, cy - z*c.Y}
	c.invViewMatrix = invertAffine(c.viewMatrix)
	return c.viewMatrix
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float64) (sx, sy float64) {
	c.computeViewMatrix()
	sx, sy = transformPoint(c.viewMatrix, wx, wy)
	return
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float64) (wx, wy float64) {
	c.computeViewMatrix()
	wx, wy = transformPoint(c.invViewMatrix, sx, sy)
	return
}

// MarkDirty forces a recomputation of the view matrix. Call it after
// changing X, Y or Zoom directly.
func (c *Camera) MarkDirty() {
	c.dirty = true
}
