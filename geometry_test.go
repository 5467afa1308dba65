package tileflat

import (
	"math"
	"testing"
)

func TestBoundsOfUnrotated(t *testing.T) {
	entities := []Entity{
		tile("a", 10, 20, 30, 40),
		tile("b", 50, 0, 10, 10),
	}
	got, ok := BoundsOf(entities)
	if !ok {
		t.Fatal("BoundsOf reported no bounds")
	}
	want := Rect{X: 10, Y: 0, Width: 50, Height: 60}
	if got != want {
		t.Errorf("BoundsOf = %+v, want %+v", got, want)
	}
}

func TestBoundsOfSingleUnrotatedIsIdentity(t *testing.T) {
	e := tile("a", -5, 7, 12, 3)
	got, _ := BoundsOf([]Entity{e})
	if got != e.Rect() {
		t.Errorf("BoundsOf = %+v, want %+v", got, e.Rect())
	}
}

func TestBoundsOfRotated45(t *testing.T) {
	const s = 100.0
	e := tile("a", 0, 0, s, s)
	e.Rotation = 45
	got, _ := BoundsOf([]Entity{e})
	want := s * math.Sqrt2
	if !approxEqual(got.Width, want, 1e-3) || !approxEqual(got.Height, want, 1e-3) {
		t.Errorf("rotated bounds = %vx%v, want %vx%v", got.Width, got.Height, want, want)
	}
	// Rotation is about the center, so the center stays put.
	cx, cy := got.X+got.Width/2, got.Y+got.Height/2
	if !approxEqual(cx, 50, 1e-9) || !approxEqual(cy, 50, 1e-9) {
		t.Errorf("center = (%v,%v), want (50,50)", cx, cy)
	}
}

func TestBoundsOfEmpty(t *testing.T) {
	if _, ok := BoundsOf(nil); ok {
		t.Error("BoundsOf(nil) reported bounds")
	}
	if _, ok := BoundsOf([]Entity{tile("a", 0, 0, 0, 10)}); ok {
		t.Error("BoundsOf(zero width) reported bounds")
	}
}

func TestShadowMarginsOf(t *testing.T) {
	tests := []struct {
		name    string
		attrs   map[string]any
		enabled bool
		want    ShadowMargins
	}{
		{"no shadow", nil, true, ShadowMargins{}},
		{"globally disabled", map[string]any{"blur": 4}, false, ShadowMargins{}},
		{"disabled", map[string]any{"enabled": false, "blur": 4}, true, ShadowMargins{}},
		{"transparent", map[string]any{"alpha": 0, "blur": 4}, true, ShadowMargins{}},
		{"blur only", map[string]any{"blur": 4}, true, ShadowMargins{9, 9, 9, 9}},
		{"dilation only", map[string]any{"dilation": 4}, true, ShadowMargins{5, 5, 5, 5}},
		{"no blur or dilation", map[string]any{"enabled": true}, true, ShadowMargins{1, 1, 1, 1}},
		{"negative blur", map[string]any{"blur": -3}, true, ShadowMargins{1, 1, 1, 1}},
		{"dilation and offset", map[string]any{"dilation": 2, "offsetX": 5, "offsetY": -1}, true,
			ShadowMargins{Left: 0, Right: 8, Top: 4, Bottom: 2}},
		{"distance and angle", map[string]any{"distance": 10, "angle": 450}, true,
			ShadowMargins{Left: 1, Right: 1, Top: 0, Bottom: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := withShadow(tile("a", 0, 0, 10, 10), tt.attrs)
			got := ShadowMarginsOf(e, tt.enabled)
			if !approxEqual(got.Left, tt.want.Left, 1e-9) || !approxEqual(got.Right, tt.want.Right, 1e-9) ||
				!approxEqual(got.Top, tt.want.Top, 1e-9) || !approxEqual(got.Bottom, tt.want.Bottom, 1e-9) {
				t.Errorf("ShadowMarginsOf = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestShadowBoundsContainLogicalBounds(t *testing.T) {
	entities := []Entity{
		withShadow(tile("a", 0, 0, 100, 100), map[string]any{"blur": 3, "offsetX": 4, "offsetY": 4}),
		tile("b", 100, 0, 100, 100),
	}
	logical, _ := BoundsOf(entities)
	shadowed, _ := ShadowBoundsOf(entities, true)
	if shadowed.X > logical.X || shadowed.Y > logical.Y ||
		shadowed.Right() < logical.Right() || shadowed.Bottom() < logical.Bottom() {
		t.Errorf("ShadowBoundsOf = %+v does not contain %+v", shadowed, logical)
	}
	if got := maxShadowMargin(entities, true); got != 11 {
		t.Errorf("maxShadowMargin = %v, want 11", got)
	}
}

func TestApplyPadding(t *testing.T) {
	r := Rect{X: 10, Y: 10, Width: 20, Height: 20}
	if got, want := ApplyPadding(r, 5), (Rect{X: 5, Y: 5, Width: 30, Height: 30}); got != want {
		t.Errorf("ApplyPadding(+5) = %+v, want %+v", got, want)
	}
	if got, want := ApplyPadding(r, -5), (Rect{X: 15, Y: 15, Width: 10, Height: 10}); got != want {
		t.Errorf("ApplyPadding(-5) = %+v, want %+v", got, want)
	}
	// Shrinking to 1 unit or less is refused.
	if got := ApplyPadding(r, -9.5); got != r {
		t.Errorf("ApplyPadding(-9.5) = %+v, want input unchanged", got)
	}
}

func TestSnapToGrid(t *testing.T) {
	r := Rect{X: 12, Y: 37, Width: 60, Height: 20}
	if got := SnapToGrid(r, 50, SnapNone); got != r {
		t.Errorf("SnapNone = %+v, want %+v", got, r)
	}
	full := SnapToGrid(r, 50, SnapFull)
	if want := (Rect{X: 0, Y: 0, Width: 100, Height: 100}); full != want {
		t.Errorf("SnapFull = %+v, want %+v", full, want)
	}
	half := SnapToGrid(r, 50, SnapHalf)
	for _, v := range []float64{half.X, half.Y, half.Width, half.Height} {
		if math.Mod(v, 25) != 0 {
			t.Errorf("SnapHalf = %+v, want multiples of 25", half)
			break
		}
	}
	if half.X > r.X || half.Y > r.Y || half.Right() < r.Right() || half.Bottom() < r.Bottom() {
		t.Errorf("SnapHalf = %+v does not contain %+v", half, r)
	}
}

// A 3x2-square selection with 0.5 squares of padding and full snapping
// lands on a 4x3-square render area.
func TestRenderBoundsPaddedAndSnapped(t *testing.T) {
	const grid = 100.0
	logical := Rect{X: 0, Y: 0, Width: 300, Height: 200}
	render := SnapToGrid(ApplyPadding(logical, 0.5*grid), grid, SnapFull)
	want := Rect{X: -100, Y: -100, Width: 500, Height: 400}
	if render != want {
		t.Errorf("render bounds = %+v, want %+v", render, want)
	}
	insets := ComputeInsets(logical, render)
	if insets != (Insets{Left: 100, Right: 100, Top: 100, Bottom: 100}) {
		t.Errorf("ComputeInsets = %+v, want 100 on every side", insets)
	}
}

func TestComputeInsetsClampsToZero(t *testing.T) {
	base := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	inner := Rect{X: 10, Y: 10, Width: 50, Height: 50}
	if got := ComputeInsets(base, inner); got != (Insets{}) {
		t.Errorf("ComputeInsets(inner) = %+v, want zero", got)
	}
}

func TestEntityTransformMatchesAABB(t *testing.T) {
	e := tile("a", 10, 20, 40, 20)
	e.Rotation = 90
	m := entityTransform(e)
	// The center is fixed under rotation.
	cx, cy := transformPoint(m, 20, 10)
	if !approxEqual(cx, 30, epsilon) || !approxEqual(cy, 30, epsilon) {
		t.Errorf("center = (%v,%v), want (30,30)", cx, cy)
	}
	got := entityAABB(e)
	want := Rect{X: 20, Y: 10, Width: 20, Height: 40}
	if !approxEqual(got.X, want.X, epsilon) || !approxEqual(got.Y, want.Y, epsilon) ||
		!approxEqual(got.Width, want.Width, epsilon) || !approxEqual(got.Height, want.Height, epsilon) {
		t.Errorf("entityAABB = %+v, want %+v", got, want)
	}
}

func TestRenderBoundsWithoutPaddingEqualLogical(t *testing.T) {
	entities := []Entity{tile("a", 0, 0, 200, 200), tile("b", 200, 0, 200, 200)}
	logical, _ := BoundsOf(entities)
	if want := (Rect{Width: 400, Height: 200}); logical != want {
		t.Fatalf("logical = %+v, want %+v", logical, want)
	}
	render := SnapToGrid(ApplyPadding(logical, 0), 100, SnapNone)
	if render != logical {
		t.Errorf("render = %+v, want %+v", render, logical)
	}
	if got := ComputeInsets(logical, render); got != (Insets{}) {
		t.Errorf("insets = %+v, want zero", got)
	}
}

func TestShadowMarginsDilationBlurOffset(t *testing.T) {
	e := withShadow(tile("a", 0, 0, 100, 100), map[string]any{
		"dilation": 4, "blur": 2, "offsetX": 6, "offsetY": 0,
	})
	if got := blurMargin(2); got != 5 {
		t.Errorf("blurMargin(2) = %v, want 5", got)
	}
	if got := blurMargin(0); got != 1 {
		t.Errorf("blurMargin(0) = %v, want 1", got)
	}
	want := ShadowMargins{Left: 3, Right: 15, Top: 9, Bottom: 9}
	if got := ShadowMarginsOf(e, true); got != want {
		t.Errorf("ShadowMarginsOf = %+v, want %+v", got, want)
	}
}
