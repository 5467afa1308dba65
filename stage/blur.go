package stage

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// blurFilter applies a Kawase iterative blur using downscale/upscale passes.
// Bilinear filtering during DrawImage does the work.
type blurFilter struct {
	temps []*ebiten.Image
	imgOp ebiten.DrawImageOptions
}

// apply renders src blurred by radius pixels into dst.
func (f *blurFilter) apply(src, dst *ebiten.Image, radius float64) {
	op := &f.imgOp
	passes := blurPasses(radius)
	if passes == 0 {
		op.GeoM.Reset()
		op.ColorScale.Reset()
		op.Filter = ebiten.FilterNearest
		dst.DrawImage(src, op)
		return
	}

	for len(f.temps) < passes {
		f.temps = append(f.temps, nil)
	}
	for i := passes; i < len(f.temps); i++ {
		if f.temps[i] != nil {
			f.temps[i].Deallocate()
			f.temps[i] = nil
		}
	}
	f.temps = f.temps[:passes]

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	current := src
	for i := 0; i < passes; i++ {
		w = max(w/2, 1)
		h = max(h/2, 1)
		if f.temps[i] == nil || f.temps[i].Bounds().Dx() != w || f.temps[i].Bounds().Dy() != h {
			if f.temps[i] != nil {
				f.temps[i].Deallocate()
			}
			f.temps[i] = ebiten.NewImage(w, h)
		} else {
			f.temps[i].Clear()
		}
		f.scaleInto(current, f.temps[i])
		current = f.temps[i]
	}
	for i := passes - 2; i >= 0; i-- {
		f.temps[i].Clear()
		f.scaleInto(current, f.temps[i])
		current = f.temps[i]
	}
	f.scaleInto(current, dst)
}

func (f *blurFilter) scaleInto(src, dst *ebiten.Image) {
	op := &f.imgOp
	op.GeoM.Reset()
	op.ColorScale.Reset()
	sb, db := src.Bounds(), dst.Bounds()
	op.GeoM.Scale(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	op.Filter = ebiten.FilterLinear
	dst.DrawImage(src, op)
}

// dispose frees the intermediate images.
func (f *blurFilter) dispose() {
	for _, t := range f.temps {
		if t != nil {
			t.Deallocate()
		}
	}
	f.temps = nil
}

// blurPasses is log2(radius) rounded up, at least 1 for any positive radius.
func blurPasses(radius float64) int {
	if radius < 1 {
		return 0
	}
	return max(int(math.Ceil(math.Log2(radius))), 1)
}
