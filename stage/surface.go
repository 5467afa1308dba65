package stage

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/phanxgames/tileflat"
)

// surface is an offscreen render target created by Stage.CreateSurface.
type surface struct {
	img *ebiten.Image
	w   int
	h   int
}

func (s *surface) Width() int  { return s.w }
func (s *surface) Height() int { return s.h }

func (s *surface) Destroy() {
	if s.img != nil {
		s.img.Deallocate()
		s.img = nil
	}
}

// Available reports whether the stage can still render.
func (s *Stage) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Stage) MaxTextureSize() int { return s.cfg.MaxTextureSize }

// View returns the offscreen view used by Render.
func (s *Stage) View() tileflat.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Stage) SetView(v tileflat.ViewState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// CreateSurface allocates a w x h offscreen image.
func (s *Stage) CreateSurface(w, h int) (tileflat.Surface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("stage: invalid surface size %dx%d", w, h)
	}
	if w > s.cfg.MaxTextureSize || h > s.cfg.MaxTextureSize {
		return nil, fmt.Errorf("stage: surface %dx%d exceeds max texture size %d", w, h, s.cfg.MaxTextureSize)
	}
	return &surface{img: ebiten.NewImage(w, h), w: w, h: h}, nil
}

// Render draws the stage into sf through the current view. With clear set
// the surface is first filled with the background color at the view's
// background alpha.
func (s *Stage) Render(sf tileflat.Surface, clear bool) error {
	target, err := s.surfaceImage(sf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stage: closed")
	}
	if clear {
		target.Clear()
		if a := s.view.BackgroundAlpha; a > 0 {
			target.Fill(scaleAlpha(s.cfg.BackgroundColor, a))
		}
	}
	s.drawLocked(target, viewMatrix(s.view))
	return nil
}

// ExtractPixels reads sf back as straight-alpha pixels.
func (s *Stage) ExtractPixels(sf tileflat.Surface) (*image.NRGBA, error) {
	img, err := s.surfaceImage(sf)
	if err != nil {
		return nil, err
	}
	w, h := sf.Width(), sf.Height()
	pixels := make([]byte, 4*w*h)
	img.ReadPixels(pixels)
	return unpremultiply(pixels, w, h), nil
}

func (s *Stage) surfaceImage(sf tileflat.Surface) (*ebiten.Image, error) {
	ss, ok := sf.(*surface)
	if !ok {
		return nil, fmt.Errorf("stage: foreign surface %T", sf)
	}
	if ss.img == nil {
		return nil, errors.New("stage: surface destroyed")
	}
	return ss.img, nil
}

// viewMatrix maps world points to surface pixels: p*Scale + (X, Y).
func viewMatrix(v tileflat.ViewState) [6]float64 {
	return [6]float64{v.Scale, 0, 0, v.Scale, v.X, v.Y}
}

// unpremultiply converts premultiplied RGBA pixels to straight-alpha NRGBA.
func unpremultiply(pixels []byte, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i+3 < len(pixels) && i+3 < len(img.Pix); i += 4 {
		r, g, b, a := pixels[i], pixels[i+1], pixels[i+2], pixels[i+3]
		if a > 0 && a < 255 {
			r = uint8(min(int(r)*255/int(a), 255))
			g = uint8(min(int(g)*255/int(a), 255))
			b = uint8(min(int(b)*255/int(a), 255))
		}
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = a
	}
	return img
}

// scaleAlpha returns c with its alpha multiplied by a.
func scaleAlpha(c color.Color, a float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A)*clampUnit(a) + 0.5)
	return n
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
