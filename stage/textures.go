package stage

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // decoders for stored rasters
	_ "image/png"
	"io"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hajimehoshi/ebiten/v2"
	_ "golang.org/x/image/webp"

	"github.com/phanxgames/tileflat"
)

// Source opens the image behind a texture reference.
type Source interface {
	Open(ref string) (io.ReadCloser, error)
}

// DefaultTextureBudget is the decoded-byte budget of a TextureCache.
const DefaultTextureBudget = 256 << 20

// TextureCache decodes texture references into GPU images and keeps the most
// used ones under a byte budget. Evicted images are left to the garbage
// collector because a frame in flight may still draw them.
type TextureCache struct {
	src   Source
	cache *ristretto.Cache[string, *ebiten.Image]

	mu     sync.Mutex
	failed map[string]struct{}

	placeholder *ebiten.Image
}

// NewTextureCache creates a cache that loads from src. A budget of 0 uses
// DefaultTextureBudget.
func NewTextureCache(src Source, budget int64) (*TextureCache, error) {
	if budget <= 0 {
		budget = DefaultTextureBudget
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *ebiten.Image]{
		NumCounters: 10000,
		MaxCost:     budget,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("stage: texture cache: %w", err)
	}
	return &TextureCache{
		src:         src,
		cache:       cache,
		failed:      make(map[string]struct{}),
		placeholder: newPlaceholder(),
	}, nil
}

// Get returns the image for ref, loading it on a miss. A reference that
// cannot be loaded yields a placeholder and is not retried until Forget.
func (c *TextureCache) Get(ref string) *ebiten.Image {
	if ref == "" {
		return c.placeholder
	}
	if img, ok := c.cache.Get(ref); ok {
		return img
	}
	c.mu.Lock()
	_, bad := c.failed[ref]
	c.mu.Unlock()
	if bad {
		return c.placeholder
	}

	img, err := c.load(ref)
	if err != nil {
		tileflat.Logger().WithError(err).WithField("ref", ref).Warn("stage: texture unavailable")
		c.mu.Lock()
		c.failed[ref] = struct{}{}
		c.mu.Unlock()
		return c.placeholder
	}
	b := img.Bounds()
	c.cache.Set(ref, img, int64(b.Dx()*b.Dy()*4))
	return img
}

// Forget drops ref so the next Get reloads it.
func (c *TextureCache) Forget(ref string) {
	c.cache.Del(ref)
	c.mu.Lock()
	delete(c.failed, ref)
	c.mu.Unlock()
}

// Wait blocks until pending cache writes are visible to Get.
func (c *TextureCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *TextureCache) Close() {
	c.cache.Close()
}

func (c *TextureCache) load(ref string) (*ebiten.Image, error) {
	if c.src == nil {
		return nil, fmt.Errorf("no texture source")
	}
	rc, err := c.src.Open(ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	decoded, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return ebiten.NewImageFromImage(decoded), nil
}

// newPlaceholder returns a 2x2 magenta/black checker, drawn stretched over
// tiles whose texture is missing.
func newPlaceholder() *ebiten.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	magenta := color.NRGBA{R: 0xff, B: 0xff, A: 0xff}
	black := color.NRGBA{A: 0xff}
	img.SetNRGBA(0, 0, magenta)
	img.SetNRGBA(1, 1, magenta)
	img.SetNRGBA(1, 0, black)
	img.SetNRGBA(0, 1, black)
	return ebiten.NewImageFromImage(img)
}
