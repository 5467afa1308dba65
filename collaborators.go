package tileflat

import (
	"context"
	"image"
)

// EntityStore owns the scene's entities. The Flattener only reads geometry
// and attributes and issues batched create/delete requests.
type EntityStore interface {
	// ListEntities returns every entity for which pred reports true. A nil
	// pred matches all entities.
	ListEntities(pred func(Entity) bool) []Entity
	// CreateEntities creates one entity per payload and returns them with
	// their assigned IDs, in payload order. Payload IDs are ignored.
	CreateEntities(ctx context.Context, payloads []Entity) ([]Entity, error)
	// DeleteEntities removes the entities with the given IDs.
	DeleteEntities(ctx context.Context, ids []string) error
}

// LayerKind classifies a scene layer for capture isolation.
type LayerKind uint8

const (
	LayerTiles      LayerKind = iota // the layer holding entities; never hidden
	LayerBackground                  // underlay, hidden unless KeepBackground
	LayerForeground                  // overlay art, hidden unless KeepForeground
	LayerDecoration                  // UI, grid, selection; always hidden
)

// Layer names one scene layer and its kind.
type Layer struct {
	Name string
	Kind LayerKind
}

// Scene is the host's scene graph as seen by the capture visibility
// controller.
type Scene interface {
	ID() string
	GridSize() float64
	// Bounds is the full scene area, used by exports.
	Bounds() Rect
	Layers() []Layer

	EntityVisible(id string) bool
	SetEntityVisible(id string, visible bool)
	LayerVisible(name string) bool
	SetLayerVisible(name string, visible bool)
}

// ViewState is the render pipeline's view transform and clear settings.
// A world point p maps to surface pixel p*Scale + (X, Y).
type ViewState struct {
	Scale float64
	X, Y  float64
	// BackgroundAlpha is the alpha of the clear color. Captures use 0.
	BackgroundAlpha float64
}

// Surface is an offscreen render target.
type Surface interface {
	Width() int
	Height() int
	Destroy()
}

// RenderPipeline renders the scene into offscreen surfaces.
type RenderPipeline interface {
	// Available reports whether the pipeline and its stage exist.
	Available() bool
	MaxTextureSize() int
	View() ViewState
	SetView(v ViewState)
	CreateSurface(w, h int) (Surface, error)
	// Render draws the scene root into s through the current view.
	Render(s Surface, clear bool) error
	// ExtractPixels reads s back as straight-alpha pixels.
	ExtractPixels(s Surface) (*image.NRGBA, error)
}

// ShadowLayer draws drop shadows. The Flattener suspends the shadows of
// entities that must not appear in a capture and waits for the layer to
// converge before rendering.
type ShadowLayer interface {
	// Enabled reports whether shadow rendering is globally enabled.
	Enabled() bool
	Suspend(id string) bool
	Resume(id string) bool
	// IsConvergedFor reports whether the bands at the given elevations are
	// neither dirty nor rebuilding.
	IsConvergedFor(elevations []float64) bool
}

// AssetStore persists encoded rasters.
type AssetStore interface {
	// Upload stores data as targetPath/filename and returns the reference
	// that entities use to load it.
	Upload(ctx context.Context, data []byte, targetPath, filename string) (string, error)
}

// SettleFunc yields until the host has finished one frame, so the host's
// cached transforms are current.
type SettleFunc func() error

// Progress is one status update of a running operation.
type Progress struct {
	Status string
	// Fraction is in [0, 1] unless Indeterminate is set.
	Fraction      float64
	Indeterminate bool
}

// ProgressFunc receives progress updates. It is called on the operation's
// goroutine and must not block.
type ProgressFunc func(Progress)
