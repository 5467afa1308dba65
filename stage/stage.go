package stage

import (
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"

	"github.com/phanxgames/tileflat"
)

// Layer names of a Stage, in draw order.
const (
	LayerBackground = "background"
	LayerTiles      = "tiles"
	LayerForeground = "foreground"
	LayerGrid       = "grid"
	LayerSelection  = "selection"
)

// Defaults applied by New.
const (
	DefaultGridSize       = 100
	DefaultMaxTextureSize = 4096
	DefaultSettleTimeout  = 2 * time.Second
)

// ErrSettleTimeout is returned by Settle when the game loop does not finish
// a frame in time.
var ErrSettleTimeout = errors.New("stage: timed out waiting for a frame")

// Config configures a Stage.
type Config struct {
	ID       string
	GridSize float64
	// Bounds is the scene area. It clamps the camera and is the default
	// export area.
	Bounds tileflat.Rect
	// ScreenWidth and ScreenHeight size the camera viewport.
	ScreenWidth, ScreenHeight int
	MaxTextureSize            int
	Textures                  *TextureCache

	// Background and Foreground are optional texture refs stretched over
	// Bounds in their layers. BackgroundColor fills Bounds when Background
	// is empty.
	Background      string
	BackgroundColor color.Color
	Foreground      string

	ShadowDebounce uint64
	SettleTimeout  time.Duration
}

// Stage holds the tiles of one scene and draws them.
type Stage struct {
	cfg Config

	mu           sync.Mutex
	nodes        map[string]*tileNode
	nextOrder    int
	hiddenLayers map[string]bool
	selection    map[string]bool
	view         tileflat.ViewState
	closed       bool

	frame     uint64
	frameDone chan struct{}

	shadows *ShadowLayer
	camera  *Camera
	white   *ebiten.Image
	op      ebiten.DrawImageOptions
}

var (
	_ tileflat.Scene          = (*Stage)(nil)
	_ tileflat.RenderPipeline = (*Stage)(nil)
)

// New creates a Stage.
func New(cfg Config) *Stage {
	if cfg.GridSize <= 0 {
		cfg.GridSize = DefaultGridSize
	}
	if cfg.MaxTextureSize <= 0 {
		cfg.MaxTextureSize = DefaultMaxTextureSize
	}
	if cfg.ShadowDebounce == 0 {
		cfg.ShadowDebounce = DefaultShadowDebounce
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.BackgroundColor == nil {
		cfg.BackgroundColor = color.NRGBA{R: 0x20, G: 0x22, B: 0x26, A: 0xff}
	}
	s := &Stage{
		cfg:          cfg,
		nodes:        make(map[string]*tileNode),
		hiddenLayers: make(map[string]bool),
		selection:    make(map[string]bool),
		view:         tileflat.ViewState{Scale: 1, BackgroundAlpha: 1},
		frameDone:    make(chan struct{}),
		shadows:      newShadowLayer(cfg.ShadowDebounce, cfg.MaxTextureSize),
		camera: newCamera(tileflat.Rect{
			Width:  float64(cfg.ScreenWidth),
			Height: float64(cfg.ScreenHeight),
		}),
	}
	white := ebiten.NewImage(1, 1)
	white.Fill(color.White)
	s.white = white
	if !cfg.Bounds.IsEmpty() {
		s.camera.SetBounds(cfg.Bounds)
		s.camera.X = cfg.Bounds.X + cfg.Bounds.Width/2
		s.camera.Y = cfg.Bounds.Y + cfg.Bounds.Height/2
	}
	return s
}

// Shadows returns the stage's shadow layer.
func (s *Stage) Shadows() *ShadowLayer { return s.shadows }

// Camera returns the on-screen camera. It must only be used from the game
// loop.
func (s *Stage) Camera() *Camera { return s.camera }

// Frame returns the number of completed updates.
func (s *Stage) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// --- tiles ---

// AddTile adds e to the stage. It fails if the ID is empty or taken.
func (s *Stage) AddTile(e tileflat.Entity) error {
	if e.ID == "" {
		return errors.New("stage: tile has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.ID]; ok {
		return fmt.Errorf("stage: tile %q already exists", e.ID)
	}
	s.nextOrder++
	s.nodes[e.ID] = newTileNode(e, s.nextOrder)
	s.shadows.track(e.ID, e.Elevation)
	return nil
}

// UpdateTile replaces the geometry and attributes of an existing tile. Its
// visibility and draw order are kept.
func (s *Stage) UpdateTile(e tileflat.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[e.ID]
	if !ok {
		return fmt.Errorf("stage: tile %q not found", e.ID)
	}
	n.set(e)
	s.shadows.track(e.ID, e.Elevation)
	return nil
}

// RemoveTile removes a tile and cancels its pending shadow rebuild. Removing
// an unknown tile is a no-op.
func (s *Stage) RemoveTile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return
	}
	delete(s.nodes, id)
	delete(s.selection, id)
	s.shadows.forget(id)
}

// Tile returns a copy of the tile with the given ID.
func (s *Stage) Tile(id string) (tileflat.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return tileflat.Entity{}, false
	}
	return n.entity.Clone(), true
}

// Len returns the number of tiles.
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Select replaces the highlighted tiles.
func (s *Stage) Select(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.selection)
	for _, id := range ids {
		if _, ok := s.nodes[id]; ok {
			s.selection[id] = true
		}
	}
}

// --- tileflat.Scene ---

func (s *Stage) ID() string { return s.cfg.ID }

func (s *Stage) GridSize() float64 { return s.cfg.GridSize }

func (s *Stage) Bounds() tileflat.Rect { return s.cfg.Bounds }

// Layers returns the stage layers in draw order.
func (s *Stage) Layers() []tileflat.Layer {
	return []tileflat.Layer{
		{Name: LayerBackground, Kind: tileflat.LayerBackground},
		{Name: LayerTiles, Kind: tileflat.LayerTiles},
		{Name: LayerForeground, Kind: tileflat.LayerForeground},
		{Name: LayerGrid, Kind: tileflat.LayerDecoration},
		{Name: LayerSelection, Kind: tileflat.LayerDecoration},
	}
}

// EntityVisible reports whether the tile is drawn. Unknown tiles are not.
func (s *Stage) EntityVisible(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return ok && n.visible
}

// SetEntityVisible shows or hides a tile. A hidden tile casts no shadow.
func (s *Stage) SetEntityVisible(id string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok || n.visible == visible {
		return
	}
	n.visible = visible
	if n.hasShadow {
		s.shadows.track(id, n.entity.Elevation)
	}
}

func (s *Stage) LayerVisible(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hiddenLayers[name]
}

func (s *Stage) SetLayerVisible(name string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if visible {
		delete(s.hiddenLayers, name)
		return
	}
	s.hiddenLayers[name] = true
}

// --- game loop ---

// Update advances one frame: the camera scrolls, due shadow bands are
// rebuilt and any goroutine blocked in Settle is released.
func (s *Stage) Update() error {
	s.camera.update(1.0 / float32(ebiten.TPS()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.shadows.update(s.castersLocked(), s.texture)
	s.frame++
	close(s.frameDone)
	s.frameDone = make(chan struct{})
	return nil
}

// Draw renders the stage through the camera.
func (s *Stage) Draw(screen *ebiten.Image) {
	view := s.camera.computeViewMatrix()
	s.mu.Lock()
	defer s.mu.Unlock()
	screen.Fill(s.cfg.BackgroundColor)
	s.drawLocked(screen, view)
}

// Settle blocks until the game loop completes its next Update.
func (s *Stage) Settle() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("stage: closed")
	}
	ch := s.frameDone
	s.mu.Unlock()

	t := time.NewTimer(s.cfg.SettleTimeout)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-t.C:
		return ErrSettleTimeout
	}
}

// Close releases the stage's images. Pending Settle calls are released and
// the pipeline reports itself unavailable.
func (s *Stage) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frameDone)
	s.shadows.dispose()
	s.white.Deallocate()
	tileflat.Logger().WithFields(logrus.Fields{"scene": s.cfg.ID, "frames": s.frame}).Debug("stage: closed")
}

// castersLocked groups the tiles by elevation for the shadow layer.
func (s *Stage) castersLocked() map[float64][]*tileNode {
	out := make(map[float64][]*tileNode)
	for _, n := range s.nodes {
		if n.hasShadow {
			out[n.entity.Elevation] = append(out[n.entity.Elevation], n)
		}
	}
	return out
}
