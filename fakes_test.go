package tileflat

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"
	"time"
)

const epsilon = 1e-6

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

// --- entity store ---

type fakeStore struct {
	mu        sync.Mutex
	order     []string
	entities  map[string]Entity
	nextID    int
	createErr error
	deleteErr error
	creates   int
	deletes   int
}

func newFakeStore(entities ...Entity) *fakeStore {
	s := &fakeStore{entities: make(map[string]Entity)}
	for _, e := range entities {
		s.order = append(s.order, e.ID)
		s.entities[e.ID] = e.Clone()
	}
	return s
}

func (s *fakeStore) ListEntities(pred func(Entity) bool) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entity
	for _, id := range s.order {
		e := s.entities[id]
		if pred == nil || pred(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (s *fakeStore) CreateEntities(_ context.Context, payloads []Entity) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	out := make([]Entity, 0, len(payloads))
	for _, p := range payloads {
		s.nextID++
		e := p.Clone()
		e.ID = fmt.Sprintf("new-%d", s.nextID)
		s.order = append(s.order, e.ID)
		s.entities[e.ID] = e
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *fakeStore) DeleteEntities(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.entities[id]; !ok {
			return fmt.Errorf("no entity %q", id)
		}
		drop[id] = struct{}{}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := drop[id]; ok {
			delete(s.entities, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func (s *fakeStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *fakeStore) get(id string) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	return e, ok
}

// --- scene ---

type fakeScene struct {
	id       string
	grid     float64
	bounds   Rect
	layers   []Layer
	hidden   map[string]bool
	hiddenLy map[string]bool
	sets     int
}

func newFakeScene(grid float64) *fakeScene {
	return &fakeScene{
		id:   "scene-1",
		grid: grid,
		layers: []Layer{
			{Name: "background", Kind: LayerBackground},
			{Name: "tiles", Kind: LayerTiles},
			{Name: "foreground", Kind: LayerForeground},
			{Name: "grid", Kind: LayerDecoration},
			{Name: "selection", Kind: LayerDecoration},
		},
		hidden:   make(map[string]bool),
		hiddenLy: make(map[string]bool),
	}
}

func (s *fakeScene) ID() string        { return s.id }
func (s *fakeScene) GridSize() float64 { return s.grid }
func (s *fakeScene) Bounds() Rect      { return s.bounds }
func (s *fakeScene) Layers() []Layer   { return s.layers }

func (s *fakeScene) EntityVisible(id string) bool { return !s.hidden[id] }

func (s *fakeScene) SetEntityVisible(id string, visible bool) {
	s.sets++
	if visible {
		delete(s.hidden, id)
		return
	}
	s.hidden[id] = true
}

func (s *fakeScene) LayerVisible(name string) bool { return !s.hiddenLy[name] }

func (s *fakeScene) SetLayerVisible(name string, visible bool) {
	s.sets++
	if visible {
		delete(s.hiddenLy, name)
		return
	}
	s.hiddenLy[name] = true
}

// hiddenNames returns every hidden entity and layer, sorted.
func (s *fakeScene) hiddenNames() []string {
	var out []string
	for id := range s.hidden {
		out = append(out, id)
	}
	for name := range s.hiddenLy {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// --- render pipeline ---

type fakeSurface struct {
	w, h      int
	destroyed bool
}

func (s *fakeSurface) Width() int  { return s.w }
func (s *fakeSurface) Height() int { return s.h }
func (s *fakeSurface) Destroy()    { s.destroyed = true }

type fakePipeline struct {
	available bool
	maxTex    int
	view      ViewState

	surfaces []*fakeSurface
	views    []ViewState
	// hiddenAtRender snapshots the scene's hidden set at each render.
	scene          *fakeScene
	hiddenAtRender [][]string
	renders        int
	// failRender fails the render with this 1-based index.
	failRender int
}

func newFakePipeline(maxTex int) *fakePipeline {
	return &fakePipeline{available: true, maxTex: maxTex, view: ViewState{Scale: 1, BackgroundAlpha: 1}}
}

func (p *fakePipeline) Available() bool     { return p.available }
func (p *fakePipeline) MaxTextureSize() int { return p.maxTex }
func (p *fakePipeline) View() ViewState     { return p.view }
func (p *fakePipeline) SetView(v ViewState) { p.view = v }

func (p *fakePipeline) CreateSurface(w, h int) (Surface, error) {
	if w > p.maxTex || h > p.maxTex {
		return nil, fmt.Errorf("surface %dx%d too large", w, h)
	}
	s := &fakeSurface{w: w, h: h}
	p.surfaces = append(p.surfaces, s)
	return s, nil
}

func (p *fakePipeline) Render(s Surface, clear bool) error {
	p.renders++
	p.views = append(p.views, p.view)
	if p.scene != nil {
		p.hiddenAtRender = append(p.hiddenAtRender, p.scene.hiddenNames())
	}
	if p.failRender > 0 && p.renders == p.failRender {
		return errors.New("render lost")
	}
	return nil
}

// ExtractPixels fills the surface with a gradient keyed on world position so
// crops can be checked.
func (p *fakePipeline) ExtractPixels(s Surface) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, s.Width(), s.Height()))
	for y := 0; y < s.Height(); y++ {
		for x := 0; x < s.Width(); x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img, nil
}

func (p *fakePipeline) liveSurfaces() int {
	n := 0
	for _, s := range p.surfaces {
		if !s.destroyed {
			n++
		}
	}
	return n
}

// --- shadows ---

type fakeShadows struct {
	enabled   bool
	suspended map[string]bool
	// convergeAfter is the number of IsConvergedFor calls that report false
	// before it reports true. Negative never converges.
	convergeAfter int
	polls         int
	queried       [][]float64
}

func newFakeShadows() *fakeShadows {
	return &fakeShadows{enabled: true, suspended: make(map[string]bool)}
}

func (s *fakeShadows) Enabled() bool { return s.enabled }

func (s *fakeShadows) Suspend(id string) bool {
	if s.suspended[id] {
		return false
	}
	s.suspended[id] = true
	return true
}

func (s *fakeShadows) Resume(id string) bool {
	if !s.suspended[id] {
		return false
	}
	delete(s.suspended, id)
	return true
}

func (s *fakeShadows) IsConvergedFor(elevations []float64) bool {
	s.queried = append(s.queried, append([]float64(nil), elevations...))
	s.polls++
	if s.convergeAfter < 0 {
		return false
	}
	return s.polls > s.convergeAfter
}

// --- assets ---

type upload struct {
	path, name string
	size       int
}

type fakeAssets struct {
	uploads []upload
	// failAt fails the upload with this 1-based index.
	failAt int
	calls  int
}

func (a *fakeAssets) Upload(_ context.Context, data []byte, targetPath, filename string) (string, error) {
	a.calls++
	if a.failAt > 0 && a.calls == a.failAt {
		return "", errors.New("disk full")
	}
	a.uploads = append(a.uploads, upload{path: targetPath, name: filename, size: len(data)})
	return targetPath + "/" + filename, nil
}

// --- clock ---

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

// --- harness ---

type harness struct {
	store    *fakeStore
	scene    *fakeScene
	pipeline *fakePipeline
	shadows  *fakeShadows
	assets   *fakeAssets
	clock    *fakeClock
	settles  int
	progress []Progress
	f        *Flattener
}

func newHarness(grid float64, maxTex int, entities ...Entity) *harness {
	h := &harness{
		store:    newFakeStore(entities...),
		scene:    newFakeScene(grid),
		pipeline: newFakePipeline(maxTex),
		shadows:  newFakeShadows(),
		assets:   &fakeAssets{},
		clock:    newFakeClock(),
	}
	h.pipeline.scene = h.scene
	h.f = New(Config{
		Store:    h.store,
		Scene:    h.scene,
		Pipeline: h.pipeline,
		Shadows:  h.shadows,
		Assets:   h.assets,
		Settle: func() error {
			h.settles++
			return nil
		},
		Progress: func(p Progress) { h.progress = append(h.progress, p) },
	})
	h.f.now = h.clock.now
	h.f.sleep = h.clock.sleep
	return h
}

func tile(id string, x, y, w, h float64) Entity {
	e := Entity{ID: id, X: x, Y: y, Width: w, Height: h, Alpha: 1}
	_ = e.Attributes.Set(NamespaceCore, KeyTexture, "tiles/"+id+".png")
	return e
}

func withShadow(e Entity, attrs map[string]any) Entity {
	for k, v := range attrs {
		_ = e.Attributes.Set(NamespaceShadow, k, v)
	}
	return e
}
