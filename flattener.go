package tileflat

import (
	"context"
	"image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Fixed delays letting the host settle before the next step reads back state.
const (
	uploadSettleDelay = 150 * time.Millisecond
	createSettleDelay = 100 * time.Millisecond
)

// previewMaxSide bounds the longest side of the composite preview.
const previewMaxSide = 256

// State is a step of the flatten state machine. Deconstruct and export walk
// the subset of states that apply to them.
type State uint8

const (
	StateIdle State = iota
	StatePreparing
	StateCapturing
	StateSaving
	StateBuildingMetadata
	StateCreatingComposite
	StateDeletingOriginals
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateCapturing:
		return "capturing"
	case StateSaving:
		return "saving"
	case StateBuildingMetadata:
		return "building-metadata"
	case StateCreatingComposite:
		return "creating-composite"
	case StateDeletingOriginals:
		return "deleting-originals"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config injects the host collaborators into a Flattener. Shadows and
// Progress may be nil.
type Config struct {
	Store    EntityStore
	Scene    Scene
	Pipeline RenderPipeline
	Shadows  ShadowLayer
	Assets   AssetStore
	// Settle yields one host frame. Nil means the host needs no settling.
	Settle   SettleFunc
	Progress ProgressFunc
}

// Flattener runs flatten, deconstruct and export operations. At most one
// operation runs at a time; a call made while another is in flight fails
// with ErrBusy instead of queuing.
type Flattener struct {
	cfg     Config
	busy    *semaphore.Weighted
	running atomic.Bool

	mu    sync.Mutex
	state State

	// now and sleep are the clock; tests replace them.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Flattener around the given collaborators.
func New(cfg Config) *Flattener {
	return &Flattener{
		cfg:   cfg,
		busy:  semaphore.NewWeighted(1),
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// State returns the state of the current or most recent operation.
func (f *Flattener) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Busy reports whether an operation is in flight.
func (f *Flattener) Busy() bool {
	return f.running.Load()
}

// acquire takes the busy guard. The returned func releases it.
func (f *Flattener) acquire(op string) (func(), error) {
	if !f.busy.TryAcquire(1) {
		return nil, newError(KindBusy, op, nil)
	}
	f.running.Store(true)
	return func() {
		f.running.Store(false)
		f.busy.Release(1)
	}, nil
}

func (f *Flattener) setState(s State, log logrus.FieldLogger) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	log.WithField("state", s.String()).Debug("tileflat: state")
}

func (f *Flattener) report(status string, fraction float64) {
	if f.cfg.Progress == nil {
		return
	}
	f.cfg.Progress(Progress{Status: status, Fraction: clamp01(fraction)})
}

func (f *Flattener) reportIndeterminate(status string) {
	if f.cfg.Progress == nil {
		return
	}
	f.cfg.Progress(Progress{Status: status, Indeterminate: true})
}

// fail records a failed operation and logs it with its context.
func (f *Flattener) fail(log logrus.FieldLogger, err error) {
	f.setState(StateFailed, log)
	log.WithError(err).WithField("kind", KindOf(err).String()).Error("tileflat: operation failed")
	f.reportIndeterminate(UserMessage(err))
}

func (f *Flattener) shadowsEnabled() bool {
	return f.cfg.Shadows != nil && f.cfg.Shadows.Enabled()
}

// capturePlan is one capture request shared by flatten and export.
type capturePlan struct {
	op         string
	targets    []Entity
	others     []Entity
	render     Rect
	resolution float64
	layout     ChunkLayout
	opts       Options
	// suffix is appended to generated file names, e.g. "-background".
	suffix  string
	preview bool
}

// captureOutput is what a capture left in the asset store.
type captureOutput struct {
	assetRef   string
	previewRef string
	chunks     []ChunkEntry
	pixelW     int
	pixelH     int
}

// planRender expands bounds into render bounds and resolves the chunk
// layout. The bounds are padded, snapped, and finally grown to the chunk
// grid when requested.
func (f *Flattener) planRender(op string, bounds Rect, opts Options) (Rect, float64, ChunkLayout, error) {
	grid := f.cfg.Scene.GridSize()
	res := opts.Resolution(grid)

	render := ApplyPadding(bounds, opts.PaddingExtra*grid)
	render = SnapToGrid(render, grid, opts.Snap())
	if render.IsEmpty() {
		return Rect{}, 0, ChunkLayout{}, newErrorf(KindNoBounds, op, "render bounds %+v", render)
	}

	if f.cfg.Pipeline == nil || !f.cfg.Pipeline.Available() {
		return Rect{}, 0, ChunkLayout{}, newError(KindPipelineUnavailable, op, nil)
	}

	layout, err := ResolveChunkLayout(ChunkRequest{
		PixelWidth:     pixelSize(render.Width, res),
		PixelHeight:    pixelSize(render.Height, res),
		MaxTextureSize: f.cfg.Pipeline.MaxTextureSize(),
		Thresholds:     opts.Thresholds,
		Mode:           opts.Chunk,
		Resolution:     res,
		GridSize:       grid,
	})
	if err != nil {
		return Rect{}, 0, ChunkLayout{}, err
	}
	render = PadToChunkGrid(render, layout)
	return render, res, layout, nil
}

// captureAndStore isolates the targets, captures the render bounds and
// uploads the result. Scene visibility is restored on every path. If the
// capture itself fails nothing was uploaded; if an upload fails, rasters
// uploaded before it stay in the asset store and are logged as orphaned.
func (f *Flattener) captureAndStore(ctx context.Context, log logrus.FieldLogger, p capturePlan) (captureOutput, error) {
	out := captureOutput{
		pixelW: pixelSize(p.render.Width, p.resolution),
		pixelH: pixelSize(p.render.Height, p.resolution),
	}
	log = log.WithFields(logrus.Fields{
		"bounds": p.render,
		"pixels": [2]int{out.pixelW, out.pixelH},
		"chunks": [2]int{p.layout.Columns, p.layout.Rows},
	})

	capt := &capturer{pipeline: f.cfg.Pipeline, settle: f.cfg.Settle}
	if err := capt.checkPipeline(p.op, min(out.pixelW, p.layout.PixelWidth), min(out.pixelH, p.layout.PixelHeight)); err != nil {
		return out, err
	}

	vc := newVisibilityController(f.cfg.Scene, f.cfg.Shadows, f.now, f.sleep)
	vc.log = log
	defer vc.restore()

	f.setState(StateCapturing, log)
	f.reportIndeterminate("Preparing scene")
	vc.isolate(isolation{
		targets:        p.targets,
		others:         p.others,
		bounds:         p.render,
		keepBackground: p.opts.KeepBackground,
		keepForeground: p.opts.KeepForeground,
	})

	if !p.layout.Enabled {
		f.report("Rendering", 0.2)
		img, err := capt.captureSingle(p.render, p.resolution)
		if err != nil {
			return out, err
		}
		vc.restore()

		f.setState(StateSaving, log)
		f.report("Saving image", 0.5)
		ref, err := f.upload(ctx, img, p.opts, p.suffix)
		if err != nil {
			return out, newError(KindAssetUploadFailed, p.op, err)
		}
		out.assetRef = ref
		if p.preview {
			out.previewRef = f.uploadPreview(ctx, log, img, p.opts, p.suffix)
		}
		f.sleep(uploadSettleDelay)
		return out, nil
	}

	overlap := maxShadowMargin(p.targets, f.shadowsEnabled())
	var uploaded []string
	err := capt.captureChunked(p.layout, p.render, p.resolution, overlap,
		func(entry ChunkEntry, raster *image.NRGBA, index, total int) error {
			f.report("Rendering chunk", float64(index)/float64(total)*0.8)
			ref, err := f.upload(ctx, raster, p.opts, p.suffix+chunkSuffix(entry))
			if err != nil {
				return newError(KindPartialChunkFailure, p.op, newError(KindAssetUploadFailed, p.op, err))
			}
			entry.AssetRef = ref
			uploaded = append(uploaded, ref)
			out.chunks = append(out.chunks, entry)
			log.WithFields(logrus.Fields{"row": entry.Row, "col": entry.Col, "ref": ref}).Debug("tileflat: chunk stored")
			return nil
		})
	if err != nil {
		if len(uploaded) > 0 {
			log.WithField("orphaned", uploaded).Warn("tileflat: chunk set abandoned; uploaded chunks left in storage")
		}
		out.chunks = nil
		return out, err
	}
	vc.restore()
	f.setState(StateSaving, log)
	f.report("Saving image", 0.8)
	f.sleep(uploadSettleDelay)
	return out, nil
}

// upload encodes img and stores it under a fresh name.
func (f *Flattener) upload(ctx context.Context, img image.Image, opts Options, suffix string) (string, error) {
	data, err := encodeRaster(img, opts.Format, opts.Quality)
	if err != nil {
		return "", err
	}
	return f.cfg.Assets.Upload(ctx, data, opts.TargetPath, assetName(opts.Name, suffix, opts.Format))
}

// uploadPreview stores a downscaled PNG of img. Failures only log.
func (f *Flattener) uploadPreview(ctx context.Context, log logrus.FieldLogger, img *image.NRGBA, opts Options, suffix string) string {
	preview := scalePreview(img, previewMaxSide)
	data, err := encodeRaster(preview, FormatPNG, 1)
	if err != nil {
		log.WithError(err).Warn("tileflat: preview encode failed")
		return ""
	}
	ref, err := f.cfg.Assets.Upload(ctx, data, opts.TargetPath, assetName(opts.Name, suffix+"-preview", FormatPNG))
	if err != nil {
		log.WithError(err).Warn("tileflat: preview upload failed")
		return ""
	}
	return ref
}

func chunkSuffix(e ChunkEntry) string {
	return "-r" + strconv.Itoa(e.Row) + "c" + strconv.Itoa(e.Col)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
