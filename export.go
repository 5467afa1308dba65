package tileflat

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Band names used for split exports.
const (
	BandAll        = "all"
	BandBackground = "background"
	BandForeground = "foreground"
)

// BandExport is the stored result of one exported band.
type BandExport struct {
	Band        string       `json:"band"`
	AssetRef    string       `json:"assetRef,omitempty"`
	Chunks      []ChunkEntry `json:"chunks,omitempty"`
	Chunking    *ChunkLayout `json:"chunking,omitempty"`
	PixelWidth  int          `json:"pixelWidth"`
	PixelHeight int          `json:"pixelHeight"`
	Entities    int          `json:"entities"`
}

// ExportResult describes a finished scene export.
type ExportResult struct {
	RenderBounds Rect         `json:"renderBounds"`
	Resolution   float64      `json:"resolution"`
	Bands        []BandExport `json:"bands"`
}

// Export renders the whole scene to the asset store without creating or
// deleting entities. With SplitBands set, entities below BandElevation go to
// a background raster and the rest to a foreground raster, both covering
// the same render bounds. A band with no entities is skipped.
func (f *Flattener) Export(ctx context.Context, opts Options) (ExportResult, error) {
	const op = "export"
	release, err := f.acquire(op)
	if err != nil {
		return ExportResult{}, err
	}
	defer release()

	log := Logger().WithField("op", op)
	if f.cfg.Scene != nil {
		log = log.WithField("scene", f.cfg.Scene.ID())
	}
	res, err := f.export(ctx, log, opts)
	if err != nil {
		f.fail(log, err)
		return ExportResult{}, err
	}
	f.setState(StateDone, log)
	f.report("Done", 1)
	log.WithField("bands", len(res.Bands)).Info("tileflat: export complete")
	return res, nil
}

func (f *Flattener) export(ctx context.Context, log logrus.FieldLogger, opts Options) (ExportResult, error) {
	const op = "export"
	f.setState(StatePreparing, log)
	f.reportIndeterminate("Preparing")

	if err := opts.Validate(); err != nil {
		return ExportResult{}, newError(KindInvalidOptions, op, err)
	}
	if f.cfg.Scene == nil || f.cfg.Store == nil || f.cfg.Assets == nil {
		return ExportResult{}, newErrorf(KindPipelineUnavailable, op, "flattener is missing a collaborator")
	}

	all := f.cfg.Store.ListEntities(nil)
	bounds := f.cfg.Scene.Bounds()
	if bounds.IsEmpty() {
		b, ok := BoundsOf(all)
		if !ok {
			return ExportResult{}, newErrorf(KindNoBounds, op, "scene has no bounds and no entities")
		}
		bounds = b
	}
	render, res, layout, err := f.planRender(op, bounds, opts)
	if err != nil {
		return ExportResult{}, err
	}
	result := ExportResult{RenderBounds: render, Resolution: res}

	type band struct {
		name    string
		members []Entity
		others  []Entity
	}
	var bands []band
	if opts.SplitBands {
		var bg, fg []Entity
		for _, e := range all {
			if e.Elevation < opts.BandElevation {
				bg = append(bg, e)
			} else {
				fg = append(fg, e)
			}
		}
		bands = []band{
			{name: BandBackground, members: bg, others: fg},
			{name: BandForeground, members: fg, others: bg},
		}
	} else {
		bands = []band{{name: BandAll, members: all}}
	}

	for _, b := range bands {
		if opts.SplitBands && len(b.members) == 0 {
			log.WithField("band", b.name).Debug("tileflat: empty band skipped")
			continue
		}
		suffix := ""
		if b.name != BandAll {
			suffix = "-" + b.name
		}
		out, err := f.captureAndStore(ctx, log.WithField("band", b.name), capturePlan{
			op:         op,
			targets:    b.members,
			others:     b.others,
			render:     render,
			resolution: res,
			layout:     layout,
			opts:       opts,
			suffix:     suffix,
		})
		if err != nil {
			return ExportResult{}, err
		}
		be := BandExport{
			Band:        b.name,
			AssetRef:    out.assetRef,
			Chunks:      out.chunks,
			PixelWidth:  out.pixelW,
			PixelHeight: out.pixelH,
			Entities:    len(b.members),
		}
		if layout.Enabled {
			l := layout
			be.Chunking = &l
		}
		result.Bands = append(result.Bands, be)
	}
	return result, nil
}
