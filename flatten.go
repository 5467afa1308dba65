package tileflat

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Flatten captures the selected entities into a composite entity and deletes
// them. The selection must hold at least two entities, or a single composite
// to re-render it with new options.
//
// Selected composites contribute the originals recorded in their metadata,
// so deconstructing the result always yields plain tiles.
//
// If the capture fails no entity is touched. If a later step fails, rasters
// already uploaded stay in the asset store.
func (f *Flattener) Flatten(ctx context.Context, selection []Entity, opts Options) (Entity, error) {
	const op = "flatten"
	release, err := f.acquire(op)
	if err != nil {
		return Entity{}, err
	}
	defer release()

	log := Logger().WithFields(logrus.Fields{"op": op, "entities": len(selection)})
	if f.cfg.Scene != nil {
		log = log.WithField("scene", f.cfg.Scene.ID())
	}
	composite, err := f.flatten(ctx, log, selection, opts)
	if err != nil {
		f.fail(log, err)
		return Entity{}, err
	}
	f.setState(StateDone, log)
	f.report("Done", 1)
	log.WithField("composite", composite.ID).Info("tileflat: flatten complete")
	return composite, nil
}

func (f *Flattener) flatten(ctx context.Context, log logrus.FieldLogger, selection []Entity, opts Options) (Entity, error) {
	const op = "flatten"
	f.setState(StatePreparing, log)
	f.reportIndeterminate("Preparing")

	if err := opts.Validate(); err != nil {
		return Entity{}, newError(KindInvalidOptions, op, err)
	}
	if f.cfg.Scene == nil || f.cfg.Store == nil || f.cfg.Assets == nil {
		return Entity{}, newErrorf(KindPipelineUnavailable, op, "flattener is missing a collaborator")
	}
	if len(selection) < 2 && !(len(selection) == 1 && selection[0].IsComposite()) {
		return Entity{}, newErrorf(KindInvalidSelection, op, "%d entities selected", len(selection))
	}

	originals, err := expandSelection(selection)
	if err != nil {
		return Entity{}, err
	}

	logical, ok := BoundsOf(selection)
	if !ok {
		return Entity{}, newError(KindNoBounds, op, nil)
	}
	shadowed, _ := ShadowBoundsOf(selection, f.shadowsEnabled())
	render, res, layout, err := f.planRender(op, shadowed, opts)
	if err != nil {
		return Entity{}, err
	}
	log = log.WithFields(logrus.Fields{"logical": logical, "render": render, "resolution": res})
	log.Debug("tileflat: planned capture")

	selected := make(map[string]struct{}, len(selection))
	for _, e := range selection {
		selected[e.ID] = struct{}{}
	}
	others := f.cfg.Store.ListEntities(func(e Entity) bool {
		_, ok := selected[e.ID]
		return !ok
	})

	out, err := f.captureAndStore(ctx, log, capturePlan{
		op:         op,
		targets:    selection,
		others:     others,
		render:     render,
		resolution: res,
		layout:     layout,
		opts:       opts,
		preview:    true,
	})
	if err != nil {
		return Entity{}, err
	}

	f.setState(StateBuildingMetadata, log)
	f.report("Building metadata", 0.85)
	rec := CaptureRecord{
		LogicalBounds: logical,
		RenderBounds:  render,
		PixelWidth:    out.pixelW,
		PixelHeight:   out.pixelH,
		Options:       opts,
		Resolution:    res,
		AssetRef:      out.assetRef,
		PreviewRef:    out.previewRef,
		Chunks:        out.chunks,
		SceneID:       f.cfg.Scene.ID(),
		GridSize:      f.cfg.Scene.GridSize(),
		At:            f.now(),
	}
	if layout.Enabled {
		rec.Layout = &layout
	}
	md := EncodeMetadata(originals, rec)

	payload := Entity{
		X:         render.X,
		Y:         render.Y,
		Width:     render.Width,
		Height:    render.Height,
		Elevation: maxElevation(selection),
		Alpha:     1,
	}
	if out.assetRef != "" {
		if err := payload.Attributes.Set(NamespaceCore, KeyTexture, out.assetRef); err != nil {
			return Entity{}, newError(KindEntityStore, op, err)
		}
	}
	if err := md.attach(&payload.Attributes); err != nil {
		return Entity{}, newError(KindEntityStore, op, err)
	}

	f.setState(StateCreatingComposite, log)
	f.report("Creating composite", 0.9)
	created, err := f.cfg.Store.CreateEntities(ctx, []Entity{payload})
	if err != nil {
		log.WithField("orphaned", assetRefs(out)).Warn("tileflat: composite not created; uploaded rasters left in storage")
		return Entity{}, newError(KindEntityStore, op, err)
	}
	if len(created) != 1 {
		return Entity{}, newErrorf(KindEntityStore, op, "store created %d composites", len(created))
	}
	f.sleep(createSettleDelay)

	f.setState(StateDeletingOriginals, log)
	f.report("Removing originals", 0.95)
	ids := make([]string, len(selection))
	for i, e := range selection {
		ids[i] = e.ID
	}
	if err := f.cfg.Store.DeleteEntities(ctx, ids); err != nil {
		return Entity{}, newError(KindEntityStore, op, err)
	}
	return created[0], nil
}

// expandSelection returns the entities to record in the new metadata.
// Composites are replaced by their recorded originals, moved by however far
// the composite was moved since it was created.
func expandSelection(selection []Entity) ([]Entity, error) {
	out := make([]Entity, 0, len(selection))
	for _, e := range selection {
		if !e.IsComposite() {
			out = append(out, e.Clone())
			continue
		}
		md, err := MetadataOf(e)
		if err != nil {
			return nil, err
		}
		inner, err := DecodeMetadata(md)
		if err != nil {
			return nil, err
		}
		out = append(out, translateEntities(inner, e.X-md.RenderBounds.X, e.Y-md.RenderBounds.Y)...)
	}
	return out, nil
}

func maxElevation(entities []Entity) float64 {
	var m float64
	for i, e := range entities {
		if i == 0 || e.Elevation > m {
			m = e.Elevation
		}
	}
	return m
}

func assetRefs(out captureOutput) []string {
	var refs []string
	if out.assetRef != "" {
		refs = append(refs, out.assetRef)
	}
	if out.previewRef != "" {
		refs = append(refs, out.previewRef)
	}
	for _, c := range out.chunks {
		refs = append(refs, c.AssetRef)
	}
	return refs
}
