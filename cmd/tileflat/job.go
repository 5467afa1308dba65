package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/phanxgames/tileflat"
	"github.com/phanxgames/tileflat/assets"
	"github.com/phanxgames/tileflat/ecs"
)

// Commands understood by the CLI.
const (
	cmdFlatten     = "flatten"
	cmdDeconstruct = "deconstruct"
	cmdExport      = "export"
	cmdPrune       = "prune"
)

// job runs one command against a loaded scene.
type job struct {
	command   string
	args      []string
	cfg       config
	flattener *tileflat.Flattener
	store     *ecs.Store
	log       logrus.FieldLogger
	// focus receives the area the camera should show once the job is done.
	focus chan<- tileflat.Rect
}

func (j *job) run(ctx context.Context) error {
	switch j.command {
	case cmdFlatten:
		return j.flatten(ctx)
	case cmdDeconstruct:
		return j.deconstruct(ctx)
	case cmdExport:
		return j.export(ctx)
	default:
		return fmt.Errorf("unknown command %q", j.command)
	}
}

func (j *job) flatten(ctx context.Context) error {
	sel, err := selectEntities(j.store, j.args)
	if err != nil {
		return err
	}
	composite, err := j.flattener.Flatten(ctx, sel, j.cfg.Options)
	if err != nil {
		return err
	}
	j.log.WithFields(logrus.Fields{"composite": composite.ID, "tiles": len(sel)}).Info("flattened")
	j.show(composite.Rect())
	return nil
}

func (j *job) deconstruct(ctx context.Context) error {
	targets, err := selectComposites(j.store, j.args)
	if err != nil {
		return err
	}
	var restored []tileflat.Entity
	for _, c := range targets {
		out, err := j.flattener.Deconstruct(ctx, c)
		if err != nil {
			return err
		}
		j.log.WithFields(logrus.Fields{"composite": c.ID, "tiles": len(out)}).Info("deconstructed")
		restored = append(restored, out...)
	}
	if r, ok := tileflat.BoundsOf(restored); ok {
		j.show(r)
	}
	return nil
}

func (j *job) export(ctx context.Context) error {
	res, err := j.flattener.Export(ctx, j.cfg.Options)
	if err != nil {
		return err
	}
	for _, b := range res.Bands {
		j.log.WithFields(logrus.Fields{
			"band":   b.Band,
			"ref":    b.AssetRef,
			"chunks": len(b.Chunks),
			"pixels": fmt.Sprintf("%dx%d", b.PixelWidth, b.PixelHeight),
		}).Info("exported")
	}
	if err := writeManifest(j.cfg.Manifest, res); err != nil {
		return err
	}
	j.show(res.RenderBounds)
	return nil
}

func (j *job) show(r tileflat.Rect) {
	select {
	case j.focus <- r:
	default:
	}
}

// selectEntities resolves ids against the store. No ids selects every tile.
func selectEntities(store *ecs.Store, ids []string) ([]tileflat.Entity, error) {
	if len(ids) == 0 {
		return store.ListEntities(nil), nil
	}
	out := make([]tileflat.Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := store.Get(id)
		if !ok {
			return nil, fmt.Errorf("no tile %q in the scene", id)
		}
		out = append(out, e)
	}
	return out, nil
}

// selectComposites resolves ids to composites. No ids selects every
// composite in the scene.
func selectComposites(store *ecs.Store, ids []string) ([]tileflat.Entity, error) {
	if len(ids) == 0 {
		out := store.ListEntities(tileflat.Entity.IsComposite)
		if len(out) == 0 {
			return nil, errors.New("the scene holds no flattened composites")
		}
		return out, nil
	}
	sel, err := selectEntities(store, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range sel {
		if !e.IsComposite() {
			return nil, fmt.Errorf("tile %q is not a flattened composite", e.ID)
		}
	}
	return sel, nil
}

// writeManifest writes res as JSON to path, or to stdout when path is empty.
func writeManifest(path string, res tileflat.ExportResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// referencedAssets returns every asset ref the entities point at, including
// the rasters of composites and the textures of the tiles they recorded.
// A composite whose record cannot be read fails the whole call, since its
// rasters cannot be told apart from orphans.
func referencedAssets(entities []tileflat.Entity) (map[string]struct{}, error) {
	refs := make(map[string]struct{})
	add := func(ref string) {
		if ref != "" {
			refs[ref] = struct{}{}
		}
	}
	for _, e := range entities {
		if ref, ok := e.Texture(); ok {
			add(ref)
		}
		if !e.IsComposite() {
			continue
		}
		md, err := tileflat.MetadataOf(e)
		if err != nil {
			return nil, fmt.Errorf("composite %q: %w", e.ID, err)
		}
		add(md.AssetRef)
		add(md.PreviewRef)
		for _, c := range md.Chunks {
			add(c.AssetRef)
		}
		for _, t := range md.Tiles {
			if ref, ok := t.Attributes.String(tileflat.NamespaceCore, tileflat.KeyTexture); ok {
				add(ref)
			}
		}
	}
	return refs, nil
}

// prune removes assets under prefix that no entity references. These are
// left behind by operations that failed after uploading.
func prune(ctx context.Context, store *ecs.Store, files *assets.FileStore, prefix string, log logrus.FieldLogger) ([]string, error) {
	if prefix == "" {
		return nil, errors.New("prune needs an asset prefix, e.g. flattened/")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	keep, err := referencedAssets(store.ListEntities(nil))
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	recs, err := files.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, r := range recs {
		if _, ok := keep[r.Ref]; ok {
			continue
		}
		if err := files.Remove(ctx, r.Ref); err != nil {
			return removed, err
		}
		log.WithField("ref", r.Ref).Info("pruned orphaned asset")
		removed = append(removed, r.Ref)
	}
	sort.Strings(removed)
	return removed, nil
}
