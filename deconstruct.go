package tileflat

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Deconstruct replaces a composite with the originals recorded in its
// metadata. If the composite was moved after flattening, the originals move
// with it. The store assigns the recreated entities new IDs.
//
// The originals are created before the composite is deleted. If the delete
// fails both remain in the scene; nothing is rolled back.
func (f *Flattener) Deconstruct(ctx context.Context, composite Entity) ([]Entity, error) {
	const op = "deconstruct"
	release, err := f.acquire(op)
	if err != nil {
		return nil, err
	}
	defer release()

	log := Logger().WithFields(logrus.Fields{"op": op, "composite": composite.ID})
	created, err := f.deconstruct(ctx, log, composite)
	if err != nil {
		f.fail(log, err)
		return nil, err
	}
	f.setState(StateDone, log)
	f.report("Done", 1)
	log.WithField("entities", len(created)).Info("tileflat: deconstruct complete")
	return created, nil
}

func (f *Flattener) deconstruct(ctx context.Context, log logrus.FieldLogger, composite Entity) ([]Entity, error) {
	const op = "deconstruct"
	f.setState(StatePreparing, log)
	f.reportIndeterminate("Reading flatten data")

	if f.cfg.Store == nil {
		return nil, newErrorf(KindPipelineUnavailable, op, "flattener has no entity store")
	}
	md, err := MetadataOf(composite)
	if err != nil {
		return nil, err
	}
	originals, err := DecodeMetadata(md)
	if err != nil {
		return nil, err
	}
	dx := composite.X - md.RenderBounds.X
	dy := composite.Y - md.RenderBounds.Y
	if dx != 0 || dy != 0 {
		log.WithFields(logrus.Fields{"dx": dx, "dy": dy}).Debug("tileflat: composite moved since flatten")
	}
	originals = translateEntities(originals, dx, dy)

	f.setState(StateCreatingComposite, log)
	f.report("Restoring tiles", 0.4)
	created, err := f.cfg.Store.CreateEntities(ctx, originals)
	if err != nil {
		return nil, newError(KindEntityStore, op, err)
	}
	f.sleep(createSettleDelay)

	f.setState(StateDeletingOriginals, log)
	f.report("Removing composite", 0.8)
	if err := f.cfg.Store.DeleteEntities(ctx, []string{composite.ID}); err != nil {
		log.WithField("restored", len(created)).Warn("tileflat: composite not removed; restored tiles remain")
		return nil, newError(KindEntityStore, op, err)
	}
	return created, nil
}
