// Package tileflat flattens rotatable rectangular tiles on a 2D scene into
// one or more raster images and reverses the operation later.
//
// A [Flattener] drives the whole operation. It is built from a [Config] that
// injects the host collaborators: the [EntityStore] owning the tiles, the
// [Scene] whose layers and entities can be hidden during a capture, the
// [RenderPipeline] that renders the scene into offscreen surfaces, the
// [ShadowLayer] that draws drop shadows, and the [AssetStore] that persists
// encoded rasters.
//
//	f := tileflat.New(tileflat.Config{
//		Store:    store,
//		Scene:    st,
//		Pipeline: st,
//		Shadows:  st.Shadows(),
//		Assets:   files,
//		Settle:   st.Settle,
//	})
//	composite, err := f.Flatten(ctx, selected, tileflat.DefaultOptions())
//
// # Geometry
//
// [BoundsOf] computes the axis-aligned box around rotated tiles,
// [ShadowMarginsOf] the extra room a drop shadow needs, and [ApplyPadding],
// [SnapToGrid] and [ComputeInsets] turn the tight logical bounds into the
// render bounds that are actually captured.
//
// # Chunking
//
// Captures larger than the pipeline's texture limit are split into a grid of
// chunks by [ResolveChunkLayout]. Chunks are captured one at a time with an
// overlap that is cropped away, so blurred shadows are not cut at the seams.
//
// # Metadata
//
// The composite carries a [FlattenMetadata] record under the
// [NamespaceFlatten]/[KeyFlattened] attribute. [Flattener.Deconstruct] reads
// it back and recreates the original tiles, translated by however far the
// composite was moved since it was created.
//
// # Logging
//
// The package is silent by default. Call [SetLogger] with a logrus logger to
// receive diagnostics.
package tileflat
