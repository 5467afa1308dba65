package tileflat

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetadataVersion is the schema version written by EncodeMetadata. Records
// with any other version are unreadable.
const MetadataVersion = 1

// Geometry is the positional part of an entity snapshot.
type Geometry struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Rotation  float64 `json:"rotation"`
	Elevation float64 `json:"elevation"`
	Alpha     float64 `json:"alpha"`
}

// TileSnapshot records one original entity.
type TileSnapshot struct {
	ID         string     `json:"id"`
	Snapshot   Geometry   `json:"snapshot"`
	Attributes Attributes `json:"attributeSnapshot"`
}

// FlattenMetadata is the reversible record stored on a composite entity.
// Exactly one of AssetRef and Chunks is set.
type FlattenMetadata struct {
	Version       int            `json:"version"`
	FlattenedAt   time.Time      `json:"flattenedAt"`
	Tiles         []TileSnapshot `json:"tiles"`
	LogicalBounds Rect           `json:"logicalBounds"`
	RenderBounds  Rect           `json:"renderBounds"`
	// PaddingInsets is how far RenderBounds extends past LogicalBounds on
	// each side. Insets are never negative: where negative padding pulled
	// RenderBounds inside LogicalBounds the side reads zero, and the logical
	// region is only recoverable from LogicalBounds itself.
	PaddingInsets Insets         `json:"paddingInsets"`
	PixelWidth    int            `json:"pixelWidth"`
	PixelHeight   int            `json:"pixelHeight"`
	PPI           float64        `json:"ppi"`
	Quality       float64        `json:"quality"`
	Resolution    float64        `json:"resolution"`
	Format        string         `json:"format,omitempty"`
	AssetRef      string         `json:"assetRef,omitempty"`
	PreviewRef    string         `json:"previewRef,omitempty"`
	Chunks        []ChunkEntry   `json:"chunks,omitempty"`
	Chunking      *ChunkLayout   `json:"chunking,omitempty"`
	SceneID       string         `json:"sceneId"`
	GridSize      float64        `json:"gridSize"`
}

// CaptureRecord is everything about a finished capture that the metadata
// keeps besides the entity snapshots.
type CaptureRecord struct {
	LogicalBounds Rect
	RenderBounds  Rect
	PixelWidth    int
	PixelHeight   int
	Options       Options
	Resolution    float64
	AssetRef      string
	PreviewRef    string
	Chunks        []ChunkEntry
	Layout        *ChunkLayout
	SceneID       string
	GridSize      float64
	At            time.Time
}

// EncodeMetadata snapshots entities and the capture into a new record.
// Storage-only attributes are not snapshotted.
func EncodeMetadata(entities []Entity, rec CaptureRecord) FlattenMetadata {
	tiles := make([]TileSnapshot, 0, len(entities))
	for _, e := range entities {
		attrs := e.Attributes.Clone()
		attrs.DeleteNamespace(NamespaceStorage)
		tiles = append(tiles, TileSnapshot{
			ID: e.ID,
			Snapshot: Geometry{
				X:         e.X,
				Y:         e.Y,
				Width:     e.Width,
				Height:    e.Height,
				Rotation:  e.Rotation,
				Elevation: e.Elevation,
				Alpha:     e.Alpha,
			},
			Attributes: attrs,
		})
	}
	md := FlattenMetadata{
		Version:       MetadataVersion,
		FlattenedAt:   rec.At.UTC(),
		Tiles:         tiles,
		LogicalBounds: rec.LogicalBounds,
		RenderBounds:  rec.RenderBounds,
		PaddingInsets: ComputeInsets(rec.LogicalBounds, rec.RenderBounds),
		PixelWidth:    rec.PixelWidth,
		PixelHeight:   rec.PixelHeight,
		PPI:           rec.Options.PPI,
		Quality:       rec.Options.Quality,
		Resolution:    rec.Resolution,
		Format:        rec.Options.Format,
		SceneID:       rec.SceneID,
		GridSize:      rec.GridSize,
	}
	if len(rec.Chunks) > 0 {
		md.Chunks = append([]ChunkEntry(nil), rec.Chunks...)
		if rec.Layout != nil {
			l := *rec.Layout
			md.Chunking = &l
		}
	} else {
		md.AssetRef = rec.AssetRef
		md.PreviewRef = rec.PreviewRef
	}
	return md
}

// DecodeMetadata rebuilds the original entities recorded in md, at their
// recorded positions and without the flatten marker. IDs are the original
// IDs and serve only as a reference; stores assign new ones on creation.
func DecodeMetadata(md FlattenMetadata) ([]Entity, error) {
	const op = "decode metadata"
	if md.Version != MetadataVersion {
		return nil, newErrorf(KindMetadataUnreadable, op, "version %d, want %d", md.Version, MetadataVersion)
	}
	if len(md.Tiles) == 0 {
		return nil, newErrorf(KindMetadataUnreadable, op, "no tiles recorded")
	}
	out := make([]Entity, 0, len(md.Tiles))
	for i, t := range md.Tiles {
		g := t.Snapshot
		if g.Width <= 0 || g.Height <= 0 {
			return nil, newErrorf(KindMetadataUnreadable, op, "tile %d (%s) has size %vx%v", i, t.ID, g.Width, g.Height)
		}
		attrs := t.Attributes.Clone()
		attrs.Delete(NamespaceFlatten, KeyFlattened)
		out = append(out, Entity{
			ID:         t.ID,
			X:          g.X,
			Y:          g.Y,
			Width:      g.Width,
			Height:     g.Height,
			Rotation:   g.Rotation,
			Elevation:  g.Elevation,
			Alpha:      g.Alpha,
			Attributes: attrs,
		})
	}
	return out, nil
}

// MetadataOf reads the flatten record carried by a composite entity.
func MetadataOf(e Entity) (FlattenMetadata, error) {
	if !e.IsComposite() {
		return FlattenMetadata{}, newErrorf(KindMetadataUnreadable, "read metadata", "entity %s is not a flattened composite", e.ID)
	}
	return MetadataFromAttributes(e.Attributes)
}

// MetadataFromAttributes reads the flatten marker from attrs. The record goes
// through JSON so that values normalized by a storage round trip decode the
// same as freshly attached ones.
func MetadataFromAttributes(attrs Attributes) (FlattenMetadata, error) {
	const op = "read metadata"
	obj, ok := attrs.Object(NamespaceFlatten, KeyFlattened)
	if !ok {
		return FlattenMetadata{}, newError(KindMetadataUnreadable, op, nil)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return FlattenMetadata{}, newError(KindMetadataUnreadable, op, err)
	}
	var md FlattenMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return FlattenMetadata{}, newError(KindMetadataUnreadable, op, err)
	}
	if md.Version != MetadataVersion {
		return FlattenMetadata{}, newErrorf(KindMetadataUnreadable, op, "version %d, want %d", md.Version, MetadataVersion)
	}
	return md, nil
}

// Attributes returns a fresh attribute set holding md as the flatten marker.
func (md FlattenMetadata) Attributes() (Attributes, error) {
	var attrs Attributes
	if err := md.attach(&attrs); err != nil {
		return Attributes{}, err
	}
	return attrs, nil
}

// attach stores md as the flatten marker of attrs.
func (md FlattenMetadata) attach(attrs *Attributes) error {
	if err := attrs.Set(NamespaceFlatten, KeyFlattened, md); err != nil {
		return fmt.Errorf("attach metadata: %w", err)
	}
	return nil
}

// translateEntities moves every entity by (dx, dy).
func translateEntities(entities []Entity, dx, dy float64) []Entity {
	out := make([]Entity, len(entities))
	for i, e := range entities {
		e.X += dx
		e.Y += dy
		out[i] = e
	}
	return out
}
