package tileflat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func sampleRecord() CaptureRecord {
	return CaptureRecord{
		LogicalBounds: Rect{X: 0, Y: 0, Width: 200, Height: 100},
		RenderBounds:  Rect{X: -10, Y: -10, Width: 220, Height: 120},
		PixelWidth:    220,
		PixelHeight:   120,
		Options:       DefaultOptions(),
		Resolution:    1,
		AssetRef:      "flattened/a.png",
		SceneID:       "scene-1",
		GridSize:      100,
		At:            time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeMetadata(t *testing.T) {
	a := tile("a", 0, 0, 100, 100)
	_ = a.Attributes.Set(NamespaceStorage, "rowid", 17)
	b := tile("b", 100, 0, 100, 100)
	b.Rotation = 30
	b.Elevation = 2

	md := EncodeMetadata([]Entity{a, b}, sampleRecord())
	if md.Version != MetadataVersion {
		t.Errorf("Version = %d, want %d", md.Version, MetadataVersion)
	}
	if len(md.Tiles) != 2 {
		t.Fatalf("len(Tiles) = %d, want 2", len(md.Tiles))
	}
	if md.Tiles[0].Attributes.Has(NamespaceStorage, "rowid") {
		t.Error("storage attribute was snapshotted")
	}
	if !a.Attributes.Has(NamespaceStorage, "rowid") {
		t.Error("encoding mutated the source entity")
	}
	if md.Tiles[1].Snapshot.Rotation != 30 || md.Tiles[1].Snapshot.Elevation != 2 {
		t.Errorf("snapshot = %+v, want rotation 30 elevation 2", md.Tiles[1].Snapshot)
	}
	if want := (Insets{Left: 10, Right: 10, Top: 10, Bottom: 10}); md.PaddingInsets != want {
		t.Errorf("PaddingInsets = %+v, want %+v", md.PaddingInsets, want)
	}
	if md.AssetRef == "" || md.Chunks != nil {
		t.Errorf("AssetRef = %q Chunks = %v, want single asset", md.AssetRef, md.Chunks)
	}
}

func TestEncodeMetadataNegativePaddingInsets(t *testing.T) {
	rec := sampleRecord()
	rec.RenderBounds = ApplyPadding(rec.LogicalBounds, -10)
	md := EncodeMetadata([]Entity{tile("a", 0, 0, 100, 100)}, rec)
	if md.PaddingInsets != (Insets{}) {
		t.Errorf("PaddingInsets = %+v, want zero", md.PaddingInsets)
	}
	if md.LogicalBounds != rec.LogicalBounds {
		t.Errorf("LogicalBounds = %+v, want %+v", md.LogicalBounds, rec.LogicalBounds)
	}
	if want := (Rect{X: 10, Y: 10, Width: 180, Height: 80}); md.RenderBounds != want {
		t.Errorf("RenderBounds = %+v, want %+v", md.RenderBounds, want)
	}
}

func TestEncodeMetadataChunked(t *testing.T) {
	rec := sampleRecord()
	rec.Chunks = []ChunkEntry{{AssetRef: "c0"}, {AssetRef: "c1", Col: 1}}
	rec.Layout = &ChunkLayout{Enabled: true, Columns: 2, Rows: 1}
	md := EncodeMetadata([]Entity{tile("a", 0, 0, 1, 1)}, rec)
	if md.AssetRef != "" {
		t.Errorf("AssetRef = %q, want empty for chunked capture", md.AssetRef)
	}
	if len(md.Chunks) != 2 || md.Chunking == nil || md.Chunking.Columns != 2 {
		t.Errorf("Chunks = %v Chunking = %v, want 2 chunks", md.Chunks, md.Chunking)
	}
}

func TestMetadataAttributeRoundTrip(t *testing.T) {
	a := withShadow(tile("a", 0, 0, 100, 100), map[string]any{"blur": 2.5, "enabled": true})
	b := tile("b", 100, 0, 100, 100)
	b.Alpha = 0.5
	md := EncodeMetadata([]Entity{a, b}, sampleRecord())

	attrs, err := md.Attributes()
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a storage round trip.
	data, err := json.Marshal(attrs)
	if err != nil {
		t.Fatal(err)
	}
	var stored Attributes
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}

	got, err := MetadataFromAttributes(stored)
	if err != nil {
		t.Fatal(err)
	}
	if !got.FlattenedAt.Equal(md.FlattenedAt) || got.RenderBounds != md.RenderBounds || got.AssetRef != md.AssetRef {
		t.Errorf("decoded record = %+v, want %+v", got, md)
	}

	entities, err := DecodeMetadata(got)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []Entity{a, b} {
		e := entities[i]
		if e.ID != want.ID || e.Rect() != want.Rect() || e.Alpha != want.Alpha {
			t.Errorf("entity %d = %+v, want %+v", i, e, want)
		}
		if !e.Attributes.Equal(want.Attributes) {
			t.Errorf("entity %d attributes = %v, want %v", i, e.Attributes, want.Attributes)
		}
	}
}

func TestDecodeMetadataStripsMarker(t *testing.T) {
	inner := tile("inner", 0, 0, 10, 10)
	_ = inner.Attributes.Set(NamespaceFlatten, KeyFlattened, map[string]any{"version": 1})
	md := EncodeMetadata([]Entity{inner}, sampleRecord())
	got, err := DecodeMetadata(md)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].IsComposite() {
		t.Error("decoded entity still carries the flatten marker")
	}
}

func TestDecodeMetadataRejects(t *testing.T) {
	good := EncodeMetadata([]Entity{tile("a", 0, 0, 10, 10)}, sampleRecord())

	tests := []struct {
		name   string
		mutate func(*FlattenMetadata)
	}{
		{"future version", func(md *FlattenMetadata) { md.Version = 2 }},
		{"missing version", func(md *FlattenMetadata) { md.Version = 0 }},
		{"no tiles", func(md *FlattenMetadata) { md.Tiles = nil }},
		{"zero size", func(md *FlattenMetadata) { md.Tiles[0].Snapshot.Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := good
			md.Tiles = append([]TileSnapshot(nil), good.Tiles...)
			tt.mutate(&md)
			if _, err := DecodeMetadata(md); !errors.Is(err, ErrMetadataUnreadable) {
				t.Errorf("err = %v, want ErrMetadataUnreadable", err)
			}
		})
	}
}

func TestMetadataOfPlainEntity(t *testing.T) {
	if _, err := MetadataOf(tile("a", 0, 0, 1, 1)); !errors.Is(err, ErrMetadataUnreadable) {
		t.Errorf("err = %v, want ErrMetadataUnreadable", err)
	}
	e := tile("a", 0, 0, 1, 1)
	_ = e.Attributes.Set(NamespaceFlatten, KeyFlattened, map[string]any{"version": 7, "tiles": []any{}})
	if _, err := MetadataOf(e); !errors.Is(err, ErrMetadataUnreadable) {
		t.Errorf("unknown version: err = %v, want ErrMetadataUnreadable", err)
	}
}
