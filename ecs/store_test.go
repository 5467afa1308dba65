package ecs

import (
	"context"
	"reflect"
	"testing"

	"github.com/phanxgames/tileflat"
	"github.com/yohamta/donburi"
)

func sampleTile(id string, x float64) tileflat.Entity {
	e := tileflat.Entity{ID: id, X: x, Width: 10, Height: 20, Rotation: 15, Elevation: 2, Alpha: 0.5}
	_ = e.Attributes.Set(tileflat.NamespaceCore, tileflat.KeyTexture, id+".png")
	return e
}

func TestStoreImplementsEntityStore(t *testing.T) {
	var store tileflat.EntityStore = NewStore(donburi.NewWorld())
	_ = store
}

func TestStoreCreateAssignsIDs(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	created, err := store.CreateEntities(context.Background(), []tileflat.Entity{sampleTile("x", 0), sampleTile("x", 5)})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d, want 2", len(created))
	}
	if created[0].ID == "x" || created[0].ID == created[1].ID {
		t.Errorf("ids = %q, %q, want fresh unique ids", created[0].ID, created[1].ID)
	}
	got, ok := store.Get(created[1].ID)
	if !ok {
		t.Fatal("Get: created tile not found")
	}
	if got.X != 5 || got.Width != 10 || got.Height != 20 || got.Rotation != 15 || got.Elevation != 2 || got.Alpha != 0.5 {
		t.Errorf("Get = %+v", got)
	}
	if tex, _ := got.Texture(); tex != "x.png" {
		t.Errorf("texture = %q, want x.png", tex)
	}
}

func TestStoreRejectsEmptyPayload(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	_, err := store.CreateEntities(context.Background(), []tileflat.Entity{sampleTile("a", 0), {Width: 0, Height: 1}})
	if err == nil {
		t.Fatal("CreateEntities accepted a zero-width payload")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want nothing created", store.Len())
	}
}

func TestStoreListKeepsOrder(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	if err := store.Insert(sampleTile("a", 0), sampleTile("b", 10), sampleTile("c", 20)); err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range store.ListEntities(func(e tileflat.Entity) bool { return e.X > 0 }) {
		ids = append(ids, e.ID)
	}
	if want := []string{"b", "c"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if n := len(store.ListEntities(nil)); n != 3 {
		t.Errorf("ListEntities(nil) = %d tiles, want 3", n)
	}
}

func TestStoreInsertRejectsDuplicates(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	if err := store.Insert(sampleTile("a", 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(sampleTile("b", 0), sampleTile("a", 0)); err == nil {
		t.Error("Insert accepted an existing id")
	}
	if err := store.Insert(sampleTile("c", 0), sampleTile("c", 0)); err == nil {
		t.Error("Insert accepted a duplicate id")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestStoreListReturnsCopies(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	_ = store.Insert(sampleTile("a", 0))
	e := store.ListEntities(nil)[0]
	_ = e.Attributes.Set(tileflat.NamespaceCore, tileflat.KeyTexture, "changed.png")
	got, _ := store.Get("a")
	if tex, _ := got.Texture(); tex != "a.png" {
		t.Errorf("texture = %q, store shares attribute maps", tex)
	}
}

func TestStoreDelete(t *testing.T) {
	world := donburi.NewWorld()
	store := NewStore(world)
	_ = store.Insert(sampleTile("a", 0), sampleTile("b", 10))

	if err := store.DeleteEntities(context.Background(), []string{"a", "missing"}); err == nil {
		t.Fatal("DeleteEntities accepted an unknown id")
	}
	if store.Len() != 2 {
		t.Fatalf("Len = %d after failed delete, want 2", store.Len())
	}
	if err := store.DeleteEntities(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("a"); ok {
		t.Error("deleted tile still readable")
	}
	if n := tileQuery.Count(world); n != 1 {
		t.Errorf("world holds %d tiles, want 1", n)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	_ = store.Insert(sampleTile("a", 0))
	e, _ := store.Get("a")
	e.X, e.Y = 40, 50
	if err := store.Update(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get("a")
	if got.X != 40 || got.Y != 50 {
		t.Errorf("position = (%v,%v), want (40,50)", got.X, got.Y)
	}
	if err := store.Update(context.Background(), sampleTile("nope", 0)); err == nil {
		t.Error("Update accepted an unknown id")
	}
}

func TestStoreCancelledContext(t *testing.T) {
	store := NewStore(donburi.NewWorld())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.CreateEntities(ctx, []tileflat.Entity{sampleTile("a", 0)}); err == nil {
		t.Error("CreateEntities ignored a cancelled context")
	}
}

func TestStoreAdoptsExistingWorld(t *testing.T) {
	world := donburi.NewWorld()
	first := NewStore(world)
	_ = first.Insert(sampleTile("a", 0), sampleTile("b", 10))

	second := NewStore(world)
	if second.Len() != 2 {
		t.Errorf("Len = %d, want 2 adopted tiles", second.Len())
	}
	if _, ok := second.Get("b"); !ok {
		t.Error("adopted tile b not found")
	}
}

func TestStoreChangeEvents(t *testing.T) {
	world := donburi.NewWorld()
	store := NewStore(world)

	var received []ChangeEvent
	ChangeEventType.Subscribe(world, func(w donburi.World, ev ChangeEvent) {
		received = append(received, ev)
	})

	created, _ := store.CreateEntities(context.Background(), []tileflat.Entity{sampleTile("a", 0)})
	_ = store.DeleteEntities(context.Background(), []string{created[0].ID})

	// Events are queued until flushed.
	if len(received) != 0 {
		t.Fatalf("received %d events before Flush, want 0", len(received))
	}
	store.Flush()

	if len(received) != 2 {
		t.Fatalf("received %d events, want 2", len(received))
	}
	if received[0].Kind != ChangeCreated || len(received[0].Entities) != 1 || received[0].IDs[0] != created[0].ID {
		t.Errorf("event 0 = %+v", received[0])
	}
	if received[1].Kind != ChangeDeleted || !reflect.DeepEqual(received[1].IDs, []string{created[0].ID}) {
		t.Errorf("event 1 = %+v", received[1])
	}
}
