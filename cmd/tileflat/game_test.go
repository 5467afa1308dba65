package main

import (
	"context"
	"errors"
	"testing"

	"github.com/yohamta/donburi"

	"github.com/phanxgames/tileflat"
	"github.com/phanxgames/tileflat/ecs"
	"github.com/phanxgames/tileflat/stage"
)

func TestSyncStageMirrorsStore(t *testing.T) {
	world := donburi.NewWorld()
	store := ecs.NewStore(world)
	st := stage.New(stage.Config{ID: "s"})
	defer st.Close()
	ecs.ChangeEventType.Subscribe(world, syncStage(st, quietLogger()))

	if err := store.Insert(texturedTile("a", ""), texturedTile("b", "")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("stage has %d tiles before Flush, want 0", st.Len())
	}
	store.Flush()
	if st.Len() != 2 {
		t.Fatalf("stage has %d tiles, want 2", st.Len())
	}

	moved := texturedTile("a", "")
	moved.X = 40
	if err := store.Update(context.Background(), moved); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.DeleteEntities(context.Background(), []string{"b"}); err != nil {
		t.Fatalf("DeleteEntities: %v", err)
	}
	store.Flush()

	if e, ok := st.Tile("a"); !ok || e.X != 40 {
		t.Errorf("stage tile a = %+v, %v, want moved", e, ok)
	}
	if _, ok := st.Tile("b"); ok {
		t.Error("deleted tile still on the stage")
	}
}

func TestGameStatus(t *testing.T) {
	g := &game{}
	if got := g.status(); got != "loading" {
		t.Errorf("status = %q, want loading", got)
	}
	g.setProgress(tileflat.Progress{Status: "Rendering chunk", Fraction: 0.25})
	if got := g.status(); got != "Rendering chunk  25%" {
		t.Errorf("status = %q", got)
	}
	g.setProgress(tileflat.Progress{Status: "Preparing", Indeterminate: true})
	if got := g.status(); got != "Preparing" {
		t.Errorf("status = %q, want Preparing", got)
	}
	g.finished = true
	if got := g.status(); got != "done" {
		t.Errorf("status = %q, want done", got)
	}
	g.err = errors.New("boom")
	if got := g.status(); got == "done" {
		t.Errorf("status = %q after a failure", got)
	}
}
