package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phanxgames/tileflat"
)

// sceneFile is the on-disk scene: its settings and its tiles.
type sceneFile struct {
	ID         string        `json:"id"`
	GridSize   float64       `json:"gridSize"`
	Bounds     tileflat.Rect `json:"bounds"`
	Background string        `json:"background,omitempty"`
	Foreground string        `json:"foreground,omitempty"`
	Tiles      []sceneTile   `json:"tiles"`
}

type sceneTile struct {
	ID         string              `json:"id"`
	X          float64             `json:"x"`
	Y          float64             `json:"y"`
	Width      float64             `json:"width"`
	Height     float64             `json:"height"`
	Rotation   float64             `json:"rotation,omitempty"`
	Elevation  float64             `json:"elevation,omitempty"`
	Alpha      *float64            `json:"alpha,omitempty"`
	Attributes tileflat.Attributes `json:"attributes"`
}

func readScene(path string) (sceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sceneFile{}, err
	}
	var f sceneFile
	if err := json.Unmarshal(data, &f); err != nil {
		return sceneFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.ID == "" {
		f.ID = filepath.Base(path)
	}
	return f, nil
}

// entities converts the scene tiles. A missing alpha means opaque.
func (f sceneFile) entities() []tileflat.Entity {
	out := make([]tileflat.Entity, 0, len(f.Tiles))
	for _, t := range f.Tiles {
		alpha := 1.0
		if t.Alpha != nil {
			alpha = *t.Alpha
		}
		out = append(out, tileflat.Entity{
			ID:         t.ID,
			X:          t.X,
			Y:          t.Y,
			Width:      t.Width,
			Height:     t.Height,
			Rotation:   t.Rotation,
			Elevation:  t.Elevation,
			Alpha:      alpha,
			Attributes: t.Attributes,
		})
	}
	return out
}

// withEntities returns a copy of f holding entities as its tiles.
func (f sceneFile) withEntities(entities []tileflat.Entity) sceneFile {
	f.Tiles = make([]sceneTile, 0, len(entities))
	for _, e := range entities {
		t := sceneTile{
			ID:         e.ID,
			X:          e.X,
			Y:          e.Y,
			Width:      e.Width,
			Height:     e.Height,
			Rotation:   e.Rotation,
			Elevation:  e.Elevation,
			Attributes: e.Attributes,
		}
		if e.Alpha != 1 {
			a := e.Alpha
			t.Alpha = &a
		}
		f.Tiles = append(f.Tiles, t)
	}
	return f
}

// writeScene saves f to path through a temporary file.
func writeScene(path string, f sceneFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
