package main

import (
	"fmt"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"

	"github.com/phanxgames/tileflat"
	"github.com/phanxgames/tileflat/ecs"
	"github.com/phanxgames/tileflat/stage"
)

// focusDuration is how long the camera takes to scroll to a result, in
// seconds.
const focusDuration = 0.6

// game drives the stage from the Ebitengine loop while a job runs on
// another goroutine.
type game struct {
	stage  *stage.Stage
	store  *ecs.Store
	window windowConfig

	focus <-chan tileflat.Rect
	done  <-chan error

	finished bool
	err      error
	progress atomic.Pointer[tileflat.Progress]
}

// Update drains store changes into the stage, advances the stage and stops
// the loop once the job is done and the camera has arrived.
func (g *game) Update() error {
	g.store.Flush()
	if err := g.stage.Update(); err != nil {
		return err
	}
	select {
	case r := <-g.focus:
		g.stage.Camera().Focus(r, focusDuration)
	default:
	}
	if !g.finished {
		select {
		case err := <-g.done:
			g.finished, g.err = true, err
		default:
		}
	}
	if g.finished && g.window.ExitWhenDone && !g.stage.Camera().Scrolling() {
		return ebiten.Termination
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	g.stage.Draw(screen)
	ebitenutil.DebugPrint(screen, g.status())
}

func (g *game) Layout(_, _ int) (int, int) {
	return g.window.Width, g.window.Height
}

// setProgress records the latest progress update for the overlay.
func (g *game) setProgress(p tileflat.Progress) {
	g.progress.Store(&p)
}

func (g *game) status() string {
	switch {
	case g.finished && g.err != nil:
		return "failed: " + tileflat.UserMessage(g.err)
	case g.finished:
		return "done"
	}
	p := g.progress.Load()
	if p == nil {
		return "loading"
	}
	if p.Indeterminate {
		return p.Status
	}
	return fmt.Sprintf("%s %3.0f%%", p.Status, p.Fraction*100)
}

// syncStage mirrors store changes onto the stage.
func syncStage(st *stage.Stage, log logrus.FieldLogger) func(donburi.World, ecs.ChangeEvent) {
	return func(_ donburi.World, ev ecs.ChangeEvent) {
		switch ev.Kind {
		case ecs.ChangeCreated:
			for _, e := range ev.Entities {
				if err := st.AddTile(e); err != nil {
					log.WithError(err).Warn("stage out of sync")
				}
			}
		case ecs.ChangeUpdated:
			for _, e := range ev.Entities {
				if err := st.UpdateTile(e); err != nil {
					log.WithError(err).Warn("stage out of sync")
				}
			}
		case ecs.ChangeDeleted:
			for _, id := range ev.IDs {
				st.RemoveTile(id)
			}
		}
	}
}
