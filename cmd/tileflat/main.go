// Command tileflat flattens, deconstructs and exports tile scenes.
//
// Usage:
//
//	tileflat flatten [flags] [tile-id...]
//	tileflat deconstruct [flags] [composite-id...]
//	tileflat export [flags]
//	tileflat prune [flags] <asset-prefix>
//
// The scene is loaded from a JSON file, shown in a window while the command
// runs, and saved back afterwards. Configuration is read from tileflat.yaml,
// .env and TILEFLAT_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"
	"golang.org/x/sync/errgroup"

	"github.com/phanxgames/tileflat"
	"github.com/phanxgames/tileflat/assets"
	"github.com/phanxgames/tileflat/ecs"
	"github.com/phanxgames/tileflat/stage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "tileflat:", err)
		os.Exit(1)
	}
}

func usage() error {
	return errors.New("usage: tileflat flatten|deconstruct|export|prune [flags] [args...]")
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	command := args[0]
	switch command {
	case cmdFlatten, cmdDeconstruct, cmdExport, cmdPrune:
	default:
		return usage()
	}

	cfg, rest, err := loadConfig(args[1:])
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	tileflat.SetLogger(log)
	defer tileflat.SetLogger(nil)

	files, err := assets.Open(cfg.Assets.Root, cfg.Assets.Index)
	if err != nil {
		return err
	}
	defer files.Close()

	scene, err := readScene(cfg.Scene)
	if err != nil {
		return err
	}
	world := donburi.NewWorld()
	store := ecs.NewStore(world)

	if command == cmdPrune {
		if err := store.Insert(scene.entities()...); err != nil {
			return err
		}
		prefix := ""
		if len(rest) > 0 {
			prefix = rest[0]
		}
		removed, err := prune(context.Background(), store, files, prefix, log)
		if err != nil {
			return err
		}
		log.WithField("removed", len(removed)).Info("prune complete")
		return nil
	}

	textures, err := stage.NewTextureCache(files, int64(cfg.Assets.CacheMB)<<20)
	if err != nil {
		return err
	}
	defer textures.Close()

	st := stage.New(stage.Config{
		ID:           scene.ID,
		GridSize:     scene.GridSize,
		Bounds:       scene.Bounds,
		ScreenWidth:  cfg.Window.Width,
		ScreenHeight: cfg.Window.Height,
		Textures:     textures,
		Background:   scene.Background,
		Foreground:   scene.Foreground,
	})
	defer st.Close()
	st.Shadows().SetEnabled(cfg.Shadows)
	ecs.ChangeEventType.Subscribe(world, syncStage(st, log))
	if err := store.Insert(scene.entities()...); err != nil {
		return err
	}

	focus := make(chan tileflat.Rect, 1)
	done := make(chan error, 1)
	g := &game{stage: st, store: store, window: cfg.Window, focus: focus, done: done}

	f := tileflat.New(tileflat.Config{
		Store:    store,
		Scene:    st,
		Pipeline: st,
		Shadows:  st.Shadows(),
		Assets:   files,
		Settle:   st.Settle,
		Progress: g.setProgress,
	})
	j := &job{
		command:   command,
		args:      rest,
		cfg:       cfg,
		flattener: f,
		store:     store,
		log:       log.WithField("command", command),
		focus:     focus,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		// Wait until the loaded tiles have reached the stage.
		for i := 0; i < 2; i++ {
			if err := st.Settle(); err != nil {
				done <- err
				return err
			}
		}
		err := j.run(ctx)
		done <- err
		return err
	})

	ebiten.SetWindowSize(cfg.Window.Width, cfg.Window.Height)
	ebiten.SetWindowTitle(cfg.Window.Title)
	runErr := ebiten.RunGame(g)

	// A closed window ends the job: the stage stops rendering and settling.
	cancel()
	st.Close()
	jobErr := eg.Wait()
	if runErr != nil {
		return runErr
	}
	if jobErr != nil {
		return jobErr
	}

	if cfg.Save && command != cmdExport {
		if err := writeScene(cfg.Scene, scene.withEntities(store.ListEntities(nil))); err != nil {
			return fmt.Errorf("save scene: %w", err)
		}
		log.WithFields(logrus.Fields{"scene": cfg.Scene, "tiles": store.Len()}).Info("scene saved")
	}
	return nil
}
