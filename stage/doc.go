// Package stage is an Ebitengine host for tileflat. A Stage holds the tiles
// of one scene, draws them in layers with per-elevation drop shadows, and
// implements the tileflat Scene, RenderPipeline and ShadowLayer interfaces so
// a Flattener can capture it offscreen.
//
// The Stage is driven from the Ebitengine game loop:
//
//	func (g *game) Update() error { return g.stage.Update() }
//	func (g *game) Draw(screen *ebiten.Image) { g.stage.Draw(screen) }
//
// Flatten operations run on another goroutine. They change visibility and
// render offscreen under the Stage's lock, and call Stage.Settle to wait for
// the game loop to finish a frame.
package stage
