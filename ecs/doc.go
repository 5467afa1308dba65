// Package ecs provides a tileflat.EntityStore backed by a Donburi world.
//
// Each tile is a Donburi entity carrying [Geometry], [Appearance] and
// [Attrs] components. Creations, updates and deletions are published to
// [ChangeEventType]; subscribe to it to keep a renderer in sync and drain
// the queue with [Store.Flush] once per frame.
//
// Usage:
//
//	world := donburi.NewWorld()
//	store := ecs.NewStore(world)
//	ecs.ChangeEventType.Subscribe(world, func(w donburi.World, ev ecs.ChangeEvent) {
//		// apply ev to the stage
//	})
//
// [Donburi]: https://github.com/yohamta/donburi
package ecs
