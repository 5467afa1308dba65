package ecs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/phanxgames/tileflat"
	"github.com/sirupsen/logrus"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
	"github.com/yohamta/donburi/filter"
)

// TileID is the stable string identifier of a tile.
type TileID struct {
	Value string
}

// Geometry is the placement of a tile in world units. Rotation is in degrees
// about the rectangle center.
type Geometry struct {
	X, Y          float64
	Width, Height float64
	Rotation      float64
}

// Appearance holds the draw-order and opacity of a tile.
type Appearance struct {
	Elevation float64
	Alpha     float64
}

// Attrs wraps the namespaced attribute bag of a tile.
type Attrs struct {
	Bag tileflat.Attributes
}

// Components registered by the store.
var (
	IDComponent         = donburi.NewComponentType[TileID]()
	GeometryComponent   = donburi.NewComponentType[Geometry]()
	AppearanceComponent = donburi.NewComponentType[Appearance]()
	AttrsComponent      = donburi.NewComponentType[Attrs]()
)

// tileQuery matches every tile created by a Store.
var tileQuery = donburi.NewQuery(filter.Contains(IDComponent, GeometryComponent))

// ChangeKind is the kind of a ChangeEvent.
type ChangeKind uint8

const (
	ChangeCreated ChangeKind = iota
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ChangeEvent reports a batch of store mutations. Entities is set for
// creations and updates; IDs lists every affected tile.
type ChangeEvent struct {
	Kind     ChangeKind
	IDs      []string
	Entities []tileflat.Entity
}

// ChangeEventType is the Donburi event type for store changes. Events are
// queued and delivered by ProcessEvents.
var ChangeEventType = events.NewEventType[ChangeEvent]()

// Store is an EntityStore backed by a Donburi world. It is safe for
// concurrent use as long as the world is only touched through the store;
// events queued by a flatten running on another goroutine are delivered by
// Flush.
type Store struct {
	world donburi.World

	mu    sync.RWMutex
	byID  map[string]donburi.Entity
	order []string
}

var _ tileflat.EntityStore = (*Store)(nil)

// NewStore creates a store around world. Tiles already in the world are
// adopted in query order.
func NewStore(world donburi.World) *Store {
	s := &Store{world: world, byID: make(map[string]donburi.Entity)}
	tileQuery.Each(world, func(entry *donburi.Entry) {
		id := IDComponent.Get(entry).Value
		s.byID[id] = entry.Entity()
		s.order = append(s.order, id)
	})
	return s
}

// World returns the underlying Donburi world.
func (s *Store) World() donburi.World { return s.world }

// Len returns the number of tiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns the tile with the given ID.
func (s *Store) Get(id string) (tileflat.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.byID[id]
	if !ok || !s.world.Valid(ent) {
		return tileflat.Entity{}, false
	}
	return s.read(s.world.Entry(ent)), true
}

// ListEntities returns every tile accepted by pred, in creation order.
func (s *Store) ListEntities(pred func(tileflat.Entity) bool) []tileflat.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tileflat.Entity, 0, len(s.order))
	for _, id := range s.order {
		ent := s.byID[id]
		if !s.world.Valid(ent) {
			continue
		}
		e := s.read(s.world.Entry(ent))
		if pred == nil || pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// CreateEntities creates one tile per payload under a fresh ID.
func (s *Store) CreateEntities(ctx context.Context, payloads []tileflat.Entity) ([]tileflat.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, p := range payloads {
		if p.Width <= 0 || p.Height <= 0 {
			return nil, fmt.Errorf("ecs: payload %d has size %vx%v", i, p.Width, p.Height)
		}
	}

	s.mu.Lock()
	out := make([]tileflat.Entity, 0, len(payloads))
	for _, p := range payloads {
		p = p.Clone()
		p.ID = uuid.NewString()
		s.insert(p)
		out = append(out, p.Clone())
	}
	s.publish(ChangeCreated, out)
	s.mu.Unlock()

	tileflat.Logger().WithFields(logrus.Fields{"pkg": "ecs", "count": len(out)}).Debug("ecs: created tiles")
	return out, nil
}

// Insert adds tiles keeping their IDs, e.g. when loading a saved scene.
// Empty or duplicate IDs are rejected before anything is inserted.
func (s *Store) Insert(entities ...tileflat.Entity) error {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			s.mu.Unlock()
			return fmt.Errorf("ecs: insert: empty id")
		}
		if _, dup := seen[e.ID]; dup {
			s.mu.Unlock()
			return fmt.Errorf("ecs: insert: duplicate id %q", e.ID)
		}
		if _, exists := s.byID[e.ID]; exists {
			s.mu.Unlock()
			return fmt.Errorf("ecs: insert: id %q already exists", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	out := make([]tileflat.Entity, 0, len(entities))
	for _, e := range entities {
		e = e.Clone()
		s.insert(e)
		out = append(out, e)
	}
	s.publish(ChangeCreated, out)
	s.mu.Unlock()
	return nil
}

// Update replaces the geometry, appearance and attributes of an existing
// tile.
func (s *Store) Update(ctx context.Context, e tileflat.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	ent, ok := s.byID[e.ID]
	if !ok || !s.world.Valid(ent) {
		s.mu.Unlock()
		return fmt.Errorf("ecs: update: no tile %q", e.ID)
	}
	s.write(s.world.Entry(ent), e.Clone())
	s.publish(ChangeUpdated, []tileflat.Entity{e.Clone()})
	s.mu.Unlock()
	return nil
}

// DeleteEntities removes the tiles with the given IDs. Unknown IDs fail the
// whole call before anything is removed.
func (s *Store) DeleteEntities(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.byID[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("ecs: delete: no tile %q", id)
		}
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		ent := s.byID[id]
		if s.world.Valid(ent) {
			s.world.Remove(ent)
		}
		delete(s.byID, id)
		drop[id] = struct{}{}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	ChangeEventType.Publish(s.world, ChangeEvent{Kind: ChangeDeleted, IDs: append([]string(nil), ids...)})
	s.mu.Unlock()

	tileflat.Logger().WithFields(logrus.Fields{"pkg": "ecs", "count": len(ids)}).Debug("ecs: deleted tiles")
	return nil
}

// insert must be called with mu held.
func (s *Store) insert(e tileflat.Entity) {
	ent := s.world.Create(IDComponent, GeometryComponent, AppearanceComponent, AttrsComponent)
	entry := s.world.Entry(ent)
	IDComponent.SetValue(entry, TileID{Value: e.ID})
	s.write(entry, e)
	s.byID[e.ID] = ent
	s.order = append(s.order, e.ID)
}

func (s *Store) write(entry *donburi.Entry, e tileflat.Entity) {
	GeometryComponent.SetValue(entry, Geometry{
		X: e.X, Y: e.Y, Width: e.Width, Height: e.Height, Rotation: e.Rotation,
	})
	AppearanceComponent.SetValue(entry, Appearance{Elevation: e.Elevation, Alpha: e.Alpha})
	AttrsComponent.SetValue(entry, Attrs{Bag: e.Attributes})
}

func (s *Store) read(entry *donburi.Entry) tileflat.Entity {
	g := GeometryComponent.Get(entry)
	e := tileflat.Entity{
		ID:       IDComponent.Get(entry).Value,
		X:        g.X,
		Y:        g.Y,
		Width:    g.Width,
		Height:   g.Height,
		Rotation: g.Rotation,
		Alpha:    1,
	}
	if entry.HasComponent(AppearanceComponent) {
		a := AppearanceComponent.Get(entry)
		e.Elevation, e.Alpha = a.Elevation, a.Alpha
	}
	if entry.HasComponent(AttrsComponent) {
		e.Attributes = AttrsComponent.Get(entry).Bag.Clone()
	}
	return e
}

// Flush delivers queued change events to their subscribers. Call it from
// the goroutine that owns the world, once per frame. Subscribers run with
// the store locked and must not call back into it.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	events.ProcessAllEvents(s.world)
}

// publish must be called with mu held.
func (s *Store) publish(kind ChangeKind, entities []tileflat.Entity) {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	ChangeEventType.Publish(s.world, ChangeEvent{Kind: kind, IDs: ids, Entities: entities})
}
