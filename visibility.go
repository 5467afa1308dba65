package tileflat

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Shadow convergence polling.
const (
	shadowConvergeTimeout = 500 * time.Millisecond
	shadowPollInterval    = 16 * time.Millisecond
)

// changeTarget identifies what a visibility change touched.
type changeTarget uint8

const (
	targetEntity changeTarget = iota
	targetLayer
	targetShadow
)

// visibilityChange is one recorded (target, previous value) pair.
type visibilityChange struct {
	target   changeTarget
	name     string
	previous bool
}

// isolation is the input of the capture visibility controller.
type isolation struct {
	// targets are the entities that must appear in the capture.
	targets []Entity
	// others are candidate entities to hide; only those overlapping bounds
	// are touched.
	others         []Entity
	bounds         Rect
	keepBackground bool
	keepForeground bool
}

// visibilityController hides everything that must not appear in a capture
// and restores it afterwards. Every change is recorded so restore can replay
// them in a single pass.
type visibilityController struct {
	scene   Scene
	shadows ShadowLayer
	changes []visibilityChange

	// now and sleep drive the convergence poll; tests replace them.
	now   func() time.Time
	sleep func(time.Duration)
	log   logrus.FieldLogger
}

func newVisibilityController(scene Scene, shadows ShadowLayer, now func() time.Time, sleep func(time.Duration)) *visibilityController {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &visibilityController{scene: scene, shadows: shadows, now: now, sleep: sleep, log: Logger()}
}

// plan computes the three disjoint change-sets without applying them:
// overlapping non-target entities, background/foreground layers, and
// decoration layers.
func (vc *visibilityController) plan(iso isolation) (entities []string, layers []string, decorations []string) {
	targetIDs := make(map[string]struct{}, len(iso.targets))
	for _, t := range iso.targets {
		targetIDs[t.ID] = struct{}{}
	}
	for _, e := range iso.others {
		if _, ok := targetIDs[e.ID]; ok {
			continue
		}
		if !entityAABB(e).Intersects(iso.bounds) {
			continue
		}
		entities = append(entities, e.ID)
	}
	for _, l := range vc.scene.Layers() {
		switch l.Kind {
		case LayerBackground:
			if !iso.keepBackground {
				layers = append(layers, l.Name)
			}
		case LayerForeground:
			if !iso.keepForeground {
				layers = append(layers, l.Name)
			}
		case LayerDecoration:
			decorations = append(decorations, l.Name)
		}
	}
	return entities, layers, decorations
}

// isolate shows every target, applies the plan and suspends the shadows of
// every visible non-target entity, then waits for the shadow layer to
// converge.
func (vc *visibilityController) isolate(iso isolation) {
	for _, t := range iso.targets {
		if vc.scene.EntityVisible(t.ID) {
			continue
		}
		vc.scene.SetEntityVisible(t.ID, true)
		vc.changes = append(vc.changes, visibilityChange{target: targetEntity, name: t.ID, previous: false})
	}
	entities, layers, decorations := vc.plan(iso)
	for _, id := range entities {
		prev := vc.scene.EntityVisible(id)
		if !prev {
			continue
		}
		vc.scene.SetEntityVisible(id, false)
		vc.changes = append(vc.changes, visibilityChange{target: targetEntity, name: id, previous: prev})
	}
	for _, name := range append(layers, decorations...) {
		prev := vc.scene.LayerVisible(name)
		if !prev {
			continue
		}
		vc.scene.SetLayerVisible(name, false)
		vc.changes = append(vc.changes, visibilityChange{target: targetLayer, name: name, previous: prev})
	}

	if vc.shadows == nil || !vc.shadows.Enabled() {
		vc.log.WithField("changes", len(vc.changes)).Debug("tileflat: isolated capture")
		return
	}

	targetIDs := make(map[string]struct{}, len(iso.targets))
	for _, t := range iso.targets {
		targetIDs[t.ID] = struct{}{}
	}
	for _, e := range iso.others {
		if _, ok := targetIDs[e.ID]; ok {
			continue
		}
		s, ok := ShadowOf(e)
		if !ok || !s.Active() {
			continue
		}
		if vc.shadows.Suspend(e.ID) {
			vc.changes = append(vc.changes, visibilityChange{target: targetShadow, name: e.ID, previous: true})
		}
	}
	vc.log.WithField("changes", len(vc.changes)).Debug("tileflat: isolated capture")

	for _, band := range elevationBands(iso.targets) {
		vc.awaitShadows([]float64{band})
	}
}

// awaitShadows polls the shadow layer until the bands converge or the fixed
// timeout elapses. A timeout is logged and the capture proceeds.
func (vc *visibilityController) awaitShadows(elevations []float64) bool {
	deadline := vc.now().Add(shadowConvergeTimeout)
	for {
		if vc.shadows.IsConvergedFor(elevations) {
			return true
		}
		if !vc.now().Before(deadline) {
			vc.log.WithField("elevations", elevations).Warn("tileflat: shadow layer did not converge; capturing anyway")
			return false
		}
		vc.sleep(shadowPollInterval)
	}
}

// restore replays every recorded change in reverse order and forgets them.
// Safe to call more than once.
func (vc *visibilityController) restore() {
	for i := len(vc.changes) - 1; i >= 0; i-- {
		c := vc.changes[i]
		switch c.target {
		case targetEntity:
			vc.scene.SetEntityVisible(c.name, c.previous)
		case targetLayer:
			vc.scene.SetLayerVisible(c.name, c.previous)
		case targetShadow:
			vc.shadows.Resume(c.name)
		}
	}
	if len(vc.changes) > 0 {
		vc.log.WithField("changes", len(vc.changes)).Debug("tileflat: restored scene visibility")
	}
	vc.changes = vc.changes[:0]
}

// elevationBands returns the distinct elevations of entities in ascending
// order.
func elevationBands(entities []Entity) []float64 {
	seen := make(map[float64]struct{}, len(entities))
	var out []float64
	for _, e := range entities {
		if _, ok := seen[e.Elevation]; ok {
			continue
		}
		seen[e.Elevation] = struct{}{}
		out = append(out, e.Elevation)
	}
	sort.Float64s(out)
	return out
}
