package pipeline

import (
	"sync"

	"github.com/cadracks/cad2web/internal/models"
)

// Bounds remembers the bounding box of each artifact converted by the pipelines sharing it.
// A cached artifact with known bounds is reused without any kernel call.
type Bounds struct {
	mu    sync.Mutex
	boxes map[boundsKey]models.BoundingBox
}

type boundsKey struct {
	artifact  string
	moved     bool
	transform models.Transform
}

// NewBounds returns an empty Bounds.
func NewBounds() *Bounds {
	return &Bounds{boxes: make(map[boundsKey]models.BoundingBox)}
}

func keyOf(artifact string, t *models.Transform) boundsKey {
	k := boundsKey{artifact: artifact}
	if t != nil {
		k.moved = true
		k.transform = *t
	}
	return k
}

func (b *Bounds) lookup(artifact string, t *models.Transform) (models.BoundingBox, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[keyOf(artifact, t)]
	return box, ok
}

func (b *Bounds) store(artifact string, t *models.Transform, box models.BoundingBox) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.boxes[keyOf(artifact, t)] = box
}
