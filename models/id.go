package models

import "sync"

// SequentialIDGenerator generates increasing ids and hands back released ones
// first, smallest first.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs map[uint32]struct{}
}

// New returns the smallest reusable id, or the next sequential id when none
// was released.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusableIDs) != 0 {
		var smallest uint32
		first := true
		for id := range g.reusableIDs {
			if first || id < smallest {
				smallest = id
				first = false
			}
		}

		delete(g.reusableIDs, smallest)
		return smallest
	}

	g.currentID++
	return g.currentID
}

// Reuse releases the given id.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	if g.reusableIDs == nil {
		g.reusableIDs = make(map[uint32]struct{})
	}
	g.reusableIDs[id] = struct{}{}
}
