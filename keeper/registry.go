package keeper

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/heirloom-kv/heirloom/resource"
)

// registry maps logical store names to their supervision units.
// It is the process-wide naming authority: lookup and insert happen
// under one mutex so that concurrent creation calls for the same
// name cannot both succeed.
type registry struct {
	mu       sync.Mutex
	byName   *treemap.Map
	byHandle map[resource.Handle]*unit
}

func newRegistry() *registry {
	return &registry{
		byName:   treemap.NewWith(utils.StringComparator),
		byHandle: map[resource.Handle]*unit{},
	}
}

// insert adds the unit under its name unless the name is taken.
// It returns the already-registered unit when there is a clash.
func (registry *registry) insert(u *unit) (*unit, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.byName.Get(u.name); ok {
		return existing.(*unit), false
	}

	registry.byName.Put(u.name, u)
	registry.byHandle[u.handle] = u

	return u, true
}

// lookup returns the unit registered under name, or nil
func (registry *registry) lookup(name string) *unit {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.byName.Get(name); ok {
		return existing.(*unit)
	}

	return nil
}

// take removes and returns the unit for a handle.
// It returns nil if the handle isn't registered.
func (registry *registry) take(handle resource.Handle) *unit {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	u, ok := registry.byHandle[handle]

	if !ok {
		return nil
	}

	delete(registry.byHandle, handle)
	registry.byName.Remove(u.name)

	return u
}

// names lists registered store names in ascending order
func (registry *registry) names() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	keys := registry.byName.Keys()
	names := make([]string, len(keys))

	for i, key := range keys {
		names[i] = key.(string)
	}

	return names
}

// units lists all registered units
func (registry *registry) units() []*unit {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	all := make([]*unit, 0, len(registry.byHandle))

	for _, u := range registry.byHandle {
		all = append(all, u)
	}

	return all
}
