package farmers

import (
	"sort"
	"sync"

	"github.com/shareprinto/dispatcher/core/model"
)

// Registry is the directory of farmer profiles known to the dispatcher. It is
// kept in sync by the orders service through the farmers API.
type Registry interface {
	Upsert(f model.Farmer) error
	Get(id string) (model.Farmer, bool)
	List() []model.Farmer
}

// MemoryRegistry implements Registry in process memory.
type MemoryRegistry struct {
	mu   sync.RWMutex
	data map[string]model.Farmer
}

// NewMemoryRegistry creates an empty registry, optionally seeded with profiles.
func NewMemoryRegistry(seed ...model.Farmer) *MemoryRegistry {
	r := &MemoryRegistry{data: map[string]model.Farmer{}}
	for _, f := range seed {
		if err := f.Validate(); err == nil {
			r.data[f.ID] = f
		}
	}
	return r
}

func (r *MemoryRegistry) Upsert(f model.Farmer) error {
	if err := f.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[f.ID] = f
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Get(id string) (model.Farmer, bool) {
	r.mu.RLock()
	f, ok := r.data[id]
	r.mu.RUnlock()
	return f, ok
}

func (r *MemoryRegistry) List() []model.Farmer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]model.Farmer, 0, len(r.data))
	for _, f := range r.data {
		res = append(res, f)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
