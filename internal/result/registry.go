package result

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/do"
)

// Registry is the server side counterpart of browser object URLs: each Encode
// stores the document under a fresh id until its handle is released.
type Registry struct {
	prefix string

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix:  strings.TrimRight(prefix, "/") + "/",
		objects: make(map[string][]byte),
	}
}

func NewRegistryFromInjector(i *do.Injector) (*Registry, error) {
	return NewRegistry(do.MustInvokeNamed[string](i, "results_path")), nil
}

func (r *Registry) Encode(svg []byte) Handle {
	id := uuid.NewString()

	r.mu.Lock()
	r.objects[id] = svg
	r.mu.Unlock()

	return &objectHandle{registry: r, id: id, svg: svg}
}

// Lookup returns the document stored under id, if it has not been revoked.
func (r *Registry) Lookup(id string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svg, ok := r.objects[id]
	return svg, ok
}

// Len reports the number of live objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Shutdown drops every object. It satisfies do.Shutdownable.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	clear(r.objects)
	r.mu.Unlock()
	return nil
}

func (r *Registry) revoke(id string) {
	r.mu.Lock()
	delete(r.objects, id)
	r.mu.Unlock()
}

type objectHandle struct {
	registry *Registry
	id       string
	svg      []byte
	once     sync.Once
}

func (h *objectHandle) URL() string { return h.registry.prefix + h.id }
func (h *objectHandle) SVG() []byte { return h.svg }

func (h *objectHandle) Release() {
	h.once.Do(func() { h.registry.revoke(h.id) })
}
