package capi

import (
	"fmt"
	"sync"

	"github.com/jpl-au/densevdb"
)

// Handle identifies a writer, reader or grid owned by the registry. Zero is
// never issued and stands for "no handle" (for example an absent mask).
type Handle uint64

// ErrInvalidHandle is returned for handles that were never issued, were
// released, or name the wrong kind of object.
var ErrInvalidHandle = fmt.Errorf("%w: invalid handle", densevdb.ErrInvalidArgument)

// gridRef ties a grid handle to the session that produced it.
type gridRef struct {
	grid  *densevdb.Grid
	owner Handle
}

// registry maps handles to live objects. Sessions themselves are not safe
// for concurrent use; the registry only serialises the handle table.
type registry struct {
	mu      sync.Mutex
	next    Handle
	config  densevdb.Config
	writers map[Handle]*densevdb.Writer
	readers map[Handle]*densevdb.Reader
	grids   map[Handle]gridRef
}

var handles = newRegistry()

func newRegistry() *registry {
	return &registry{
		writers: make(map[Handle]*densevdb.Writer),
		readers: make(map[Handle]*densevdb.Reader),
		grids:   make(map[Handle]gridRef),
	}
}

func (r *registry) settings() densevdb.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

// issue must be called with mu held.
func (r *registry) issue() Handle {
	r.next++
	return r.next
}

func (r *registry) addWriter() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.issue()
	r.writers[h] = densevdb.NewWriter(r.config)
	return h
}

func (r *registry) addReader() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.issue()
	r.readers[h] = densevdb.NewReader(r.config)
	return h
}

func (r *registry) addGrid(g *densevdb.Grid, owner Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.issue()
	r.grids[h] = gridRef{grid: g, owner: owner}
	return h
}

func (r *registry) writer(h Handle) (*densevdb.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[h]
	if !ok {
		return nil, fmt.Errorf("%w: writer %d", ErrInvalidHandle, h)
	}
	return w, nil
}

func (r *registry) reader(h Handle) (*densevdb.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.readers[h]
	if !ok {
		return nil, fmt.Errorf("%w: reader %d", ErrInvalidHandle, h)
	}
	return rd, nil
}

// grid resolves an optional grid handle. Zero yields nil.
func (r *registry) grid(h Handle) (*densevdb.Grid, error) {
	if h == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.grids[h]
	if !ok {
		return nil, fmt.Errorf("%w: grid %d", ErrInvalidHandle, h)
	}
	return ref.grid, nil
}

// dropWriter removes a writer and every grid handle it issued.
func (r *registry) dropWriter(h Handle) (*densevdb.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[h]
	if !ok {
		return nil, fmt.Errorf("%w: writer %d", ErrInvalidHandle, h)
	}
	delete(r.writers, h)
	for gh, ref := range r.grids {
		if ref.owner == h {
			delete(r.grids, gh)
		}
	}
	return w, nil
}

func (r *registry) dropReader(h Handle) (*densevdb.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rd, ok := r.readers[h]
	if !ok {
		return nil, fmt.Errorf("%w: reader %d", ErrInvalidHandle, h)
	}
	delete(r.readers, h)
	return rd, nil
}

// live reports the number of objects still registered.
func (r *registry) live() (writers, readers, grids int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writers), len(r.readers), len(r.grids)
}
