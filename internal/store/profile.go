package store

import (
	"errors"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnsupportedSource rejects profile sources that are not walk text.
	ErrUnsupportedSource = errors.New("unsupported profile source")
	// ErrEmptyProfile rejects walks with no usable lines.
	ErrEmptyProfile = errors.New("profile has no usable entries")
)

// Profile is the shared OID map for one device type. Immutable once built;
// every device of the type reads the same tree. The reference count covers
// the registry's own reference plus every in-flight reader, so a replaced
// profile drains to zero as requests finish.
type Profile struct {
	DeviceType string
	Tree       *Tree
	Source     string
	Loaded     time.Time
	Skipped    int

	refs atomic.Int64
}

// NewProfile builds a profile from analyzed records. The caller owns the
// initial reference.
func NewProfile(deviceType, source string, tree *Tree) *Profile {
	p := &Profile{DeviceType: deviceType, Tree: tree, Source: source, Loaded: time.Now()}
	p.refs.Store(1)
	return p
}

// Acquire takes a reference for the duration of a read.
func (p *Profile) Acquire() *Profile {
	if p != nil {
		p.refs.Add(1)
	}
	return p
}

// Release drops a reference taken by Acquire (or the initial one).
func (p *Profile) Release() {
	if p == nil {
		return
	}
	if n := p.refs.Add(-1); n < 0 {
		log.Printf("store: profile %s released below zero", p.DeviceType)
	}
}

// Refs reports the live reference count.
func (p *Profile) Refs() int64 {
	if p == nil {
		return 0
	}
	return p.refs.Load()
}

// Get looks up the entry for oid.
func (p *Profile) Get(oid OID) (*Entry, bool) { return p.Tree.GetOID(oid) }

// Next returns the strict successor of after.
func (p *Profile) Next(after OID) (Node, bool) { return p.Tree.Next(after) }

// BulkWalk returns up to max successors of start.
func (p *Profile) BulkWalk(start OID, max int) []Node { return p.Tree.BulkWalk(start, max) }

// HasSubtree reports whether oid has descendants in the profile.
func (p *Profile) HasSubtree(oid OID) bool { return p.Tree.HasSubtree(oid) }

// Len returns the number of OIDs in the profile.
func (p *Profile) Len() int { return p.Tree.Len() }

// Registry is the process-wide profile table, keyed by device type.
// Installs swap a pointer; readers never block a reload.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*atomic.Pointer[Profile]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*atomic.Pointer[Profile])}
}

func (r *Registry) slot(deviceType string) *atomic.Pointer[Profile] {
	r.mu.RLock()
	s, ok := r.profiles[deviceType]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.profiles[deviceType]; ok {
		return s
	}
	s = &atomic.Pointer[Profile]{}
	r.profiles[deviceType] = s
	return s
}

// Install publishes p as the current profile for its device type, releasing
// the registry's reference on any previous one. The registry takes over the
// caller's reference.
func (r *Registry) Install(p *Profile) {
	old := r.slot(p.DeviceType).Swap(p)
	old.Release()
}

// Acquire returns the current profile for deviceType with a reference held.
// Callers must Release when done.
func (r *Registry) Acquire(deviceType string) (*Profile, bool) {
	r.mu.RLock()
	s, ok := r.profiles[deviceType]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	p := s.Load()
	if p == nil {
		return nil, false
	}
	return p.Acquire(), true
}

// Has reports whether a profile is installed for deviceType.
func (r *Registry) Has(deviceType string) bool {
	p, ok := r.Acquire(deviceType)
	if ok {
		p.Release()
	}
	return ok
}

// List returns the device types with installed profiles, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for dt, s := range r.profiles {
		if s.Load() != nil {
			out = append(out, dt)
		}
	}
	sort.Strings(out)
	return out
}

// GetOIDValue is a one-shot lookup against the current profile.
func (r *Registry) GetOIDValue(deviceType string, oid OID) (*Entry, bool) {
	p, ok := r.Acquire(deviceType)
	if !ok {
		return nil, false
	}
	defer p.Release()
	return p.Get(oid)
}

// GetNextOID is a one-shot successor query against the current profile.
func (r *Registry) GetNextOID(deviceType string, oid OID) (Node, bool) {
	p, ok := r.Acquire(deviceType)
	if !ok {
		return Node{}, false
	}
	defer p.Release()
	return p.Next(oid)
}

// BulkWalk is a one-shot ordered scan against the current profile.
func (r *Registry) BulkWalk(deviceType string, start OID, max int) []Node {
	p, ok := r.Acquire(deviceType)
	if !ok {
		return nil
	}
	defer p.Release()
	return p.BulkWalk(start, max)
}
