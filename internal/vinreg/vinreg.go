// Package vinreg maps external vins to dense 16-bit internal ids.
//
// Ids are assigned monotonically on first write and never reused. Lookups take
// a read lock; a miss upgrades to the write lock and re-checks before
// assigning, so every vin receives exactly one id even under concurrent writers.
package vinreg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/hupe1980/vinstore/model"
)

const (
	magic   = 0x5652494E // "VRIN"
	version = 1
)

// ErrFull is returned when the registry has no ids left.
var ErrFull = errors.New("vinreg: registry full")

// Registry is a bidirectional vin <-> vid map. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	byVin    map[model.Vin]uint16
	byVid    []model.Vin
}

// New returns an empty registry holding at most capacity vins (at most 1<<16).
func New(capacity int) *Registry {
	if capacity <= 0 || capacity > 1<<16 {
		panic(fmt.Sprintf("vinreg: capacity %d out of range; this is a bug", capacity))
	}
	return &Registry{
		capacity: capacity,
		byVin:    make(map[model.Vin]uint16),
	}
}

// Lookup returns the id of vin without assigning one.
func (r *Registry) Lookup(vin model.Vin) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vid, ok := r.byVin[vin]
	return vid, ok
}

// Resolve returns the id of vin, assigning the next free id on first use.
func (r *Registry) Resolve(vin model.Vin) (uint16, error) {
	if vid, ok := r.Lookup(vin); ok {
		return vid, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if vid, ok := r.byVin[vin]; ok {
		return vid, nil
	}
	if len(r.byVid) >= r.capacity {
		return 0, fmt.Errorf("%w: %d vins", ErrFull, r.capacity)
	}
	vid := uint16(len(r.byVid))
	r.byVin[vin] = vid
	r.byVid = append(r.byVid, vin)
	return vid, nil
}

// Vin returns the vin assigned to vid.
func (r *Registry) Vin(vid uint16) (model.Vin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(vid) >= len(r.byVid) {
		return model.Vin{}, false
	}
	return r.byVid[vid], true
}

// Len returns the number of registered vins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byVid)
}

// Save persists the registry.
//
// Payload:
//
//	Count (4 bytes)
//	Entries...
//	  Vin (17 bytes)
//	  Vid (2 bytes)
func (r *Registry) Save(fsys fs.FileSystem, path string) error {
	r.mu.RLock()
	enc := metafile.NewEncoder(4 + len(r.byVid)*(model.VinLength+2))
	enc.Uint32(uint32(len(r.byVid)))
	for vid, vin := range r.byVid {
		enc.Raw(vin[:])
		enc.Uint16(uint16(vid))
	}
	r.mu.RUnlock()
	return metafile.Write(fsys, path, magic, version, enc.Bytes())
}

// Load reads a registry written by Save. Both directions of the map are
// rebuilt and checked for consistency.
func Load(fsys fs.FileSystem, path string, capacity int) (*Registry, error) {
	payload, err := metafile.Read(fsys, path, magic, version)
	if err != nil {
		return nil, err
	}

	r := New(capacity)
	dec := metafile.NewDecoder(payload)
	n := int(dec.Uint32())
	if n > capacity {
		return nil, fmt.Errorf("%w: %d vins exceed capacity %d", metafile.ErrCorrupt, n, capacity)
	}
	r.byVid = make([]model.Vin, n)
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		var vin model.Vin
		copy(vin[:], dec.Raw(model.VinLength))
		vid := int(dec.Uint16())
		if dec.Err() != nil {
			return nil, dec.Err()
		}
		if vid >= n || seen[vid] {
			return nil, fmt.Errorf("%w: vid %d out of range or duplicated", metafile.ErrCorrupt, vid)
		}
		if _, dup := r.byVin[vin]; dup {
			return nil, fmt.Errorf("%w: vin %q registered twice", metafile.ErrCorrupt, vin)
		}
		seen[vid] = true
		r.byVid[vid] = vin
		r.byVin[vin] = uint16(vid)
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return r, nil
}
