package match

import (
	"slices"
	"sync"
)

// Index maps normalized keys to candidate NPIs. Only keys registered with
// Want are retained, which keeps the index proportional to the lookup side
// (e.g. the exclusion list) rather than to the full registry.
type Index struct {
	mu         sync.Mutex
	wanted     map[string]struct{}
	candidates map[string][]string
}

func NewIndex() *Index {
	return &Index{
		wanted:     make(map[string]struct{}),
		candidates: make(map[string][]string),
	}
}

// Want registers key as one the caller will look up. Empty keys are ignored.
func (ix *Index) Want(key string) {
	if key == "" {
		return
	}
	ix.mu.Lock()
	ix.wanted[key] = struct{}{}
	ix.mu.Unlock()
}

// Wants reports whether key was registered.
func (ix *Index) Wants(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.wanted[key]
	return ok
}

// Add records npi as a candidate for key. It returns false when the key was
// never wanted.
func (ix *Index) Add(key, npi string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.wanted[key]; !ok {
		return false
	}
	if !slices.Contains(ix.candidates[key], npi) {
		ix.candidates[key] = append(ix.candidates[key], npi)
	}
	return true
}

// Candidates returns the NPIs recorded for key in ascending order.
func (ix *Index) Candidates(key string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := slices.Clone(ix.candidates[key])
	slices.Sort(out)
	return out
}

// Len returns the number of keys with at least one candidate.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.candidates)
}
