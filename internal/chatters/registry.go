// Package chatters tracks the display identities recently seen in chat, used
// as an autocomplete namespace.
package chatters

import "strings"

const defaultCapacity = 250

// Registry is a bounded, deduplicated list of identities in recency order,
// newest last. Not safe for concurrent use; the pane serializes access.
type Registry struct {
	capacity int
	entries  []string
	index    map[string]struct{}
}

func NewRegistry() *Registry {
	return NewRegistryWithCapacity(defaultCapacity)
}

func NewRegistryWithCapacity(capacity int) *Registry {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Registry{
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// Touch records identity as the most recent chatter. A re-appearing identity
// moves to the end instead of being duplicated.
func (r *Registry) Touch(identity string) {
	if identity == "" {
		return
	}
	if _, seen := r.index[identity]; seen {
		for i, e := range r.entries {
			if e == identity {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				break
			}
		}
	}
	r.entries = append(r.entries, identity)
	r.index[identity] = struct{}{}
	r.evictOverflow()
}

func (r *Registry) evictOverflow() {
	for len(r.entries) > r.capacity {
		delete(r.index, r.entries[0])
		r.entries = r.entries[1:]
	}
}

// Candidates returns the identities matching prefix case-insensitively,
// preserving recency order (oldest first, like the backing list).
func (r *Registry) Candidates(prefix string) []string {
	lower := strings.ToLower(prefix)
	var out []string
	for _, e := range r.entries {
		if strings.HasPrefix(strings.ToLower(e), lower) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of tracked identities.
func (r *Registry) Len() int { return len(r.entries) }
