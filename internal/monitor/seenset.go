package monitor

import "sort"

// SeenSet is the set of record IDs that have already been handled. IDs are
// only ever added, never removed.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet builds a set holding the given IDs. Empty IDs are ignored.
func NewSeenSet(ids ...string) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(ids))}
	s.Union(ids)
	return s
}

// Has reports whether id was seen before.
func (s *SeenSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Union adds every ID in batch and returns how many were not already present.
func (s *SeenSet) Union(batch []string) int {
	if s.ids == nil {
		s.ids = make(map[string]struct{}, len(batch))
	}
	added := 0
	for _, id := range batch {
		if id == "" {
			continue
		}
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		added++
	}
	return added
}

// Len returns the number of IDs in the set.
func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the members sorted lexically so persisted documents are stable.
func (s *SeenSet) IDs() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s *SeenSet) Clone() *SeenSet {
	return NewSeenSet(s.IDs()...)
}

// Equal reports whether both sets hold the same IDs.
func (s *SeenSet) Equal(other *SeenSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s == nil {
		return true
	}
	for id := range s.ids {
		if !other.Has(id) {
			return false
		}
	}
	return true
}
