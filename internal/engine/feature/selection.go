package feature

import "sort"

// SelectionSet groups feature identifiers by collection name. A
// selection is transient: it is built for a single operation and the
// membership is fixed at build time.
type SelectionSet map[string][]ID

// NewSelection returns an empty selection set.
func NewSelection() SelectionSet {
	return make(SelectionSet)
}

// Add inserts identifiers into the selection for a collection,
// keeping the per-collection list sorted and free of duplicates.
func (s SelectionSet) Add(collection string, ids ...ID) {
	if len(ids) == 0 {
		return
	}
	existing := s[collection]
	for _, id := range ids {
		i := sort.Search(len(existing), func(i int) bool { return existing[i] >= id })
		if i < len(existing) && existing[i] == id {
			continue
		}
		existing = append(existing, 0)
		copy(existing[i+1:], existing[i:])
		existing[i] = id
	}
	s[collection] = existing
}

// IDs returns the identifiers selected in a collection, in ascending
// order. The returned slice is a copy.
func (s SelectionSet) IDs(collection string) []ID {
	ids := s[collection]
	if len(ids) == 0 {
		return nil
	}
	out := make([]ID, len(ids))
	copy(out, ids)
	return out
}

// Contains reports whether the selection includes the identifier.
func (s SelectionSet) Contains(collection string, id ID) bool {
	ids := s[collection]
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	return i < len(ids) && ids[i] == id
}

// Collections returns the collection names present in the selection,
// sorted.
func (s SelectionSet) Collections() []string {
	names := make([]string, 0, len(s))
	for name, ids := range s {
		if len(ids) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the total number of selected identifiers.
func (s SelectionSet) Count() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// Clone returns an independent copy of the selection.
func (s SelectionSet) Clone() SelectionSet {
	out := make(SelectionSet, len(s))
	for name, ids := range s {
		cp := make([]ID, len(ids))
		copy(cp, ids)
		out[name] = cp
	}
	return out
}
