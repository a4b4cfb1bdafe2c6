package field

import "sort"

// Store maps field names to their encoded values. It is not safe for
// concurrent use; the owning span guards it.
type Store struct {
	values map[string]string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Get returns the encoded value for key
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set inserts or overwrites key
func (s *Store) Set(key, value string) {
	s.values[key] = value
}

// Record encodes f and stores it under its name
func (s *Store) Record(f Field) {
	s.values[f.Name] = f.Value.Encode()
}

// Delete removes key
func (s *Store) Delete(key string) {
	delete(s.values, key)
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.values)
}

// Clone returns an independent copy
func (s *Store) Clone() *Store {
	c := &Store{values: make(map[string]string, len(s.values))}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Keys returns the keys in ascending order
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every entry in key order until fn returns false
func (s *Store) Range(fn func(key, value string) bool) {
	for _, k := range s.Keys() {
		if !fn(k, s.values[k]) {
			return
		}
	}
}
