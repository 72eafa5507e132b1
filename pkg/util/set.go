package util

// Set is a simple membership set
type Set[T comparable] map[T]struct{}

// SetOf creates a Set containing the provided values
func SetOf[T comparable](values ...T) Set[T] {
	res := make(Set[T], len(values))
	for _, v := range values {
		res.Add(v)
	}
	return res
}

// Add inserts a value
func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

// Remove deletes a value
func (s Set[T]) Remove(v T) {
	delete(s, v)
}

// Contains reports whether the value is present
func (s Set[T]) Contains(v T) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of values
func (s Set[T]) Len() int {
	return len(s)
}

// IsEmpty reports whether the set has no values
func (s Set[T]) IsEmpty() bool {
	return len(s) == 0
}
