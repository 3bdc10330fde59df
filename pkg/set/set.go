package set

import (
	"iter"
)

type Set[T comparable] map[T]struct{}

func New[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	s.Add(items...)
	return s
}

// Collect builds a set from a sequence, consuming it fully.
func Collect[T comparable](seq iter.Seq[T]) Set[T] {
	s := make(Set[T])
	for item := range seq {
		s[item] = struct{}{}
	}
	return s
}

func (s Set[T]) Add(items ...T) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

func (s Set[T]) Remove(item T) {
	delete(s, item)
}

func (s Set[T]) Contains(item T) bool {
	_, exists := s[item]
	return exists
}

func (s Set[T]) Size() int {
	return len(s)
}

// First returns the first item of seq that is in the set.
func (s Set[T]) First(seq iter.Seq[T]) (T, bool) {
	for item := range seq {
		if s.Contains(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}
