package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mjasion/balena-home/coned_rtu/reading"
)

// ErrOverlappingReading is returned when a reading overlaps a different
// reading already stored in its bucket
var ErrOverlappingReading = errors.New("reading overlaps an existing reading")

// Store is an ordered collection of readings, grouped into buckets keyed by
// reading.Bucket. Iteration yields buckets in ascending key order, and each
// bucket in ascending start order.
//
// Store is not safe for concurrent use. Callers sharing a Store between
// goroutines must serialize access.
type Store struct {
	buckets map[string][]reading.Reading
	// keys holds every bucket key in ascending order
	keys []string
}

// New creates an empty Store
func New() *Store {
	return &Store{
		buckets: make(map[string][]reading.Reading),
	}
}

// Bucket returns the readings stored under key, in start order.
// The bucket is created if it does not exist yet.
func (s *Store) Bucket(key string) []reading.Reading {
	return slices.Clone(s.bucket(key))
}

// bucket returns the live bucket slice, creating and indexing it on first use
func (s *Store) bucket(key string) []reading.Reading {
	b, ok := s.buckets[key]
	if !ok {
		b = []reading.Reading{}
		s.buckets[key] = b

		i, _ := slices.BinarySearch(s.keys, key)
		s.keys = slices.Insert(s.keys, i, key)
	}
	return b
}

// Insert adds r to its bucket. Inserting a reading equal to one already
// stored is a no-op. A reading that overlaps a different stored reading is
// rejected with ErrOverlappingReading and the store is left unchanged.
func (s *Store) Insert(r reading.Reading) error {
	key := r.Bucket()
	b := s.bucket(key)

	for _, existing := range b {
		if existing.Equal(r) {
			return nil
		}
	}
	for _, existing := range b {
		if existing.Overlaps(r) {
			return fmt.Errorf("%w: %s overlaps %s", ErrOverlappingReading, r, existing)
		}
	}

	b = append(b, r)
	slices.SortStableFunc(b, func(x, y reading.Reading) int {
		return x.Start().Compare(y.Start())
	})
	s.buckets[key] = b

	return nil
}

// Contains reports whether a reading equal to r is stored
func (s *Store) Contains(r reading.Reading) bool {
	return slices.ContainsFunc(s.buckets[r.Bucket()], r.Equal)
}

// ReadingsForBucket returns a copy of the readings stored under key.
// Unlike Bucket it never creates a bucket.
func (s *Store) ReadingsForBucket(key string) []reading.Reading {
	return slices.Clone(s.buckets[key])
}

// Readings returns every stored reading in bucket key order, then start order
func (s *Store) Readings() []reading.Reading {
	out := make([]reading.Reading, 0, s.Len())
	for _, key := range s.keys {
		out = append(out, s.buckets[key]...)
	}
	return out
}

// Keys returns the bucket keys in ascending order
func (s *Store) Keys() []string {
	return slices.Clone(s.keys)
}

// Len returns the number of stored readings
func (s *Store) Len() int {
	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}
