package sensors

import "iter"

// Ordered is a read-only association that remembers insertion order. The
// zero value is empty. Only this package can add entries, so a View handed
// to consumers can never be modified through it.
type Ordered[K comparable, V any] struct {
	keys   []K
	values []V
	index  map[K]int
}

// Len returns the number of entries.
func (o *Ordered[K, V]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Get returns the value stored under key.
func (o *Ordered[K, V]) Get(key K) (V, bool) {
	if o == nil {
		var zero V
		return zero, false
	}
	i, ok := o.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return o.values[i], true
}

// Has reports whether key is present.
func (o *Ordered[K, V]) Has(key K) bool {
	_, ok := o.Get(key)
	return ok
}

// At returns the i'th entry in insertion order.
func (o *Ordered[K, V]) At(i int) (K, V) {
	return o.keys[i], o.values[i]
}

// First returns the earliest inserted entry. ok is false when empty.
func (o *Ordered[K, V]) First() (key K, value V, ok bool) {
	if o.Len() < 1 {
		return key, value, false
	}
	return o.keys[0], o.values[0], true
}

// Keys returns a copy of the keys in insertion order.
func (o *Ordered[K, V]) Keys() []K {
	if o == nil {
		return nil
	}
	return append([]K(nil), o.keys...)
}

// All iterates entries in insertion order.
func (o *Ordered[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := 0; i < o.Len(); i++ {
			if !yield(o.keys[i], o.values[i]) {
				return
			}
		}
	}
}

// put adds a new entry, returning false if key is already present.
func (o *Ordered[K, V]) put(key K, value V) bool {
	if o.index == nil {
		o.index = make(map[K]int)
	}
	if _, exists := o.index[key]; exists {
		return false
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
	return true
}
