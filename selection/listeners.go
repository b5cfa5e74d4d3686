package selection

// listeners is an ordered set of change callbacks for one field.
type listeners[T any] struct {
	next    int
	entries []listener[T]
}

type listener[T any] struct {
	id int
	fn func(old, new T)
}

func (l *listeners[T]) add(fn func(old, new T)) (cancel func()) {
	id := l.next
	l.next++
	l.entries = append(l.entries, listener[T]{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				// Copy rather than shift in place so a notify already
				// iterating the old slice is unaffected.
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners[T]) notify(old, new T) {
	for _, e := range l.entries {
		e.fn(old, new)
	}
}
