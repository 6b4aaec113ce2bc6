package unit

import (
	"cmp"
	"slices"
)

type entry[T any] struct {
	priority int
	seq      uint64
	handler  T
}

// table keeps handlers ordered by (priority, seq). seq is a per-unit
// monotonic counter, so equal priorities run in registration order.
type table[T any] struct {
	entries []entry[T]
}

func (t *table[T]) add(priority int, seq uint64, handler T) {
	t.entries = append(t.entries, entry[T]{priority: priority, seq: seq, handler: handler})
	slices.SortStableFunc(t.entries, func(a, b entry[T]) int {
		if c := cmp.Compare(a.priority, b.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

func (t *table[T]) snapshot() []T {
	if t == nil {
		return nil
	}

	out := make([]T, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.handler)
	}
	return out
}

func (t *table[T]) len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
