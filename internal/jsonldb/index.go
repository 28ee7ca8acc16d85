// Secondary index over a table, kept current through table notifications.

package jsonldb

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

// Index maps a non-unique key to the IDs of the rows having it.
//
// It is filled from the rows already in the table when created and then
// follows the table as a [TableObserver]. Safe for concurrent use.
type Index[K comparable, T Row[T]] struct {
	table   *Table[T]
	keyFunc func(T) K

	mu   sync.Mutex
	sets map[K]map[ksid.ID]struct{}
}

// NewIndex indexes table by the key returned by keyFunc.
func NewIndex[K comparable, T Row[T]](table *Table[T], keyFunc func(T) K) *Index[K, T] {
	idx := &Index[K, T]{table: table, keyFunc: keyFunc, sets: map[K]map[ksid.ID]struct{}{}}
	table.AddObserver(idx)
	return idx
}

// Keys returns all keys having at least one row, in no particular order.
func (idx *Index[K, T]) Keys() []K {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return slices.Collect(maps.Keys(idx.sets))
}

// Iter yields clones of the rows having key, in ID order.
func (idx *Index[K, T]) Iter(key K) iter.Seq[T] {
	return func(yield func(T) bool) {
		idx.mu.Lock()
		ids := slices.SortedFunc(maps.Keys(idx.sets[key]), cmp.Compare[ksid.ID])
		idx.mu.Unlock()
		var zero T
		for _, id := range ids {
			row := idx.table.Get(id)
			if any(row) == any(zero) {
				// Deleted since the snapshot.
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
}

func (idx *Index[K, T]) add(key K, id ksid.ID) {
	set := idx.sets[key]
	if set == nil {
		set = map[ksid.ID]struct{}{}
		idx.sets[key] = set
	}
	set[id] = struct{}{}
}

func (idx *Index[K, T]) remove(key K, id ksid.ID) {
	set := idx.sets[key]
	delete(set, id)
	if len(set) == 0 {
		delete(idx.sets, key)
	}
}

// OnAppend implements [TableObserver].
func (idx *Index[K, T]) OnAppend(row T) {
	key := idx.keyFunc(row)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(key, row.GetID())
}

// OnUpdate implements [TableObserver].
func (idx *Index[K, T]) OnUpdate(prev, curr T) {
	before, after := idx.keyFunc(prev), idx.keyFunc(curr)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if before != after {
		idx.remove(before, prev.GetID())
	}
	idx.add(after, curr.GetID())
}

// OnDelete implements [TableObserver].
func (idx *Index[K, T]) OnDelete(row T) {
	key := idx.keyFunc(row)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.remove(key, row.GetID())
}
