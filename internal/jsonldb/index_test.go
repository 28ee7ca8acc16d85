package jsonldb

import (
	"slices"
	"testing"
)

func TestIndex(t *testing.T) {
	table, path := setupTable(t)
	_ = table.Append(&testRow{ID: 1, Name: "alpha"})
	_ = table.Append(&testRow{ID: 2, Name: "beta"})

	// Index over existing rows, keyed by first letter.
	idx := NewIndex(table, func(r *testRow) string { return r.Name[:1] })
	_ = table.Append(&testRow{ID: 3, Name: "apex"})

	t.Run("Iter", func(t *testing.T) {
		tests := []struct {
			key  string
			want []string
		}{
			{"a", []string{"alpha", "apex"}},
			{"b", []string{"beta"}},
			{"z", nil},
		}
		for _, tt := range tests {
			t.Run(tt.key, func(t *testing.T) {
				if got := names(idx.Iter(tt.key)); !slices.Equal(got, tt.want) {
					t.Errorf("Iter(%q) = %v, want %v", tt.key, got, tt.want)
				}
			})
		}
	})

	t.Run("Update moves key", func(t *testing.T) {
		if _, err := table.Update(&testRow{ID: 2, Name: "able"}); err != nil {
			t.Fatal(err)
		}
		if got := names(idx.Iter("a")); !slices.Equal(got, []string{"alpha", "able", "apex"}) {
			t.Errorf("Iter(a) = %v", got)
		}
		if got := names(idx.Iter("b")); got != nil {
			t.Errorf("Iter(b) = %v, want nil", got)
		}
		keys := idx.Keys()
		slices.Sort(keys)
		if !slices.Equal(keys, []string{"a"}) {
			t.Errorf("Keys() = %v, want [a]", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if _, err := table.Delete(1); err != nil {
			t.Fatal(err)
		}
		if got := names(idx.Iter("a")); !slices.Equal(got, []string{"able", "apex"}) {
			t.Errorf("Iter(a) = %v", got)
		}
	})

	t.Run("rebuilt on reload", func(t *testing.T) {
		idx2 := NewIndex(reload(t, path), func(r *testRow) string { return r.Name[:1] })
		if got := names(idx2.Iter("a")); !slices.Equal(got, []string{"able", "apex"}) {
			t.Errorf("Iter(a) = %v", got)
		}
	})
}
