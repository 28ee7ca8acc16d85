package jsonldb

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

var (
	errZeroID    = errors.New("row ID is zero")
	errDuplicate = errors.New("row ID already exists")
)

// Row is implemented by types stored in a [Table].
type Row[T any] interface {
	// Clone returns a deep copy.
	Clone() T
	// GetID returns the primary key; it must be non-zero.
	GetID() ksid.ID
	// Validate is called before every write.
	Validate() error
}

// TableObserver is notified after each successful mutation, while the table
// write lock is held. Implementations must not call back into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path    string
	columns []column

	mu        sync.RWMutex
	rows      []T // sorted by ID
	byID      map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	columns, err := schemaFromType[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema for %s: %w", path, err)
	}
	table := &Table[T]{
		path:    path,
		columns: columns,
	}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

// Path returns the backing file path.
func (t *Table[T]) Path() string {
	return t.path
}

func (t *Table[T]) load() error {
	rows, err := t.read()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = map[ksid.ID]int{}
	t.setRows(rows)
	return nil
}

// Reload re-reads the file, picking up writes made by other processes, and
// reports the differences to the observers. On error the cache is unchanged.
func (t *Table[T]) Reload() error {
	rows, err := t.read()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.rows
	prevByID := maps.Clone(t.byID)
	t.setRows(rows)
	for _, row := range rows {
		if i, ok := prevByID[row.GetID()]; ok {
			for _, o := range t.observers {
				o.OnUpdate(prev[i], row)
			}
		} else {
			for _, o := range t.observers {
				o.OnAppend(row)
			}
		}
	}
	for _, row := range prev {
		if _, ok := t.byID[row.GetID()]; !ok {
			for _, o := range t.observers {
				o.OnDelete(row)
			}
		}
	}
	return nil
}

// read parses the whole file. A missing file is an empty table.
func (t *Table[T]) read() ([]T, error) {
	rows := []T{}
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return rows, nil
		}
		return nil, fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReader(f)
	lineNo := 0
	sawHeader := false
	for {
		line, err := r.ReadBytes('\n')
		if len(line) != 0 {
			lineNo++
			line = bytes.TrimSpace(line)
		}
		if len(line) != 0 {
			if !sawHeader {
				var h schemaHeader
				if err := json.Unmarshal(line, &h); err != nil {
					return nil, fmt.Errorf("failed to parse schema header in %s: %w", t.path, err)
				}
				if err := h.Validate(); err != nil {
					return nil, fmt.Errorf("invalid schema header in %s: %w", t.path, err)
				}
				sawHeader = true
			} else {
				var row T
				if err := json.Unmarshal(line, &row); err != nil {
					return nil, fmt.Errorf("failed to unmarshal row at %s:%d: %w", t.path, lineNo, err)
				}
				if err := row.Validate(); err != nil {
					return nil, fmt.Errorf("invalid row at %s:%d: %w", t.path, lineNo, err)
				}
				rows = append(rows, row)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read table file %s: %w", t.path, err)
		}
	}
	if !slices.IsSortedFunc(rows, compareRows[T]) {
		slices.SortStableFunc(rows, compareRows[T])
	}
	return rows, nil
}

func compareRows[T Row[T]](a, b T) int {
	return cmp.Compare(a.GetID(), b.GetID())
}

// AddObserver registers o and replays existing rows to it as appends.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
	for _, row := range t.rows {
		o.OnAppend(row)
	}
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.byID[id]; ok {
		return t.rows[i].Clone()
	}
	var zero T
	return zero
}

// Iter returns an iterator over clones of rows with an ID greater than
// startID, in ID order. Use 0 to iterate over all rows.
func (t *Table[T]) Iter(startID ksid.ID) iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		i, _ := slices.BinarySearchFunc(t.rows, startID, func(row T, id ksid.ID) int {
			return cmp.Compare(row.GetID(), id)
		})
		for ; i < len(t.rows); i++ {
			if t.rows[i].GetID() == startID {
				continue
			}
			if !yield(t.rows[i].Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	id := row.GetID()
	if id.IsZero() {
		return errZeroID
	}
	row = row.Clone()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; ok {
		return fmt.Errorf("%w: %s", errDuplicate, id)
	}
	if n := len(t.rows); n != 0 && t.rows[n-1].GetID() > id {
		// Out of order ID: insert and rewrite.
		i, _ := slices.BinarySearchFunc(t.rows, row, compareRows[T])
		rows := slices.Insert(slices.Clone(t.rows), i, row)
		if err := t.save(rows); err != nil {
			return err
		}
		t.setRows(rows)
	} else {
		if err := t.appendLine(row); err != nil {
			return err
		}
		t.byID[id] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	for _, o := range t.observers {
		o.OnAppend(row)
	}
	return nil
}

// Update replaces the row with the same ID and returns the previous version,
// or the zero value when no such row exists (nothing is written then).
func (t *Table[T]) Update(row T) (T, error) {
	var zero T
	if err := row.Validate(); err != nil {
		return zero, fmt.Errorf("invalid row: %w", err)
	}
	row = row.Clone()

	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[row.GetID()]
	if !ok {
		return zero, nil
	}
	rows := slices.Clone(t.rows)
	prev := rows[i]
	rows[i] = row
	if err := t.save(rows); err != nil {
		return zero, err
	}
	t.rows = rows
	for _, o := range t.observers {
		o.OnUpdate(prev, row)
	}
	return prev.Clone(), nil
}

// Delete removes the row with the given ID. It reports whether a row was
// removed.
func (t *Table[T]) Delete(id ksid.ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.byID[id]
	if !ok {
		return false, nil
	}
	prev := t.rows[i]
	rows := slices.Delete(slices.Clone(t.rows), i, i+1)
	if err := t.save(rows); err != nil {
		return false, err
	}
	t.setRows(rows)
	for _, o := range t.observers {
		o.OnDelete(prev)
	}
	return true, nil
}

func (t *Table[T]) setRows(rows []T) {
	t.rows = rows
	clear(t.byID)
	for i, row := range rows {
		t.byID[row.GetID()] = i
	}
}

func (t *Table[T]) header() ([]byte, error) {
	return json.Marshal(&schemaHeader{Version: currentVersion, Columns: t.columns})
}

// appendLine appends a single row, writing the schema header first when the
// file is new.
func (t *Table[T]) appendLine(row T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are not secret
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	}
	var buf bytes.Buffer
	if st.Size() == 0 {
		h, err := t.header()
		if err != nil {
			return fmt.Errorf("failed to marshal schema header: %w", err)
		}
		buf.Write(h)
		buf.WriteByte('\n')
	}
	buf.Write(data)
	buf.WriteByte('\n')
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// save rewrites the whole table through a temporary file.
func (t *Table[T]) save(rows []T) error {
	h, err := t.header()
	if err != nil {
		return fmt.Errorf("failed to marshal schema header: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(h)
	buf.WriteByte('\n')
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return writeFileAtomic(t.path, buf.Bytes())
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}
