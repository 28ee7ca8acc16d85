// Package jsonldb provides a generic, concurrent-safe, JSONL-backed data store.
//
// # Overview
//
// The package centers around [Table], a generic container that stores rows in a
// JSONL (JSON Lines) file with full in-memory caching for fast reads. Tables are
// safe for concurrent use by multiple goroutines.
//
// Rows implement [Row]: they clone themselves so callers never share state with
// the cache, expose a [ksid.ID] primary key and validate before being written.
//
// # Secondary Indexes
//
// [Index] provides O(1) lookups by an arbitrary non-unique key, staying
// synchronized with table mutations via [TableObserver].
//
// # File Format
//
// JSONL files with line 1 as schema header, subsequent lines as JSON rows.
// Rows are sorted by ID on load if out of order (handles clock drift, manual edits).
// Rewrites go through a temporary file renamed over the original so readers
// never observe a partially written table.
package jsonldb
