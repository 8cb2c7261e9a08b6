// Package index maintains the in-memory mapping from key to the location
// of its most recent value.
package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/hupe1980/partstore/internal/record"
)

// scanBuffer is the read-ahead used while scanning index segments.
const scanBuffer = 256 * record.Size

// Table maps keys to their latest record. Last write wins.
type Table struct {
	data       map[string]record.Record
	totalBytes uint64
	tornBytes  uint64
}

// New returns an empty table.
func New() *Table {
	return &Table{data: make(map[string]record.Record)}
}

// Rebuild scans every source in order and replays its records.
//
// Each source is read in record.Size chunks until it is exhausted. A short
// trailing chunk ends that source and is counted in TornBytes. A chunk that
// fails to decode aborts the whole rebuild.
func Rebuild(sources ...io.Reader) (*Table, error) {
	t := New()
	chunk := make([]byte, record.Size)

	for i, src := range sources {
		r := bufio.NewReaderSize(src, scanBuffer)
		var pos int64
		for {
			n, err := io.ReadFull(r, chunk)
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				t.tornBytes += uint64(n)
				break
			}
			if err != nil {
				return nil, fmt.Errorf("source %d offset %d: %w", i, pos, err)
			}

			rec, err := record.Decode(chunk)
			if err != nil {
				return nil, fmt.Errorf("source %d offset %d: %w", i, pos, err)
			}
			t.put(rec)
			pos += record.Size
		}
	}

	return t, nil
}

// Put records rec as the latest location of its key.
func (t *Table) Put(rec record.Record) error {
	if _, err := rec.Key(); err != nil {
		return err
	}
	t.put(rec)
	return nil
}

func (t *Table) put(rec record.Record) {
	key, _ := rec.Key()
	t.data[key] = rec
	t.totalBytes += rec.DataSize()
}

// Get returns the latest record for key.
func (t *Table) Get(key string) (record.Record, bool) {
	rec, ok := t.data[key]
	return rec, ok
}

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.data) }

// TotalBytes returns the payload bytes of every record ever indexed,
// including values that were later overwritten.
func (t *Table) TotalBytes() uint64 { return t.totalBytes }

// TornBytes returns the number of trailing bytes skipped during Rebuild
// because they did not form a whole record.
func (t *Table) TornBytes() uint64 { return t.tornBytes }

// Keys returns all keys in ascending order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
