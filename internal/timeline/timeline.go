// Package timeline buckets timestamped records by calendar date.
//
// Group builds the buckets from scratch; Append merges one new record
// without touching its inputs, so callers comparing old and new values can
// tell that something changed. Date keys come from plain string truncation
// of the timestamp at 'T'; no timezone conversion happens here.
package timeline

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Record is a content item tagged with its creation timestamp (ISO-8601).
type Record struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// DateKey returns the date portion of an ISO-8601 timestamp: everything
// before the first 'T', or the whole string when there is none.
func DateKey(timestamp string) string {
	if i := strings.IndexByte(timestamp, 'T'); i >= 0 {
		return timestamp[:i]
	}
	return timestamp
}

// Key is the DateKey of the record's timestamp.
func (r Record) Key() string {
	return DateKey(r.Timestamp)
}

// Groups maps date keys to records. Keys iterate in first-seen order and
// each bucket keeps the order records were added in. The zero value is an
// empty mapping.
type Groups struct {
	keys    []string
	buckets map[string][]Record
}

// Get returns a copy of the bucket for key.
func (g Groups) Get(key string) ([]Record, bool) {
	b, ok := g.buckets[key]
	if !ok {
		return nil, false
	}
	return append([]Record(nil), b...), true
}

func (g Groups) Has(key string) bool {
	_, ok := g.buckets[key]
	return ok
}

// Keys returns the date keys in first-seen order.
func (g Groups) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Len is the number of buckets.
func (g Groups) Len() int {
	return len(g.keys)
}

// Count is the number of records across all buckets.
func (g Groups) Count() int {
	n := 0
	for _, b := range g.buckets {
		n += len(b)
	}
	return n
}

// Map returns a plain map copy of the buckets.
func (g Groups) Map() map[string][]Record {
	out := make(map[string][]Record, len(g.buckets))
	for k, b := range g.buckets {
		out[k] = append([]Record(nil), b...)
	}
	return out
}

// MarshalJSON encodes the groups as an object whose members follow key order.
func (g Groups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(g.buckets[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// with returns a copy of g with r appended to the bucket for key. Buckets
// other than key are shared with g; they are never written through.
func (g Groups) with(key string, r Record) Groups {
	next := Groups{
		keys:    g.keys,
		buckets: make(map[string][]Record, len(g.buckets)+1),
	}
	for k, b := range g.buckets {
		next.buckets[k] = b
	}
	old, ok := g.buckets[key]
	if !ok {
		next.keys = make([]string, len(g.keys), len(g.keys)+1)
		copy(next.keys, g.keys)
		next.keys = append(next.keys, key)
	}
	bucket := make([]Record, len(old), len(old)+1)
	copy(bucket, old)
	next.buckets[key] = append(bucket, r)
	return next
}

// Index lists distinct date keys, most recent first.
type Index []string

func (idx Index) Contains(key string) bool {
	for _, k := range idx {
		if k == key {
			return true
		}
	}
	return false
}

// First returns the most recent key, or "" when the index is empty.
func (idx Index) First() string {
	if len(idx) == 0 {
		return ""
	}
	return idx[0]
}

// Group buckets records by DateKey. Within a bucket records keep their input
// order. The index holds every key exactly once, sorted descending; for
// YYYY-MM-DD keys lexicographic order is chronological order.
func Group(records []Record) (Groups, Index) {
	g := Groups{buckets: make(map[string][]Record)}
	for _, r := range records {
		key := r.Key()
		if _, ok := g.buckets[key]; !ok {
			g.keys = append(g.keys, key)
		}
		g.buckets[key] = append(g.buckets[key], r)
	}

	idx := make(Index, len(g.keys))
	copy(idx, g.keys)
	sort.Sort(sort.Reverse(sort.StringSlice(idx)))
	return g, idx
}

// Append adds r to the end of its date bucket and returns the updated pair.
// A key not yet in idx is put at the front without re-sorting: new records
// are expected to carry the current date. When the key is already indexed
// idx is returned as is. Neither g nor idx is modified.
func Append(g Groups, idx Index, r Record) (Groups, Index) {
	key := r.Key()
	next := g.with(key, r)
	if idx.Contains(key) {
		return next, idx
	}
	nextIdx := make(Index, 0, len(idx)+1)
	nextIdx = append(nextIdx, key)
	nextIdx = append(nextIdx, idx...)
	return next, nextIdx
}
