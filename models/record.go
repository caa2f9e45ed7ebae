package models

import (
	"fmt"
	"strings"
	"time"
)

// Record is one harvested entity: column name to value. An empty value is
// treated as absent when merging.
type Record map[string]string

// Get returns the trimmed value of field.
func (r Record) Get(field string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r[field])
}

// Has reports whether field carries a non-empty value.
func (r Record) Has(field string) bool {
	return r.Get(field) != ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of old with every non-empty value from update applied.
func Merge(old, update Record) Record {
	out := old.Clone()
	for k, v := range update {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Schema fixes the column layout of the output files.
type Schema struct {
	Version string
	Columns []string
	Key     string
}

// KeyIndex returns the position of the key column, or -1.
func (s Schema) KeyIndex() int {
	for i, c := range s.Columns {
		if c == s.Key {
			return i
		}
	}
	return -1
}

// Validate checks that the key is one of the columns and columns are unique.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if c == "" {
			return fmt.Errorf("schema has an empty column name")
		}
		if _, ok := seen[c]; ok {
			return fmt.Errorf("schema column %q is duplicated", c)
		}
		seen[c] = struct{}{}
	}
	if s.KeyIndex() < 0 {
		return fmt.Errorf("schema key %q is not a column", s.Key)
	}
	return nil
}

// Values lays the record out in column order.
func (s Schema) Values(r Record) []string {
	values := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		values[i] = r[c]
	}
	return values
}

// FromValues builds a record from a row laid out in column order.
func (s Schema) FromValues(values []string) Record {
	r := make(Record, len(s.Columns))
	for i, c := range s.Columns {
		if i < len(values) {
			r[c] = values[i]
		}
	}
	return r
}

// StandardSchema is the versioned product column layout, keyed by sku.
var StandardSchema = Schema{
	Version: "v1",
	Columns: standardColumns(),
	Key:     "sku",
}

func standardColumns() []string {
	columns := []string{
		"source", "date", "apiURL", "url", "sku", "name", "brand", "price",
		"previousPrice", "onSale", "saleText", "cat", "subcat1", "subcat2",
		"subcat3", "subcat4", "subcat5", "warranty", "image1", "image2",
		"image3", "image4", "image5", "desc", "reviewCount", "reviewRating",
	}
	for _, prefix := range []string{"attributeTitle", "attributeValue", "attributeType"} {
		for i := 1; i <= 20; i++ {
			columns = append(columns, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	return columns
}

// Brand is a manufacturer discovered from a browse sitemap.
type Brand struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// CategoryNode is one level of the category tree discovered from a browse sitemap.
type CategoryNode struct {
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	ID       string         `json:"id,omitempty"`
	Children []CategoryNode `json:"subcategories,omitempty"`
}

// HarvestContext is the site-wide context handed to every adapter call.
type HarvestContext struct {
	Brands     map[string]Brand
	Categories map[string]CategoryNode
}

// RunResult summarises a worker pool run.
type RunResult struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	Workers    int
	Enqueued   int
	Dequeued   int
	Sentinels  int
	Emitted    int64
	Empty      int
	Failed     int
	Skipped    int
	FailedURLs []string
}

// Duration returns the wall-clock length of the run.
func (r *RunResult) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
