// Package manifest reads batch ingestion lists: which filing lives at which
// path, and the ticker, category and date it belongs to.
package manifest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

// Entry is one filing to ingest.
type Entry struct {
	Path       string `yaml:"path"`
	Ticker     string `yaml:"ticker"`
	Category   string `yaml:"category"`
	Date       string `yaml:"date"`
	Passphrase string `yaml:"passphrase,omitempty"`

	parsed time.Time
}

// Identity returns the filing identity named by the entry.
func (e Entry) Identity() doctree.Identity {
	return doctree.Identity{Ticker: e.Ticker, Category: e.Category, Date: e.parsed}
}

type yamlFile struct {
	Filings []Entry `yaml:"filings"`
}

// Load reads a manifest from path. Files ending in .csv are read as CSV,
// everything else as YAML. Relative filing paths are resolved against the
// manifest's directory.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var entries []Entry
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		entries, err = ParseCSV(bytes.NewReader(data))
	} else {
		entries, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range entries {
		if !filepath.IsAbs(entries[i].Path) {
			entries[i].Path = filepath.Join(dir, entries[i].Path)
		}
	}
	return entries, nil
}

// ParseYAML accepts either a bare list of entries or a mapping with a
// "filings" list.
func ParseYAML(data []byte) ([]Entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var entries []Entry
	if root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&entries); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	} else {
		var f yamlFile
		if err := root.Content[0].Decode(&f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		entries = f.Filings
	}

	for i := range entries {
		if err := entries[i].normalize(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
	}
	return entries, nil
}

// ParseCSV reads rows of path,ticker,category,date[,passphrase]. A first
// row starting with "path" is treated as a header.
func ParseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	var entries []Entry
	for row := 0; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if row == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "path") {
			continue
		}
		if len(rec) < 4 || len(rec) > 5 {
			return nil, fmt.Errorf("line %d: want 4 or 5 fields, got %d", line, len(rec))
		}

		e := Entry{Path: rec[0], Ticker: rec[1], Category: rec[2], Date: rec[3]}
		if len(rec) == 5 {
			e.Passphrase = rec[4]
		}
		if err := e.normalize(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseDate accepts the date layouts filings are commonly labelled with,
// e.g. 2019-02-28, 02/28/2019 or "February 28, 2019".
func ParseDate(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad filing date %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func (e *Entry) normalize() error {
	e.Path = strings.TrimSpace(e.Path)
	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))
	e.Category = strings.ToUpper(strings.TrimSpace(e.Category))

	switch {
	case e.Path == "":
		return errors.New("missing path")
	case e.Ticker == "":
		return errors.New("missing ticker")
	case e.Category == "":
		return errors.New("missing category")
	case strings.TrimSpace(e.Date) == "":
		return errors.New("missing date")
	}

	t, err := ParseDate(e.Date)
	if err != nil {
		return err
	}
	e.parsed = t
	e.Date = t.Format("2006-01-02")
	return nil
}
