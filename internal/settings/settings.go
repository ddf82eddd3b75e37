// Package settings resolves per-vehicle datalink setting indices from the
// generated settings documents.
package settings

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrUnknownVehicle  = errors.New("unknown aircraft id")
	ErrSettingNotFound = errors.New("setting not found")
)

const (
	cacheSize = 64
	cacheTTL  = 5 * time.Minute
)

// NameLookup maps an aircraft id to its configured name.
type NameLookup interface {
	Name(acID int) (string, bool)
}

// Setting is one <dl_setting> entry. Index is its position in document
// order, which is what DL_SETTING messages address.
type Setting struct {
	Index     int
	Var       string
	ShortName string
}

// Table is the parsed settings document of one vehicle.
type Table struct {
	Settings []Setting
	byName   map[string]int
}

// Lookup returns the index of the setting addressed by name.
func (t *Table) Lookup(name string) (int, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// Resolver resolves setting indices for vehicles. Parsed tables are cached
// per vehicle name.
type Resolver struct {
	home  string
	names NameLookup
	cache *expirable.LRU[string, *Table]
}

// NewResolver creates a Resolver reading <home>/var/aircrafts/<name>/settings.xml.
func NewResolver(home string, names NameLookup) *Resolver {
	return &Resolver{
		home:  home,
		names: names,
		cache: expirable.NewLRU[string, *Table](cacheSize, nil, cacheTTL),
	}
}

// Path returns the settings document path of a vehicle name.
func (r *Resolver) Path(name string) string {
	return filepath.Join(r.home, "var", "aircrafts", name, "settings.xml")
}

// Index returns the index of setting name for vehicle acID.
func (r *Resolver) Index(acID int, name string) (int, error) {
	t, err := r.Table(acID)
	if err != nil {
		return 0, err
	}
	idx, ok := t.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("aircraft %d: %q: %w", acID, name, ErrSettingNotFound)
	}
	return idx, nil
}

// Table returns the parsed settings of vehicle acID.
func (r *Resolver) Table(acID int) (*Table, error) {
	name, ok := r.names.Name(acID)
	if !ok {
		return nil, fmt.Errorf("aircraft %d: %w", acID, ErrUnknownVehicle)
	}
	if t, ok := r.cache.Get(name); ok {
		return t, nil
	}

	path := r.Path(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("aircraft %d settings: %w", acID, err)
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	r.cache.Add(name, t)
	return t, nil
}

// Purge drops every cached table.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// Parse reads a settings document. Every <dl_setting> element, at any
// depth, is numbered in document order. A setting is addressed by its
// shortname, or by its var when it has none. The first setting with a
// given address wins.
func Parse(rd io.Reader) (*Table, error) {
	dec := xml.NewDecoder(rd)
	t := &Table{byName: make(map[string]int)}
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if se.Name.Local != "dl_setting" {
			continue
		}

		s := Setting{Index: len(t.Settings)}
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "var":
				s.Var = a.Value
			case "shortname":
				s.ShortName = a.Value
			}
		}
		t.Settings = append(t.Settings, s)

		key := s.ShortName
		if key == "" {
			key = s.Var
		}
		if _, dup := t.byName[key]; key != "" && !dup {
			t.byName[key] = s.Index
		}
	}

	if !sawRoot {
		return nil, errors.New("empty document")
	}
	return t, nil
}
