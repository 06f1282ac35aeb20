// Package zostel holds the Zostel property directory and the tools the
// model can call against it.
package zostel

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var defaultLocations []byte

// Directory maps a state to its Zostel properties.
type Directory struct {
	regions map[string][]string // keyed by lower-cased state
	names   map[string]string   // lower-cased state -> display name
}

type directoryFile struct {
	Regions map[string][]string `yaml:"regions"`
}

// DefaultDirectory returns the directory bundled with the binary.
func DefaultDirectory() *Directory {
	d, err := ParseDirectory(bytes.NewReader(defaultLocations))
	if err != nil {
		panic(fmt.Sprintf("zostel: bundled locations.yaml is invalid: %v", err))
	}
	return d
}

// LoadDirectory reads a directory from a YAML file.
func LoadDirectory(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	defer f.Close()
	return ParseDirectory(f)
}

// ParseDirectory decodes the YAML directory format.
func ParseDirectory(r io.Reader) (*Directory, error) {
	var file directoryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}
	d := &Directory{
		regions: make(map[string][]string, len(file.Regions)),
		names:   make(map[string]string, len(file.Regions)),
	}
	for state, props := range file.Regions {
		key := strings.ToLower(strings.TrimSpace(state))
		if key == "" {
			return nil, fmt.Errorf("decode directory: empty region name")
		}
		d.regions[key] = append([]string(nil), props...)
		d.names[key] = state
	}
	return d, nil
}

// Locations returns the properties in a state, or the properties whose name
// mentions the location when it is a city. Unknown locations yield an
// empty, non-nil slice.
func (d *Directory) Locations(location string) []string {
	key := strings.ToLower(strings.TrimSpace(location))
	if key == "" {
		return []string{}
	}
	if props, ok := d.regions[key]; ok {
		return append([]string(nil), props...)
	}

	out := []string{}
	for _, state := range d.states() {
		for _, p := range d.regions[state] {
			if strings.Contains(strings.ToLower(p), key) {
				out = append(out, p)
			}
		}
	}
	return out
}

// States lists the state display names in sorted order.
func (d *Directory) States() []string {
	keys := d.states()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = d.names[k]
	}
	return out
}

func (d *Directory) states() []string {
	keys := make([]string, 0, len(d.regions))
	for k := range d.regions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
