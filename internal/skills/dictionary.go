package skills

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed dictionary.yaml
var defaultDictionary []byte

var defaultOnce = sync.OnceValue(func() *Dictionary {
	dict, err := Load(strings.NewReader(string(defaultDictionary)))
	if err != nil {
		panic(fmt.Sprintf("embedded skill dictionary is invalid: %v", err))
	}
	return dict
})

// Entry is a single skill with its importance weight.
type Entry struct {
	Name   string
	Weight float64

	key string
}

// Key returns the lowercased skill used for matching.
func (e Entry) Key() string {
	if e.key == "" {
		return strings.ToLower(e.Name)
	}
	return e.key
}

// Scannable reports whether the skill is long enough to be searched for.
// Single-character skills such as "r" produce too many false positives.
func (e Entry) Scannable() bool {
	return utf8.RuneCountInString(strings.TrimSpace(e.Name)) > 1
}

// Dictionary is an immutable, ordered skill -> weight mapping.
type Dictionary struct {
	entries []Entry
	index   map[string]int
}

// Default returns the dictionary embedded into the binary.
func Default() *Dictionary {
	return defaultOnce()
}

// New builds a dictionary preserving the order of the given entries.
func New(entries []Entry) (*Dictionary, error) {
	d := &Dictionary{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}

	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, errors.New("skill name must not be empty")
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("skill %q: weight must be positive, got %v", name, e.Weight)
		}

		key := strings.ToLower(e.Name)
		if _, ok := d.index[key]; ok {
			return nil, fmt.Errorf("skill %q is defined twice", name)
		}

		d.index[key] = len(d.entries)
		d.entries = append(d.entries, Entry{Name: e.Name, Weight: e.Weight, key: key})
	}

	return d, nil
}

// Load reads a YAML mapping of skill names to weights. The order of the
// mapping is kept.
func Load(r io.Reader) (*Dictionary, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("skill dictionary is empty")
		}
		return nil, fmt.Errorf("decode skill dictionary: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("skill dictionary must be a mapping, line %d", root.Line)
	}

	entries := make([]Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]

		var weight float64
		if err := valueNode.Decode(&weight); err != nil {
			return nil, fmt.Errorf("skill %q (line %d): %w", keyNode.Value, valueNode.Line, err)
		}

		entries = append(entries, Entry{Name: keyNode.Value, Weight: weight})
	}

	return New(entries)
}

// LoadFile loads a dictionary from a YAML file.
func LoadFile(path string) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dict, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dict, nil
}

// Len returns the number of skills.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Entries returns a copy of the skills in dictionary order.
func (d *Dictionary) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Weight returns the weight of a skill, case-insensitively.
func (d *Dictionary) Weight(skill string) (float64, bool) {
	idx, ok := d.index[strings.ToLower(skill)]
	if !ok {
		return 0, false
	}
	return d.entries[idx].Weight, true
}

// Has reports whether the skill is part of the dictionary.
func (d *Dictionary) Has(skill string) bool {
	_, ok := d.index[strings.ToLower(skill)]
	return ok
}
