package lbledit

// The class registry: names and display colors for class ids, with JSON
// persistence and data.yaml interchange.

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Class is one entry in the registry.
type Class struct {
	ID    int64    `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Color [3]uint8 `json:"color" yaml:"color,flow"` // RGB display color.
}

// ClassRegistry maps class ids to names and display colors. The annotation
// engine treats class ids as opaque; the registry is the layer that gives
// unknown ids their fallback presentation.
type ClassRegistry struct {
	classes map[int64]Class
	rng     *rand.Rand
}

// NewClassRegistry creates an empty registry.
func NewClassRegistry() *ClassRegistry {
	return NewClassRegistrySeeded(time.Now().UnixNano())
}

// NewClassRegistrySeeded creates an empty registry with a deterministic color
// sequence.
func NewClassRegistrySeeded(seed int64) *ClassRegistry {
	return &ClassRegistry{
		classes: make(map[int64]Class),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Add registers name under the next free id and returns the new entry. A name
// that is already registered returns the existing entry unchanged.
func (r *ClassRegistry) Add(name string) Class {
	if c, ok := r.byName(name); ok {
		return c
	}

	c := Class{ID: r.NextID(), Name: name, Color: r.randomColor()}
	r.classes[c.ID] = c
	return c
}

// Put inserts or overwrites the entry for c.ID.
func (r *ClassRegistry) Put(c Class) {
	r.classes[c.ID] = c
}

// Rename changes the name of the class with the given id.
func (r *ClassRegistry) Rename(id int64, name string) error {
	c, ok := r.classes[id]
	if !ok {
		return fmt.Errorf("unknown class id %d", id)
	}

	c.Name = name
	r.classes[id] = c
	return nil
}

// Remove deletes the class with the given id.
func (r *ClassRegistry) Remove(id int64) error {
	if _, ok := r.classes[id]; !ok {
		return fmt.Errorf("unknown class id %d", id)
	}

	delete(r.classes, id)
	return nil
}

// Get returns the entry for id.
func (r *ClassRegistry) Get(id int64) (Class, bool) {
	c, ok := r.classes[id]
	return c, ok
}

// Label returns the display name for id, falling back to "Class <id>" for
// unregistered ids.
func (r *ClassRegistry) Label(id int64) string {
	if c, ok := r.classes[id]; ok {
		return c.Name
	}
	return fmt.Sprintf("Class %d", id)
}

// Color returns the display color for id, grey for unregistered ids.
func (r *ClassRegistry) Color(id int64) [3]uint8 {
	if c, ok := r.classes[id]; ok {
		return c.Color
	}
	return [3]uint8{128, 128, 128}
}

// Classes returns all entries ordered by id.
func (r *ClassRegistry) Classes() []Class {
	classes := make([]Class, 0, len(r.classes))
	for _, c := range r.classes {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })

	return classes
}

// Len returns the number of registered classes.
func (r *ClassRegistry) Len() int { return len(r.classes) }

// NextID returns the smallest id greater than every registered id.
func (r *ClassRegistry) NextID() int64 {
	var next int64
	for id := range r.classes {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// Merge copies every class from other into r and returns the id translation
// for other's classes. Name collisions map to r's existing entry; id
// collisions between distinct names move the incoming class to a fresh id.
func (r *ClassRegistry) Merge(other *ClassRegistry) map[int64]int64 {
	mapping := make(map[int64]int64, other.Len())
	for _, c := range other.Classes() {
		if existing, ok := r.byName(c.Name); ok {
			mapping[c.ID] = existing.ID
			continue
		}

		newID := c.ID
		if _, taken := r.classes[c.ID]; taken {
			newID = r.NextID()
		}
		mapping[c.ID] = newID
		r.classes[newID] = Class{ID: newID, Name: c.Name, Color: c.Color}
	}

	return mapping
}

// byName finds a class by its name.
func (r *ClassRegistry) byName(name string) (Class, bool) {
	for _, c := range r.classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

// randomColor picks channels in [50, 200] so boxes stay readable on both
// light and dark image regions.
func (r *ClassRegistry) randomColor() [3]uint8 {
	var c [3]uint8
	for i := range c {
		c[i] = uint8(50 + r.rng.Intn(151))
	}
	return c
}

// SaveJSON writes the registry to path as a JSON array ordered by id.
func (r *ClassRegistry) SaveJSON(path string) error {
	enc, err := json.MarshalIndent(r.Classes(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// LoadClassesJSON reads a registry from the JSON file at path.
func LoadClassesJSON(path string) (*ClassRegistry, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var classes []Class
	if err := json.Unmarshal(enc, &classes); err != nil {
		return nil, fmt.Errorf("failed to parse classes from %q: %v", path, err)
	}

	r := NewClassRegistry()
	for _, c := range classes {
		r.classes[c.ID] = c
	}
	return r, nil
}

// DataConfig is the dataset description written next to an exported dataset.
// The layout follows the data.yaml convention of YOLO training tools.
type DataConfig struct {
	Path  string           `yaml:"path,omitempty"`
	Train string           `yaml:"train"`
	Val   string           `yaml:"val"`
	Test  string           `yaml:"test,omitempty"`
	NC    int              `yaml:"nc"`
	Names map[int64]string `yaml:"names"`
}

// WriteDataYAML writes the data.yaml for this registry and the given dataset
// roots. NC and Names are filled in from the registry.
func (r *ClassRegistry) WriteDataYAML(path string, cfg DataConfig) error {
	cfg.NC = r.Len()
	cfg.Names = make(map[int64]string, r.Len())
	for _, c := range r.Classes() {
		cfg.Names[c.ID] = c.Name
	}

	enc, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// ReadDataYAML loads class names from a data.yaml file. The names field is
// accepted both as an id-keyed map and as a plain list indexed from zero.
func ReadDataYAML(path string) (*ClassRegistry, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(enc, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %v", path, err)
	}

	r := NewClassRegistry()
	switch doc.Names.Kind {
	case 0:
		// No names key: an empty registry.
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("invalid names list in %q: %v", path, err)
		}
		for i, name := range names {
			id := int64(i)
			r.classes[id] = Class{ID: id, Name: name, Color: r.randomColor()}
		}
	case yaml.MappingNode:
		var names map[int64]string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("invalid names map in %q: %v", path, err)
		}
		for id, name := range names {
			r.classes[id] = Class{ID: id, Name: name, Color: r.randomColor()}
		}
	default:
		return nil, fmt.Errorf("unsupported names layout in %q", path)
	}

	return r, nil
}
