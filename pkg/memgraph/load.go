package memgraph

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture describes a graph to seed a Store with. JSON documents are
// accepted too, since YAML is a superset.
type Fixture struct {
	Nodes []FixtureNode `yaml:"nodes"`
	Links []FixtureLink `yaml:"links"`
}

type FixtureNode struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Vector     []float32      `yaml:"vector"`
	Properties map[string]any `yaml:"properties"`
	// ContentAddressed stores the node as a block and assigns it a CID.
	ContentAddressed bool `yaml:"content_addressed"`
}

type FixtureLink struct {
	Source   string  `yaml:"source"`
	Target   string  `yaml:"target"`
	Relation string  `yaml:"relation"`
	Weight   float64 `yaml:"weight"`
}

// Apply adds every node, then every link, in document order. It returns
// the CID of each content-addressed node keyed by node ID.
func (s *Store) Apply(f Fixture) (map[string]string, error) {
	cids := make(map[string]string)
	for i, n := range f.Nodes {
		if n.ContentAddressed {
			cid, err := s.AddBlock(n.ID, n.Vector, n.Type, n.Properties)
			if err != nil {
				return nil, fmt.Errorf("nodes[%d]: %w", i, err)
			}
			cids[n.ID] = cid
			continue
		}
		if err := s.AddNode(n.ID, n.Vector, n.Type, n.Properties); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	for i, l := range f.Links {
		if err := s.Link(l.Source, l.Target, l.Relation, l.Weight); err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
	}
	return cids, nil
}

// Load decodes a fixture from r with strict key checking and applies it.
func (s *Store) Load(r io.Reader) (map[string]string, error) {
	var f Fixture
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("memgraph: invalid fixture: %w", err)
	}
	return s.Apply(f)
}

// LoadFile creates a Store from the fixture at path.
func LoadFile(path string, opts ...Option) (*Store, map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("memgraph: failed to open fixture: %w", err)
	}
	defer file.Close()

	s := New(opts...)
	cids, err := s.Load(file)
	if err != nil {
		return nil, nil, err
	}
	return s, cids, nil
}
