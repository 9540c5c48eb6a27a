// Package persona is the boundary to the contributor layer: a read-only
// catalog of candidate participants and the text source that speaks for them.
package persona

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/lexicon"
)

//go:embed personas.yaml
var defaultYAML []byte

// Persona is one candidate participant.
type Persona struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Category    string             `yaml:"category" json:"category"`
	Domain      string             `yaml:"domain" json:"domain"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Expertise   []string           `yaml:"expertise,omitempty" json:"expertise,omitempty"`
	Scores      capsule.Dimensions `yaml:"scores" json:"scores"`
}

// Matches reports whether the persona fits a topic category. The
// interdisciplinary sentinel matches everyone.
func (p Persona) Matches(category string) bool {
	if category == "" || category == lexicon.DefaultCategory {
		return true
	}
	return p.Category == category || p.Domain == category
}

// Catalog is the read-only persona lookup used by participant assignment.
type Catalog interface {
	// FindCandidates returns personas matching category, in catalog order.
	FindCandidates(ctx context.Context, category string) ([]Persona, error)
	// Get returns one persona by id; ok is false when absent.
	Get(ctx context.Context, id string) (Persona, bool, error)
}

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// FileCatalog is an in-memory catalog loaded from YAML.
type FileCatalog struct {
	personas []Persona
	byID     map[string]int
}

// LoadCatalog reads a YAML catalog. An empty path loads the built-in catalog.
func LoadCatalog(path string) (*FileCatalog, error) {
	data := defaultYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("persona: read %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*FileCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("persona: parse catalog: %w", err)
	}

	c := &FileCatalog{byID: make(map[string]int, len(f.Personas))}
	for i, p := range f.Personas {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona: entry %d needs both id and name", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona: duplicate id %q", p.ID)
		}
		p.Scores = p.Scores.Clamp()
		c.byID[p.ID] = len(c.personas)
		c.personas = append(c.personas, p)
	}
	return c, nil
}

// FindCandidates implements Catalog.
func (c *FileCatalog) FindCandidates(ctx context.Context, category string) ([]Persona, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Persona, 0, len(c.personas))
	for _, p := range c.personas {
		if p.Matches(category) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get implements Catalog.
func (c *FileCatalog) Get(ctx context.Context, id string) (Persona, bool, error) {
	if err := ctx.Err(); err != nil {
		return Persona{}, false, err
	}
	i, ok := c.byID[id]
	if !ok {
		return Persona{}, false, nil
	}
	return c.personas[i], true, nil
}

// All returns every persona in catalog order.
func (c *FileCatalog) All() []Persona {
	out := make([]Persona, len(c.personas))
	copy(out, c.personas)
	return out
}
