package agents

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultAgentID is the agent used when a client does not pick one.
const DefaultAgentID = "agent_default"

// Descriptor is a read-only catalog entry describing an agent identity.
type Descriptor struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"-"`
}

// Catalog is the static set of agents shared by all clients.
type Catalog struct {
	order []string
	byID  map[string]Descriptor
}

type catalogFile struct {
	Agents []Descriptor `yaml:"agents"`
}

func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{ID: DefaultAgentID, Name: "Default Assistant"},
		{ID: "agent_creative", Name: "Creative Writer"},
		{ID: "agent_technical", Name: "Technical Explainer"},
	}
}

// NewCatalog builds a catalog from descriptors. IDs must be non-empty and unique.
func NewCatalog(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{byID: map[string]Descriptor{}}
	for _, d := range descs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, errors.New("agent catalog: empty agent id")
		}
		if _, ok := c.byID[d.ID]; ok {
			return nil, errors.Errorf("agent catalog: duplicate agent id %q", d.ID)
		}
		if strings.TrimSpace(d.Name) == "" {
			d.Name = d.ID
		}
		c.byID[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	return c, nil
}

// NewDefaultCatalog returns the built-in three-agent catalog.
func NewDefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDescriptors()...)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogFile reads a YAML file of the form `agents: [{id, name, description}]`.
func LoadCatalogFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read agent catalog")
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "parse agent catalog")
	}
	if len(f.Agents) == 0 {
		return nil, errors.New("agent catalog: no agents defined")
	}
	return NewCatalog(f.Agents...)
}

func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	d, ok := c.byID[id]
	return d, ok
}

// List returns the descriptors in declaration order.
func (c *Catalog) List() []Descriptor {
	if c == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
