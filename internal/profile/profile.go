package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

//go:embed profiles.yaml
var defaultProfiles []byte

//go:embed schema.json
var profileSchema []byte

// Catalog holds every validated profile keyed by service type.
type Catalog struct {
	profiles map[string]domain.ServiceProfile
}

type document struct {
	Profiles []map[string]any `yaml:"profiles"`
}

// Default loads the embedded profiles.
func Default() (*Catalog, error) {
	return Parse(defaultProfiles)
}

// LoadFile loads profiles from path, or the embedded set when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profiles document, validating every profile against the
// schema and then semantically. Any failure rejects the whole catalog.
func Parse(data []byte) (*Catalog, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode profiles: %v", domain.ErrInvalidProfile, err)
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles defined", domain.ErrInvalidProfile)
	}

	catalog := &Catalog{profiles: make(map[string]domain.ServiceProfile, len(doc.Profiles))}
	for i, raw := range doc.Profiles {
		payload, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %d: %v", domain.ErrInvalidProfile, i, err)
		}
		if result := schema.ValidateJSON(payload); !result.IsValid() {
			return nil, fmt.Errorf("%w: profile %d: schema validation failed: %v", domain.ErrInvalidProfile, i, result.Errors)
		}

		var p domain.ServiceProfile
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: profile %d: %v", domain.ErrInvalidProfile, i, err)
		}
		p.Caps = withDefaultCaps(p.Caps)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := catalog.profiles[p.Type]; dup {
			return nil, fmt.Errorf("%w: duplicate profile %s", domain.ErrInvalidProfile, p.Type)
		}
		catalog.profiles[p.Type] = p
	}
	return catalog, nil
}

// Get resolves a service type.
func (c *Catalog) Get(serviceType string) (domain.ServiceProfile, error) {
	p, ok := c.profiles[serviceType]
	if !ok {
		return domain.ServiceProfile{}, fmt.Errorf("%w: %s", domain.ErrUnknownServiceType, serviceType)
	}
	return p, nil
}

// Types lists the known service types in alphabetical order.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.profiles))
	for t := range c.profiles {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(profileSchema)
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	return schema, nil
}

func withDefaultCaps(c domain.Caps) domain.Caps {
	def := domain.DefaultCaps()
	if c.Urgency == 0 {
		c.Urgency = def.Urgency
	}
	if c.Budget == 0 {
		c.Budget = def.Budget
	}
	if c.Authority == 0 {
		c.Authority = def.Authority
	}
	if c.Quality == 0 {
		c.Quality = def.Quality
	}
	if c.Context == 0 {
		c.Context = def.Context
	}
	return c
}
