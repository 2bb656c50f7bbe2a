package provider

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bondline/skiptrace/internal/model"
)

// LoadDescriptors reads provider descriptors from a YAML file. The file
// has a top-level "providers" key:
//
//	providers:
//	  - id: whitepages
//	    label: Whitepages Pro
//	    ttl_minutes: 60
//	    error_ttl_minutes: 15
//	    supports_force: true
//	    default: true
func LoadDescriptors(path string) ([]model.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read config %s", path)
	}

	var wrapper struct {
		Providers []model.Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "provider: parse config")
	}

	seen := make(map[string]bool)
	defaults := 0
	for i, d := range wrapper.Providers {
		if d.ID == "" {
			return nil, eris.Errorf("provider: descriptor %d missing id", i)
		}
		if seen[d.ID] {
			return nil, eris.Errorf("provider: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		if d.Default {
			defaults++
		}
		if d.TTLMinutes <= 0 {
			wrapper.Providers[i].TTLMinutes = 60
		}
		if d.ErrorTTLMinutes <= 0 {
			wrapper.Providers[i].ErrorTTLMinutes = 15
		}
	}
	if defaults > 1 {
		return nil, eris.New("provider: more than one default provider")
	}

	return wrapper.Providers, nil
}
