package statuspage

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/statuscache/pkg/cache"
)

// Provider is a status page to aggregate.
type Provider struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Priority bool   `yaml:"priority" json:"priority"`
}

// providersFile is the on-disk layout of the providers list.
type providersFile struct {
	Providers []Provider `yaml:"providers"`
}

// LoadProviders reads a providers YAML file.
func LoadProviders(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	providers, err := ParseProviders(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return providers, nil
}

// ParseProviders decodes and validates a providers YAML document.
//
//	providers:
//	  - id: openai
//	    name: OpenAI
//	    url: https://status.openai.com
//	    priority: true
func ParseProviders(data []byte) ([]Provider, error) {
	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	for i := range file.Providers {
		p := &file.Providers[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("provider %d: id is required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true

		u, err := url.Parse(p.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("provider %s: invalid url %q", p.ID, p.URL)
		}
	}
	return file.Providers, nil
}

// Subjects converts providers to warmup subjects, preserving order.
func Subjects(providers []Provider) []cache.Subject {
	subjects := make([]cache.Subject, len(providers))
	for i, p := range providers {
		subjects[i] = cache.Subject{ID: p.ID, Name: p.Name}
	}
	return subjects
}

// PriorityIDs returns the IDs of providers flagged priority, in file order.
func PriorityIDs(providers []Provider) []string {
	var ids []string
	for _, p := range providers {
		if p.Priority {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Find returns the provider with the given ID.
func Find(providers []Provider, id string) (Provider, bool) {
	for _, p := range providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}
