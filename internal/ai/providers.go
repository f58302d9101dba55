package ai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var defaultCatalog []byte

// DefaultProvider is used when a rule does not name a provider.
const DefaultProvider = "openai"

// ProviderEntry is one provider in the catalog file.
type ProviderEntry struct {
	Name           string  `yaml:"name"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	Temperature    float64 `yaml:"temperature"`
	ResponseFormat string  `yaml:"response_format"`
}

type catalogFile struct {
	Providers []ProviderEntry `yaml:"providers"`
}

// LoadCatalog reads a provider catalog. An empty path loads the built-in catalog.
// Unknown YAML fields are rejected.
func LoadCatalog(path string) (map[string]ProviderEntry, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read provider catalog: %w", err)
		}
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (map[string]ProviderEntry, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}

	catalog := make(map[string]ProviderEntry, len(file.Providers))
	for _, entry := range file.Providers {
		if entry.Name == "" {
			return nil, fmt.Errorf("provider catalog entry missing required field: name")
		}
		if entry.Model == "" {
			return nil, fmt.Errorf("provider %s missing required field: model", entry.Name)
		}
		if entry.ResponseFormat == "" {
			entry.ResponseFormat = FormatJSONSchema
		}
		if entry.ResponseFormat != FormatJSONSchema && entry.ResponseFormat != FormatJSONObject {
			return nil, fmt.Errorf("provider %s has unsupported response_format %q", entry.Name, entry.ResponseFormat)
		}
		if _, exists := catalog[entry.Name]; exists {
			return nil, fmt.Errorf("provider listed twice in catalog: %s", entry.Name)
		}
		catalog[entry.Name] = entry
	}
	return catalog, nil
}

// Resolver maps provider names to call configurations. Credentials are held
// per resolver instance.
type Resolver struct {
	catalog     map[string]ProviderEntry
	credentials map[string]string
}

// NewResolver creates a Resolver from a catalog and a provider → API key map.
func NewResolver(catalog map[string]ProviderEntry, credentials map[string]string) *Resolver {
	return &Resolver{catalog: catalog, credentials: credentials}
}

// Resolve returns the configuration for provider. An empty name resolves to
// DefaultProvider.
func (r *Resolver) Resolve(provider string) (ProviderConfig, error) {
	if provider == "" {
		provider = DefaultProvider
	}
	entry, ok := r.catalog[provider]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	key := r.credentials[provider]
	if key == "" {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrMissingCredential, provider)
	}
	return ProviderConfig{
		Name:           entry.Name,
		APIKey:         key,
		Model:          entry.Model,
		BaseURL:        entry.BaseURL,
		Temperature:    entry.Temperature,
		ResponseFormat: entry.ResponseFormat,
	}, nil
}

// Providers lists the catalog's provider names, sorted.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.catalog))
	for name := range r.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
