package embed

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderStatic is the hash embedder; no model, no network.
	ProviderStatic ProviderType = "static"

	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"
)

// ModelSpec binds a model key to a backend, model name and dimension.
type ModelSpec struct {
	Key      string
	Provider ProviderType
	Model    string
	// Dimensions of 0 lets the backend report its own.
	Dimensions int
}

// BuiltinModels are the keys usable without extra configuration.
var BuiltinModels = map[string]ModelSpec{
	"static-384":       {Key: "static-384", Provider: ProviderStatic, Dimensions: StaticDimensions384},
	"static-768":       {Key: "static-768", Provider: ProviderStatic, Dimensions: StaticDimensions768},
	"nomic-embed-text": {Key: "nomic-embed-text", Provider: ProviderOllama, Model: "nomic-embed-text", Dimensions: 768},
}

// FactoryOptions configures NewFactory.
type FactoryOptions struct {
	OllamaHost string
	// CacheSize bounds the per-pipeline LRU. 0 disables caching.
	CacheSize  int
	PullModels bool
	// LockDir holds the cross-process model pull lock.
	LockDir string
	// Custom specs take precedence over BuiltinModels.
	Custom []ModelSpec
}

// ParseProvider converts a string to a ProviderType. Unknown values are
// returned as-is and rejected by ResolveModel.
func ParseProvider(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

// ValidProviders lists the accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}

// ModelKeys lists the built-in and custom keys, sorted.
func (o FactoryOptions) ModelKeys() []string {
	seen := make(map[string]struct{})
	for k := range BuiltinModels {
		seen[k] = struct{}{}
	}
	for _, s := range o.Custom {
		seen[s.Key] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveModel finds the spec for key.
func (o FactoryOptions) ResolveModel(key string) (ModelSpec, error) {
	for _, s := range o.Custom {
		if s.Key == key {
			return validateSpec(s)
		}
	}
	if s, ok := BuiltinModels[key]; ok {
		return s, nil
	}
	return ModelSpec{}, fmt.Errorf("unknown embedding model key %q (known: %s)",
		key, strings.Join(o.ModelKeys(), ", "))
}

func validateSpec(s ModelSpec) (ModelSpec, error) {
	switch s.Provider {
	case ProviderStatic:
		if s.Dimensions <= 0 {
			return s, fmt.Errorf("model key %s: static embedder needs dimensions", s.Key)
		}
	case ProviderOllama:
		if s.Model == "" {
			s.Model = s.Key
		}
	default:
		return s, fmt.Errorf("model key %s: unknown provider %q (valid: %s)",
			s.Key, s.Provider, strings.Join(ValidProviders(), ", "))
	}
	return s, nil
}

// NewFactory returns a Factory that builds the backend named by each key's
// spec, wrapped in a CachedEmbedder when caching is enabled.
func NewFactory(opts FactoryOptions) Factory {
	return func(ctx context.Context, modelKey string) (Embedder, error) {
		spec, err := opts.ResolveModel(modelKey)
		if err != nil {
			return nil, err
		}

		var e Embedder
		switch spec.Provider {
		case ProviderStatic:
			e = NewStaticEmbedder(spec.Dimensions)
		case ProviderOllama:
			cfg := DefaultOllamaConfig()
			if opts.OllamaHost != "" {
				cfg.Host = opts.OllamaHost
			}
			cfg.Model = spec.Model
			cfg.Dimensions = spec.Dimensions
			cfg.PullMissing = opts.PullModels
			cfg.LockDir = opts.LockDir
			e, err = NewOllamaEmbedder(ctx, cfg)
			if err != nil {
				return nil, err
			}
		}

		if opts.CacheSize > 0 {
			e = NewCachedEmbedder(e, opts.CacheSize)
		}
		return e, nil
	}
}
