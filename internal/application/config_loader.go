package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/Giftedx/crew-sub014/internal/optimizer"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// ConfigLoader parses, validates, and caches engine configurations.
// Use ConfigLoader to load configurations from files or readers while
// benefiting from SHA256-based caching and comprehensive validation.
type ConfigLoader struct {
	// validator performs struct field validation with the engine's custom
	// tag validators registered.
	validator *validator.Validate
	// cache stores validated configs indexed by SHA256 hash of the
	// normalized document.
	// WARNING: Cached configs MUST NOT be mutated.
	cache   map[string]*EngineConfig
	cacheMu sync.RWMutex
	// sf prevents duplicate validation when multiple goroutines request
	// the same document simultaneously.
	sf singleflight.Group
}

// NewConfigLoader creates a loader with an empty cache.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()
	if err := RegisterEngineValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{
		validator: v,
		cache:     make(map[string]*EngineConfig),
	}, nil
}

// LoadFromFile loads and validates a configuration from a YAML file.
// WARNING: The returned config is shared with the cache. Callers MUST NOT
// mutate it.
func (cl *ConfigLoader) LoadFromFile(ctx context.Context, path string) (*EngineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cl.load(ctx, data)
}

// LoadFromReader loads and validates a configuration from r.
// WARNING: The returned config is shared with the cache. Callers MUST NOT
// mutate it.
func (cl *ConfigLoader) LoadFromReader(ctx context.Context, r io.Reader) (*EngineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return cl.load(ctx, data)
}

func (cl *ConfigLoader) load(ctx context.Context, data []byte) (*EngineConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Hash the normalized config so formatting differences share an entry.
	hash, err := configHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if cached, ok := cl.cached(hash); ok {
			return cached, nil
		}
		if err := cl.Validate(config); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		cl.store(hash, config)
		return config, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*EngineConfig), nil
}

// Validate runs struct-tag validation followed by semantic validation.
func (cl *ConfigLoader) Validate(config *EngineConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}
	if err := ValidateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// parseYAML decodes data strictly, rejecting unknown fields so typos are
// not silently ignored. Optimizer defaults apply to fields the document
// leaves out.
func parseYAML(data []byte) (*EngineConfig, error) {
	config := EngineConfig{Optimizer: optimizer.DefaultConfig()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

func configHash(config *EngineConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func (cl *ConfigLoader) cached(hash string) (*EngineConfig, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()
	c, ok := cl.cache[hash]
	return c, ok
}

func (cl *ConfigLoader) store(hash string, config *EngineConfig) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache[hash] = config
}

// ClearCache drops every cached configuration.
func (cl *ConfigLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache = make(map[string]*EngineConfig)
}

// FileSource adapts a loader and a path to ports.ConfigLoader.
type FileSource struct {
	loader *ConfigLoader
	path   string
}

var _ ports.ConfigLoader = (*FileSource)(nil)

// NewFileSource returns a ports.ConfigLoader reading path through loader.
func NewFileSource(loader *ConfigLoader, path string) *FileSource {
	return &FileSource{loader: loader, path: path}
}

// Load implements ports.ConfigLoader. config must be a *EngineConfig; it
// receives a shallow copy of the cached value.
func (s *FileSource) Load(ctx context.Context, config any) error {
	dst, ok := config.(*EngineConfig)
	if !ok || dst == nil {
		return ports.NewConfigError(s.path, fmt.Errorf("unsupported config target %T", config))
	}
	loaded, err := s.loader.LoadFromFile(ctx, s.path)
	if err != nil {
		return err
	}
	*dst = *loaded
	return nil
}
