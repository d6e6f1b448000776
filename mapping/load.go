package mapping

import (
	"context"
	"os"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Parse parses YAML data into a Config, fills in defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing mapping YAML")
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating mapping")
	}
	return &cfg, nil
}

// applyDefaults fills in a field's target from its key when it is missing.
func applyDefaults(cfg *Config) {
	cfg.Properties = cfg.Properties.Map(func(p PropertyMapping) PropertyMapping {
		fields := Ordered[FieldMapping]{}
		for _, key := range p.Fields.Keys() {
			f, _ := p.Fields.Get(key)
			if f.Target == "" {
				f.Target = key
			}
			fields.Set(key, f)
		}
		p.Fields = fields
		return p
	})
}

// LoadFile loads and parses a mapping file from the local filesystem.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: path, Err: err}
	}
	return cfg, nil
}

// Load loads and parses a mapping file from any location afs understands,
// e.g. a local path, file://, s3:// or https:// URL.
func Load(ctx context.Context, URL string) (*Config, error) {
	data, err := download(ctx, URL)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: URL, Err: err}
	}
	return cfg, nil
}

// LoadNames loads an IRI to human name lookup. The file is a flat YAML (or
// JSON) mapping.
func LoadNames(ctx context.Context, URL string) (map[string]string, error) {
	data, err := download(ctx, URL)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, &ldk.ShapeLoadError{Source: URL, Err: errors.Wrap(err, "parsing name lookup")}
	}
	return names, nil
}

func download(ctx context.Context, URL string) ([]byte, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, &ldk.ShapeLoadError{Source: URL, Err: err}
	}
	return data, nil
}

// Marshal serializes a Config to YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
