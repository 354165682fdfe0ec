package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the top-level configuration document, parsed from a
// hierarchical YAML file. Mirrors the shape of original_source's
// joerd/config.py Configuration, but as a typed struct rather than a
// dict wrapped in a "get by space-separated key path" accessor.
type Config struct {
	Regions []RegionConfig    `yaml:"regions"`
	Sources []map[string]any  `yaml:"sources"`
	Outputs []map[string]any  `yaml:"outputs"`
	Logging LoggingConfig     `yaml:"logging"`
	Jobs    JobsConfig        `yaml:"jobs"`
	Cluster ClusterConfig     `yaml:"cluster"`
	Store   map[string]any    `yaml:"store"`
}

// RegionConfig is the YAML shape of one region entry before it is
// turned into a Region value.
type RegionConfig struct {
	BBox struct {
		Left   float64 `yaml:"left"`
		Bottom float64 `yaml:"bottom"`
		Right  float64 `yaml:"right"`
		Top    float64 `yaml:"top"`
	} `yaml:"bbox"`
	ZoomRange [2]int `yaml:"zoom_range"`
}

func (r RegionConfig) toRegion() Region {
	return Region{
		BBox:      NewBoundingBox(r.BBox.Left, r.BBox.Bottom, r.BBox.Right, r.BBox.Top),
		ZoomRange: ZoomRange{Min: r.ZoomRange[0], Max: r.ZoomRange[1]},
	}
}

// LoggingConfig holds the logging section's optional handler
// configuration path. It is decoded but not read: main.go always
// installs a slog text handler on stderr, at Info level (Debug with
// --debug).
type LoggingConfig struct {
	Config string `yaml:"config"`
}

// JobsConfig holds the jobs section's num_threads and chunksize
// settings. They are decoded and defaulted; no planner or worker code
// reads them.
type JobsConfig struct {
	NumThreads int `yaml:"num_threads"`
	ChunkSize  int `yaml:"chunksize"`
}

// ClusterConfig configures the remote SQS-backed queue.
type ClusterConfig struct {
	SQSQueueName string `yaml:"sqs_queue_name"`
	BlockSize    int    `yaml:"block_size"`
}

// defaultConfig mirrors default_yml_config(): the baseline a YAML
// document is merged on top of, so a minimal config file only needs to
// specify what it wants to override.
func defaultConfig() Config {
	return Config{
		Jobs: JobsConfig{
			NumThreads: runtime.NumCPU(),
			ChunkSize:  0,
		},
		Cluster: ClusterConfig{
			BlockSize: 2,
		},
		Store: map[string]any{
			"type":     "file",
			"base_dir": ".",
		},
	}
}

// LoadConfig reads and parses a YAML configuration document from path,
// merging it over defaultConfig(). Any structural problem (malformed
// YAML, an unreadable file, a source/output/store with no "type") is
// reported as ErrConfig and should be treated as fatal by the caller.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrConfig, path, err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yamlDecode(f, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrConfig, path, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if _, ok := cfg.Store["type"]; !ok {
		return fmt.Errorf("%w: store has no type", ErrConfig)
	}
	for i, s := range cfg.Sources {
		if _, ok := s["type"]; !ok {
			return fmt.Errorf("%w: sources[%d] has no type", ErrConfig, i)
		}
	}
	for i, o := range cfg.Outputs {
		if _, ok := o["type"]; !ok {
			return fmt.Errorf("%w: outputs[%d] has no type", ErrConfig, i)
		}
	}
	return nil
}

// RegionList converts the configuration's region entries into Region
// values ready to be fed to the planner.
func (c *Config) RegionList() []Region {
	out := make([]Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		out = append(out, r.toRegion())
	}
	return out
}

// WithRegions returns a shallow copy of cfg with its regions replaced,
// mirroring Configuration.copy_with_regions, without mutating the
// original loaded configuration.
func (c *Config) WithRegions(regions []RegionConfig) *Config {
	cp := *c
	cp.Regions = regions
	return &cp
}

// yamlDecode decodes a single YAML document from r into v. Centralized
// here (rather than called inline as yaml.NewDecoder(r).Decode(v)) so
// every YAML-backed config or index file in the codebase (Config
// itself, a Source's on-disk tile index, a jobs file) goes
// through one helper and one error-wrapping convention.
func yamlDecode(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}
