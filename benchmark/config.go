package benchmark

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/distance"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid benchmark config")

// Distribution names a synthetic dataset generator.
type Distribution string

const (
	DistributionGaussian  Distribution = "gaussian"
	DistributionUniform   Distribution = "uniform"
	DistributionUnit      Distribution = "unit"
	DistributionClustered Distribution = "clustered"
)

// Defaults applied by Config.applyDefaults.
const (
	DefaultTrainSize = 10000
	DefaultTestSize  = 100
	DefaultDimension = 32
	DefaultK         = 10
	DefaultClusters  = 16
	DefaultSpread    = 0.1
	DefaultDataSeed  = 42
)

// DefaultEFs is the search width sweep used when none is configured.
var DefaultEFs = []int{10, 20, 40, 80, 120, 200, 400, 600, 800}

// DatasetConfig describes a generated dataset.
type DatasetConfig struct {
	Name         string       `yaml:"name"`
	Distribution Distribution `yaml:"distribution"`
	Train        int          `yaml:"train"`
	Test         int          `yaml:"test"`
	Dimension    int          `yaml:"dimension"`
	// Clusters and Spread apply to the clustered distribution.
	Clusters int     `yaml:"clusters"`
	Spread   float32 `yaml:"spread"`
	Seed     int64   `yaml:"seed"`
}

// AlgorithmConfig is the parameter grid of one algorithm. Every combination
// of M and EFConstruction is built once and queried at every EF.
type AlgorithmConfig struct {
	Name           string `yaml:"name"`
	M              []int  `yaml:"M"`
	EFConstruction []int  `yaml:"efConstruction"`
	EF             []int  `yaml:"ef"`
}

// Grid expands the build parameters.
func (a AlgorithmConfig) Grid() []MethodParams {
	grid := make([]MethodParams, 0, len(a.M)*len(a.EFConstruction))
	for _, m := range a.M {
		for _, efc := range a.EFConstruction {
			grid = append(grid, MethodParams{M: m, EFConstruction: efc})
		}
	}
	return grid
}

// StoreConfig selects where snapshots are written.
type StoreConfig struct {
	// Kind is one of "file", "s3" or "minio".
	Kind      string `yaml:"kind"`
	Path      string `yaml:"path"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Secure    bool   `yaml:"secure"`
	// CatalogTable, when set with kind s3, records every saved snapshot as a
	// new version in a DynamoDB table.
	CatalogTable string `yaml:"catalogTable"`
	Compression  string `yaml:"compression"`
}

// Memory sources for MemoryConfig.Source.
const (
	MemoryProcess = "process"
	MemoryProgram = "program"
	MemoryCgroup  = "cgroup"
)

// MemoryConfig selects what the memory figures of a result measure.
type MemoryConfig struct {
	// Source is "process" (this process), "program" (every process whose
	// command line contains Program) or "cgroup" (the cgroup in Cgroup, or
	// the own container when empty).
	Source  string `yaml:"source"`
	Program string `yaml:"program"`
	Cgroup  string `yaml:"cgroup"`
}

// Config is a benchmark run.
type Config struct {
	Dataset    DatasetConfig     `yaml:"dataset"`
	Metric     string            `yaml:"metric"`
	K          int               `yaml:"k"`
	Batch      bool              `yaml:"batch"`
	Workers    int               `yaml:"workers"`
	Algorithms []AlgorithmConfig `yaml:"algorithms"`
	Store      StoreConfig       `yaml:"store"`
	Memory     MemoryConfig      `yaml:"memory"`
	// Output is an optional path for the JSON report.
	Output string `yaml:"output"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes YAML, applies defaults and validates the result.
// Unknown keys are rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	d := &c.Dataset
	if d.Distribution == "" {
		d.Distribution = DistributionGaussian
	}
	if d.Train == 0 {
		d.Train = DefaultTrainSize
	}
	if d.Test == 0 {
		d.Test = DefaultTestSize
	}
	if d.Dimension == 0 {
		d.Dimension = DefaultDimension
	}
	if d.Clusters == 0 {
		d.Clusters = DefaultClusters
	}
	if d.Spread == 0 {
		d.Spread = DefaultSpread
	}
	if d.Seed == 0 {
		d.Seed = DefaultDataSeed
	}
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s-%d-%d", d.Distribution, d.Dimension, d.Train)
	}

	if c.Metric == "" {
		c.Metric = "euclidean"
	}
	if c.K == 0 {
		c.K = DefaultK
	}
	if len(c.Algorithms) == 0 {
		c.Algorithms = []AlgorithmConfig{{}}
	}
	for i := range c.Algorithms {
		a := &c.Algorithms[i]
		if a.Name == "" {
			a.Name = "hnsw"
		}
		if len(a.M) == 0 {
			a.M = []int{16}
		}
		if len(a.EFConstruction) == 0 {
			a.EFConstruction = []int{200}
		}
		if len(a.EF) == 0 {
			a.EF = append([]int(nil), DefaultEFs...)
		}
	}
	if c.Store.Kind == "" {
		c.Store.Kind = "file"
	}
	if c.Store.Compression == "" {
		c.Store.Compression = "zstd"
	}
	if c.Memory.Source == "" {
		c.Memory.Source = MemoryProcess
	}
}

// Validate checks the config after defaults are applied.
func (c *Config) Validate() error {
	d := c.Dataset
	switch d.Distribution {
	case DistributionGaussian, DistributionUniform, DistributionUnit, DistributionClustered:
	default:
		return fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfig, d.Distribution)
	}
	if d.Train < 1 || d.Test < 1 || d.Dimension < 1 {
		return fmt.Errorf("%w: train, test and dimension must be positive", ErrInvalidConfig)
	}
	if d.Clusters < 1 || d.Spread < 0 {
		return fmt.Errorf("%w: clusters must be positive and spread non-negative", ErrInvalidConfig)
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.K < 1 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, c.K)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	for _, a := range c.Algorithms {
		if a.Name != "hnsw" {
			return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, a.Name)
		}
		for _, m := range a.M {
			if m < 1 || m > annbench.MaxM {
				return fmt.Errorf("%w: M must be in [1, %d], got %d", ErrInvalidConfig, annbench.MaxM, m)
			}
		}
		for _, efc := range a.EFConstruction {
			if efc < 1 {
				return fmt.Errorf("%w: efConstruction must be positive, got %d", ErrInvalidConfig, efc)
			}
		}
		for _, ef := range a.EF {
			if ef < c.K {
				return fmt.Errorf("%w: ef %d is smaller than k %d", ErrInvalidConfig, ef, c.K)
			}
		}
	}
	switch c.Store.Kind {
	case "file", "s3", "minio":
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, c.Store.Kind)
	}
	switch c.Memory.Source {
	case MemoryProcess, MemoryCgroup:
	case MemoryProgram:
		if c.Memory.Program == "" {
			return fmt.Errorf("%w: memory source program needs a program name", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown memory source %q", ErrInvalidConfig, c.Memory.Source)
	}
	return nil
}

// Usage measures memory in KiB as configured.
func (m MemoryConfig) Usage() (int64, error) {
	switch m.Source {
	case MemoryProgram:
		return MemoryUsageByProgram(m.Program)
	case MemoryCgroup:
		return ContainerMemoryUsage(m.Cgroup)
	default:
		return MemoryUsageKiB()
	}
}
