package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"forged/pkg/types"
)

// Defaults applied by ApplyDefaults when fields are unset.
const (
	DefaultAddr         = ":8001"
	DefaultOutputDir    = "data/output"
	DefaultTempDir      = "data/temp"
	DefaultPythonBin    = "python3"
	DefaultVRAMBuffer   = "2GiB"
	DefaultRestartAfter = 20

	defaultImageVRAM  = "8GiB"
	defaultMeshVRAM   = "6GiB"
	defaultImageSteps = 25
	defaultMeshSteps  = 75
)

// ModelConfig describes one managed model.
type ModelConfig struct {
	// Human-friendly name, e.g. "SDXL".
	Name string `json:"name" yaml:"name" toml:"name"`
	// Worker script hosting the model (run with python_bin).
	Script string `json:"script" yaml:"script" toml:"script"`
	// Estimated VRAM required to load, e.g. "8GiB" or "8192MiB".
	RequiredVRAM string `json:"required_vram" yaml:"required_vram" toml:"required_vram"`
	// Default inference steps for this model.
	Steps int `json:"steps" yaml:"steps" toml:"steps"`
	// Guidance scale (image model only).
	Guidance float64 `json:"guidance" yaml:"guidance" toml:"guidance"`
}

// KafkaConfig enables publishing lifecycle events to Kafka when Brokers is set.
type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic" toml:"topic"`
}

// CORSConfig enables CORS middleware when Enabled is true.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	OutputDir string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	TempDir   string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
	PythonBin string `json:"python_bin" yaml:"python_bin" toml:"python_bin"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile      string `json:"log_file" yaml:"log_file" toml:"log_file"`
	LogMaxSizeMB int    `json:"log_max_size_mb" yaml:"log_max_size_mb" toml:"log_max_size_mb"`

	// Safety buffer kept free on top of a model's requirement, e.g. "2GiB".
	VRAMBuffer string `json:"vram_buffer" yaml:"vram_buffer" toml:"vram_buffer"`
	// Generations before the status reporter raises the restart signal.
	RestartAfter int `json:"restart_after" yaml:"restart_after" toml:"restart_after"`

	Image ModelConfig `json:"image" yaml:"image" toml:"image"`
	Mesh  ModelConfig `json:"mesh" yaml:"mesh" toml:"mesh"`

	Kafka KafkaConfig `json:"kafka" yaml:"kafka" toml:"kafka"`
	CORS  CORSConfig  `json:"cors" yaml:"cors" toml:"cors"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with package defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.TempDir == "" {
		c.TempDir = DefaultTempDir
	}
	if c.PythonBin == "" {
		c.PythonBin = DefaultPythonBin
	}
	if c.VRAMBuffer == "" {
		c.VRAMBuffer = DefaultVRAMBuffer
	}
	if c.RestartAfter <= 0 {
		c.RestartAfter = DefaultRestartAfter
	}
	if c.Image.Name == "" {
		c.Image.Name = "SDXL"
	}
	if c.Image.RequiredVRAM == "" {
		c.Image.RequiredVRAM = defaultImageVRAM
	}
	if c.Image.Steps <= 0 {
		c.Image.Steps = defaultImageSteps
	}
	if c.Image.Guidance <= 0 {
		c.Image.Guidance = 7.5
	}
	if c.Mesh.Name == "" {
		c.Mesh.Name = "InstantMesh"
	}
	if c.Mesh.RequiredVRAM == "" {
		c.Mesh.RequiredVRAM = defaultMeshVRAM
	}
	if c.Mesh.Steps <= 0 {
		c.Mesh.Steps = defaultMeshSteps
	}
}

// ParseSize converts a human-readable size ("8GiB", "2048MiB", "512m") to bytes.
func ParseSize(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

// VRAMBufferBytes returns the parsed safety buffer.
func (c Config) VRAMBufferBytes() (int64, error) { return ParseSize(c.VRAMBuffer) }

// RequiredVRAMBytes returns the parsed requirement of one model.
func (m ModelConfig) RequiredVRAMBytes() (int64, error) { return ParseSize(m.RequiredVRAM) }

// Models builds the wire descriptors for the two managed models.
func (c Config) Models() ([]types.Model, error) {
	imgBytes, err := c.Image.RequiredVRAMBytes()
	if err != nil {
		return nil, fmt.Errorf("image model: %w", err)
	}
	meshBytes, err := c.Mesh.RequiredVRAMBytes()
	if err != nil {
		return nil, fmt.Errorf("mesh model: %w", err)
	}
	return []types.Model{
		{Workload: types.WorkloadImage, Name: c.Image.Name, Script: c.Image.Script, RequiredVRAMBytes: imgBytes},
		{Workload: types.WorkloadMesh, Name: c.Mesh.Name, Script: c.Mesh.Script, RequiredVRAMBytes: meshBytes},
	}, nil
}
