package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forged/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "forged.yaml", `
addr: ":9001"
vram_buffer: "1GiB"
restart_after: 5
image:
  name: SDXL
  script: workers/sdxl_worker.py
  required_vram: "8GiB"
  steps: 30
mesh:
  script: workers/instantmesh_worker.py
  required_vram: "6GiB"
kafka:
  brokers: ["localhost:9092"]
  topic: forged-events
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.Addr)
	assert.Equal(t, 5, cfg.RestartAfter)
	assert.Equal(t, "workers/sdxl_worker.py", cfg.Image.Script)
	assert.Equal(t, 30, cfg.Image.Steps)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)

	buf, err := cfg.VRAMBufferBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), buf)
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "forged.toml", `
addr = ":9002"

[image]
required_vram = "8GiB"

[mesh]
required_vram = "6144MiB"
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9002", cfg.Addr)

	n, err := cfg.Mesh.RequiredVRAMBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(6144<<20), n)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "forged.json", `{"addr": ":9003", "python_bin": "python3.11"}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9003", cfg.Addr)
	assert.Equal(t, "python3.11", cfg.PythonBin)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, "forged.ini", "addr=:1")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultPythonBin, cfg.PythonBin)
	assert.Equal(t, DefaultRestartAfter, cfg.RestartAfter)
	assert.Equal(t, "SDXL", cfg.Image.Name)
	assert.Equal(t, "InstantMesh", cfg.Mesh.Name)
	assert.Equal(t, defaultImageSteps, cfg.Image.Steps)
	assert.Equal(t, defaultMeshSteps, cfg.Mesh.Steps)

	// explicit values survive
	cfg2 := Config{Addr: ":1", RestartAfter: 3}
	cfg2.ApplyDefaults()
	assert.Equal(t, ":1", cfg2.Addr)
	assert.Equal(t, 3, cfg2.RestartAfter)
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	_, err := ParseSize("lots")
	assert.Error(t, err)
}

func TestModels(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	models, err := cfg.Models()
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, types.WorkloadImage, models[0].Workload)
	assert.Equal(t, types.WorkloadMesh, models[1].Workload)
	assert.Equal(t, int64(8<<30), models[0].RequiredVRAMBytes)
	assert.Equal(t, int64(6<<30), models[1].RequiredVRAMBytes)

	cfg.Mesh.RequiredVRAM = "bogus"
	_, err = cfg.Models()
	assert.Error(t, err)
}
