// Package gpu queries device memory for admission decisions and status
// reporting. The probe is read-only and never returns an error: when the
// device cannot be queried it reports Available=false with a diagnostic,
// and callers decide how to proceed.
package gpu

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"forged/pkg/types"
)

// Prober reports device memory. Implementations must be safe for concurrent
// use and must not serialize behind any other operation.
type Prober interface {
	Probe() types.VRAMInfo
}

const (
	defaultBin     = "nvidia-smi"
	defaultTimeout = 2 * time.Second

	mib = 1024 * 1024
)

// NVSMIProber shells out to nvidia-smi for memory figures.
type NVSMIProber struct {
	// Bin is the nvidia-smi binary; defaults to "nvidia-smi" from PATH.
	Bin string
	// Timeout bounds one query; defaults to 2s.
	Timeout time.Duration
}

// NewNVSMIProber returns a prober with default binary and timeout.
func NewNVSMIProber() *NVSMIProber { return &NVSMIProber{} }

// Probe runs one query against device 0.
func (p *NVSMIProber) Probe() types.VRAMInfo {
	bin := p.Bin
	if bin == "" {
		bin = defaultBin
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin,
		"--query-gpu=name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits",
		"--id=0",
	).Output()
	if err != nil {
		return types.VRAMInfo{Available: false, Error: fmt.Sprintf("vram query failed: %v", err)}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	info, err := parseQueryLine(line)
	if err != nil {
		return types.VRAMInfo{Available: false, Error: err.Error()}
	}
	return info
}

// parseQueryLine parses one "name, total, used, free" CSV line with MiB values.
func parseQueryLine(line string) (types.VRAMInfo, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return types.VRAMInfo{}, fmt.Errorf("unexpected nvidia-smi output: %q", line)
	}
	name := strings.TrimSpace(fields[0])
	vals := make([]int64, 3)
	for i, f := range fields[1:] {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return types.VRAMInfo{}, fmt.Errorf("unexpected nvidia-smi field %q: %v", f, err)
		}
		vals[i] = n * mib
	}
	total, used, free := vals[0], vals[1], vals[2]
	// The driver keeps some memory for itself; surface it as reserved.
	reserved := total - used - free
	if reserved < 0 {
		reserved = 0
	}
	return types.VRAMInfo{
		Available:     true,
		TotalBytes:    total,
		UsedBytes:     used,
		ReservedBytes: reserved,
		FreeBytes:     free,
		DeviceName:    name,
	}, nil
}
