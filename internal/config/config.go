// Package config loads the machine description.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const pageSize = 16 << 10

// Machine describes the virtual machine to build.
type Machine struct {
	// CPUs is the number of vCPUs. Defaults to 1.
	CPUs int `yaml:"cpus"`

	// MemoryBase is the guest physical address RAM starts at. Defaults to
	// 0x40000000.
	MemoryBase uint64 `yaml:"memory_base"`

	// MemorySize is the RAM size in bytes. Defaults to 256 MiB.
	MemorySize uint64 `yaml:"memory_size"`

	// Kernel is the path of a raw image loaded at MemoryBase, where
	// execution starts.
	Kernel string `yaml:"kernel"`

	// VTimerIntID is the interrupt controller ID of the virtual timer.
	// Defaults to 27, the architectural PPI.
	VTimerIntID int `yaml:"vtimer_int_id"`
}

// Load reads a machine description from a YAML file, fills in defaults and
// validates it.
func Load(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var m Machine
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &m, nil
}

func (m *Machine) applyDefaults() {
	if m.CPUs == 0 {
		m.CPUs = 1
	}
	if m.MemoryBase == 0 {
		m.MemoryBase = 0x4000_0000
	}
	if m.MemorySize == 0 {
		m.MemorySize = 256 << 20
	}
	if m.VTimerIntID == 0 {
		m.VTimerIntID = 27
	}
}

func (m *Machine) validate() error {
	if m.CPUs < 1 {
		return fmt.Errorf("cpus must be at least 1, got %d", m.CPUs)
	}
	if m.MemoryBase%pageSize != 0 {
		return fmt.Errorf("memory_base 0x%x is not %d byte aligned", m.MemoryBase, pageSize)
	}
	if m.MemorySize%pageSize != 0 {
		return fmt.Errorf("memory_size 0x%x is not a multiple of %d", m.MemorySize, pageSize)
	}
	return nil
}
