package simulated

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/partsync/pkg/engine"
)

// Inventory describes the initial contents of a simulated controller.
type Inventory struct {
	CPCs []CPCSpec `yaml:"cpcs" json:"cpcs"`
}

// CPCSpec describes one CPC with its adapters and partitions.
type CPCSpec struct {
	Name       string          `yaml:"name" json:"name"`
	DPMEnabled *bool           `yaml:"dpm_enabled,omitempty" json:"dpm_enabled,omitempty"`
	Adapters   []DependentSpec `yaml:"adapters,omitempty" json:"adapters,omitempty"`
	Partitions []PartitionSpec `yaml:"partitions,omitempty" json:"partitions,omitempty"`
}

// PartitionSpec describes one partition and its dependents.
type PartitionSpec struct {
	Name             string                 `yaml:"name" json:"name"`
	Status           string                 `yaml:"status,omitempty" json:"status,omitempty"`
	Properties       map[string]interface{} `yaml:"properties,omitempty" json:"properties,omitempty"`
	NICs             []DependentSpec        `yaml:"nics,omitempty" json:"nics,omitempty"`
	HBAs             []DependentSpec        `yaml:"hbas,omitempty" json:"hbas,omitempty"`
	VirtualFunctions []DependentSpec        `yaml:"virtual_functions,omitempty" json:"virtual_functions,omitempty"`
	StorageGroups    []DependentSpec        `yaml:"storage_groups,omitempty" json:"storage_groups,omitempty"`
	Crypto           *CryptoSpec            `yaml:"crypto_configuration,omitempty" json:"crypto_configuration,omitempty"`
}

// DependentSpec describes a NIC, HBA, virtual function, storage group or
// adapter.
type DependentSpec struct {
	Name       string                 `yaml:"name" json:"name"`
	Type       string                 `yaml:"type,omitempty" json:"type,omitempty"`
	Properties map[string]interface{} `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// CryptoSpec is the crypto configuration of a partition by adapter name.
type CryptoSpec struct {
	Adapters []string     `yaml:"adapters" json:"adapters"`
	Domains  []DomainSpec `yaml:"domains" json:"domains"`
}

// DomainSpec assigns one crypto domain.
type DomainSpec struct {
	Index      int    `yaml:"index" json:"index"`
	AccessMode string `yaml:"access_mode" json:"access_mode"`
}

// LoadInventory reads a YAML inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	inv, err := ParseInventory(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return inv, nil
}

// ParseInventory decodes and validates a YAML inventory.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Validate checks names, statuses and crypto adapter references.
func (inv *Inventory) Validate() error {
	cpcs := make(map[string]bool, len(inv.CPCs))
	for i, cpc := range inv.CPCs {
		if cpc.Name == "" {
			return fmt.Errorf("cpcs[%d]: name is required", i)
		}
		if cpcs[cpc.Name] {
			return fmt.Errorf("cpc %s is defined more than once", cpc.Name)
		}
		cpcs[cpc.Name] = true

		adapters := make(map[string]bool, len(cpc.Adapters))
		for j, a := range cpc.Adapters {
			if a.Name == "" {
				return fmt.Errorf("cpc %s: adapters[%d]: name is required", cpc.Name, j)
			}
			adapters[a.Name] = true
		}

		parts := make(map[string]bool, len(cpc.Partitions))
		for j, p := range cpc.Partitions {
			if p.Name == "" {
				return fmt.Errorf("cpc %s: partitions[%d]: name is required", cpc.Name, j)
			}
			if parts[p.Name] {
				return fmt.Errorf("cpc %s: partition %s is defined more than once", cpc.Name, p.Name)
			}
			parts[p.Name] = true

			if p.Status != "" && !knownStatus(engine.PartitionStatus(p.Status)) {
				return fmt.Errorf("cpc %s: partition %s: unknown status %q", cpc.Name, p.Name, p.Status)
			}
			if p.Crypto != nil {
				for _, name := range p.Crypto.Adapters {
					if !adapters[name] {
						return fmt.Errorf("cpc %s: partition %s: crypto adapter %s is not defined", cpc.Name, p.Name, name)
					}
				}
			}
		}
	}
	return nil
}

func knownStatus(s engine.PartitionStatus) bool {
	for _, known := range engine.SettledStatuses {
		if s == known {
			return true
		}
	}
	return s == engine.PartitionStatusStarting || s == engine.PartitionStatusStopping
}
