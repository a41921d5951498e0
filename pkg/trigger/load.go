package trigger

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ava-labs/backrunner/pkg/utils"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Triggers []triggerSpec `yaml:"triggers"`
}

type triggerSpec struct {
	ID            string        `yaml:"id"`
	Target        string        `yaml:"target"`
	DefaultValue  uint64        `yaml:"default_value"`
	LowerBound    uint64        `yaml:"lower_bound"`
	UpperBound    uint64        `yaml:"upper_bound"`
	Strategy      string        `yaml:"strategy,omitempty"`
	MaxIterations int           `yaml:"max_iterations,omitempty"`
	Deadline      time.Duration `yaml:"deadline,omitempty"`
	MinProfit     string        `yaml:"min_profit,omitempty"`
	Watch         watchSpec     `yaml:"watch"`
}

type watchSpec struct {
	Addresses    []string         `yaml:"addresses,omitempty"`
	Selectors    []string         `yaml:"selectors,omitempty"`
	SelectorSets []string         `yaml:"selector_sets,omitempty"`
	StorageKeys  []storageKeySpec `yaml:"storage_keys,omitempty"`
}

type storageKeySpec struct {
	Address string `yaml:"address"`
	Slot    string `yaml:"slot"`
}

// LoadConfigs reads trigger configurations from a YAML file.
func LoadConfigs(path string) ([]TriggerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger config %s: %w", path, err)
	}
	configs, err := ParseConfigs(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trigger config %s: %w", path, err)
	}
	return configs, nil
}

// ParseConfigs decodes and validates YAML trigger configurations.
// Configs with inverted bounds are accepted; see TriggerConfig.Degenerate.
func ParseConfigs(data []byte) ([]TriggerConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	configs := make([]TriggerConfig, 0, len(fc.Triggers))
	ids := make(map[string]struct{}, len(fc.Triggers))
	var errs []error
	for i, entry := range fc.Triggers {
		cfg, err := entry.build()
		if err != nil {
			errs = append(errs, fmt.Errorf("trigger %d (%q): %w", i, entry.ID, err))
			continue
		}
		if _, dup := ids[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("trigger %d: duplicate id %q", i, cfg.ID))
			continue
		}
		ids[cfg.ID] = struct{}{}
		configs = append(configs, cfg)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return configs, nil
}

func (s triggerSpec) build() (TriggerConfig, error) {
	if s.ID == "" {
		return TriggerConfig{}, errors.New("invalid id: must not be empty")
	}
	target, err := utils.HexToAddress(s.Target)
	if err != nil {
		return TriggerConfig{}, fmt.Errorf("invalid target: %w", err)
	}
	strategy, err := optimizer.ParseStrategy(s.Strategy)
	if err != nil {
		return TriggerConfig{}, err
	}
	if s.MaxIterations < 0 {
		return TriggerConfig{}, errors.New("invalid max_iterations: must not be negative")
	}
	if s.Deadline < 0 {
		return TriggerConfig{}, errors.New("invalid deadline: must not be negative")
	}

	cfg := TriggerConfig{
		ID:             s.ID,
		TargetContract: target,
		DefaultValue:   s.DefaultValue,
		LowerBound:     s.LowerBound,
		UpperBound:     s.UpperBound,
		Strategy:       strategy,
		MaxIterations:  s.MaxIterations,
		Deadline:       s.Deadline,
	}
	if s.MinProfit != "" {
		minProfit, ok := new(big.Int).SetString(s.MinProfit, 10)
		if !ok {
			return TriggerConfig{}, fmt.Errorf("invalid min_profit %q: not a decimal integer", s.MinProfit)
		}
		cfg.MinProfit = minProfit
	}

	for _, a := range s.Watch.Addresses {
		addr, err := utils.HexToAddress(a)
		if err != nil {
			return TriggerConfig{}, fmt.Errorf("invalid watched address: %w", err)
		}
		cfg.WatchedAddresses = append(cfg.WatchedAddresses, addr)
	}
	for _, h := range s.Watch.Selectors {
		sel, err := utils.HexToSelector(h)
		if err != nil {
			return TriggerConfig{}, fmt.Errorf("invalid watched selector: %w", err)
		}
		cfg.WatchedSelectors = append(cfg.WatchedSelectors, sel)
	}
	for _, name := range s.Watch.SelectorSets {
		set, err := SelectorSet(name)
		if err != nil {
			return TriggerConfig{}, err
		}
		cfg.WatchedSelectors = append(cfg.WatchedSelectors, set...)
	}
	for _, k := range s.Watch.StorageKeys {
		addr, err := utils.HexToAddress(k.Address)
		if err != nil {
			return TriggerConfig{}, fmt.Errorf("invalid storage key address: %w", err)
		}
		slot, err := utils.HexToSlot(k.Slot)
		if err != nil {
			return TriggerConfig{}, fmt.Errorf("invalid storage key slot: %w", err)
		}
		cfg.WatchedStorageKeys = append(cfg.WatchedStorageKeys, snapshot.StorageKey{Address: addr, Slot: slot})
	}
	return cfg, nil
}
