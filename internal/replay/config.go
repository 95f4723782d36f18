/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package replay

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/go-appkit/config"
)

const cfgDefaultKeyPrefix = "replay"

const (
	cfgKeyFiles       = "files"
	cfgKeyBuiltin     = "builtin"
	cfgKeyFilters     = "filters"
	cfgKeyConcurrency = "concurrency"
	cfgKeyScenarios   = "scenarios"
)

// DefaultConcurrency is the default number of scenarios executed at the same time.
const DefaultConcurrency = 4

// Config represents a set of configuration parameters for the replay.
type Config struct {
	// Files are paths to YAML files with scenarios.
	Files []string `mapstructure:"files" yaml:"files" json:"files"`

	// Builtin determines whether the builtin reference scenarios are executed.
	Builtin bool `mapstructure:"builtin" yaml:"builtin" json:"builtin"`

	// Filters are glob patterns for scenario names.
	Filters []string `mapstructure:"filters" yaml:"filters" json:"filters"`

	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`

	// Scenarios are declared right in the configuration file, in the same format as in scenario files.
	Scenarios []Scenario `mapstructure:"scenarios" yaml:"scenarios" json:"scenarios"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBuiltin, true)
	dp.SetDefault(cfgKeyConcurrency, DefaultConcurrency)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Files, err = dp.GetStringSlice(cfgKeyFiles); err != nil {
		return err
	}
	if c.Builtin, err = dp.GetBool(cfgKeyBuiltin); err != nil {
		return err
	}
	if c.Filters, err = dp.GetStringSlice(cfgKeyFilters); err != nil {
		return err
	}
	if c.Concurrency, err = dp.GetInt(cfgKeyConcurrency); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return dp.WrapKeyErr(cfgKeyConcurrency, fmt.Errorf("should be >= 1"))
	}

	c.Scenarios = nil
	if err = dp.UnmarshalKey(cfgKeyScenarios, &c.Scenarios, rejectUnknownFields); err != nil {
		return err
	}
	if err = validateAll(c.Scenarios); err != nil {
		return dp.WrapKeyErr(cfgKeyScenarios, err)
	}
	return nil
}

// rejectUnknownFields makes a misspelled step field (e.g. "wnat") a configuration error
// instead of a silently ignored expectation.
func rejectUnknownFields(dc *mapstructure.DecoderConfig) {
	dc.ErrorUnused = true
}

// LoadScenarios collects builtin scenarios (if enabled), scenarios declared in the configuration
// and scenarios from all configured files.
func (c *Config) LoadScenarios() ([]Scenario, error) {
	var scenarios []Scenario
	if c.Builtin {
		scenarios = append(scenarios, Builtin()...)
	}
	scenarios = append(scenarios, c.Scenarios...)
	for _, path := range c.Files {
		fileScenarios, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, fileScenarios...)
	}
	return scenarios, nil
}
