package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads, validates and completes the configuration stored at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read config file %s", path)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load config file %s", path)
	}

	return cfg, nil
}

// Parse decodes a YAML configuration. Required keys are checked before any default is applied, so a
// malformed file fails here instead of deep inside a step.
func Parse(content []byte) (*Config, error) {
	cfg := &Config{}

	err := yaml.Unmarshal(content, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode yaml")
	}

	cfg.normalize()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return cfg, nil
}

// Marshal encodes the configuration back to YAML, with defaults applied.
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode yaml")
	}

	return out, nil
}

// normalize folds finetuning_config into finetuning. Both keys exist in the wild.
func (c *Config) normalize() {
	for i := range c.Models {
		m := &c.Models[i]
		if m.Finetuning == nil && m.FinetuningConfig != nil {
			m.Finetuning = m.FinetuningConfig
		}
		m.FinetuningConfig = nil
	}
}

// FindModel returns the model whose step name is name.
func (c *Config) FindModel(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.StepName() == name {
			return m, true
		}
	}

	return Model{}, false
}
