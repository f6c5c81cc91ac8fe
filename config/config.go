package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

const appName = "aippt"

var (
	homePath       string
	configHomePath string
	dataHomePath   string
	stateHomePath  string
)

type Config struct {
	// Path to the template catalog JSON
	Catalog string `yaml:"catalog,omitempty" json:"catalog,omitempty"`
	// Image sources: files, directories, pool JSON files or URLs
	Images []string `yaml:"images,omitempty" json:"images,omitempty"`
	// Command printing image sources for a query, see {{query}}
	ImageSearchCommand string `yaml:"imageSearchCommand,omitempty" json:"imageSearchCommand,omitempty"`
	// Seed for template and image picks
	Seed *int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	// Rules overriding template selection
	Rules []Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
	// Fonts used to measure text
	Fonts Fonts `yaml:"fonts,omitempty" json:"fonts,omitempty"`
	// Remote image probing
	ImageProbe ImageProbe `yaml:"imageProbe,omitempty" json:"imageProbe,omitempty"`
}

type Rule struct {
	If       string `yaml:"if" json:"if"`                                 // condition to check
	Template string `yaml:"template,omitempty" json:"template,omitempty"` // template id to use if condition is true
	Skip     bool   `yaml:"skip,omitempty" json:"skip,omitempty"`         // whether to omit the item if condition is true
}

type Fonts struct {
	// TTF/OTF file used to measure text
	Regular string `yaml:"regular,omitempty" json:"regular,omitempty"`
}

type ImageProbe struct {
	Timeout     string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
}

// TimeoutDuration returns the probe timeout, or zero when unset.
func (p ImageProbe) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid imageProbe.timeout %q: %w", p.Timeout, err)
	}
	return d, nil
}

func init() {
	var err error
	homePath, err = os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
}

// Load loads the configuration from the config file.
// It searches for config files in the following order:
// 1. $XDG_CONFIG_HOME/aippt/config-{profile}.yml
// 2. $XDG_CONFIG_HOME/aippt/config.yml
// If no config file is found, it returns an empty Config struct.
func Load(profile string) (*Config, error) {
	var configBasePaths []string
	if profile != "" {
		configBasePaths = append(configBasePaths, filepath.Join(configPath(), fmt.Sprintf("config-%s", profile)))
	}
	configBasePaths = append(configBasePaths, filepath.Join(configPath(), "config"))
	cfg := &Config{}
	for _, basePath := range configBasePaths {
		for _, ext := range []string{".yml", ".yaml"} {
			configPath := basePath + ext
			if b, err := os.ReadFile(configPath); err == nil {
				if err := yaml.Unmarshal(b, cfg); err != nil {
					return nil, fmt.Errorf("failed to unmarshal config: %w", err)
				}
				return cfg, nil
			}
		}
	}
	return cfg, nil
}

// configPath returns the path to the configuration directory.
func configPath() string {
	if configHomePath != "" {
		return configHomePath
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		configHomePath = filepath.Join(v, appName)
	} else {
		configHomePath = filepath.Join(homePath, ".config", appName)
	}
	return configHomePath
}

// DataHomePath returns the path to the data home directory.
func DataHomePath() string {
	if dataHomePath != "" {
		return dataHomePath
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		dataHomePath = filepath.Join(v, appName)
	} else {
		dataHomePath = filepath.Join(homePath, ".local", "share", appName)
	}
	return dataHomePath
}

func StateHomePath() string {
	if stateHomePath != "" {
		return stateHomePath
	}
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		stateHomePath = filepath.Join(v, appName)
	} else {
		stateHomePath = filepath.Join(homePath, ".local", "state", appName)
	}
	return stateHomePath
}
