// Package config provides configuration management for the objprofile CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/rekby/objprofile"
)

// Config holds all configuration for the application.
type Config struct {
	Profile ProfileConfig `mapstructure:"profile"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Output  OutputConfig  `mapstructure:"output"`
	Log     LogConfig     `mapstructure:"log"`
}

// ProfileConfig selects the memory layout sizes are computed with.
type ProfileConfig struct {
	Layout         string `mapstructure:"layout"` // go or jvm32
	ShortTypeNames bool   `mapstructure:"short_type_names"`
	// Header overrides, negative keeps the layout preset.
	ObjectHeader int64 `mapstructure:"object_header"`
	ArrayHeader  int64 `mapstructure:"array_header"`
}

// FilterConfig selects the nodes shown in reports. Zero values disable a filter.
type FilterConfig struct {
	MinSize        int64   `mapstructure:"min_size"`
	Rank           int     `mapstructure:"rank"`
	RootFraction   float64 `mapstructure:"root_fraction"`
	ParentFraction float64 `mapstructure:"parent_fraction"`
}

// OutputConfig holds report configuration.
type OutputConfig struct {
	Format string `mapstructure:"format"` // text or json
	Path   string `mapstructure:"path"`   // empty for stdout
	Indent string `mapstructure:"indent"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

const (
	LayoutGo    = "go"
	LayoutJVM32 = "jvm32"

	FormatText = "text"
	FormatJSON = "json"
)

// Load reads configuration from the specified file path.
// A missing file leaves the defaults in place.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("objprofile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/objprofile")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// OBJPROFILE_FILTER_MIN_SIZE overrides filter.min_size
	v.SetEnvPrefix("objprofile")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("profile.layout", LayoutGo)
	v.SetDefault("profile.short_type_names", false)
	v.SetDefault("profile.object_header", -1)
	v.SetDefault("profile.array_header", -1)

	v.SetDefault("filter.min_size", 0)
	v.SetDefault("filter.rank", 0)
	v.SetDefault("filter.root_fraction", 0)
	v.SetDefault("filter.parent_fraction", 0)

	v.SetDefault("output.format", FormatText)
	v.SetDefault("output.path", "")
	v.SetDefault("output.indent", "  ")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Profile.Layout != LayoutGo && c.Profile.Layout != LayoutJVM32 {
		return fmt.Errorf("unsupported layout: %s", c.Profile.Layout)
	}
	if c.Output.Format != FormatText && c.Output.Format != FormatJSON {
		return fmt.Errorf("unsupported output format: %s", c.Output.Format)
	}
	if c.Filter.MinSize < 0 || c.Filter.Rank < 0 {
		return fmt.Errorf("filter thresholds must not be negative")
	}
	if c.Filter.RootFraction < 0 || c.Filter.RootFraction > 1 {
		return fmt.Errorf("root fraction must be within [0, 1]: %v", c.Filter.RootFraction)
	}
	if c.Filter.ParentFraction < 0 || c.Filter.ParentFraction > 1 {
		return fmt.Errorf("parent fraction must be within [0, 1]: %v", c.Filter.ParentFraction)
	}
	return nil
}

// BuildLayout returns the configured layout preset with header overrides applied.
func (c *Config) BuildLayout() (objprofile.Layout, error) {
	var layout objprofile.Layout
	switch c.Profile.Layout {
	case LayoutGo:
		layout = objprofile.GoLayout()
	case LayoutJVM32:
		layout = objprofile.JVM32Layout()
	default:
		return layout, fmt.Errorf("unsupported layout: %s", c.Profile.Layout)
	}

	if c.Profile.ObjectHeader >= 0 {
		layout.ObjectHeader = c.Profile.ObjectHeader
	}
	if c.Profile.ArrayHeader >= 0 {
		layout.ArrayHeader = c.Profile.ArrayHeader
	}
	return layout, layout.Validate()
}

// BuildFilter combines every enabled filter. Nil when none is.
func (c *Config) BuildFilter() objprofile.Filter {
	var filters []objprofile.Filter
	if c.Filter.MinSize > 0 {
		filters = append(filters, objprofile.SizeFilter(c.Filter.MinSize))
	}
	if c.Filter.Rank > 0 {
		filters = append(filters, objprofile.RankFilter(c.Filter.Rank))
	}
	if c.Filter.RootFraction > 0 {
		filters = append(filters, objprofile.SizeFractionFilter(c.Filter.RootFraction))
	}
	if c.Filter.ParentFraction > 0 {
		filters = append(filters, objprofile.ParentSizeFractionFilter(c.Filter.ParentFraction))
	}

	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return objprofile.And(filters...)
	}
}
