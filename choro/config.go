package choro

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration file.
type Config struct {
	HTTP      HTTPConfig            `yaml:"http" json:"http"`
	MQTT      MQTTConfig            `yaml:"mqtt" json:"mqtt"`
	Data      DataConfig            `yaml:"data" json:"data"`
	Viewport  ViewportConfig        `yaml:"viewport" json:"viewport"`
	Modes     map[string]ModeConfig `yaml:"modes,omitempty" json:"modes,omitempty"`
	StateFile string                `yaml:"stateFile,omitempty" json:"stateFile,omitempty"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings. An empty broker disables
// MQTT entirely; the HTTP surface keeps working.
type MQTTConfig struct {
	Broker   string `yaml:"broker,omitempty" json:"broker,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	ClientID string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DataConfig locates the feature collections. Sources maps an
// aggregation level to an explicit file path or http(s) URL, overriding
// the conventional name under Dir.
type DataConfig struct {
	Dir      string            `yaml:"dir" json:"dir"`
	Year     int               `yaml:"year" json:"year"`
	Simplify float64           `yaml:"simplify,omitempty" json:"simplify,omitempty"` // degrees; 0 disables
	Sources  map[string]string `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// ViewportConfig sets session creation defaults.
type ViewportConfig struct {
	Width             int           `yaml:"width,omitempty" json:"width,omitempty"`
	Height            int           `yaml:"height,omitempty" json:"height,omitempty"`
	DefaultMode       string        `yaml:"defaultMode,omitempty" json:"defaultMode,omitempty"`
	Breakpoints       []Breakpoint  `yaml:"breakpoints,omitempty" json:"breakpoints,omitempty"`
	Speeds            *MotionSpeeds `yaml:"speeds,omitempty" json:"speeds,omitempty"`
	SessionTTLMinutes int           `yaml:"sessionTtlMinutes,omitempty" json:"sessionTtlMinutes,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: 8090},
		MQTT: MQTTConfig{Prefix: "parcelview"},
		Data: DataConfig{
			Dir:  "./data",
			Year: 2024,
		},
		Viewport: ViewportConfig{
			Width:       1280,
			Height:      800,
			DefaultMode: "lot:paid",
		},
		StateFile: ".parcelview-state.json",
	}
}

// LoadConfig loads and validates the YAML configuration, filling in
// defaults for unset fields. PARCELVIEW_DATA overrides the data
// directory; MQTT_* overrides are applied by the MQTT layer when
// connecting.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if dir := os.Getenv("PARCELVIEW_DATA"); dir != "" {
		config.Data.Dir = dir
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields and cross-field consistency.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.Year < 1900 || c.Data.Year > 2200 {
		return fmt.Errorf("data.year %d out of range", c.Data.Year)
	}
	if c.Data.Simplify < 0 {
		return fmt.Errorf("data.simplify must not be negative")
	}
	for level := range c.Data.Sources {
		if !validLevel(Level(level)) {
			return fmt.Errorf("data.sources: unknown level %q", level)
		}
	}

	if c.Viewport.DefaultMode != "" {
		if _, err := ParseModeKey(c.Viewport.DefaultMode); err != nil {
			return fmt.Errorf("viewport.defaultMode: %w", err)
		}
	}
	for i := 1; i < len(c.Viewport.Breakpoints); i++ {
		if c.Viewport.Breakpoints[i].Width <= c.Viewport.Breakpoints[i-1].Width {
			return fmt.Errorf("viewport.breakpoints must have strictly increasing widths")
		}
	}
	if s := c.Viewport.Speeds; s != nil {
		if s.Pan <= 0 || s.Zoom <= 0 || s.Rotate <= 0 || s.Pitch <= 0 {
			return fmt.Errorf("viewport.speeds must all be positive")
		}
	}

	for key, mc := range c.Modes {
		if _, err := ParseModeKey(key); err != nil {
			return fmt.Errorf("modes[%s]: %w", key, err)
		}
		if mc.DomainMax <= 0 {
			return fmt.Errorf("modes[%s].max must be positive", key)
		}
		if mc.HeightCeiling <= 0 {
			return fmt.Errorf("modes[%s].ceiling must be positive", key)
		}
	}
	return nil
}

func validLevel(l Level) bool {
	switch l {
	case LevelUnit, LevelLot, LevelBlock, LevelWard:
		return true
	}
	return false
}

func validMetric(m Metric) bool {
	switch m {
	case MetricPaid, MetricBilled, MetricPaidPerSqft, MetricPaidPerCapita:
		return true
	}
	return false
}

// SaveConfig writes the configuration back as YAML.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ModeTable builds the display-mode table: built-ins overlaid with the
// file's mode entries.
func (c *Config) ModeTable() *ModeTable {
	table := BuiltinModes()
	for key, mc := range c.Modes {
		k, err := ParseModeKey(key)
		if err != nil {
			continue // Validate already rejected these
		}
		table.Set(k, mc)
	}
	return table
}

// SessionDefaults converts the viewport section into session creation
// defaults.
func (c *Config) SessionDefaults() SessionDefaults {
	d := SessionDefaults{
		Breakpoints: c.Viewport.Breakpoints,
		Width:       c.Viewport.Width,
		Height:      c.Viewport.Height,
	}
	if c.Viewport.Speeds != nil {
		d.Speeds = *c.Viewport.Speeds
	}
	if c.Viewport.DefaultMode != "" {
		if k, err := ParseModeKey(c.Viewport.DefaultMode); err == nil {
			d.Mode = k
		}
	}
	if c.Viewport.SessionTTLMinutes > 0 {
		d.TTL = time.Duration(c.Viewport.SessionTTLMinutes) * time.Minute
	}
	return d
}

// DatasetSource resolves the collection source for a level: an explicit
// source entry wins, otherwise the conventional path under Dir.
func (c *Config) DatasetSource(level Level) string {
	if src, ok := c.Data.Sources[string(level)]; ok && src != "" {
		return src
	}
	return DatasetPath(c.Data.Dir, level, c.Data.Year)
}
