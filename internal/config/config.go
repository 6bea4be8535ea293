// Package config loads the pdsink configuration file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oxplot/go-pdsink/tcdpm"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Policy kinds.
const (
	PolicyTarget = "target"
	PolicyCV     = "cv"
	PolicyCP     = "cp"
)

var (
	ErrBadAddress     = errors.New("config: address must be a 7-bit I2C address")
	ErrBadTarget      = errors.New("config: target must be between 3.3V and 21V")
	ErrBadVbusPresent = errors.New("config: vbus_present must be between 0V and 21V")
	ErrBadTick        = errors.New("config: tick must be positive")
	ErrBadPolicy      = errors.New("config: unknown policy kind")
)

// Config holds the pdsink configuration.
type Config struct {
	// Bus is the periph I2C bus name, empty for the first bus found.
	Bus     string    `yaml:"bus"`
	Address uint16    `yaml:"address"`
	Speed   Frequency `yaml:"speed"`

	// Target is the voltage requested by the default policy.
	Target      Voltage       `yaml:"target"`
	VbusPresent Voltage       `yaml:"vbus_present"`
	Tick        time.Duration `yaml:"tick"`
	Policy      Policy        `yaml:"policy"`

	// LogFile receives the logs instead of stderr when set.
	LogFile string `yaml:"log_file"`
}

// Policy selects and parameterizes the capability selection policy. The
// target policy uses Config.Target.
type Policy struct {
	Kind               string  `yaml:"kind"`
	MinVoltage         Voltage `yaml:"min_voltage"`
	MaxVoltage         Voltage `yaml:"max_voltage"`
	Current            Current `yaml:"current"`
	Power              Power   `yaml:"power"`
	PreferLowerVoltage bool    `yaml:"prefer_lower_voltage"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Address:     0x22,
		Speed:       Frequency{physic.MegaHertz},
		Target:      Voltage{5 * physic.Volt},
		VbusPresent: Voltage{tcdpm.DefaultVbusPresentMv * physic.MilliVolt},
		Tick:        5 * time.Millisecond,
		Policy: Policy{
			Kind:       PolicyTarget,
			MinVoltage: Voltage{5 * physic.Volt},
			MaxVoltage: Voltage{20 * physic.Volt},
		},
	}
}

// DefaultPath returns the default config file path: ~/.pdsink/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".pdsink", "config.yaml")
	}
	return filepath.Join(home, ".pdsink", "config.yaml")
}

// Load reads the configuration from the given YAML file path on top of the
// defaults. If the file does not exist, it returns the defaults with no
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values are usable, including the policy parameters.
func (c *Config) Validate() error {
	if c.Address > 0x7F {
		return ErrBadAddress
	}
	if c.Target.ElectricPotential < 3300*physic.MilliVolt || c.Target.ElectricPotential > 21*physic.Volt {
		return ErrBadTarget
	}
	if c.VbusPresent.ElectricPotential < 0 || c.VbusPresent.ElectricPotential > 21*physic.Volt {
		return ErrBadVbusPresent
	}
	if c.Tick <= 0 {
		return ErrBadTick
	}
	p, err := c.SinkPolicy()
	if err != nil {
		return err
	}
	return p.Validate()
}

// SinkPolicy builds the policy described by the configuration.
func (c *Config) SinkPolicy() (tcdpm.Policy, error) {
	switch c.Policy.Kind {
	case "", PolicyTarget:
		return tcdpm.TargetPolicy{Voltage: c.Target.Millivolts()}, nil
	case PolicyCV:
		return tcdpm.CVPolicy{
			MinVoltage:         c.Policy.MinVoltage.Millivolts(),
			MaxVoltage:         c.Policy.MaxVoltage.Millivolts(),
			Current:            c.Policy.Current.Milliamps(),
			PreferLowerVoltage: c.Policy.PreferLowerVoltage,
		}, nil
	case PolicyCP:
		return tcdpm.CPPolicy{
			MinVoltage:         c.Policy.MinVoltage.Millivolts(),
			MaxVoltage:         c.Policy.MaxVoltage.Millivolts(),
			Power:              c.Policy.Power.Milliwatts(),
			PreferLowerVoltage: c.Policy.PreferLowerVoltage,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrBadPolicy, c.Policy.Kind)
}

// Voltage is a physic.ElectricPotential written as "9V" or "5000mV".
type Voltage struct{ physic.ElectricPotential }

// Millivolts returns the voltage in millivolts, saturated to the uint16 range.
func (v Voltage) Millivolts() uint16 {
	return saturate(int64(v.ElectricPotential / physic.MilliVolt))
}

func (v *Voltage) UnmarshalYAML(n *yaml.Node) error { return setValue(n, &v.ElectricPotential) }
func (v Voltage) MarshalYAML() (interface{}, error) { return v.String(), nil }

// Current is a physic.ElectricCurrent written as "1.5A" or "500mA".
type Current struct{ physic.ElectricCurrent }

// Milliamps returns the current in milliamps, saturated to the uint16 range.
func (c Current) Milliamps() uint16 {
	return saturate(int64(c.ElectricCurrent / physic.MilliAmpere))
}

func (c *Current) UnmarshalYAML(n *yaml.Node) error { return setValue(n, &c.ElectricCurrent) }
func (c Current) MarshalYAML() (interface{}, error) { return c.String(), nil }

// Power is a physic.Power written as "27W".
type Power struct{ physic.Power }

// Milliwatts returns the power in milliwatts.
func (p Power) Milliwatts() uint32 {
	mw := int64(p.Power / physic.MilliWatt)
	if mw < 0 {
		return 0
	}
	if mw > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(mw)
}

func (p *Power) UnmarshalYAML(n *yaml.Node) error { return setValue(n, &p.Power) }
func (p Power) MarshalYAML() (interface{}, error) { return p.String(), nil }

// Frequency is a physic.Frequency written as "400kHz" or "1MHz".
type Frequency struct{ physic.Frequency }

func (f *Frequency) UnmarshalYAML(n *yaml.Node) error { return setValue(n, &f.Frequency) }
func (f Frequency) MarshalYAML() (interface{}, error) { return f.String(), nil }

func setValue(n *yaml.Node, v flag.Value) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	if err := v.Set(n.Value); err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	return nil
}

func saturate(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > int64(^uint16(0)) {
		return ^uint16(0)
	}
	return uint16(v)
}
