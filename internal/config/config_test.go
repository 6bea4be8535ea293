package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oxplot/go-pdsink/tcdpm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, uint16(5000), cfg.Target.Millivolts())
	assert.Equal(t, uint16(tcdpm.DefaultVbusPresentMv), cfg.VbusPresent.Millivolts())
	assert.Equal(t, physic.MegaHertz, cfg.Speed.Frequency)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
bus: "/dev/i2c-3"
address: 0x23
speed: 400kHz
target: 9V
vbus_present: 3500mV
tick: 2ms
log_file: /tmp/pdsink.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/i2c-3", cfg.Bus)
	assert.Equal(t, uint16(0x23), cfg.Address)
	assert.Equal(t, 400*physic.KiloHertz, cfg.Speed.Frequency)
	assert.Equal(t, uint16(9000), cfg.Target.Millivolts())
	assert.Equal(t, uint16(3500), cfg.VbusPresent.Millivolts())
	assert.Equal(t, 2*time.Millisecond, cfg.Tick)
	assert.Equal(t, "/tmp/pdsink.log", cfg.LogFile)
	assert.NoError(t, cfg.Validate())

	p, err := cfg.SinkPolicy()
	require.NoError(t, err)
	assert.Equal(t, tcdpm.TargetPolicy{Voltage: 9000}, p)
}

func TestLoadPolicies(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
policy:
  kind: cv
  min_voltage: 9V
  max_voltage: 15V
  current: 1.5A
  prefer_lower_voltage: true
`))
	require.NoError(t, err)
	p, err := cfg.SinkPolicy()
	require.NoError(t, err)
	assert.Equal(t, tcdpm.CVPolicy{MinVoltage: 9000, MaxVoltage: 15000, Current: 1500, PreferLowerVoltage: true}, p)

	cfg, err = Load(writeConfig(t, `
policy:
  kind: cp
  power: 27W
`))
	require.NoError(t, err)
	p, err = cfg.SinkPolicy()
	require.NoError(t, err)
	assert.Equal(t, tcdpm.CPPolicy{MinVoltage: 5000, MaxVoltage: 20000, Power: 27000}, p)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "target: [9V]\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "target: nine volts\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = Load(writeConfig(t, "tick: soon\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"address", func(c *Config) { c.Address = 0x80 }, ErrBadAddress},
		{"low target", func(c *Config) { c.Target = Voltage{3 * physic.Volt} }, ErrBadTarget},
		{"high target", func(c *Config) { c.Target = Voltage{48 * physic.Volt} }, ErrBadTarget},
		{"vbus present", func(c *Config) { c.VbusPresent = Voltage{-physic.Volt} }, ErrBadVbusPresent},
		{"tick", func(c *Config) { c.Tick = 0 }, ErrBadTick},
		{"policy kind", func(c *Config) { c.Policy.Kind = "magic" }, ErrBadPolicy},
		{"cv current", func(c *Config) {
			c.Policy.Kind = PolicyCV
			c.Policy.Current = Current{6 * physic.Ampere}
		}, tcdpm.ErrBadCurrent},
		{"cp power", func(c *Config) { c.Policy.Kind = PolicyCP }, tcdpm.ErrBadPower},
		{"range", func(c *Config) {
			c.Policy.Kind = PolicyCV
			c.Policy.MinVoltage = Voltage{15 * physic.Volt}
			c.Policy.MaxVoltage = Voltage{9 * physic.Volt}
		}, tcdpm.ErrMaxVoltageLessThanMin},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), c.err)
		})
	}
}

func TestUnitConversions(t *testing.T) {
	assert.Equal(t, uint16(0), Voltage{-physic.Volt}.Millivolts())
	assert.Equal(t, ^uint16(0), Voltage{100 * physic.Volt}.Millivolts())
	assert.Equal(t, uint16(500), Current{500 * physic.MilliAmpere}.Milliamps())
	assert.Equal(t, uint32(100000), Power{100 * physic.Watt}.Milliwatts())
}
