package powermon

import (
	"testing"

	"github.com/TheCacophonyProject/dc-powermon/ina219"
	"github.com/TheCacophonyProject/dc-powermon/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.validate())
	assert.Equal(t, 128, c.WindowSize)
	assert.Equal(t, 41123, c.Port)
	assert.Equal(t, 0x40, c.I2CAddress)
}

func TestApplyArgs(t *testing.T) {
	c := DefaultConfig()
	err := c.applyArgs(Args{
		Address:    "0x41",
		Transport:  ptr("dbus"),
		MaxCurrent: ptr(2.0),
		RShunt:     ptr(50.0),
		WindowSize: ptr(16),
		Port:       ptr(5025),
	})
	require.NoError(t, err)
	require.NoError(t, c.validate())
	assert.Equal(t, 0x41, c.I2CAddress)
	assert.Equal(t, transportDBus, c.Transport)
	assert.Equal(t, 2.0, c.MaxCurrentAmps)
	assert.Equal(t, 50.0, c.ShuntMilliOhms)
	assert.Equal(t, 16, c.WindowSize)
	assert.Equal(t, 5025, c.Port)
}

func TestUnsetArgsKeepConfig(t *testing.T) {
	c := DefaultConfig()
	c.WindowSize = 64
	require.NoError(t, c.applyArgs(Args{}))
	assert.Equal(t, 64, c.WindowSize)
}

func TestInvalidConfig(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero window":      func(c *Config) { c.WindowSize = 0 },
		"oversized window": func(c *Config) { c.WindowSize = stats.MaxWindowSize + 1 },
		"zero port":        func(c *Config) { c.Port = 0 },
		"large port":       func(c *Config) { c.Port = 70000 },
		"zero shunt":       func(c *Config) { c.ShuntMilliOhms = 0 },
		"negative current": func(c *Config) { c.MaxCurrentAmps = -1 },
		"bad transport":    func(c *Config) { c.Transport = "spi" },
		"bad address":      func(c *Config) { c.I2CAddress = 0x90 },
	}
	for name, modify := range tests {
		c := DefaultConfig()
		modify(&c)
		assert.Error(t, c.validate(), name)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("0x40")
	require.NoError(t, err)
	assert.Equal(t, 0x40, addr)

	addr, err = parseAddress("69")
	require.NoError(t, err)
	assert.Equal(t, 69, addr)

	_, err = parseAddress("0x400")
	assert.Error(t, err)
	_, err = parseAddress("forty")
	assert.Error(t, err)
}

func TestSensorOpts(t *testing.T) {
	c := DefaultConfig()
	opts := c.sensorOpts()
	cal, _, err := ina219.Calibration(opts.MaxCurrent, opts.ShuntResistance)
	require.NoError(t, err)
	assert.Equal(t, uint16(13420), cal)
}
