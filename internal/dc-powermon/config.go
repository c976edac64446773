package powermon

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheCacophonyProject/dc-powermon/ina219"
	"github.com/TheCacophonyProject/dc-powermon/scpi"
	"github.com/TheCacophonyProject/dc-powermon/stats"
	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
	"periph.io/x/conn/v3/physic"
)

const (
	configKey = "power-monitor"

	transportI2C  = "i2c"
	transportDBus = "dbus"
)

type Config struct {
	I2CAddress     int           `mapstructure:"i2c-address"`
	I2CBus         string        `mapstructure:"i2c-bus"`
	Transport      string        `mapstructure:"transport"`
	ShuntMilliOhms float64       `mapstructure:"r-shunt-milliohms"`
	MaxCurrentAmps float64       `mapstructure:"max-current-amps"`
	WindowSize     int           `mapstructure:"window-size"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	LogRate        time.Duration `mapstructure:"log-rate"`
	ReportInterval time.Duration `mapstructure:"report-interval"`
}

func DefaultConfig() Config {
	return Config{
		I2CAddress:     ina219.DefaultAddress,
		Transport:      transportI2C,
		ShuntMilliOhms: 100,
		MaxCurrentAmps: 1,
		WindowSize:     128,
		Port:           scpi.DefaultPort,
		ReadTimeout:    2 * time.Second,
		LogRate:        5 * time.Minute,
		ReportInterval: time.Hour,
	}
}

// ParseConfig reads the power-monitor section of the device config.
func ParseConfig(configDir string) (*Config, error) {
	conf, err := goconfig.New(configDir)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := conf.Unmarshal(configKey, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyArgs overrides config values with the ones given on the command line.
func (c *Config) applyArgs(args Args) error {
	if args.Address != "" {
		addr, err := parseAddress(args.Address)
		if err != nil {
			return err
		}
		c.I2CAddress = addr
	}
	if args.Bus != nil {
		c.I2CBus = *args.Bus
	}
	if args.Transport != nil {
		c.Transport = *args.Transport
	}
	if args.RShunt != nil {
		c.ShuntMilliOhms = *args.RShunt
	}
	if args.MaxCurrent != nil {
		c.MaxCurrentAmps = *args.MaxCurrent
	}
	if args.WindowSize != nil {
		c.WindowSize = *args.WindowSize
	}
	if args.Port != nil {
		c.Port = *args.Port
	}
	return nil
}

func (c *Config) validate() error {
	if c.I2CAddress < 0x03 || c.I2CAddress > 0x77 {
		return fmt.Errorf("invalid I2C address 0x%X", c.I2CAddress)
	}
	if c.Transport != transportI2C && c.Transport != transportDBus {
		return fmt.Errorf("unknown transport '%s', use %s or %s", c.Transport, transportI2C, transportDBus)
	}
	if c.WindowSize < 1 || c.WindowSize > stats.MaxWindowSize {
		return fmt.Errorf("window size %d must be between 1 and %d", c.WindowSize, stats.MaxWindowSize)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d must be between 1 and 65535", c.Port)
	}
	if c.ShuntMilliOhms <= 0 {
		return fmt.Errorf("shunt resistance must be positive, got %v mOhm", c.ShuntMilliOhms)
	}
	if c.MaxCurrentAmps <= 0 {
		return fmt.Errorf("max current must be positive, got %v A", c.MaxCurrentAmps)
	}
	return nil
}

func (c *Config) sensorOpts() ina219.Opts {
	opts := ina219.DefaultOpts
	opts.MaxCurrent = physic.ElectricCurrent(c.MaxCurrentAmps * float64(physic.Ampere))
	opts.ShuntResistance = physic.ElectricResistance(c.ShuntMilliOhms * float64(physic.MilliOhm))
	return opts
}

func (c *Config) loopConfig() LoopConfig {
	return LoopConfig{
		ReadTimeout:    c.ReadTimeout,
		LogRate:        c.LogRate,
		ReportInterval: c.ReportInterval,
	}
}

// parseAddress accepts addresses like 0x40 or 64.
func parseAddress(s string) (int, error) {
	s = strings.TrimSpace(s)
	val, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid I2C address '%s': %v", s, err)
	}
	return int(val), nil
}

// watchConfig returns true once the config file changes in a way that
// differs from conf, false if ctx is done first.
func watchConfig(ctx context.Context, conf *Config, configDir string) (bool, error) {
	configFilePath := filepath.Join(configDir, goconfig.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return false, err
	}
	defer notify.Stop(fsEvents)

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-fsEvents:
		}
		newConfig, err := ParseConfig(configDir)
		if err != nil {
			log.Error("Error reloading config: ", err)
			continue
		}
		diff := cmp.Diff(conf, newConfig)
		log.Debug("Config diff: ", diff)
		if diff != "" {
			log.Info("Config changed. Exiting to allow systemd to restart the service.")
			return true, nil
		}
		log.Info("No relevant changes detected in config file.")
	}
}
