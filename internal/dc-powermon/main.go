/*
dc-powermon - Power monitoring for DC supplies
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package powermon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/TheCacophonyProject/dc-powermon/i2crequest"
	"github.com/TheCacophonyProject/dc-powermon/ina219"
	"github.com/TheCacophonyProject/dc-powermon/scpi"
	"github.com/TheCacophonyProject/dc-powermon/stats"
	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	vendor  = "The Cacophony Project"
	product = "dc-powermon"
)

var (
	version = "<not set>"
	log     = logrus.New()
)

type Args struct {
	Address    string   `arg:"-a,--addr" help:"I2C address of the INA219, defaults to 0x40"`
	Bus        *string  `arg:"--i2c-bus" help:"I2C bus to open, defaults to the first bus found"`
	Transport  *string  `arg:"--transport" help:"How to reach the I2C bus, 'i2c' for direct access or 'dbus' to go through the I2C service"`
	MaxCurrent *float64 `arg:"-i,--max-current" help:"Maximum current expected to flow through the shunt resistor in amps, defaults to 1.0 A"`
	RShunt     *float64 `arg:"-r,--r-shunt" help:"Shunt resistor value in milliohms, defaults to 100.0 mOhm"`
	WindowSize *int     `arg:"-w,--window-size" help:"Number of samples averaged, defaults to 128"`
	Port       *int     `arg:"-p,--port" help:"Control socket port, defaults to 41123"`
	Console    string   `arg:"--console" default:"auto" help:"Live readout on stdout: auto, always or never"`
	ConfigDir  string   `arg:"-c,--config" help:"configuration folder"`
	LogLevel   string   `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func (Args) Description() string {
	return "INA219 power monitor. After start, send SIGINT (Ctrl+C) to stop."
}

var defaultArgs = Args{
	ConfigDir: goconfig.DefaultConfigDir,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log.SetFormatter(new(customFormatter))
	setLogLevel(args.LogLevel)

	log.Info("Running version: ", version)

	fileConf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	conf := *fileConf
	if err := conf.applyArgs(args); err != nil {
		return err
	}
	if err := conf.validate(); err != nil {
		return err
	}
	showConsole, err := consoleEnabled(args.Console)
	if err != nil {
		return err
	}
	log.Debugf("Config: %+v", conf)

	engine, err := stats.NewEngine(conf.WindowSize)
	if err != nil {
		return err
	}

	conn, closeConn, err := openConn(&conf)
	if err != nil {
		return fmt.Errorf("failed to open I2C: %w", err)
	}
	defer closeConn()

	log.Infof("Connecting to INA219 at 0x%X", conf.I2CAddress)
	sensor, err := ina219.New(conn, conf.sensorOpts())
	if err != nil {
		return err
	}
	defer func() {
		if err := sensor.Close(); err != nil {
			log.Error("Failed to power down INA219: ", err)
		}
	}()
	log.Debugf("Current resolution: %.3f uA", sensor.CurrentLSB()*1e6)

	socket, err := listenControlSocket(fmt.Sprintf(":%d", conf.Port))
	if err != nil {
		return err
	}
	defer socket.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		changed, err := watchConfig(ctx, fileConf, args.ConfigDir)
		if err != nil {
			log.Warn("Not watching config for changes: ", err)
			return
		}
		if changed {
			cancel()
		}
	}()

	requests := make(chan serviceRequest)
	if err := startService(requests); err != nil {
		log.Warn("Failed to start D-Bus service: ", err)
	}

	dispatcher := scpi.NewDispatcher(engine, scpi.Identity{
		Vendor:  vendor,
		Product: product,
		Version: version,
	})
	console := NewConsole(os.Stdout, showConsole)
	loop := NewLoop(sensor, engine, dispatcher, console, socket.Conns(), requests, conf.loopConfig())

	err = loop.Run(ctx)
	if finishErr := console.Finish(); finishErr != nil {
		log.Error("Failed to flush console: ", finishErr)
	}
	if err != nil {
		reportSensorFailure(addEvent, err)
		return err
	}
	log.Info("Shutting down")
	return nil
}

// openConn opens the connection to the INA219 with the configured transport.
func openConn(conf *Config) (ina219.Conn, func(), error) {
	switch conf.Transport {
	case transportDBus:
		log.Debug("Using the I2C D-Bus service")
		return i2crequest.NewDevice(byte(conf.I2CAddress)), func() {}, nil
	default:
		log.Debug("Initializing host")
		if _, err := host.Init(); err != nil {
			return nil, nil, err
		}
		bus, err := i2creg.Open(conf.I2CBus)
		if err != nil {
			return nil, nil, err
		}
		closeBus := func() {
			if err := bus.Close(); err != nil {
				log.Error("Failed to close I2C bus: ", err)
			}
		}
		return &i2c.Dev{Addr: uint16(conf.I2CAddress), Bus: bus}, closeBus, nil
	}
}
