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

package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/TheCacophonyProject/dc-powermon/scpi"
	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
)

var (
	version = "<not set>"
	log     = logrus.New()
)

type Args struct {
	ReadPower        *subcommand `arg:"subcommand:read-power"         help:"Read the average power in mW."`
	ReadCurrent      *subcommand `arg:"subcommand:read-current"       help:"Read the average current in mA."`
	ReadBusVoltage   *subcommand `arg:"subcommand:read-bus-voltage"   help:"Read the average bus voltage in V."`
	ReadShuntVoltage *subcommand `arg:"subcommand:read-shunt-voltage" help:"Read the average shunt voltage in mV."`
	Reset            *subcommand `arg:"subcommand:reset"              help:"Reset the statistics."`
	ID               *subcommand `arg:"subcommand:id"                 help:"Identify the power monitor."`
	Exit             *subcommand `arg:"subcommand:exit"               help:"Stop the power monitor."`
	Host             string      `arg:"--host" default:"localhost" help:"Host running the power monitor"`
	Port             int         `arg:"-p,--port" help:"Control socket port"`
	Timeout          int         `arg:"--timeout" default:"5" help:"Timeout in seconds"`
	LogLevel         string      `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type subcommand struct {
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	Port: scpi.DefaultPort,
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
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warn("Unknown log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	setLogLevel(args.LogLevel)

	c := scpi.NewClient(args.Host, args.Port)
	c.Timeout = time.Duration(args.Timeout) * time.Second
	log.Debugf("Sending command to %s", c.Addr)

	return runCommand(c, args, os.Stdout)
}

func runCommand(c *scpi.Client, args Args, out io.Writer) error {
	switch {
	case args.ReadPower != nil:
		return printValue(out, "mW")(c.ReadPower())
	case args.ReadCurrent != nil:
		return printValue(out, "mA")(c.ReadCurrent())
	case args.ReadBusVoltage != nil:
		return printValue(out, "V")(c.ReadBusVoltage())
	case args.ReadShuntVoltage != nil:
		return printValue(out, "mV")(c.ReadShuntVoltage())
	case args.Reset != nil:
		return c.Reset()
	case args.ID != nil:
		id, err := c.ID()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, strings.TrimSpace(id))
		return err
	case args.Exit != nil:
		return c.Exit()
	default:
		return errors.New("no command given, see --help")
	}
}

func printValue(out io.Writer, unit string) func(float64, error) error {
	return func(val float64, err error) error {
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%.2f %s\n", val, unit)
		return err
	}
}
