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

// Package scpi implements the line based command protocol served on the
// power monitor control socket.
package scpi

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/TheCacophonyProject/dc-powermon/stats"
)

const (
	LineTerminator = "\n"
	DefaultPort    = 41123

	CmdReadPower        = "MEAS:POW?"
	CmdReadPowerMin     = "MEAS:POW:MIN?"
	CmdReadPowerMax     = "MEAS:POW:MAX?"
	CmdReadCurrent      = "MEAS:CURR?"
	CmdReadBusVoltage   = "MEAS:VOLT:BUS?"
	CmdReadShuntVoltage = "MEAS:VOLT:SHUNT?"
	CmdReset            = "*RST"
	CmdID               = "*IDN?"
	CmdSystemExit       = "SYST:EXIT"
)

var ErrUnknownCommand = errors.New("unknown command")

// Engine is the part of the statistics engine the dispatcher needs.
type Engine interface {
	Snapshot() stats.Stats
	Reset()
}

// Identity is returned by the *IDN? command.
type Identity struct {
	Vendor  string
	Product string
	Version string
}

func (id Identity) String() string {
	return strings.Join([]string{id.Vendor, id.Product, id.Version}, ",")
}

// Response is the result of dispatching one command.
type Response struct {
	Reply    string // Includes the line terminator.
	HasReply bool
	Exit     bool // Shutdown was requested.
}

type handler func(d *Dispatcher) Response

type command struct {
	token  string
	handle handler
}

type Dispatcher struct {
	engine   Engine
	identity Identity
	commands []command
}

func NewDispatcher(engine Engine, identity Identity) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		identity: identity,
		commands: []command{
			{CmdReadPower, readAvg(stats.ShuntPower)},
			{CmdReadPowerMin, readMin(stats.ShuntPower)},
			{CmdReadPowerMax, readMax(stats.ShuntPower)},
			{CmdReadCurrent, readAvg(stats.ShuntCurrent)},
			{CmdReadBusVoltage, readAvg(stats.BusVoltage)},
			{CmdReadShuntVoltage, readAvg(stats.ShuntVoltage)},
			{CmdReset, reset},
			{CmdID, identify},
			{CmdSystemExit, systemExit},
		},
	}
	// Longest tokens first so a token is never claimed by a shorter one sharing its prefix.
	sort.SliceStable(d.commands, func(i, j int) bool {
		return len(d.commands[i].token) > len(d.commands[j].token)
	})
	return d
}

// Dispatch runs the command in line and returns the reply to send.
// Any side effect has been applied by the time Dispatch returns.
func (d *Dispatcher) Dispatch(line string) (Response, error) {
	cmd := strings.TrimRight(line, "\r\n")
	for _, c := range d.commands {
		if strings.HasPrefix(cmd, c.token) {
			return c.handle(d), nil
		}
	}
	return Response{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func reply(s string) Response {
	return Response{Reply: s + LineTerminator, HasReply: true}
}

func formatValue(v float64, unit string) string {
	// Extrema are infinite until the first sample arrives.
	if math.IsInf(v, 0) || math.IsNaN(v) {
		v = 0
	}
	return fmt.Sprintf("%.2f%s", v, unit)
}

func readAvg(c stats.Channel) handler {
	return func(d *Dispatcher) Response {
		return reply(formatValue(d.engine.Snapshot().Avg(c), c.Unit()))
	}
}

func readMin(c stats.Channel) handler {
	return func(d *Dispatcher) Response {
		return reply(formatValue(d.engine.Snapshot().Min(c), c.Unit()))
	}
}

func readMax(c stats.Channel) handler {
	return func(d *Dispatcher) Response {
		return reply(formatValue(d.engine.Snapshot().Max(c), c.Unit()))
	}
}

func reset(d *Dispatcher) Response {
	d.engine.Reset()
	return reply("")
}

func identify(d *Dispatcher) Response {
	return reply(d.identity.String())
}

func systemExit(d *Dispatcher) Response {
	return Response{Exit: true}
}
