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

// Package stats keeps rolling statistics over power sensor samples.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// MaxWindowSize is the largest averaging window an Engine can be built with.
const MaxWindowSize = 1024

var ErrInvalidWindowSize = errors.New("invalid window size")

type Channel uint8

const (
	BusVoltage Channel = iota
	ShuntVoltage
	ShuntCurrent
	ShuntPower
	NumChannels = 4
)

func (c Channel) String() string {
	switch c {
	case BusVoltage:
		return "busVoltage"
	case ShuntVoltage:
		return "shuntVoltage"
	case ShuntCurrent:
		return "shuntCurrent"
	case ShuntPower:
		return "shuntPower"
	default:
		return "unknown"
	}
}

// Unit returns the unit the channel is measured in.
func (c Channel) Unit() string {
	switch c {
	case BusVoltage:
		return "V"
	case ShuntVoltage:
		return "mV"
	case ShuntCurrent:
		return "mA"
	case ShuntPower:
		return "mW"
	default:
		return ""
	}
}

// Channels lists every channel in index order.
func Channels() []Channel {
	return []Channel{BusVoltage, ShuntVoltage, ShuntCurrent, ShuntPower}
}

// Sample is one reading of all channels, indexed by Channel.
type Sample [NumChannels]float64

type ChannelStats struct {
	Min float64
	Max float64
	Avg float64
}

// Stats holds the aggregates for every channel.
// Min and Max are over every sample since the last reset, Avg is over the window.
type Stats struct {
	Channels [NumChannels]ChannelStats
	Samples  int // Number of samples currently in the window.
}

func (s Stats) Min(c Channel) float64 { return s.Channels[c].Min }
func (s Stats) Max(c Channel) float64 { return s.Channels[c].Max }
func (s Stats) Avg(c Channel) float64 { return s.Channels[c].Avg }

// Engine keeps a window of the most recent samples and the running statistics.
// It is not safe for concurrent use, the owner must serialize all calls.
type Engine struct {
	window []Sample
	cursor int
	held   int
	stats  Stats
}

// NewEngine makes an engine that averages over the last size samples.
func NewEngine(size int) (*Engine, error) {
	if size < 1 || size > MaxWindowSize {
		return nil, fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidWindowSize, size, MaxWindowSize)
	}
	e := &Engine{window: make([]Sample, size)}
	e.Reset()
	return e, nil
}

// Size returns the configured window size.
func (e *Engine) Size() int {
	return len(e.window)
}

func (e *Engine) Update(s Sample) {
	e.window[e.cursor] = s
	e.cursor = (e.cursor + 1) % len(e.window)
	if e.held < len(e.window) {
		e.held++
	}
	e.stats.Samples = e.held

	for c := range e.stats.Channels {
		cs := &e.stats.Channels[c]
		if s[c] < cs.Min {
			cs.Min = s[c]
		}
		if s[c] > cs.Max {
			cs.Max = s[c]
		}

		sum := 0.0
		for i := 0; i < e.held; i++ {
			sum += e.window[i][c]
		}
		cs.Avg = sum / float64(e.held)
	}
}

// Reset clears the window and the statistics. The window size is kept.
func (e *Engine) Reset() {
	e.cursor = 0
	e.held = 0
	e.stats.Samples = 0
	for c := range e.stats.Channels {
		e.stats.Channels[c] = ChannelStats{
			Min: math.Inf(1),
			Max: math.Inf(-1),
			Avg: 0,
		}
	}
}

func (e *Engine) Snapshot() Stats {
	return e.stats
}
