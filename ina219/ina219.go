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

// Package ina219 is a driver for the TI INA219 current/power monitor.
package ina219

import (
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/dc-powermon/stats"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the address of an unmodified RadioHAT Rev. C.
const DefaultAddress = 0x40

type Register uint8

const (
	configReg Register = iota
	shuntVoltageReg
	busVoltageReg
	powerReg
	currentReg
	calibrationReg
)

const (
	cfgReset     = 1 << 15
	cfgWideRange = 1 << 13

	pgaShift      = 11
	busADCShift   = 7
	shuntADCShift = 3

	// Calibration bit 0 is read only.
	calibrationMask = 0xFFFE
	// Scaling constant from the datasheet calibration equation.
	calibrationScale = 0.04096
)

type Gain uint8

const (
	Gain1 Gain = iota // +-40mV
	GainDiv2          // +-80mV
	GainDiv4          // +-160mV
	GainDiv8          // +-320mV
)

// FullScale returns the shunt voltage range of the gain in millivolts.
func (g Gain) FullScale() float64 {
	return 40 * float64(uint(1)<<g)
}

type ADCMode uint8

const (
	ADC9Bit  ADCMode = 0x0
	ADC10Bit ADCMode = 0x1
	ADC11Bit ADCMode = 0x2
	ADC12Bit ADCMode = 0x3

	ADCSamples2   ADCMode = 0x9
	ADCSamples4   ADCMode = 0xA
	ADCSamples8   ADCMode = 0xB
	ADCSamples16  ADCMode = 0xC
	ADCSamples32  ADCMode = 0xD
	ADCSamples64  ADCMode = 0xE
	ADCSamples128 ADCMode = 0xF
)

type Mode uint8

const (
	ModePowerDown Mode = iota
	ModeShuntVoltageTriggered
	ModeBusVoltageTriggered
	ModeShuntAndBusTriggered
	ModeADCOff
	ModeShuntVoltageContinuous
	ModeBusVoltageContinuous
	ModeShuntAndBusContinuous
)

var (
	ErrSensorRead         = errors.New("failed to read sensor")
	ErrInvalidCalibration = errors.New("invalid calibration")
)

// Conn is a connection to the INA219. *i2c.Dev from periph and
// *i2crequest.Device both satisfy it.
type Conn interface {
	Tx(w, r []byte) error
}

type Opts struct {
	MaxCurrent      physic.ElectricCurrent
	ShuntResistance physic.ElectricResistance
	WideRange       bool // 32V bus range instead of 16V.
	BusADC          ADCMode
	ShuntADC        ADCMode
	Mode            Mode
}

var DefaultOpts = Opts{
	MaxCurrent:      physic.Ampere,
	ShuntResistance: 100 * physic.MilliOhm,
	BusADC:          ADC12Bit,
	ShuntADC:        ADC12Bit,
	Mode:            ModeShuntAndBusContinuous,
}

type Device struct {
	conn        Conn
	config      uint16
	calibration uint16
	currentLSB  float64 // Amps per bit of the current register.
}

// Calibration calculates the calibration register value and the resulting
// current register resolution in amps per bit.
func Calibration(maxCurrent physic.ElectricCurrent, shunt physic.ElectricResistance) (uint16, float64, error) {
	if maxCurrent <= 0 || shunt <= 0 {
		return 0, 0, fmt.Errorf("%w: max current %s and shunt %s must be positive", ErrInvalidCalibration, maxCurrent, shunt)
	}
	amps := float64(maxCurrent) / float64(physic.Ampere)
	ohms := float64(shunt) / float64(physic.Ohm)

	lsb := amps / 32768
	cal := calibrationScale / (lsb * ohms)
	if cal < 2 || cal > calibrationMask {
		return 0, 0, fmt.Errorf("%w: calibration value %.0f out of range for %s and %s", ErrInvalidCalibration, cal, maxCurrent, shunt)
	}
	reg := uint16(cal) & calibrationMask
	// Use the resolution the truncated register value actually gives.
	return reg, calibrationScale / (float64(reg) * ohms), nil
}

// GainFor returns the smallest gain that can measure maxCurrent through shunt.
func GainFor(maxCurrent physic.ElectricCurrent, shunt physic.ElectricResistance) (Gain, error) {
	amps := float64(maxCurrent) / float64(physic.Ampere)
	ohms := float64(shunt) / float64(physic.Ohm)
	millivolts := amps * ohms * 1000
	for g := Gain1; g <= GainDiv8; g++ {
		if millivolts <= g.FullScale() {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: shunt voltage of %.1fmV is over the %.0fmV range", ErrInvalidCalibration, millivolts, GainDiv8.FullScale())
}

// ConfigWord builds the configuration register value.
func ConfigWord(opts Opts, gain Gain) uint16 {
	var val uint16
	if opts.WideRange {
		val |= cfgWideRange
	}
	val |= uint16(gain&0x3) << pgaShift
	val |= uint16(opts.BusADC&0xF) << busADCShift
	val |= uint16(opts.ShuntADC&0xF) << shuntADCShift
	val |= uint16(opts.Mode & 0x7)
	return val
}

// New resets the INA219 then writes the calibration and configuration.
func New(conn Conn, opts Opts) (*Device, error) {
	cal, lsb, err := Calibration(opts.MaxCurrent, opts.ShuntResistance)
	if err != nil {
		return nil, err
	}
	gain, err := GainFor(opts.MaxCurrent, opts.ShuntResistance)
	if err != nil {
		return nil, err
	}

	d := &Device{
		conn:        conn,
		config:      ConfigWord(opts, gain),
		calibration: cal,
		currentLSB:  lsb,
	}
	if err := d.Reset(); err != nil {
		return nil, err
	}
	if err := d.writeRegister(calibrationReg, d.calibration); err != nil {
		return nil, err
	}
	if err := d.writeRegister(configReg, d.config); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Reset() error {
	return d.writeRegister(configReg, cfgReset)
}

// CurrentLSB returns the current register resolution in amps.
func (d *Device) CurrentLSB() float64 {
	return d.currentLSB
}

func (d *Device) readRegister(reg Register) (uint16, error) {
	data := make([]byte, 2)
	if err := d.conn.Tx([]byte{byte(reg)}, data); err != nil {
		return 0, fmt.Errorf("%w: register 0x%02X: %w", ErrSensorRead, byte(reg), err)
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}

func (d *Device) writeRegister(reg Register, val uint16) error {
	if err := d.conn.Tx([]byte{byte(reg), byte(val >> 8), byte(val & 0xFF)}, nil); err != nil {
		return fmt.Errorf("failed to write 0x%04X to register 0x%02X: %w", val, byte(reg), err)
	}
	return nil
}

// BusVoltage returns the bus voltage in volts.
func (d *Device) BusVoltage() (float64, error) {
	raw, err := d.readRegister(busVoltageReg)
	if err != nil {
		return 0, err
	}
	// Bits 15-3 hold the voltage in 4mV steps.
	return float64(raw>>3) * 4 * 0.001, nil
}

// ShuntVoltage returns the shunt voltage in millivolts.
func (d *Device) ShuntVoltage() (float64, error) {
	raw, err := d.readRegister(shuntVoltageReg)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * 0.01, nil
}

// Current returns the shunt current in milliamps.
func (d *Device) Current() (float64, error) {
	raw, err := d.readRegister(currentReg)
	if err != nil {
		return 0, err
	}
	return float64(int16(raw)) * d.currentLSB * 1000, nil
}

// Sample reads every channel. Power is calculated from the bus voltage and
// current as that is faster than another bus transaction.
func (d *Device) Sample() (stats.Sample, error) {
	var s stats.Sample
	var err error
	if s[stats.BusVoltage], err = d.BusVoltage(); err != nil {
		return stats.Sample{}, err
	}
	if s[stats.ShuntVoltage], err = d.ShuntVoltage(); err != nil {
		return stats.Sample{}, err
	}
	if s[stats.ShuntCurrent], err = d.Current(); err != nil {
		return stats.Sample{}, err
	}
	s[stats.ShuntPower] = s[stats.ShuntCurrent] * s[stats.BusVoltage]
	return s, nil
}

// Close powers down the INA219.
func (d *Device) Close() error {
	return d.writeRegister(configReg, d.config&^0x7|uint16(ModePowerDown))
}
