// Package i2crequest makes I2C transactions through the org.cacophony.i2c
// D-Bus service, which serialises access to the bus shared with the rest of the HAT.
package i2crequest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"

	DefaultTimeout = 1000 // ms
)

// TxResponse is a canned response returned by Tx while mocking.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mockMu        sync.Mutex
	mocking       bool
	mockResponses []TxResponse
)

var errNoMockResponse = errors.New("no mock response left")

// MockTxResponses makes Tx return the given responses in order instead of
// calling the D-Bus service.
func MockTxResponses(responses []TxResponse) {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = true
	mockResponses = responses
}

// StopMocking makes Tx use the D-Bus service again.
func StopMocking() {
	mockMu.Lock()
	defer mockMu.Unlock()
	mocking = false
	mockResponses = nil
}

func nextMockResponse() (TxResponse, bool) {
	mockMu.Lock()
	defer mockMu.Unlock()
	if !mocking {
		return TxResponse{}, false
	}
	if len(mockResponses) == 0 {
		return TxResponse{Err: errNoMockResponse}, true
	}
	res := mockResponses[0]
	mockResponses = mockResponses[1:]
	return res, true
}

func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if res, ok := nextMockResponse(); ok {
		return res.Response, res.Err
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}

	return response, nil
}

func CheckAddress(address byte, timeout int) error {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	return err
}

// Device is a single I2C device reached through the D-Bus service.
type Device struct {
	Address byte
	Timeout int // ms
}

func NewDevice(address byte) *Device {
	return &Device{Address: address, Timeout: DefaultTimeout}
}

// Tx writes w then reads len(r) bytes into r.
func (d *Device) Tx(w, r []byte) error {
	response, err := Tx(d.Address, w, len(r), d.Timeout)
	if err != nil {
		return err
	}
	if len(response) != len(r) {
		return fmt.Errorf("expected %d bytes from 0x%X, got %d", len(r), d.Address, len(response))
	}
	copy(r, response)
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(0x%X)", dbusName, d.Address)
}
