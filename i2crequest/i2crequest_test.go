package i2crequest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceTx(t *testing.T) {
	defer StopMocking()
	MockTxResponses([]TxResponse{
		{Response: []byte{0x12, 0x34}},
	})

	d := NewDevice(0x40)
	read := make([]byte, 2)
	require.NoError(t, d.Tx([]byte{0x02}, read))
	require.Equal(t, []byte{0x12, 0x34}, read)
}

func TestDeviceTxShortResponse(t *testing.T) {
	defer StopMocking()
	MockTxResponses([]TxResponse{
		{Response: []byte{0x12}},
	})

	err := NewDevice(0x40).Tx([]byte{0x02}, make([]byte, 2))
	require.Error(t, err)
}

func TestDeviceTxError(t *testing.T) {
	defer StopMocking()
	expectedErr := errors.New("bus busy")
	MockTxResponses([]TxResponse{
		{Err: expectedErr},
	})

	err := NewDevice(0x40).Tx([]byte{0x02}, make([]byte, 2))
	require.Equal(t, expectedErr, err)
}

func TestMockResponsesRunOut(t *testing.T) {
	defer StopMocking()
	MockTxResponses(nil)
	require.ErrorIs(t, CheckAddress(0x40, 100), errNoMockResponse)
}
