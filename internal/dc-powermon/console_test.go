package powermon

import (
	"bytes"
	"testing"

	"github.com/TheCacophonyProject/dc-powermon/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleDisabled(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewConsole(out, false)
	c.Header()
	c.Render(stats.Sample{}, stats.Stats{})
	require.NoError(t, c.Finish())
	assert.Empty(t, out.String())
}

func TestConsoleRenderOverwritesLine(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewConsole(out, true)
	c.Render(stats.Sample{stats.BusVoltage: 12.5}, stats.Stats{})
	c.Render(stats.Sample{stats.BusVoltage: 12.25}, stats.Stats{})

	lines := bytes.Split(out.Bytes(), []byte("\r"))
	assert.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), " 12.25 V")
	assert.NotContains(t, out.String(), "\n")

	require.NoError(t, c.Finish())
	require.NoError(t, c.Finish())
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestConsoleModes(t *testing.T) {
	on, err := consoleEnabled("always")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = consoleEnabled("never")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = consoleEnabled("sometimes")
	assert.Error(t, err)
}
