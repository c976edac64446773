package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func powerSample(p float64) Sample {
	return Sample{BusVoltage: 5, ShuntVoltage: 1, ShuntCurrent: p / 5, ShuntPower: p}
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func TestInvalidWindowSize(t *testing.T) {
	_, err := NewEngine(0)
	require.ErrorIs(t, err, ErrInvalidWindowSize)

	_, err = NewEngine(MaxWindowSize + 1)
	require.ErrorIs(t, err, ErrInvalidWindowSize)

	e, err := NewEngine(MaxWindowSize)
	require.NoError(t, err)
	require.Equal(t, MaxWindowSize, e.Size())
}

func TestNewEngineSentinels(t *testing.T) {
	e, err := NewEngine(4)
	require.NoError(t, err)
	s := e.Snapshot()
	for _, c := range Channels() {
		assert.True(t, math.IsInf(s.Min(c), 1))
		assert.True(t, math.IsInf(s.Max(c), -1))
		assert.Equal(t, 0.0, s.Avg(c))
	}
	assert.Equal(t, 0, s.Samples)
}

func TestWindowAverage(t *testing.T) {
	e, err := NewEngine(3)
	require.NoError(t, err)

	for _, p := range []float64{10, 20, 30} {
		e.Update(powerSample(p))
	}
	s := e.Snapshot()
	assert.Equal(t, 20.0, s.Avg(ShuntPower))
	assert.Equal(t, 3, s.Samples)

	e.Update(powerSample(60))
	s = e.Snapshot()
	assert.InDelta(t, 110.0/3.0, s.Avg(ShuntPower), 1e-9)
	assert.Equal(t, 60.0, s.Max(ShuntPower))
	assert.Equal(t, 10.0, s.Min(ShuntPower))
	assert.Equal(t, 3, s.Samples)
}

func TestPartialWindowAverage(t *testing.T) {
	e, err := NewEngine(8)
	require.NoError(t, err)

	vals := []float64{1.5, -2, 7.25, 3}
	for i, v := range vals {
		e.Update(Sample{BusVoltage: v})
		assert.InDelta(t, mean(vals[:i+1]), e.Snapshot().Avg(BusVoltage), 1e-12)
	}
}

func TestOlderSamplesHaveNoInfluence(t *testing.T) {
	const size = 5
	e, err := NewEngine(size)
	require.NoError(t, err)

	var seen []float64
	for i := 0; i < 23; i++ {
		v := float64((i*37)%11) - 4.5
		seen = append(seen, v)
		e.Update(Sample{ShuntCurrent: v})

		recent := seen
		if len(recent) > size {
			recent = recent[len(recent)-size:]
		}
		assert.InDelta(t, mean(recent), e.Snapshot().Avg(ShuntCurrent), 1e-9, "after %d samples", i+1)
	}
}

func TestMinMaxAreIndependent(t *testing.T) {
	e, err := NewEngine(2)
	require.NoError(t, err)

	// The first sample must set both the min and the max.
	e.Update(Sample{ShuntVoltage: 4})
	s := e.Snapshot()
	assert.Equal(t, 4.0, s.Min(ShuntVoltage))
	assert.Equal(t, 4.0, s.Max(ShuntVoltage))

	prevMin, prevMax := s.Min(ShuntVoltage), s.Max(ShuntVoltage)
	trueMin, trueMax := 4.0, 4.0
	for _, v := range []float64{5, 3, 3, 9, -1, 0, 200, 150} {
		e.Update(Sample{ShuntVoltage: v})
		trueMin = math.Min(trueMin, v)
		trueMax = math.Max(trueMax, v)

		s = e.Snapshot()
		assert.LessOrEqual(t, s.Min(ShuntVoltage), prevMin)
		assert.GreaterOrEqual(t, s.Max(ShuntVoltage), prevMax)
		assert.Equal(t, trueMin, s.Min(ShuntVoltage))
		assert.Equal(t, trueMax, s.Max(ShuntVoltage))
		prevMin, prevMax = s.Min(ShuntVoltage), s.Max(ShuntVoltage)
	}
}

func TestNegativeValuesAreTracked(t *testing.T) {
	e, err := NewEngine(4)
	require.NoError(t, err)

	// Values well beyond the old +-99 sentinels.
	e.Update(Sample{ShuntPower: -500})
	e.Update(Sample{ShuntPower: -250})
	s := e.Snapshot()
	assert.Equal(t, -500.0, s.Min(ShuntPower))
	assert.Equal(t, -250.0, s.Max(ShuntPower))
}

func TestReset(t *testing.T) {
	e, err := NewEngine(3)
	require.NoError(t, err)
	fresh, err := NewEngine(3)
	require.NoError(t, err)

	for _, p := range []float64{100, 200, 300, 400} {
		e.Update(powerSample(p))
	}
	e.Reset()
	require.Equal(t, fresh.Snapshot(), e.Snapshot())
	require.Equal(t, 3, e.Size())

	e.Update(powerSample(7))
	fresh.Update(powerSample(7))
	require.Equal(t, fresh.Snapshot(), e.Snapshot())
	assert.Equal(t, 7.0, e.Snapshot().Avg(ShuntPower))
}

func TestSnapshotIsACopy(t *testing.T) {
	e, err := NewEngine(2)
	require.NoError(t, err)
	e.Update(powerSample(10))

	s := e.Snapshot()
	s.Channels[ShuntPower].Avg = 1234
	assert.Equal(t, 10.0, e.Snapshot().Avg(ShuntPower))
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "shuntPower", ShuntPower.String())
	assert.Equal(t, "mW", ShuntPower.Unit())
	assert.Equal(t, "V", BusVoltage.Unit())
	assert.Len(t, Channels(), NumChannels)
}
