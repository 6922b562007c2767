package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatToPCM16Clamps(t *testing.T) {
	out := FloatToPCM16([]float64{-2, -1, 0, 1, 2})
	assert.Equal(t, int16(-32768), out[0])
	assert.Equal(t, int16(-32768), out[1])
	assert.Equal(t, int16(0), out[2])
	assert.Equal(t, int16(32767), out[3])
	assert.Equal(t, int16(32767), out[4])
}

func TestDownsamplePCM16Rate(t *testing.T) {
	input := make([]float64, 48000)
	out := DownsamplePCM16(input, 48000, 16000)
	assert.Len(t, out, 16000)
}

func TestDownsamplePCM16EqualRatePassthrough(t *testing.T) {
	input := []float64{0.5, -0.5}
	out := DownsamplePCM16(input, 16000, 16000)
	require.Len(t, out, 2)
	assert.InDelta(t, 16383, out[0], 1)
}

func TestPCM16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	floats := PCM16FromBytes(PCM16Bytes(samples))
	require.Len(t, floats, len(samples))
	for i, s := range samples {
		assert.InDelta(t, float64(s)/32768.0, floats[i], 1e-9)
	}
}

func TestRMSFloat(t *testing.T) {
	assert.Equal(t, 0.0, RMSFloat(nil))

	// Constant signal: RMS equals the absolute value.
	samples := []float64{0.5, -0.5, 0.5, -0.5}
	assert.InDelta(t, 0.5, RMSFloat(samples), 1e-9)
}

func TestPCMAnalyserTimeDomain(t *testing.T) {
	a := NewPCMAnalyser(48000)

	chunk := make([]float64, AnalyserFFTSize)
	for i := range chunk {
		chunk[i] = float64(i) / float64(len(chunk))
	}
	a.Write(chunk)

	dst := make([]float64, AnalyserFFTSize)
	a.FloatTimeDomainData(dst)
	assert.InDelta(t, chunk[0], dst[0], 1e-9)
	assert.InDelta(t, chunk[len(chunk)-1], dst[len(dst)-1], 1e-9)
}

func TestPCMAnalyserFrequencyPeak(t *testing.T) {
	a := NewPCMAnalyser(48000)

	// Bin 8 of a 512-point window at 48kHz is 750 Hz.
	freq := 8.0 * 48000.0 / float64(AnalyserFFTSize)
	chunk := make([]float64, AnalyserFFTSize)
	for i := range chunk {
		chunk[i] = math.Sin(2 * math.Pi * freq * float64(i) / 48000.0)
	}
	a.Write(chunk)

	bins := make([]byte, AnalyserBinCount)
	a.ByteFrequencyData(bins)

	peak := 0
	for i, v := range bins {
		if v > bins[peak] {
			peak = i
		}
		_ = v
	}
	assert.Equal(t, 8, peak)
	assert.Greater(t, bins[8], byte(100))
}

func TestPCMAnalyserClosedDropsWrites(t *testing.T) {
	a := NewPCMAnalyser(16000)
	require.NoError(t, a.Close())
	a.Write([]float64{1, 1, 1})

	dst := make([]float64, 4)
	a.FloatTimeDomainData(dst)
	assert.Equal(t, []float64{0, 0, 0, 0}, dst)
}

func TestLandmarksValidate(t *testing.T) {
	short := make(Landmarks, 100)
	assert.Error(t, short.Validate())

	full := make(Landmarks, MinLandmarkCount)
	assert.NoError(t, full.Validate())
}
