package media

import (
	"encoding/binary"
	"math"
)

// FloatToPCM16 converts -1..1 float samples to signed 16-bit PCM, clamping
// out-of-range values.
func FloatToPCM16(input []float64) []int16 {
	output := make([]int16, len(input))
	for i, v := range input {
		s := math.Max(-1, math.Min(1, v))
		if s < 0 {
			output[i] = int16(s * 0x8000)
		} else {
			output[i] = int16(s * 0x7fff)
		}
	}
	return output
}

// DownsamplePCM16 converts float samples at inputRate to 16-bit PCM at
// outputRate using nearest-sample decimation. Upsampling is not supported;
// equal rates fall through to a plain conversion.
func DownsamplePCM16(input []float64, inputRate, outputRate int) []int16 {
	if outputRate >= inputRate {
		return FloatToPCM16(input)
	}

	compression := float64(inputRate) / float64(outputRate)
	length := int(float64(len(input)) / compression)
	result := make([]int16, length)

	for i := 0; i < length; i++ {
		idx := int(float64(i) * compression)
		s := math.Max(-1, math.Min(1, input[idx]))
		if s < 0 {
			result[i] = int16(s * 0x8000)
		} else {
			result[i] = int16(s * 0x7fff)
		}
	}
	return result
}

// PCM16Bytes serializes 16-bit samples as little-endian bytes, the layout the
// realtime voice link and the speech providers expect.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCM16FromBytes parses little-endian 16-bit PCM into float samples in -1..1.
func PCM16FromBytes(data []byte) []float64 {
	n := len(data) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

// RMSFloat computes root-mean-square loudness of float samples.
func RMSFloat(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
