package synthesis

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func int16PCM(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	return buf
}

func TestNoiseGateDenoiser_ZeroesSamplesBelowThreshold(t *testing.T) {
	gate := NewNoiseGateDenoiser(200)
	in := Audio{PCM: int16PCM(50, -150, 5000, -5000, 199, -200), SampleRate: 24000, Channels: 1}

	out, err := gate.Denoise(context.Background(), in)
	require.NoError(t, err)

	samples := make([]int16, len(out.PCM)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out.PCM[i*2 : i*2+2]))
	}

	require.Equal(t, []int16{0, 0, 5000, -5000, 0, -200}, samples)
	require.Equal(t, 24000, out.SampleRate)
	require.Equal(t, 1, out.Channels)
}
