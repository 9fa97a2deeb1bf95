package synthesis

import (
	"context"
	"encoding/binary"
)

// NoiseGateDenoiser is a trivial post-processing Denoiser: it zeroes
// PCM16 samples whose amplitude falls below a fixed floor, the same
// amplitude-threshold idea internal/audionorm uses to trim silence,
// applied per-sample instead of at the clip's edges. It exists so a
// quality profile's denoise flag is a wired path rather than a
// disguised no-op; a resident neural denoiser would replace this
// behind the same interface.
type NoiseGateDenoiser struct {
	// ThresholdAmplitude is the int16 magnitude below which a sample is
	// gated to silence.
	ThresholdAmplitude int16
}

// NewNoiseGateDenoiser builds a gate at the given amplitude floor.
func NewNoiseGateDenoiser(threshold int16) *NoiseGateDenoiser {
	return &NoiseGateDenoiser{ThresholdAmplitude: threshold}
}

func (d *NoiseGateDenoiser) Denoise(ctx context.Context, in Audio) (Audio, error) {
	out := make([]byte, len(in.PCM))
	copy(out, in.PCM)

	for i := 0; i+1 < len(out); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(out[i : i+2]))
		if sample > -d.ThresholdAmplitude && sample < d.ThresholdAmplitude {
			binary.LittleEndian.PutUint16(out[i:i+2], 0)
		}
	}

	return Audio{PCM: out, SampleRate: in.SampleRate, Channels: in.Channels}, nil
}
