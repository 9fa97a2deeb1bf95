// Package audionorm normalizes an uploaded voice-clone reference
// recording into the canonical 24kHz mono PCM the voice profile
// catalog stores: resampled, downmixed, silence-trimmed, and
// duration-clamped, the same ffmpeg-filter-chain shape the corpus's
// audio tooling builds for every other audio-shape operation.
package audionorm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/voxforge/voxforge/internal/resilience"
)

const (
	// TargetSampleRate is the canonical rate every voice profile and
	// synthesis output is stored/produced at.
	TargetSampleRate = 24000

	// SilenceThresholdDB is the energy floor below which leading and
	// trailing audio is considered silence.
	SilenceThresholdDB = -40.0

	// SilenceWindowSeconds is the analysis window used to detect silence edges.
	SilenceWindowSeconds = 0.02

	// MinDurationSeconds and MaxDurationSeconds bound an accepted
	// reference recording after trimming.
	MinDurationSeconds = 3.0
	MaxDurationSeconds = 300.0
)

// Result is the canonical PCM16 mono stream plus the metadata the
// voice profile record keeps.
type Result struct {
	PCM             []byte
	SampleRate      int
	DurationSeconds float64
}

// Normalizer resamples, downmixes, trims silence from, and duration-
// clamps an uploaded recording.
type Normalizer interface {
	Normalize(ctx context.Context, input []byte) (Result, error)

	// ProbeDuration reports the raw upload's duration before the cost
	// of full normalization is spent, so out-of-bounds uploads can be
	// rejected at the API boundary.
	ProbeDuration(ctx context.Context, input []byte) (float64, error)
}

// FFmpegNormalizer shells out to ffmpeg using a filter chain built the
// way the corpus's FilterChainBuilder composes highpass/loudnorm/
// resample stages: one silenceremove pass for each edge, then
// aresample + pan to mono.
type FFmpegNormalizer struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegNormalizer locates ffmpeg/ffprobe on PATH.
func NewFFmpegNormalizer() (*FFmpegNormalizer, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpegNormalizer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

func (n *FFmpegNormalizer) Normalize(ctx context.Context, input []byte) (Result, error) {
	filterChain := fmt.Sprintf(
		"silenceremove=start_periods=1:start_duration=%.2f:start_threshold=%.1fdB,"+
			"areverse,"+
			"silenceremove=start_periods=1:start_duration=%.2f:start_threshold=%.1fdB,"+
			"areverse,"+
			"aresample=%d,"+
			"pan=mono|c0=c0",
		SilenceWindowSeconds, SilenceThresholdDB,
		SilenceWindowSeconds, SilenceThresholdDB,
		TargetSampleRate,
	)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-filter:a", filterChain,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", TargetSampleRate),
		"-ac", "1",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, resilience.Wrap(resilience.KindValidation,
			"audio normalization failed: "+stderr.String(), err)
	}

	pcm := stdout.Bytes()
	durationSeconds := float64(len(pcm)) / 2.0 / float64(TargetSampleRate)

	if durationSeconds < MinDurationSeconds {
		return Result{}, resilience.New(resilience.KindValidation,
			fmt.Sprintf("reference audio is %.2fs after trimming silence, below the %.0fs minimum",
				durationSeconds, MinDurationSeconds))
	}
	if durationSeconds > MaxDurationSeconds {
		clampedSamples := int(MaxDurationSeconds * float64(TargetSampleRate) * 2)
		pcm = pcm[:clampedSamples]
		durationSeconds = MaxDurationSeconds
	}

	return Result{PCM: pcm, SampleRate: TargetSampleRate, DurationSeconds: durationSeconds}, nil
}

// ProbeDuration returns the duration of a raw upload (pre-normalization),
// used to reject out-of-bounds uploads before spending the cost of
// full normalization.
func (n *FFmpegNormalizer) ProbeDuration(ctx context.Context, input []byte) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		"pipe:0",
	}
	cmd := exec.CommandContext(ctx, n.ffprobePath, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, resilience.Wrap(resilience.KindValidation, "probing upload duration failed: "+stderr.String(), err)
	}

	var duration float64
	if _, err := fmt.Sscanf(stdout.String(), "%f", &duration); err != nil {
		return 0, resilience.Wrap(resilience.KindValidation, "could not parse probed duration", err)
	}
	return duration, nil
}
