// Package transcode implements the audio transcoder: a pure
// (pcm, format) -> bytes function, the fixed call surface the API
// Gateway uses to serve an artifact in the format named by the
// download request's format query parameter. The transcoder itself is an external
// collaborator (assumed to expose exactly this surface); this
// package supplies the default ffmpeg-backed implementation plus a
// dependency-free WAV fallback for environments without ffmpeg on PATH.
package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"

	"github.com/voxforge/voxforge/internal/resilience"
)

// Format is a supported output container/codec.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
	FormatM4A  Format = "m4a"
	FormatOpus Format = "opus"
)

// SupportedFormats lists every format the Transcoder contract accepts.
var SupportedFormats = []Format{FormatWAV, FormatMP3, FormatOGG, FormatFLAC, FormatM4A, FormatOpus}

func IsSupported(f Format) bool {
	for _, s := range SupportedFormats {
		if s == f {
			return true
		}
	}
	return false
}

// PCM describes the canonical 24kHz mono stream the Synthesis Facade
// produces, the sole input every Transcoder implementation accepts.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Transcoder converts canonical PCM into the bytes of a requested
// container format.
type Transcoder interface {
	Transcode(ctx context.Context, pcm PCM, format Format) ([]byte, error)
}

// FFmpegTranscoder shells out to a local ffmpeg binary, the same
// exec.CommandContext pattern the corpus's ffmpeg executor uses for
// every audio-shape operation.
type FFmpegTranscoder struct {
	ffmpegPath string
}

// NewFFmpegTranscoder locates ffmpeg on PATH (or at the given path,
// if non-empty) and returns a ready Transcoder.
func NewFFmpegTranscoder(path string) (*FFmpegTranscoder, error) {
	resolved := path
	if resolved == "" {
		var err error
		resolved, err = exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}
	return &FFmpegTranscoder{ffmpegPath: resolved}, nil
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, pcm PCM, format Format) ([]byte, error) {
	if !IsSupported(format) {
		return nil, resilience.New(resilience.KindValidation, "unsupported transcode format: "+string(format))
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", pcm.SampleRate),
		"-ac", fmt.Sprintf("%d", pcm.Channels),
		"-i", "pipe:0",
		"-f", ffmpegContainer(format),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(pcm.Data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, resilience.Wrap(resilience.KindTransientBackend,
			"ffmpeg transcode failed: "+stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func ffmpegContainer(f Format) string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatOGG:
		return "ogg"
	case FormatFLAC:
		return "flac"
	case FormatM4A:
		return "ipod"
	case FormatOpus:
		return "opus"
	default:
		return "wav"
	}
}

// WAVTranscoder writes a canonical RIFF/WAVE container directly. No
// example in the corpus carries a pure-Go audio codec library, so this
// is the one piece of the transcoder implemented on the standard
// library rather than a third-party dependency — it only needs to
// wrap raw PCM16 in a fixed 44-byte header, not decode or re-encode
// anything.
type WAVTranscoder struct{}

func NewWAVTranscoder() *WAVTranscoder { return &WAVTranscoder{} }

func (t *WAVTranscoder) Transcode(ctx context.Context, pcm PCM, format Format) ([]byte, error) {
	if format != FormatWAV {
		return nil, resilience.New(resilience.KindValidation,
			"WAVTranscoder only supports wav output; install ffmpeg for "+string(format))
	}

	const bitsPerSample = 16
	byteRate := pcm.SampleRate * pcm.Channels * bitsPerSample / 8
	blockAlign := pcm.Channels * bitsPerSample / 8
	dataLen := len(pcm.Data)

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(pcm.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(pcm.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm.Data)

	return buf.Bytes(), nil
}
