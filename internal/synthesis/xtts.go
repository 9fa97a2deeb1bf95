package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voxforge/voxforge/internal/resilience"
)

// XTTSModel is a Model backed by a resident XTTS inference server
// reached over HTTP, the same sidecar-process shape the corpus's other
// TTS integrations use for OpenAI-compatible and Chatterbox backends.
// The server is the external collaborator; this type is only the
// fixed call surface the Facade drives.
type XTTSModel struct {
	baseURL string
	device  string
	client  *http.Client
}

// NewXTTSModel builds a Model pointed at an XTTS server listening on
// baseURL (e.g. http://localhost:8020).
func NewXTTSModel(baseURL string) *XTTSModel {
	return &XTTSModel{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 300 * time.Second},
	}
}

type warmupRequest struct {
	Device string `json:"device"`
}

// Warmup asks the server to load its model weights onto device and
// blocks until ready or ctx/timeout elapses.
func (m *XTTSModel) Warmup(ctx context.Context, device string) error {
	body, _ := json.Marshal(warmupRequest{Device: device})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/warmup", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build warmup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("xtts warmup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("xtts warmup failed (status %d): %s", resp.StatusCode, string(respBody))
	}
	m.device = device
	return nil
}

func (m *XTTSModel) Device() string { return m.device }

type synthesizeRequest struct {
	Text              string  `json:"text"`
	SourceLanguage    string  `json:"source_language,omitempty"`
	TargetLanguage    string  `json:"target_language,omitempty"`
	VoicePreset       string  `json:"voice_preset,omitempty"`
	VoiceReferencePath string `json:"voice_reference_path,omitempty"`
	VoiceRefText      string  `json:"voice_ref_text,omitempty"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	LengthPenalty     float64 `json:"length_penalty"`
	Speed             float64 `json:"speed"`
	EnableTextSplitting bool  `json:"enable_text_splitting"`
}

type synthesizeResponseHeader struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Synthesize posts one inference request and reads the raw PCM body
// back. The server reports sample rate/channel count in response
// headers; a non-2xx response carries a JSON body naming the error
// kind, which this method maps onto the resilience taxonomy so the
// Facade's retry decorator can tell transient failures from permanent
// ones.
func (m *XTTSModel) Synthesize(ctx context.Context, req Request, progress ProgressFunc) (Audio, error) {
	payload := synthesizeRequest{
		Text:                req.Text,
		SourceLanguage:      req.SourceLanguage,
		TargetLanguage:      req.TargetLanguage,
		Temperature:         req.Parameters.Temperature,
		TopP:                req.Parameters.TopP,
		TopK:                req.Parameters.TopK,
		RepetitionPenalty:   req.Parameters.RepetitionPenalty,
		LengthPenalty:       req.Parameters.LengthPenalty,
		Speed:               req.Parameters.Speed,
		EnableTextSplitting: req.Parameters.EnableTextSplitting,
	}
	if req.VoicePreset != nil {
		payload.VoicePreset = string(*req.VoicePreset)
	}
	if req.VoiceProfile != nil {
		payload.VoiceReferencePath = req.VoiceProfile.ReferenceAudioPath
		if req.VoiceProfile.RefText != nil {
			payload.VoiceRefText = *req.VoiceProfile.RefText
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Audio{}, resilience.Wrap(resilience.KindInternal, "encode synthesis request", err)
	}

	if progress != nil {
		progress(0.1)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return Audio{}, resilience.Wrap(resilience.KindInternal, "build synthesis request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Audio{}, resilience.Wrap(resilience.KindTimeout, "synthesis call exceeded deadline", err)
		}
		return Audio{}, resilience.Wrap(resilience.KindTransientBackend, "synthesis engine unreachable", err)
	}
	defer resp.Body.Close()

	if progress != nil {
		progress(0.6)
	}

	if resp.StatusCode != http.StatusOK {
		var header synthesizeResponseHeader
		respBody, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(respBody, &header)
		kind := mapEngineErrorKind(header.ErrorKind, resp.StatusCode)
		msg := header.Message
		if msg == "" {
			msg = string(respBody)
		}
		return Audio{}, resilience.New(kind, "synthesis engine error: "+msg)
	}

	sampleRate := 24000
	channels := 1
	if sr := resp.Header.Get("X-Sample-Rate"); sr != "" {
		fmt.Sscanf(sr, "%d", &sampleRate)
	}
	if ch := resp.Header.Get("X-Channels"); ch != "" {
		fmt.Sscanf(ch, "%d", &channels)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, resilience.Wrap(resilience.KindTransientBackend, "reading synthesis response", err)
	}

	if progress != nil {
		progress(1.0)
	}

	return Audio{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}

func mapEngineErrorKind(reported string, status int) resilience.ErrorKind {
	switch reported {
	case string(resilience.KindOutOfMemory):
		return resilience.KindOutOfMemory
	case string(resilience.KindTransientBackend):
		return resilience.KindTransientBackend
	case string(resilience.KindTimeout):
		return resilience.KindTimeout
	case string(resilience.KindValidation):
		return resilience.KindValidation
	}
	if status >= 500 {
		return resilience.KindTransientBackend
	}
	return resilience.KindInternal
}

var _ Model = (*XTTSModel)(nil)
