// Package synthesis implements the Synthesis Facade: the single
// abstraction over a resident neural TTS model. The model itself is
// an external collaborator (a black box with a fixed call surface);
// this package owns the warm-up contract, call serialization, and
// optional denoise post-processing around it.
package synthesis

import (
	"context"
	"sync"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/resilience"

	"github.com/voxforge/voxforge/pkg/logger"
)

// Audio is the canonical 24kHz mono PCM output of a synthesis call,
// transcoded on demand by the internal/transcode package.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Request bundles everything a single synthesis call needs. Exactly
// one of VoicePreset or VoiceProfile is set, mirroring Job.Mode.
type Request struct {
	Text           string
	SourceLanguage string
	TargetLanguage string

	VoicePreset *models.VoicePreset
	VoiceProfile *models.VoiceProfile

	Parameters models.QualityParameters

	// Device requests the compute device for this call; callers
	// normally leave this empty and let the Facade use whatever it
	// warmed up on.
	Device string
}

// ProgressFunc reports coarse-grained synthesis progress (>= 0.1
// granularity) back to the caller, which persists it to the Job Store.
type ProgressFunc func(fraction float64)

// Model is the black-box neural TTS capability: a single fixed call
// surface the Facade drives. Implementations are free to proxy to an
// external process, a shared library, or an in-process model; the
// Facade never assumes anything beyond this interface.
type Model interface {
	// Warmup loads the model onto device, returning an error if the
	// device is unavailable. Called once at Facade construction and,
	// if CPU fallback is enabled, again with device "cpu" on failure.
	Warmup(ctx context.Context, device string) error

	// Synthesize runs one inference call. Implementations should call
	// progress at checkpoints no coarser than 0.1 of the way through.
	Synthesize(ctx context.Context, req Request, progress ProgressFunc) (Audio, error)

	// Device reports the compute device the model is currently resident on.
	Device() string
}

// Denoiser is the optional post-processing hook quality profiles can
// request via Parameters.Denoise.
type Denoiser interface {
	Denoise(ctx context.Context, in Audio) (Audio, error)
}

// Facade is the single entry point the Worker drives. Calls are
// serialized through an internal mutex: the model handle is a
// single-writer resource, matching the "GPU as scarce shared
// resource" pattern of a resident inference engine.
type Facade struct {
	model    Model
	denoiser Denoiser
	breakers *resilience.Registry
	retry    resilience.RetryConfig

	mu sync.Mutex
}

// Config controls warm-up behavior.
type Config struct {
	Device      string
	CPUFallback bool
	Retry       resilience.RetryConfig
}

// New constructs a Facade and eagerly warms up model on cfg.Device,
// falling through to CPU when cfg.CPUFallback is set and the
// preferred device fails. This is the "warm-up" contract: the first
// request after startup must not pay model load cost.
func New(ctx context.Context, model Model, denoiser Denoiser, cfg Config) (*Facade, error) {
	f := &Facade{
		model:    model,
		denoiser: denoiser,
		breakers: resilience.NewRegistry(),
		retry:    cfg.Retry,
	}

	err := model.Warmup(ctx, cfg.Device)
	if err != nil && cfg.CPUFallback && cfg.Device != "cpu" {
		logger.Warn("synthesis model warm-up failed on preferred device, falling back to cpu",
			"device", cfg.Device, "error", err)
		err = model.Warmup(ctx, "cpu")
	}
	if err != nil {
		return nil, resilience.Wrap(resilience.KindInternal, "synthesis model warm-up failed", err)
	}

	logger.Info("synthesis model warmed up", "device", model.Device())
	return f, nil
}

// Synthesize drives one inference call under the circuit breaker and
// retry policy for the resident device, serialized behind the
// Facade's mutex so only one call ever reaches the model at a time.
// The breaker is consulted once per task, not once per retry attempt:
// a single job's retries contribute at most one failure to the
// consecutive-failure streak, matching the "one breaker outcome per
// job" accounting the breaker's threshold is tuned against.
func (f *Facade) Synthesize(ctx context.Context, req Request, progress ProgressFunc) (Audio, error) {
	breaker := f.breakers.Get(f.model.Device())
	if !breaker.Allow() {
		return Audio{}, resilience.New(resilience.KindCircuitOpen, "synthesis engine circuit is open")
	}

	var out Audio
	// modelFailed tracks only the model call's own outcome on the last
	// attempt: a denoise failure after a successful inference must not
	// trip the breaker, since the backend the breaker protects is
	// healthy in that case.
	modelFailed := false
	err := resilience.Do(ctx, f.retry, func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		audio, callErr := f.model.Synthesize(ctx, req, progress)
		if callErr != nil {
			modelFailed = true
			return callErr
		}
		modelFailed = false

		if req.Parameters.Denoise && f.denoiser != nil {
			denoised, denoiseErr := f.denoiser.Denoise(ctx, audio)
			if denoiseErr != nil {
				return resilience.Wrap(resilience.KindTransientBackend, "denoise post-processing failed", denoiseErr)
			}
			audio = denoised
		}

		out = audio
		return nil
	})
	if modelFailed {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
	if err != nil {
		return Audio{}, err
	}
	return out, nil
}

// Device reports the compute device the resident model is warmed up on.
func (f *Facade) Device() string { return f.model.Device() }
