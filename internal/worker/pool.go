// Package worker implements the pool of N = max_concurrent_jobs
// cooperating goroutines that dequeue jobs from the broker and drive
// them through the Synthesis Facade to completion, grounded on the
// corpus's worker-pool shape: a fixed goroutine count pulling off a
// channel-backed queue, one job in flight per goroutine.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voxforge/voxforge/internal/audionorm"
	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/queue"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"
	"github.com/voxforge/voxforge/internal/synthesis"

	"github.com/google/uuid"
	"github.com/voxforge/voxforge/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Config controls pool sizing and per-job deadlines.
type Config struct {
	Concurrency  int
	SynthTimeout time.Duration
	ArtifactDir  string
	VoiceDir     string
}

// Pool is the worker pool: Config.Concurrency goroutines draining
// broker, each processing at most one job at a time.
type Pool struct {
	cfg      Config
	broker   queue.Broker
	jobs     repository.JobRepository
	voices   repository.VoiceProfileRepository
	profiles repository.QualityProfileRepository
	facade   *synthesis.Facade
	normalizer audionorm.Normalizer

	group    *errgroup.Group
	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Pool wired to its collaborators. Nothing runs until Start.
func New(
	cfg Config,
	broker queue.Broker,
	jobs repository.JobRepository,
	voices repository.VoiceProfileRepository,
	profiles repository.QualityProfileRepository,
	facade *synthesis.Facade,
	normalizer audionorm.Normalizer,
) *Pool {
	return &Pool{
		cfg: cfg, broker: broker, jobs: jobs, voices: voices, profiles: profiles,
		facade: facade, normalizer: normalizer,
		stop: make(chan struct{}),
	}
}

// Start launches Config.Concurrency worker goroutines.
func (p *Pool) Start() {
	p.group = new(errgroup.Group)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i
		p.group.Go(func() error {
			p.run(id)
			return nil
		})
	}
	logger.Info("worker pool started", "concurrency", p.cfg.Concurrency)
}

// Stop signals every worker goroutine to finish its current job (up
// to the spec's 30s grace period) and not pick up another.
func (p *Pool) Stop(grace time.Duration) {
	p.stopOnce.Do(func() { close(p.stop) })

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("worker pool stop grace period elapsed with jobs still in flight")
	}
}

func (p *Pool) run(id int) {
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		ctx, cancel := dequeueCtx(p.stop)
		token, jobID, err := p.broker.Dequeue(ctx)
		cancel()
		if err != nil {
			if err == queue.ErrClosed {
				return
			}
			continue
		}

		logger.WorkerInfo(id, jobID, "dequeued")
		if err := p.process(id, jobID); err != nil {
			logger.WorkerInfo(id, jobID, "failed", "error", err)
			// A failed job is terminal: settle the delivery so the
			// broker never hands it out again.
			_ = p.broker.Ack(token)
			continue
		}
		_ = p.broker.Ack(token)
		logger.WorkerInfo(id, jobID, "completed")
	}
}

// dequeueCtx blocks Dequeue until stop fires, the unbounded-but-
// interruptible poll the spec requires. The caller must invoke the
// returned cancel func once Dequeue returns to release the watcher
// goroutine.
func dequeueCtx(stop chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (p *Pool) process(workerID int, jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SynthTimeout)
	defer cancel()

	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		return resilience.Wrap(resilience.KindInternal, "loading job", err)
	}

	now := time.Now()
	if err := p.jobs.UpdateStatus(ctx, jobID, models.StatusProcessing, map[string]any{"started_at": now}); err != nil {
		return resilience.Wrap(resilience.KindInternal, "marking job processing", err)
	}

	progress := func(fraction float64) {
		if tombstoned, _ := p.jobs.IsTombstoned(ctx, jobID); tombstoned {
			cancel()
			return
		}
		_ = p.jobs.UpdateStatus(ctx, jobID, models.StatusProcessing, map[string]any{"progress": fraction})
	}

	var procErr error
	switch job.Kind {
	case models.KindClone:
		procErr = p.processClone(ctx, job, progress)
	default:
		procErr = p.processSynthesize(ctx, job, progress)
	}

	if procErr != nil {
		kind := resilience.KindOf(procErr)
		if tombstoned, _ := p.jobs.IsTombstoned(context.Background(), jobID); tombstoned {
			kind = resilience.KindCancelled
		}
		msg := procErr.Error()
		_ = p.jobs.UpdateStatus(context.Background(), jobID, models.StatusFailed, map[string]any{
			"error_kind":    string(kind),
			"error_message": msg,
			"completed_at":  time.Now(),
		})
		return procErr
	}

	return nil
}

func (p *Pool) processSynthesize(ctx context.Context, job *models.Job, progress synthesis.ProgressFunc) error {
	req := synthesis.Request{
		Text:           job.Text,
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
	}

	if job.Mode == models.ModeVoiceClone && job.VoiceProfileID != nil {
		voiceProfile, err := p.voices.FindByID(ctx, *job.VoiceProfileID)
		if err != nil {
			return resilience.Wrap(resilience.KindNotFound, "voice profile not found", err)
		}
		req.VoiceProfile = voiceProfile
	} else {
		req.VoicePreset = job.VoicePreset
	}

	qualityID := models.BuiltinBalancedID
	if job.QualityProfileID != nil {
		qualityID = *job.QualityProfileID
	}
	qualityProfile, err := p.profiles.FindByID(ctx, qualityID)
	if err != nil {
		return resilience.Wrap(resilience.KindNotFound, "quality profile not found", err)
	}
	req.Parameters = qualityProfile.Parameters

	audio, err := p.facade.Synthesize(ctx, req, progress)
	if err != nil {
		return err
	}

	artifactPath := filepath.Join(p.cfg.ArtifactDir, job.ID+".pcm24k")
	if err := writeAtomic(artifactPath, audio.PCM); err != nil {
		return resilience.Wrap(resilience.KindInternal, "persisting artifact", err)
	}

	if job.VoiceProfileID != nil {
		_ = p.voices.IncrementUsage(ctx, *job.VoiceProfileID)
	}

	return p.jobs.UpdateStatus(ctx, job.ID, models.StatusCompleted, map[string]any{
		"artifact_path": artifactPath,
		"progress":      1.0,
		"completed_at":  time.Now(),
	})
}

func (p *Pool) processClone(ctx context.Context, job *models.Job, progress synthesis.ProgressFunc) error {
	if job.CloneUploadPath == nil {
		return resilience.New(resilience.KindValidation, "clone job missing upload path")
	}
	progress(0.1)

	raw, err := os.ReadFile(*job.CloneUploadPath)
	if err != nil {
		return resilience.Wrap(resilience.KindInternal, "reading uploaded reference audio", err)
	}

	result, err := p.normalizer.Normalize(ctx, raw)
	if err != nil {
		return err
	}
	progress(0.6)

	voiceID := uuid.New().String()
	referencePath := filepath.Join(p.cfg.VoiceDir, voiceID+".pcm24k")
	if err := writeAtomic(referencePath, result.PCM); err != nil {
		return resilience.Wrap(resilience.KindInternal, "persisting voice reference audio", err)
	}

	name := ""
	if job.CloneName != nil {
		name = *job.CloneName
	}
	var description *string
	if job.CloneDescription != nil {
		description = job.CloneDescription
	}
	var refText *string
	if job.CloneRefText != nil {
		refText = job.CloneRefText
	}

	profile := &models.VoiceProfile{
		ID:                 voiceID,
		Name:               name,
		Description:        description,
		Language:           job.SourceLanguage,
		ReferenceAudioPath: referencePath,
		RefText:            refText,
		DurationSeconds:    result.DurationSeconds,
		SampleRate:         result.SampleRate,
	}
	if err := p.voices.Create(ctx, profile); err != nil {
		return resilience.Wrap(resilience.KindInternal, "persisting voice profile", err)
	}

	return p.jobs.UpdateStatus(ctx, job.ID, models.StatusCompleted, map[string]any{
		"voice_id":     voiceID,
		"progress":     1.0,
		"completed_at": time.Now(),
	})
}

// writeAtomic implements the write-temp + fsync + rename pattern so
// concurrent downloads never observe a torn artifact.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.New().String())

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
