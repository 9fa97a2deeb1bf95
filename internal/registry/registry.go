// Package registry is the composition root: it wires config, storage,
// catalogs, the synthesis facade, the queue broker, the worker pool,
// and the API handler into one running process, the same one-shot
// wiring shape the teacher's cmd/server main used to do inline.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/voxforge/voxforge/internal/api"
	"github.com/voxforge/voxforge/internal/audionorm"
	"github.com/voxforge/voxforge/internal/config"
	"github.com/voxforge/voxforge/internal/database"
	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/qualityprofile"
	"github.com/voxforge/voxforge/internal/queue"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"
	"github.com/voxforge/voxforge/internal/synthesis"
	"github.com/voxforge/voxforge/internal/transcode"
	"github.com/voxforge/voxforge/internal/voiceprofile"
	"github.com/voxforge/voxforge/internal/worker"
	"github.com/voxforge/voxforge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Registry holds every top-level collaborator the server needs to
// start serving and to shut down cleanly.
type Registry struct {
	cfg     *config.Config
	jobs    repository.JobRepository
	broker  queue.Broker
	pool    *worker.Pool
	handler *api.Handler
	router  *gin.Engine
}

// Build wires the whole dependency graph. Nothing runs yet; call
// Start to launch the worker pool.
func Build(ctx context.Context, cfg *config.Config) (*Registry, error) {
	logger.Init(cfg.LogLevel)

	if err := database.Initialize(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	jobRepo := repository.NewJobRepository(database.DB)
	voiceRepo := repository.NewVoiceProfileRepository(database.DB)
	qualityRepo := repository.NewQualityProfileRepository(database.DB)

	qualityCatalog := qualityprofile.New(qualityRepo)
	if err := qualityCatalog.SeedBuiltins(ctx); err != nil {
		return nil, fmt.Errorf("seeding quality profile catalog: %w", err)
	}
	voiceCatalog := voiceprofile.New(voiceRepo, jobRepo)

	// Any job left "processing" from a prior process crash has no
	// live worker goroutine behind it anymore; reconcile it to failed
	// before accepting new work.
	reconciled, err := repository.ReconcileOrphans(ctx, jobRepo, map[string]struct{}{})
	if err != nil {
		return nil, fmt.Errorf("reconciling orphaned jobs: %w", err)
	}
	if reconciled > 0 {
		logger.Info("reconciled orphaned jobs from a previous run", "count", reconciled)
	}

	model := synthesis.NewXTTSModel(cfg.EngineURL)
	// 200/32768 is roughly -44dBFS, a little below the -40dB floor
	// audionorm trims at clip edges; the gate applies it per-sample.
	denoiser := synthesis.NewNoiseGateDenoiser(200)
	facade, err := synthesis.New(ctx, model, denoiser, synthesis.Config{
		Device:      cfg.Device,
		CPUFallback: cfg.CPUFallback,
		Retry:       resilience.DefaultRetryConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("warming up synthesis facade: %w", err)
	}

	broker := queue.NewChannelBroker(cfg.QueueCapacity, cfg.VisibilityTimeout)

	normalizer, err := audionorm.NewFFmpegNormalizer()
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg/ffprobe for audio normalization: %w", err)
	}

	pool := worker.New(worker.Config{
		Concurrency:  cfg.MaxConcurrentJobs,
		SynthTimeout: cfg.SynthTimeout,
		ArtifactDir:  cfg.ArtifactDir,
		VoiceDir:     cfg.VoiceDir,
	}, broker, jobRepo, voiceRepo, qualityRepo, facade, normalizer)

	transcoder, err := transcode.NewFFmpegTranscoder("")
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg for transcoding: %w", err)
	}

	handler := api.NewHandler(cfg, jobRepo, voiceCatalog, qualityCatalog, broker, normalizer, transcoder)
	router := api.SetupRoutes(handler)

	// Any job still "queued" from a prior run needs to be re-enqueued
	// onto the fresh in-memory broker, since ChannelBroker state does
	// not survive a restart.
	if err := requeuePending(ctx, jobRepo, broker); err != nil {
		return nil, fmt.Errorf("requeuing pending jobs: %w", err)
	}

	return &Registry{
		cfg:     cfg,
		jobs:    jobRepo,
		broker:  broker,
		pool:    pool,
		handler: handler,
		router:  router,
	}, nil
}

func requeuePending(ctx context.Context, jobs repository.JobRepository, broker queue.Broker) error {
	queued, err := jobs.ListByStatus(ctx, models.StatusQueued)
	if err != nil {
		return err
	}
	for _, job := range queued {
		if err := broker.Enqueue(ctx, job.ID); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the worker pool. The HTTP server is started
// separately by the caller against Router().
func (r *Registry) Start() {
	r.pool.Start()
}

// Router returns the configured gin engine.
func (r *Registry) Router() *gin.Engine {
	return r.router
}

// BeginShutdown flips the 503-on-new-jobs flag immediately, before the
// HTTP server stops accepting connections, so requests racing the
// shutdown signal see a clean rejection instead of being queued work
// the worker pool is about to stop draining.
func (r *Registry) BeginShutdown() {
	r.handler.SetShuttingDown(true)
}

// Shutdown drains the worker pool with a grace period and closes the
// broker and database. Call BeginShutdown first.
func (r *Registry) Shutdown(ctx context.Context) error {
	grace := r.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	r.pool.Stop(grace)
	r.broker.Close()

	return database.Close()
}
