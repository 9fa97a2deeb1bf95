package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxforge/voxforge/internal/models"
	"github.com/voxforge/voxforge/internal/queue"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/internal/resilience"
	"github.com/voxforge/voxforge/internal/synthesis"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubModel struct {
	failuresBeforeSuccess int
	calls                 int
}

func (m *stubModel) Warmup(ctx context.Context, device string) error { return nil }
func (m *stubModel) Device() string                                  { return "cpu" }
func (m *stubModel) Synthesize(ctx context.Context, req synthesis.Request, progress synthesis.ProgressFunc) (synthesis.Audio, error) {
	m.calls++
	if m.calls <= m.failuresBeforeSuccess {
		return synthesis.Audio{}, resilience.New(resilience.KindOutOfMemory, "out of memory")
	}
	if progress != nil {
		progress(0.5)
	}
	return synthesis.Audio{PCM: []byte{1, 2, 3, 4}, SampleRate: 24000, Channels: 1}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.VoiceProfile{}, &models.QualityProfile{}))
	return db
}

func TestPool_SynthesizeJobCompletes(t *testing.T) {
	db := newTestDB(t)
	jobs := repository.NewJobRepository(db)
	voices := repository.NewVoiceProfileRepository(db)
	profiles := repository.NewQualityProfileRepository(db)
	ctx := context.Background()

	require.NoError(t, profiles.Create(ctx, &models.QualityProfile{
		ID: models.BuiltinBalancedID, Name: "Balanced", Engine: models.EngineXTTS, IsDefault: true,
		Parameters: models.QualityParameters{Temperature: 0.75, TopP: 0.85, TopK: 50, RepetitionPenalty: 2.0, LengthPenalty: 1.0, Speed: 1.0, EnableTextSplitting: true},
	}))

	preset := models.PresetFemaleGeneric
	job := &models.Job{Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusQueued, Text: "hello world", VoicePreset: &preset}
	require.NoError(t, jobs.Create(ctx, job))

	model := &stubModel{}
	facade, err := synthesis.New(ctx, model, nil, synthesis.Config{Device: "cpu", Retry: resilience.DefaultRetryConfig()})
	require.NoError(t, err)

	dir := t.TempDir()
	broker := queue.NewChannelBroker(4, time.Minute)
	defer broker.Close()

	pool := New(Config{Concurrency: 1, SynthTimeout: 10 * time.Second, ArtifactDir: filepath.Join(dir, "artifacts"), VoiceDir: filepath.Join(dir, "voices")},
		broker, jobs, voices, profiles, facade, nil)

	require.NoError(t, broker.Enqueue(ctx, job.ID))
	pool.Start()
	defer pool.Stop(time.Second)

	require.Eventually(t, func() bool {
		got, err := jobs.FindByID(ctx, job.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ArtifactPath)
	_, statErr := os.Stat(*got.ArtifactPath)
	require.NoError(t, statErr)
}

func TestPool_RetriesTransientFailureThenSucceeds(t *testing.T) {
	db := newTestDB(t)
	jobs := repository.NewJobRepository(db)
	voices := repository.NewVoiceProfileRepository(db)
	profiles := repository.NewQualityProfileRepository(db)
	ctx := context.Background()

	require.NoError(t, profiles.Create(ctx, &models.QualityProfile{
		ID: models.BuiltinBalancedID, Name: "Balanced", Engine: models.EngineXTTS, IsDefault: true,
	}))

	preset := models.PresetMaleDeep
	job := &models.Job{Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusQueued, Text: "retry me", VoicePreset: &preset}
	require.NoError(t, jobs.Create(ctx, job))

	model := &stubModel{failuresBeforeSuccess: 2}
	fastRetry := resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond, Jitter: 0}
	facade, err := synthesis.New(ctx, model, nil, synthesis.Config{Device: "cpu", Retry: fastRetry})
	require.NoError(t, err)

	dir := t.TempDir()
	broker := queue.NewChannelBroker(4, time.Minute)
	defer broker.Close()

	pool := New(Config{Concurrency: 1, SynthTimeout: 10 * time.Second, ArtifactDir: filepath.Join(dir, "artifacts"), VoiceDir: filepath.Join(dir, "voices")},
		broker, jobs, voices, profiles, facade, nil)

	require.NoError(t, broker.Enqueue(ctx, job.ID))
	pool.Start()
	defer pool.Stop(time.Second)

	require.Eventually(t, func() bool {
		got, err := jobs.FindByID(ctx, job.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 3, model.calls)
}
