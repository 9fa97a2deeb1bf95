package repository

import (
	"context"
	"testing"

	"github.com/voxforge/voxforge/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}, &models.VoiceProfile{}, &models.QualityProfile{}))
	return db
}

func TestJobRepository_ListFilteredPaginatesAndFiltersByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := models.StatusQueued
		if i%2 == 0 {
			status = models.StatusCompleted
		}
		require.NoError(t, repo.Create(ctx, &models.Job{
			Mode: models.ModePreset, Kind: models.KindSynthesize, Status: status,
			Text: "hello", SourceLanguage: "en", TargetLanguage: "en",
		}))
	}

	completed := models.StatusCompleted
	jobs, total, err := repo.ListFiltered(ctx, JobFilter{Status: &completed}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, jobs, 3)

	page1, total, err := repo.ListFiltered(ctx, JobFilter{}, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, page1, 2)
}

func TestJobRepository_TombstoneLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusProcessing, Text: "hi", SourceLanguage: "en", TargetLanguage: "en"}
	require.NoError(t, repo.Create(ctx, job))

	tombstoned, err := repo.IsTombstoned(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, tombstoned)

	require.NoError(t, repo.MarkTombstoned(ctx, job.ID))

	tombstoned, err = repo.IsTombstoned(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, tombstoned)
}

func TestJobRepository_CountReferencingVoiceProfile(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	voiceID := "voice-1"
	require.NoError(t, repo.Create(ctx, &models.Job{
		Mode: models.ModeVoiceClone, Kind: models.KindSynthesize, Status: models.StatusCompleted,
		Text: "hi", SourceLanguage: "en", TargetLanguage: "en", VoiceProfileID: &voiceID,
	}))

	count, err := repo.CountReferencingVoiceProfile(ctx, voiceID, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = repo.CountReferencingVoiceProfile(ctx, "other-voice", false)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestReconcileOrphans_FailsProcessingJobsWithNoLiveWorker(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	stuck := &models.Job{Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusProcessing, Text: "a", SourceLanguage: "en", TargetLanguage: "en"}
	live := &models.Job{Mode: models.ModePreset, Kind: models.KindSynthesize, Status: models.StatusProcessing, Text: "b", SourceLanguage: "en", TargetLanguage: "en"}
	require.NoError(t, repo.Create(ctx, stuck))
	require.NoError(t, repo.Create(ctx, live))

	n, err := ReconcileOrphans(ctx, repo, map[string]struct{}{live.ID: {}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := repo.FindByID(ctx, stuck.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorKind)

	stillLive, err := repo.FindByID(ctx, live.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, stillLive.Status)
}

func TestQualityProfileRepository_SetDefaultIsExclusive(t *testing.T) {
	db := newTestDB(t)
	repo := NewQualityProfileRepository(db)
	ctx := context.Background()

	a := &models.QualityProfile{ID: "a", Name: "A", Engine: "xtts", IsDefault: true}
	b := &models.QualityProfile{ID: "b", Name: "B", Engine: "xtts"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.SetDefault(ctx, "xtts", "b"))

	def, err := repo.FindDefault(ctx, "xtts")
	require.NoError(t, err)
	require.Equal(t, "b", def.ID)

	reloaded, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	require.False(t, reloaded.IsDefault)
}

func TestVoiceProfileRepository_IncrementUsage(t *testing.T) {
	db := newTestDB(t)
	repo := NewVoiceProfileRepository(db)
	ctx := context.Background()

	profile := &models.VoiceProfile{Name: "narrator", Language: "en", ReferenceAudioPath: "/x", SampleRate: 24000}
	require.NoError(t, repo.Create(ctx, profile))

	require.NoError(t, repo.IncrementUsage(ctx, profile.ID))
	require.NoError(t, repo.IncrementUsage(ctx, profile.ID))

	got, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.UsageCount)
}
